package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"latchain/crypto"
	"latchain/native/rewards"
)

const (
	DatabaseLevelDB = "leveldb"
	DatabaseMemory  = "memory"

	ClockSystem      = "system"
	clockFixedPrefix = "fixed:"

	// DefaultProgramKey is the identity derived authorities are scoped to when
	// the config does not name one.
	DefaultProgramKey = rewards.DefaultProgramID
)

type Config struct {
	ListenAddress string          `toml:"ListenAddress"`
	DataDir       string          `toml:"DataDir"`
	Database      string          `toml:"Database"`
	GenesisFile   string          `toml:"GenesisFile"`
	NetworkName   string          `toml:"NetworkName"`
	ProgramKey    string          `toml:"ProgramKey"`
	Clock         string          `toml:"Clock"`
	PausedModules []string        `toml:"PausedModules"`
	RPC           RPCConfig       `toml:"RPC"`
	Logging       LoggingConfig   `toml:"Logging"`
	Telemetry     TelemetryConfig `toml:"Telemetry"`
	Indexer       IndexerConfig   `toml:"Indexer"`
	Webhooks      []WebhookConfig `toml:"Webhooks"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown field %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8547"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./lat-data"
	}
	if strings.TrimSpace(c.Database) == "" {
		c.Database = DatabaseLevelDB
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "lat-local"
	}
	if strings.TrimSpace(c.ProgramKey) == "" {
		c.ProgramKey = DefaultProgramKey
	}
	if strings.TrimSpace(c.Clock) == "" {
		c.Clock = ClockSystem
	}
	if c.PausedModules == nil {
		c.PausedModules = []string{}
	}
	c.RPC.applyDefaults()
	c.Logging.applyDefaults()
	c.Indexer.applyDefaults(c.DataDir)
}

// ProgramID decodes ProgramKey.
func (c *Config) ProgramID() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.ProgramKey))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("ProgramKey: %w", err)
	}
	return addr, nil
}

// FixedClock reports the pinned unix time when Clock is "fixed:<unix>".
func (c *Config) FixedClock() (int64, bool, error) {
	setting := strings.TrimSpace(c.Clock)
	if setting == "" || strings.EqualFold(setting, ClockSystem) {
		return 0, false, nil
	}
	if !strings.HasPrefix(setting, clockFixedPrefix) {
		return 0, false, fmt.Errorf("Clock: unsupported value %q", c.Clock)
	}
	unix, err := strconv.ParseInt(strings.TrimPrefix(setting, clockFixedPrefix), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("Clock: %w", err)
	}
	return unix, true, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
