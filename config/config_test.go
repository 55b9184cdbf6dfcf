package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"latchain/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DatabaseLevelDB, cfg.Database)
	require.Equal(t, DefaultProgramKey, cfg.ProgramKey)
	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/lat"
Database = "memory"
NetworkName = "latnet"
Clock = "fixed:1700000000"
PausedModules = ["rewards"]

[RPC]
RateLimitPerMinute = 30
RateLimitBurst = 5

[Logging]
Env = "prod"
File = "/var/log/latd.log"

[Telemetry]
Endpoint = "otel:4318"
Traces = true

[Indexer]
Enabled = true
Driver = "postgres"
DSN = "postgres://lat@db/lat"
ExportSchedule = "@hourly"

[[Webhooks]]
Name = "ops"
URL = "https://hooks.example.com/lat"
SecretEnv = "LAT_WEBHOOK_SECRET"
Operations = ["claimTradeRewards", "claimStakeRewards"]
RateLimit = 120
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, DatabaseMemory, cfg.Database)
	require.Equal(t, []string{"rewards"}, cfg.PausedModules)
	require.Equal(t, float64(30), cfg.RPC.RateLimitPerMinute)
	require.Equal(t, int64(1<<20), cfg.RPC.MaxBodyBytes)
	require.Equal(t, "prod", cfg.Logging.Env)
	require.Equal(t, 100, cfg.Logging.MaxSizeMB)
	require.True(t, cfg.Telemetry.Traces)
	require.Equal(t, IndexerDriverPostgres, cfg.Indexer.Driver)
	require.Equal(t, filepath.Join("/var/lib/lat", "exports"), cfg.Indexer.ExportDir)
	require.Len(t, cfg.Webhooks, 1)
	require.Equal(t, "LAT_WEBHOOK_SECRET", cfg.Webhooks[0].SecretEnv)
	require.Equal(t, []string{"claimTradeRewards", "claimStakeRewards"}, cfg.Webhooks[0].Operations)

	unix, fixed, err := cfg.FixedClock()
	require.NoError(t, err)
	require.True(t, fixed)
	require.Equal(t, int64(1_700_000_000), unix)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ValidatorKey = \"abc\"\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"database":   func(c *Config) { c.Database = "bolt" },
		"program":    func(c *Config) { c.ProgramKey = "not-base58-0OIl" },
		"clock":      func(c *Config) { c.Clock = "monotonic" },
		"fixedClock": func(c *Config) { c.Clock = "fixed:soon" },
		"indexer": func(c *Config) {
			c.Indexer.Enabled = true
			c.Indexer.Driver = "mysql"
		},
		"rate": func(c *Config) { c.RPC.RateLimitBurst = -1 },
		"webhookURL": func(c *Config) {
			c.Webhooks = []WebhookConfig{{Name: "a", URL: "ftp://example.com"}}
		},
		"webhookDuplicate": func(c *Config) {
			c.Webhooks = []WebhookConfig{
				{Name: "a", URL: "https://example.com/1"},
				{Name: "a", URL: "https://example.com/2"},
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestGenesisRoundTrip(t *testing.T) {
	admin, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	holder, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	mint, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	gen := &Genesis{
		Admin:        admin.PubKey().Address().String(),
		RewardMint:   mint.PubKey().Address().String(),
		MintDecimals: 6,
		Params: GenesisParams{
			TradeRewardRate:     10,
			StakeRewardRate:     1,
			TradeEpochDuration:  86400,
			PoolVolumeThreshold: 1_000_000,
			PoolBoostMultiplier: 150,
		},
		Allocations: []GenesisAllocation{{Owner: holder.PubKey().Address().String(), Amount: 5_000}},
	}
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, WriteGenesis(path, gen))

	loaded, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, gen, loaded)

	params, err := loaded.InitializeParams()
	require.NoError(t, err)
	require.Equal(t, mint.PubKey().Address(), params.RewardMint)
	require.Equal(t, int64(86400), params.TradeEpochDuration)

	allocs, err := loaded.ResolvedAllocations()
	require.NoError(t, err)
	require.Equal(t, []ResolvedAllocation{{Owner: holder.PubKey().Address(), Amount: 5_000}}, allocs)
}

func TestGenesisRejectsBadAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin: nope\nrewardMint: nope\n"), 0o644))
	_, err := LoadGenesis(path)
	require.ErrorIs(t, err, ErrInvalidGenesis)
}
