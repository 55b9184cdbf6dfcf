package config

import "path/filepath"

// RPCConfig controls the JSON-RPC listener.
type RPCConfig struct {
	// AuthTokenEnv names the environment variable holding the static bearer
	// token accepted for operator methods.
	AuthTokenEnv string `toml:"AuthTokenEnv"`
	// JWTSecretEnv names the environment variable holding the HMAC secret for
	// operator JWTs. Either credential unlocks operator methods.
	JWTSecretEnv       string  `toml:"JWTSecretEnv"`
	JWTIssuer          string  `toml:"JWTIssuer"`
	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	MaxBodyBytes       int64   `toml:"MaxBodyBytes"`
	ReadTimeoutSecs    int     `toml:"ReadTimeoutSecs"`
	WriteTimeoutSecs   int     `toml:"WriteTimeoutSecs"`
}

func (r *RPCConfig) applyDefaults() {
	if r.AuthTokenEnv == "" {
		r.AuthTokenEnv = "LAT_RPC_TOKEN"
	}
	if r.JWTSecretEnv == "" {
		r.JWTSecretEnv = "LAT_RPC_JWT_SECRET"
	}
	if r.JWTIssuer == "" {
		r.JWTIssuer = "latchain"
	}
	if r.RateLimitPerMinute == 0 {
		r.RateLimitPerMinute = 600
	}
	if r.RateLimitBurst == 0 {
		r.RateLimitBurst = 60
	}
	if r.MaxBodyBytes == 0 {
		r.MaxBodyBytes = 1 << 20
	}
	if r.ReadTimeoutSecs == 0 {
		r.ReadTimeoutSecs = 15
	}
	if r.WriteTimeoutSecs == 0 {
		r.WriteTimeoutSecs = 15
	}
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Env   string `toml:"Env"`
	Level string `toml:"Level"`
	// File enables rotation through lumberjack; stdout is used when empty.
	File          string `toml:"File"`
	MaxSizeMB     int    `toml:"MaxSizeMB"`
	MaxBackups    int    `toml:"MaxBackups"`
	MaxAgeDays    int    `toml:"MaxAgeDays"`
	CompressFiles bool   `toml:"CompressFiles"`
}

func (l *LoggingConfig) applyDefaults() {
	if l.Env == "" {
		l.Env = "dev"
	}
	if l.Level == "" {
		l.Level = "info"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 100
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 5
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = 28
	}
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
	// Headers is a comma separated key=value list sent with every export.
	Headers string `toml:"Headers"`
}

// IndexerConfig controls the SQL event index.
type IndexerConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
	// ExportDir receives parquet snapshots; ExportSchedule is a cron spec.
	ExportDir      string `toml:"ExportDir"`
	ExportSchedule string `toml:"ExportSchedule"`
}

const (
	IndexerDriverSQLite   = "sqlite"
	IndexerDriverPostgres = "postgres"
)

func (i *IndexerConfig) applyDefaults(dataDir string) {
	if i.Driver == "" {
		i.Driver = IndexerDriverSQLite
	}
	if i.DSN == "" && i.Driver == IndexerDriverSQLite {
		i.DSN = filepath.Join(dataDir, "index.db")
	}
	if i.ExportDir == "" {
		i.ExportDir = filepath.Join(dataDir, "exports")
	}
}

// WebhookConfig registers one endpoint that receives committed receipts.
type WebhookConfig struct {
	Name string `toml:"Name"`
	URL  string `toml:"URL"`
	// SecretEnv names the environment variable holding the HMAC signing key.
	SecretEnv string `toml:"SecretEnv"`
	// Operations restricts deliveries to these receipt operations; empty
	// means all.
	Operations []string `toml:"Operations"`
	// RateLimit caps deliveries per minute.
	RateLimit int `toml:"RateLimit"`
}
