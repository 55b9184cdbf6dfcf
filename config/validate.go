package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate rejects settings the node cannot start with.
func (c *Config) Validate() error {
	switch c.Database {
	case DatabaseLevelDB, DatabaseMemory:
	default:
		return fmt.Errorf("Database: unsupported backend %q", c.Database)
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		return fmt.Errorf("NetworkName: must not be empty")
	}
	if _, err := c.ProgramID(); err != nil {
		return err
	}
	if _, _, err := c.FixedClock(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerMinute < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("RPC: rate limits must not be negative")
	}
	if c.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("RPC: MaxBodyBytes must not be negative")
	}
	if c.Indexer.Enabled {
		switch c.Indexer.Driver {
		case IndexerDriverSQLite, IndexerDriverPostgres:
		default:
			return fmt.Errorf("Indexer: unsupported driver %q", c.Indexer.Driver)
		}
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("Indexer: DSN required")
		}
	}
	seen := make(map[string]struct{}, len(c.Webhooks))
	for i, hook := range c.Webhooks {
		name := strings.TrimSpace(hook.Name)
		if name == "" {
			return fmt.Errorf("Webhooks[%d]: Name required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("Webhooks[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		parsed, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("Webhooks[%d]: URL must be an absolute http(s) URL", i)
		}
		if hook.RateLimit < 0 {
			return fmt.Errorf("Webhooks[%d]: RateLimit must not be negative", i)
		}
	}
	return nil
}
