package gateway

import (
	"maps"
	"strings"
)

// Config is an immutable snapshot of one gateway's settings for one environment.
type Config struct {
	gateway     string
	environment string
	values      map[string]string
}

// NewConfig copies values into a new snapshot.
func NewConfig(gateway, environment string, values map[string]string) Config {
	return Config{
		gateway:     gateway,
		environment: environment,
		values:      maps.Clone(values),
	}
}

// Gateway returns the gateway code the snapshot belongs to.
func (c Config) Gateway() string { return c.gateway }

// Environment returns "test" or "live".
func (c Config) Environment() string { return c.environment }

// IsLive reports whether the snapshot holds production credentials.
func (c Config) IsLive() bool { return c.environment == EnvironmentLive }

// Get returns the value for key, or "" when absent.
func (c Config) Get(key string) string { return c.values[key] }

// GetOr returns the value for key, or def when absent or empty.
func (c Config) GetOr(key, def string) string {
	if v := c.values[key]; v != "" {
		return v
	}
	return def
}

// Bool interprets a flag stored as "1"/"true"/"yes".
func (c Config) Bool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.values[key])) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Require returns a *ConfigurationError naming the first key that is missing or empty.
func (c Config) Require(keys ...string) error {
	for _, key := range keys {
		if strings.TrimSpace(c.values[key]) == "" {
			return &ConfigurationError{Gateway: c.gateway, Environment: c.environment, Key: key}
		}
	}
	return nil
}

// Without returns a copy of the values with the given keys removed.
func (c Config) Without(keys ...string) map[string]string {
	out := maps.Clone(c.values)
	if out == nil {
		out = make(map[string]string)
	}
	for _, key := range keys {
		delete(out, key)
	}
	return out
}
