// Package config loads, validates, and resolves Parley configuration.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Bus: BusConfig{
			QueueSize: 100,
		},
		Session: SessionConfig{
			Scope: "per-sender",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Responder: ResponderConfig{
			Timeout: 120,
		},
	}
}
