package sessionlog

import "fmt"

// Config controls the session audit log.
type Config struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SetDefaults fills in default values.
func (c *Config) SetDefaults() {
	if c.Path == "" {
		c.Path = "sessions.jsonl"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Enabled && c.Path == "" {
		return fmt.Errorf("session log path required")
	}
	return nil
}
