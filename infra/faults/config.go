package faults

import "fmt"

// Config controls the random fault injector.
type Config struct {
	Enabled bool `json:"enabled"`
	// MeanTimeBetweenS is the mean spacing between injected faults in real
	// seconds, regardless of the clock speed.
	MeanTimeBetweenS float64 `json:"mean_time_between_s"`
	Seed             int64   `json:"seed"`
}

// SetDefaults applies fallback values for optional fields.
func (c *Config) SetDefaults() {
	if c.MeanTimeBetweenS == 0 {
		c.MeanTimeBetweenS = 600
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.MeanTimeBetweenS <= 0 {
		return fmt.Errorf("mean_time_between_s must be >0")
	}
	return nil
}
