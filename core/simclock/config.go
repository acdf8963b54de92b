package simclock

import (
	"fmt"
	"time"
)

// Config controls the simulated timeline.
type Config struct {
	// TimeZone is the IANA zone name simulated instants are rendered in.
	TimeZone string `json:"time_zone"`
	// Speed is the acceleration factor: one real second advances the
	// simulation by Speed seconds.
	Speed int64 `json:"speed"`
	// StartTime optionally pins the simulation start instant (RFC 3339).
	// Empty starts the simulation at the real current time.
	StartTime string `json:"start_time"`
	// PollIntervalMS is the real-time period of the progress tick in
	// milliseconds. The tick period is not scaled by Speed.
	PollIntervalMS int `json:"poll_interval_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeZone == "" {
		c.TimeZone = "Asia/Shanghai"
	}
	if c.Speed == 0 {
		c.Speed = 1
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = 5000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Speed < 1 {
		return fmt.Errorf("speed must be >= 1, got %d", c.Speed)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMS)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("unknown time zone %q: %w", c.TimeZone, err)
	}
	if c.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, c.StartTime); err != nil {
			return fmt.Errorf("start_time must be RFC 3339: %w", err)
		}
	}
	return nil
}

// PollInterval returns the real tick period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
