package pile

import (
	"fmt"

	"github.com/kilianp07/pilesim/core/model"
)

// Config describes one charging pile.
type Config struct {
	// ID identifies the pile in topics and events. Generated when empty.
	ID string `json:"id"`
	// Type is the charging mode the pile offers ("F" fast, "T" trickle).
	Type model.ChargeType `json:"type"`
	// PowerKW is the constant output power while a session charges.
	PowerKW float64 `json:"power_kw"`
	// Capacity bounds waiting requests plus the active session.
	Capacity int `json:"capacity"`
	// AllowInterrupt permits fault triggers to interrupt the active session.
	AllowInterrupt bool `json:"allow_interrupt"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = model.ChargeFast
	}
	if c.PowerKW == 0 {
		c.PowerKW = 30
	}
	if c.Capacity == 0 {
		c.Capacity = 2
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("pile id is required")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("pile %s: unknown charge type %q", c.ID, string(c.Type))
	}
	if c.PowerKW <= 0 {
		return fmt.Errorf("pile %s: power must be positive, got %v", c.ID, c.PowerKW)
	}
	if c.Capacity < 1 {
		return fmt.Errorf("pile %s: capacity must be at least 1, got %d", c.ID, c.Capacity)
	}
	return nil
}
