package config

import (
	"fmt"

	"github.com/kilianp07/pilesim/core/pile"
)

// FleetConfig bulk-generates piles from one template, the counterpart of
// listing every pile explicitly.
type FleetConfig struct {
	Count    int         `json:"count"`
	IDPrefix string      `json:"id_prefix"`
	Defaults pile.Config `json:"defaults"`
}

// SetDefaults applies fallback values.
func (c *FleetConfig) SetDefaults() {
	if c.IDPrefix == "" {
		c.IDPrefix = "pile"
	}
}

// Expand generates Count pile configs with sequential ids.
func (c FleetConfig) Expand() []pile.Config {
	if c.Count <= 0 {
		return nil
	}
	out := make([]pile.Config, c.Count)
	for i := range out {
		p := c.Defaults
		p.ID = fmt.Sprintf("%s-%04d", c.IDPrefix, i+1)
		p.SetDefaults()
		out[i] = p
	}
	return out
}
