package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/pilesim/core/metrics"
	"github.com/kilianp07/pilesim/core/pile"
	"github.com/kilianp07/pilesim/core/sessionlog"
	"github.com/kilianp07/pilesim/core/simclock"
	"github.com/kilianp07/pilesim/infra/faults"
	"github.com/kilianp07/pilesim/infra/mqtt"
)

// Config is the fully resolved simulator configuration. Piles holds the
// final fleet after defaults, generated ids and fleet expansion.
type Config struct {
	MQTT       mqtt.Config       `json:"mqtt"`
	Clock      simclock.Config   `json:"clock"`
	Tariff     TariffConfig      `json:"tariff"`
	Piles      []pile.Config     `json:"piles"`
	Fleet      FleetConfig       `json:"fleet"`
	Metrics    metrics.Config    `json:"metrics"`
	SessionLog sessionlog.Config `json:"session_log"`
	Faults     faults.Config     `json:"faults"`
	StatusAPI  StatusAPIConfig   `json:"status_api"`
}

// TariffConfig points at the JSON price file. A default table is written
// there on first run when the file does not exist.
type TariffConfig struct {
	Path string `json:"path"`
}

// SetDefaults applies fallback values.
func (c *TariffConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "price.json"
	}
}

// StatusAPIConfig controls the read only pile status endpoint.
type StatusAPIConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// SetDefaults applies fallback values.
func (c *StatusAPIConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
}

// Load reads the configuration file, applies PILESIM_ environment overrides
// and resolves defaults. Configuration errors are fatal before any session
// starts, so validation happens here.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. PILESIM_CLOCK__SPEED=60.
	if err := k.Load(env.Provider("PILESIM_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "pilesim_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finalize() error {
	c.MQTT.SetDefaults()
	c.Clock.SetDefaults()
	c.Tariff.SetDefaults()
	c.Fleet.SetDefaults()
	c.Metrics.SetDefaults()
	c.SessionLog.SetDefaults()
	c.Faults.SetDefaults()
	c.StatusAPI.SetDefaults()

	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Clock.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.SessionLog.Validate(); err != nil {
		return err
	}
	if err := c.Faults.Validate(); err != nil {
		return err
	}
	return c.resolvePiles()
}

// resolvePiles merges the explicit pile list with the expanded fleet and
// checks the result. Explicit piles without an id get a generated one.
func (c *Config) resolvePiles() error {
	for i := range c.Piles {
		c.Piles[i].SetDefaults()
		if c.Piles[i].ID == "" {
			c.Piles[i].ID = uuid.NewString()
		}
	}
	c.Piles = append(c.Piles, c.Fleet.Expand()...)
	if len(c.Piles) == 0 {
		p := pile.Config{ID: "pile-1"}
		p.SetDefaults()
		c.Piles = []pile.Config{p}
	}
	seen := make(map[string]struct{}, len(c.Piles))
	for _, p := range c.Piles {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate pile id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
