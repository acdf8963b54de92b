package simclock

import (
	"fmt"
	"time"
)

// Clock provides the current simulated instant.
type Clock interface {
	Now() time.Time
}

// SimulatedClock maps elapsed real time onto an accelerated timeline. One
// real second advances the simulation by Speed seconds. All instants are
// rendered in the configured time zone.
type SimulatedClock struct {
	loc       *time.Location
	speed     int64
	simStart  time.Time
	realStart time.Time

	nowFn func() time.Time
}

// New builds a SimulatedClock from cfg. The simulation starts at
// cfg.StartTime when set, otherwise at the real current time.
func New(cfg Config) (*SimulatedClock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", cfg.TimeZone, err)
	}
	realStart := time.Now()
	simStart := realStart.In(loc)
	if cfg.StartTime != "" {
		t, err := time.Parse(time.RFC3339, cfg.StartTime)
		if err != nil {
			return nil, fmt.Errorf("parse start_time %q: %w", cfg.StartTime, err)
		}
		simStart = t.In(loc)
	}
	return &SimulatedClock{
		loc:       loc,
		speed:     cfg.Speed,
		simStart:  simStart,
		realStart: realStart,
		nowFn:     time.Now,
	}, nil
}

// Now returns the simulated instant corresponding to the real current time.
func (c *SimulatedClock) Now() time.Time {
	elapsed := c.nowFn().Sub(c.realStart)
	return c.simStart.Add(elapsed * time.Duration(c.speed)).In(c.loc)
}

// Location returns the zone simulated instants are rendered in.
func (c *SimulatedClock) Location() *time.Location {
	return c.loc
}

// Speed returns the acceleration factor.
func (c *SimulatedClock) Speed() int64 {
	return c.speed
}
