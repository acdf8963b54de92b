package mockdispatch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/pilesim/core/model"
	"github.com/kilianp07/pilesim/infra/mqtt"
)

// Step is one scripted action in a scenario.
type Step struct {
	DelayMS      int     `yaml:"delay_ms"`
	Action       string  `yaml:"action"`
	PileID       string  `yaml:"pile_id"`
	RequestID    string  `yaml:"request_id"`
	ChargeType   string  `yaml:"charge_type"`
	RequestedKWh float64 `yaml:"requested_kwh"`
	Reason       string  `yaml:"reason"`
}

// Scenario is a scripted command sequence replayed against the fleet.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that every step names a known action and carries the
// fields that action needs.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, st := range sc.Steps {
		switch st.Action {
		case "request", "cancel", "fault", "close", "open":
		default:
			return fmt.Errorf("step %d: unknown action %q", i, st.Action)
		}
		if st.PileID == "" {
			return fmt.Errorf("step %d: pile_id is required", i)
		}
		if st.Action == "cancel" && st.RequestID == "" {
			return fmt.Errorf("step %d: cancel requires request_id", i)
		}
	}
	return nil
}

// replay walks the scenario steps in order, sleeping each step's delay
// before sending. Step failures are logged and do not stop the run.
func (s *Server) replay(ctx context.Context, sc *Scenario) {
	s.log.Infof("replaying scenario %q (%d steps)", sc.Name, len(sc.Steps))
	for i, st := range sc.Steps {
		if st.DelayMS > 0 {
			t := time.NewTimer(time.Duration(st.DelayMS) * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if err := s.step(st); err != nil {
			s.log.Errorf("step %d (%s): %v", i, st.Action, err)
		}
	}
	s.log.Infof("scenario %q done", sc.Name)
}

func (s *Server) step(st Step) error {
	switch st.Action {
	case "request":
		id := st.RequestID
		if id == "" {
			id = uuid.NewString()
		}
		ct := st.ChargeType
		if ct == "" {
			ct = string(model.ChargeFast)
		}
		return s.publish(st.PileID, mqtt.Command{Type: mqtt.CmdNew, Request: &mqtt.CommandRequest{
			ID:           id,
			ChargeType:   ct,
			RequestedKWh: st.RequestedKWh,
		}})
	case "cancel":
		return s.publish(st.PileID, mqtt.Command{Type: mqtt.CmdCancel, ID: st.RequestID})
	case "fault":
		return s.publish(st.PileID, mqtt.Command{Type: mqtt.CmdFault, Reason: st.Reason})
	case "close":
		return s.publish(st.PileID, mqtt.Command{Type: mqtt.CmdClose})
	case "open":
		return s.publish(st.PileID, mqtt.Command{Type: mqtt.CmdOpen})
	}
	return fmt.Errorf("unknown action %q", st.Action)
}
