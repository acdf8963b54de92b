package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/pilesim/core/billing"
	"github.com/kilianp07/pilesim/core/model"
)

// Command types accepted on the pile command topic.
const (
	CmdNew    = "new"
	CmdCancel = "cancel"
	CmdClose  = "close"
	CmdOpen   = "open"
	CmdFault  = "fault"
)

// CommandTopic returns the inbound topic for one pile.
func CommandTopic(prefix, pileID string) string {
	return fmt.Sprintf("%s/pile/%s/command", prefix, pileID)
}

// EventTopic returns the outbound event topic for one pile.
func EventTopic(prefix, pileID string) string {
	return fmt.Sprintf("%s/pile/%s/event", prefix, pileID)
}

// StateTopic returns the retained presence topic for one pile.
func StateTopic(prefix, pileID string) string {
	return fmt.Sprintf("%s/pile/%s/state", prefix, pileID)
}

// Command is the inbound message format on the command topic.
type Command struct {
	Type    string          `json:"type"`
	Request *CommandRequest `json:"request,omitempty"`
	ID      string          `json:"id,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// CommandRequest carries the charge request of a "new" command.
type CommandRequest struct {
	ID           string  `json:"id"`
	ChargeType   string  `json:"charge_type"`
	RequestedKWh float64 `json:"requested_kwh"`
}

func decodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Type {
	case CmdNew:
		if cmd.Request == nil {
			return cmd, fmt.Errorf("new command without request")
		}
	case CmdCancel:
		if cmd.ID == "" {
			return cmd, fmt.Errorf("cancel command without id")
		}
	case CmdClose, CmdOpen, CmdFault:
	default:
		return cmd, fmt.Errorf("unknown command type %q", cmd.Type)
	}
	return cmd, nil
}

// EventMessage is the outbound event format. Money is rounded to cents,
// energy to watt hours; times are RFC 3339 in the simulation zone.
type EventMessage struct {
	Event        string  `json:"event"`
	PileID       string  `json:"pile_id"`
	RequestID    string  `json:"request_id,omitempty"`
	ChargeType   string  `json:"charge_type,omitempty"`
	RequestedKWh float64 `json:"requested_kwh,omitempty"`
	Status       string  `json:"status,omitempty"`
	EnergyKWh    float64 `json:"energy_kwh"`
	EnergyCost   float64 `json:"energy_cost"`
	ServiceCost  float64 `json:"service_cost"`
	TotalCost    float64 `json:"total_cost"`
	Waiting      int     `json:"waiting"`
	Reason       string  `json:"reason,omitempty"`
	StartTime    string  `json:"start_time,omitempty"`
	EndTime      string  `json:"end_time,omitempty"`
	EstimatedEnd string  `json:"estimated_end,omitempty"`
	Time         string  `json:"time"`
}

// NewEventMessage converts a pile event into its wire form.
func NewEventMessage(ev model.PileEvent) EventMessage {
	m := EventMessage{
		Event:   ev.Kind.String(),
		PileID:  ev.PileID,
		Reason:  ev.Reason,
		Waiting: ev.Waiting,
		Time:    wireTime(ev.Time),
	}
	if ev.Session.Request.ID == "" {
		return m
	}
	s := ev.Session
	m.RequestID = s.Request.ID
	m.ChargeType = string(s.Request.Type)
	m.RequestedKWh = s.Request.RequestedKWh
	m.Status = s.Status.String()
	m.EnergyKWh = round3(s.EnergyKWh)
	m.EnergyCost = billing.Round2(s.EnergyCost)
	m.ServiceCost = billing.Round2(s.ServiceCost)
	m.TotalCost = billing.Round2(s.TotalCost())
	m.StartTime = wireTime(s.StartTime)
	m.EndTime = wireTime(s.EndTime)
	m.EstimatedEnd = wireTime(ev.EstimatedEnd)
	return m
}

// StateMessage is published retained on the state topic. The online form
// doubles as the pile registration; the offline form is also the LWT.
type StateMessage struct {
	State          string  `json:"state"`
	PileID         string  `json:"pile_id"`
	ChargeType     string  `json:"charge_type,omitempty"`
	PowerKW        float64 `json:"power_kw,omitempty"`
	Capacity       int     `json:"capacity,omitempty"`
	AllowInterrupt bool    `json:"allow_interrupt,omitempty"`
	Time           string  `json:"time,omitempty"`
}

// Pile presence states carried on the state topic.
const (
	StateOnline  = "online"
	StateOffline = "offline"
)

func wireTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
