package sessionlog

import (
	"context"
	"time"

	"github.com/kilianp07/pilesim/core/billing"
	"github.com/kilianp07/pilesim/core/model"
)

// Record captures one finished charge session. Money is rounded to cents
// the way it is billed; energy keeps full precision.
type Record struct {
	Time         time.Time `json:"time"`
	PileID       string    `json:"pile_id"`
	RequestID    string    `json:"request_id"`
	ChargeType   string    `json:"charge_type"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	RequestedKWh float64   `json:"requested_kwh"`
	EnergyKWh    float64   `json:"energy_kwh"`
	EnergyCost   float64   `json:"energy_cost"`
	ServiceCost  float64   `json:"service_cost"`
	TotalCost    float64   `json:"total_cost"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

// FromEvent builds the record for a terminal session event.
func FromEvent(ev model.PileEvent) Record {
	s := ev.Session
	return Record{
		Time:         ev.Time,
		PileID:       ev.PileID,
		RequestID:    s.Request.ID,
		ChargeType:   string(s.Request.Type),
		Status:       s.Status.String(),
		Reason:       ev.Reason,
		RequestedKWh: s.Request.RequestedKWh,
		EnergyKWh:    s.EnergyKWh,
		EnergyCost:   billing.Round2(s.EnergyCost),
		ServiceCost:  billing.Round2(s.ServiceCost),
		TotalCost:    billing.Round2(s.TotalCost()),
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
	}
}

// Query defines filters for retrieving records.
type Query struct {
	Start  time.Time
	End    time.Time
	PileID string
	Status string
}

// Store persists session records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
