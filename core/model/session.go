package model

import "time"

// SessionStatus is the lifecycle state of a charge session.
type SessionStatus int

const (
	StatusQueued SessionStatus = iota
	StatusCharging
	StatusCompleted
	StatusInterrupted
)

// String returns the wire representation of the status.
func (s SessionStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusCharging:
		return "charging"
	case StatusCompleted:
		return "completed"
	case StatusInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final. Billing totals never change
// once a session is terminal.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusInterrupted
}

// ChargeSession tracks one request from admission to a terminal state.
// Sessions are plain values owned by a single pile goroutine; copies taken
// for reporting are snapshots.
type ChargeSession struct {
	Request ChargeRequest
	Status  SessionStatus

	StartTime  time.Time // simulated instant charging began
	EndTime    time.Time // simulated instant a terminal status was reached
	LastBilled time.Time // end of the last billed interval

	EnergyKWh   float64 // energy delivered so far
	EnergyCost  float64 // accumulated time-of-day energy cost
	ServiceCost float64 // accumulated per-kWh service fee
}

// TotalCost returns energy cost plus service fee.
func (s ChargeSession) TotalCost() float64 {
	return s.EnergyCost + s.ServiceCost
}

// RemainingKWh returns the energy still to deliver.
func (s ChargeSession) RemainingKWh() float64 {
	rem := s.Request.RequestedKWh - s.EnergyKWh
	if rem < 0 {
		return 0
	}
	return rem
}
