package model

import (
	"fmt"
	"time"
)

// ChargeType selects the charging mode a request asks for. The wire encoding
// follows the station convention: "F" for fast, "T" for trickle.
type ChargeType string

const (
	ChargeFast    ChargeType = "F"
	ChargeTrickle ChargeType = "T"
)

// Valid reports whether the type is one of the known modes.
func (t ChargeType) Valid() bool {
	return t == ChargeFast || t == ChargeTrickle
}

// ChargeRequest is one vehicle's demand for energy.
type ChargeRequest struct {
	ID           string
	Type         ChargeType
	RequestedKWh float64   // energy to deliver, in kWh
	ArrivalTime  time.Time // simulated instant the request reached the pile
}

// Validate checks that the request is well formed.
func (r ChargeRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("request id is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("unknown charge type %q", string(r.Type))
	}
	if r.RequestedKWh <= 0 {
		return fmt.Errorf("requested energy must be positive, got %v", r.RequestedKWh)
	}
	return nil
}
