package metrics

import (
	"time"

	"github.com/kilianp07/pilesim/core/model"
)

// TransitionEvent records a session state change (admission, completion,
// interruption, rejection or cancellation).
type TransitionEvent struct {
	PileID      string
	RequestID   string
	ChargeType  model.ChargeType
	Kind        model.EventKind
	Reason      string
	EnergyKWh   float64
	EnergyCost  float64
	ServiceCost float64
	Waiting     int
	Time        time.Time
}

// MetricsSink records session transitions for observability purposes.
type MetricsSink interface {
	RecordTransition(ev TransitionEvent) error
}

// ProgressEvent is a billing snapshot of the active session on a pile.
type ProgressEvent struct {
	PileID       string
	RequestID    string
	ChargeType   model.ChargeType
	EnergyKWh    float64
	RemainingKWh float64
	EnergyCost   float64
	ServiceCost  float64
	Waiting      int
	Time         time.Time
}

// ProgressRecorder is implemented by sinks able to record charging progress
// snapshots.
type ProgressRecorder interface {
	RecordProgress(ev ProgressEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordTransition(TransitionEvent) error { return nil }
func (NopSink) RecordProgress(ProgressEvent) error     { return nil }
