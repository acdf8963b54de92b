package model

import "time"

// EventKind identifies what a pile is reporting.
type EventKind int

const (
	EventAdmitted EventKind = iota
	EventProgress
	EventCompleted
	EventInterrupted
	EventRejected
	EventCanceled
	EventClosed
	EventOpened
)

// String returns the wire representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventAdmitted:
		return "admitted"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventInterrupted:
		return "interrupted"
	case EventRejected:
		return "rejected"
	case EventCanceled:
		return "canceled"
	case EventClosed:
		return "closed"
	case EventOpened:
		return "opened"
	default:
		return "unknown"
	}
}

// PileEvent is a state change reported by a pile. Session is a snapshot taken
// at emission time and is zero for closed and opened events; Reason is set
// for rejections and cancellations.
type PileEvent struct {
	PileID       string
	Kind         EventKind
	Session      ChargeSession
	Reason       string
	Waiting      int       // queue depth after the change
	Time         time.Time // simulated instant of the event
	EstimatedEnd time.Time // projected completion, progress events only
}
