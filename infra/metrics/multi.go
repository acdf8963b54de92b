package metrics

import coremetrics "github.com/kilianp07/pilesim/core/metrics"

// MultiSink fanouts session events to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTransition forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordTransition(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordProgress forwards progress snapshots to sinks that support them.
func (m *MultiSink) RecordProgress(ev coremetrics.ProgressEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ProgressRecorder); ok {
			if err := rec.RecordProgress(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
