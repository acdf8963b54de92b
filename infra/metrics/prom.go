package metrics

import (
	coremetrics "github.com/kilianp07/pilesim/core/metrics"
	"github.com/kilianp07/pilesim/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records session events in Prometheus metrics.
type PromSink struct {
	events    *prometheus.CounterVec
	rejects   *prometheus.CounterVec
	delivered *prometheus.CounterVec
	energy    *prometheus.GaugeVec
	cost      *prometheus.GaugeVec
	waiting   *prometheus.GaugeVec
}

// NewPromSink registers session metrics on the default Prometheus registerer.
// The HTTP server exposing them is started separately.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pilesim_session_events_total",
		Help: "Total number of session state changes by pile and kind",
	}, []string{"pile_id", "kind", "charge_type"})
	rejects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pilesim_rejections_total",
		Help: "Total number of rejected charge requests by reason",
	}, []string{"pile_id", "reason"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pilesim_delivered_energy_kwh_total",
		Help: "Energy delivered by finished sessions",
	}, []string{"pile_id"})
	energy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pilesim_active_session_energy_kwh",
		Help: "Energy delivered to the active session so far",
	}, []string{"pile_id"})
	cost := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pilesim_active_session_cost",
		Help: "Accumulated cost of the active session including service fee",
	}, []string{"pile_id"})
	waiting := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pilesim_queue_waiting",
		Help: "Requests waiting in the pile queue",
	}, []string{"pile_id"})

	if err := reg.Register(events); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			events = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(rejects); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			rejects = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(delivered); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			delivered = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(energy); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			energy = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(cost); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			cost = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(waiting); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			waiting = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		events:    events,
		rejects:   rejects,
		delivered: delivered,
		energy:    energy,
		cost:      cost,
		waiting:   waiting,
	}, nil
}

// RecordTransition counts the state change and updates the per-pile gauges.
func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.events.WithLabelValues(ev.PileID, ev.Kind.String(), string(ev.ChargeType)).Inc()
	s.waiting.WithLabelValues(ev.PileID).Set(float64(ev.Waiting))
	switch ev.Kind {
	case model.EventRejected:
		s.rejects.WithLabelValues(ev.PileID, rejectionReason(ev.Reason)).Inc()
	case model.EventCompleted, model.EventInterrupted:
		s.delivered.WithLabelValues(ev.PileID).Add(ev.EnergyKWh)
		s.energy.WithLabelValues(ev.PileID).Set(0)
		s.cost.WithLabelValues(ev.PileID).Set(0)
	}
	return nil
}

// RecordProgress updates the active session gauges.
func (s *PromSink) RecordProgress(ev coremetrics.ProgressEvent) error {
	s.energy.WithLabelValues(ev.PileID).Set(ev.EnergyKWh)
	s.cost.WithLabelValues(ev.PileID).Set(ev.EnergyCost + ev.ServiceCost)
	s.waiting.WithLabelValues(ev.PileID).Set(float64(ev.Waiting))
	return nil
}

// rejectionReason keeps the reason label bounded: request validation
// messages collapse into a single value.
func rejectionReason(reason string) string {
	switch reason {
	case "queue full", "pile closed", "duplicate id":
		return reason
	default:
		return "invalid request"
	}
}
