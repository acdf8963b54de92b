package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/pilesim/core/metrics"
	"github.com/kilianp07/pilesim/core/model"
)

func TestPromSink_RecordTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	ev := coremetrics.TransitionEvent{
		PileID:     "p1",
		RequestID:  "req-1",
		ChargeType: model.ChargeFast,
		Kind:       model.EventAdmitted,
		Waiting:    2,
		Time:       time.Now(),
	}
	if err := sink.RecordTransition(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP pilesim_session_events_total Total number of session state changes by pile and kind
# TYPE pilesim_session_events_total counter
pilesim_session_events_total{charge_type="F",kind="admitted",pile_id="p1"} 1
`
	if err := testutil.CollectAndCompare(sink.events, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if got := testutil.ToFloat64(sink.waiting.WithLabelValues("p1")); got != 2 {
		t.Errorf("waiting gauge = %v, want 2", got)
	}
}

func TestPromSink_RecordProgress(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	ev := coremetrics.ProgressEvent{
		PileID:      "p1",
		RequestID:   "req-1",
		ChargeType:  model.ChargeFast,
		EnergyKWh:   7.5,
		EnergyCost:  4.2,
		ServiceCost: 6.0,
		Waiting:     1,
		Time:        time.Now(),
	}
	if err := sink.RecordProgress(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if got := testutil.ToFloat64(sink.energy.WithLabelValues("p1")); got != 7.5 {
		t.Errorf("energy gauge = %v, want 7.5", got)
	}
	if got := testutil.ToFloat64(sink.cost.WithLabelValues("p1")); got != 10.2 {
		t.Errorf("cost gauge = %v, want 10.2", got)
	}
	if got := testutil.ToFloat64(sink.waiting.WithLabelValues("p1")); got != 1 {
		t.Errorf("waiting gauge = %v, want 1", got)
	}
}

func TestPromSink_CompletionClearsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if err := sink.RecordProgress(coremetrics.ProgressEvent{
		PileID: "p1", RequestID: "req-1", ChargeType: model.ChargeFast,
		EnergyKWh: 5, EnergyCost: 2, ServiceCost: 4,
	}); err != nil {
		t.Fatalf("progress error: %v", err)
	}
	if err := sink.RecordTransition(coremetrics.TransitionEvent{
		PileID: "p1", RequestID: "req-1", ChargeType: model.ChargeFast,
		Kind: model.EventCompleted, EnergyKWh: 15,
	}); err != nil {
		t.Fatalf("transition error: %v", err)
	}
	if got := testutil.ToFloat64(sink.delivered.WithLabelValues("p1")); got != 15 {
		t.Errorf("delivered counter = %v, want 15", got)
	}
	if got := testutil.ToFloat64(sink.energy.WithLabelValues("p1")); got != 0 {
		t.Errorf("energy gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(sink.cost.WithLabelValues("p1")); got != 0 {
		t.Errorf("cost gauge = %v, want 0", got)
	}
}

func TestPromSink_RejectionReasonBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	for _, reason := range []string{"queue full", "requested_kwh must be positive"} {
		if err := sink.RecordTransition(coremetrics.TransitionEvent{
			PileID: "p1", Kind: model.EventRejected, Reason: reason,
		}); err != nil {
			t.Fatalf("record error: %v", err)
		}
	}
	expected := `
# HELP pilesim_rejections_total Total number of rejected charge requests by reason
# TYPE pilesim_rejections_total counter
pilesim_rejections_total{pile_id="p1",reason="invalid request"} 1
pilesim_rejections_total{pile_id="p1",reason="queue full"} 1
`
	if err := testutil.CollectAndCompare(sink.rejects, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestPromSink_ReregisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create first sink: %v", err)
	}
	second, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("create second sink: %v", err)
	}
	if err := first.RecordTransition(coremetrics.TransitionEvent{
		PileID: "p1", ChargeType: model.ChargeFast, Kind: model.EventAdmitted,
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if got := testutil.ToFloat64(second.events.WithLabelValues("p1", "admitted", "F")); got != 1 {
		t.Errorf("shared counter = %v, want 1", got)
	}
}
