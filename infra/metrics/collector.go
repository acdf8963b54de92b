package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/pilesim/core/metrics"
	"github.com/kilianp07/pilesim/core/model"
	"github.com/kilianp07/pilesim/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// pile events. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe(256)
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev model.PileEvent) {
	if ev.Kind == model.EventProgress {
		if rec, ok := sink.(coremetrics.ProgressRecorder); ok {
			_ = rec.RecordProgress(coremetrics.ProgressEvent{
				PileID:       ev.PileID,
				RequestID:    ev.Session.Request.ID,
				ChargeType:   ev.Session.Request.Type,
				EnergyKWh:    ev.Session.EnergyKWh,
				RemainingKWh: ev.Session.RemainingKWh(),
				EnergyCost:   ev.Session.EnergyCost,
				ServiceCost:  ev.Session.ServiceCost,
				Waiting:      ev.Waiting,
				Time:         ev.Time,
			})
		}
		return
	}
	_ = sink.RecordTransition(coremetrics.TransitionEvent{
		PileID:      ev.PileID,
		RequestID:   ev.Session.Request.ID,
		ChargeType:  ev.Session.Request.Type,
		Kind:        ev.Kind,
		Reason:      ev.Reason,
		EnergyKWh:   ev.Session.EnergyKWh,
		EnergyCost:  ev.Session.EnergyCost,
		ServiceCost: ev.Session.ServiceCost,
		Waiting:     ev.Waiting,
		Time:        ev.Time,
	})
}
