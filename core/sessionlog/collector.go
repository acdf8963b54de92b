package sessionlog

import (
	"context"

	"github.com/kilianp07/pilesim/core/logger"
	"github.com/kilianp07/pilesim/core/model"
	"github.com/kilianp07/pilesim/internal/eventbus"
)

// Start appends a record for every session that reaches a terminal state
// until the context is canceled.
func Start(ctx context.Context, bus *eventbus.Bus, store Store, log logger.Logger) {
	if bus == nil || store == nil {
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
				if ev.Kind != model.EventCompleted && ev.Kind != model.EventInterrupted {
					continue
				}
				if err := store.Append(ctx, FromEvent(ev)); err != nil {
					log.Warnf("session log append failed: %v", err)
				}
			}
		}
	}()
}
