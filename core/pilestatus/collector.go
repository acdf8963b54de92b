package pilestatus

import (
	"context"

	"github.com/kilianp07/pilesim/internal/eventbus"
)

// Start subscribes the store to the event bus and keeps snapshots current
// until the context is canceled.
func Start(ctx context.Context, bus *eventbus.Bus, store Store) {
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
				store.Record(ev)
			}
		}
	}()
}
