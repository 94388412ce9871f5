package notify

import (
	"context"
	"time"

	"github.com/kilianp07/gridready/core/logger"
	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/internal/eventbus"
)

// Publisher delivers notifications to an external channel such as a
// message broker.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Forward subscribes to bus and hands every notification to the publishers
// until ctx is canceled or the bus is closed. Publisher failures are logged
// and do not stop the forwarding.
func Forward(ctx context.Context, bus *eventbus.TypedBus[model.Notification], log logger.Logger, pubs ...Publisher) {
	if bus == nil || len(pubs) == 0 {
		return
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-sub:
				if !ok {
					return
				}
				for _, p := range pubs {
					pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
					if err := p.Publish(pctx, n); err != nil {
						log.Errorf("publish notification %s: %v", n.ID, err)
					}
					cancel()
				}
			}
		}
	}()
}
