package worker

import (
	"context"

	"github.com/fluxdesk/conversation-service/internal/events"
	"github.com/fluxdesk/conversation-service/internal/observability"
)

// Subscriber receives every domain event under a sink name.
type Subscriber struct {
	Name    string
	Handler events.EventHandler
}

// RegisterSubscribers attaches the event sinks to the dispatcher. Sink
// failures are counted per sink name.
func RegisterSubscribers(d events.Dispatcher, metrics *observability.Metrics, subs ...Subscriber) {
	for _, sub := range subs {
		if sub.Handler == nil {
			continue
		}
		name, handler := sub.Name, sub.Handler
		events.SubscribeAll(d, func(ctx context.Context, event events.Event) error {
			err := handler(ctx, event)
			if err != nil {
				metrics.RecordPublishFailure(name)
			}
			return err
		})
	}
}
