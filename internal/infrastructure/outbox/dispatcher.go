package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/paymentfabric/slashpay-engine/internal/domain/event"
)

// EventPublisher is the narrow publish-side dependency Dispatcher
// needs; eventbus.InMemoryBus satisfies it.
type EventPublisher interface {
	Publish(event.Event) error
}

// Dispatcher polls the outbox for events recorded but not yet
// published and republishes them onto EventBus: a notification is
// durably recorded first (Recorder), and only a successful publish
// marks it done.
type Dispatcher struct {
	Repo         Repository
	EventBus     EventPublisher
	PollInterval time.Duration
	BatchSize    int
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchOnce()
		}
	}
}

func (d *Dispatcher) DispatchOnce() {
	events, err := d.Repo.FindUnpublished(d.BatchSize)
	if err != nil {
		return
	}

	for _, evt := range events {
		var payload any

		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			continue
		}

		domainEvent := event.Event{
			Type:    evt.Type,
			Payload: payload,
		}

		if err := d.EventBus.Publish(domainEvent); err != nil {
			continue
		}

		_ = d.Repo.MarkPublished(evt.ID)
	}
}
