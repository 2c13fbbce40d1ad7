package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paymentfabric/slashpay-engine/internal/domain/event"
)

type Recorder struct {
	Repo Repository
}

func generateOutboxID() string {
	return fmt.Sprintf("outbox_%d", time.Now().UnixNano())
}

func (r *Recorder) Record(evt event.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	return r.Repo.Save(OutboxEvent{
		ID:        generateOutboxID(),
		Type:      evt.Type,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
}

// Notify satisfies the application-layer notifier interfaces
// (sender.Notifier, manager.EventPublisher): every plugin- and
// facade-originated notification is recorded into the outbox rather
// than delivered inline, so a crash between "payment state changed"
// and "notification delivered" can never lose the notification.
func (r *Recorder) Notify(ctx context.Context, evt event.Event) error {
	return r.Record(evt)
}
