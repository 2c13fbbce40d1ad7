// Package notification is the delivery end of the outbox/eventbus
// pipeline: it subscribes onto the bus and turns the events the
// dispatcher republishes into the side effects entryPointForUser and
// entryPointForPlugin promise.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paymentfabric/slashpay-engine/internal/domain/event"
	"github.com/paymentfabric/slashpay-engine/internal/infra/logging"
)

// FileWriter is the subset of manager.Manager a ReadyToReceive event
// needs: write the plugin-provisioned body into transport.
type FileWriter interface {
	CreatePaymentFile(ctx context.Context, pluginName string, clientOrderID string, isPublic bool, data []byte) (string, error)
}

type Handler struct {
	Files  FileWriter
	Logger logging.Logger
}

// Handle dispatches evt by type. Payloads arrive as the generic
// map[string]any json.Unmarshal produces in outbox.Dispatcher, so
// each case re-decodes evt.Payload into its concrete payload struct
// rather than type-asserting it directly.
func (h *Handler) Handle(evt event.Event) error {
	switch evt.Type {
	case event.ReadyToReceive:
		var payload event.ReadyToReceivePayload
		if err := decodePayload(evt.Payload, &payload); err != nil {
			return fmt.Errorf("notification: decoding ready_to_receive payload: %w", err)
		}
		_, err := h.Files.CreatePaymentFile(context.Background(), payload.PluginName, payload.ClientOrderID, !payload.AmountWasSpecified, payload.Data)
		return err

	case event.PaymentOrderCompleted:
		var payload event.PaymentOrderCompletedPayload
		if err := decodePayload(evt.Payload, &payload); err != nil {
			return fmt.Errorf("notification: decoding payment_order_completed payload: %w", err)
		}
		h.Logger.Info("payment order completed", map[string]any{"orderId": payload.OrderID})
		return nil

	case event.UserNotification:
		var payload event.UserNotificationPayload
		if err := decodePayload(evt.Payload, &payload); err != nil {
			return fmt.Errorf("notification: decoding user_notification payload: %w", err)
		}
		h.Logger.Info("user notification", map[string]any{"reason": payload.Reason, "payment": payload.Payment})
		return nil

	case event.PaymentNew, event.PaymentUpdate:
		return nil

	default:
		h.Logger.Error("notification: unknown event type", map[string]any{"type": string(evt.Type)})
		return nil
	}
}

func decodePayload(raw any, target any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}
