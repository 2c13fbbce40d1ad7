// Package event defines the notification taxonomy carried by the
// outbox/eventbus pipeline: the `type` field plugins attach to
// callback payloads, plus the facade's own user-notification type.
package event

type Type string

const (
	// PaymentNew is a plugin notification that it has observed an
	// incoming payment.
	PaymentNew Type = "payment_new"
	// PaymentUpdate is an outgoing-payment plugin callback.
	PaymentUpdate Type = "payment_update"
	// PaymentOrderCompleted is informational.
	PaymentOrderCompleted Type = "payment_order_completed"
	// ReadyToReceive carries a plugin-provisioned payment file body to
	// be written to transport.
	ReadyToReceive Type = "ready_to_receive"
	// UserNotification is the facade's own fan-out to
	// entryPointForUser-style consumers for anything that does not
	// match one of the plugin-originated types above.
	UserNotification Type = "user_notification"
)

type Event struct {
	Type    Type
	Payload any
}
