// Package plugin defines the contract an external payment-method
// module must satisfy: a narrow required interface (Pay) plus optional
// capabilities discovered by type-assertion.
package plugin

import "context"

type PayArgs struct {
	Target               any
	Payload              PayPayload
	NotificationCallback func(Update)
}

type PayPayload struct {
	ID           string
	OrderID      string
	Memo         string
	Amount       string
	Currency     string
	Denomination string
}

// Update is a plugin notification delivered asynchronously through
// NotificationCallback.
type Update struct {
	PluginState string // "submitted" | "failed" | "success" | intermediate values
	Data        any
}

// Plugin is the mandatory capability every payment-type plugin must
// expose.
type Plugin interface {
	Pay(ctx context.Context, args PayArgs) error
}

type Stopper interface {
	Stop(ctx context.Context) error
}

type Updater interface {
	UpdatePayment(ctx context.Context, data any) error
}

type ReceivePayload struct {
	ID                   string
	NotificationCallback func(NewPaymentNotification)
	ClientOrderID        string
	ExpectedAmount       string
	ExpectedCurrency     string
	ExpectedDenomination string
}

// NewPaymentNotification is the payload a plugin emits when it
// observes an incoming payment.
type NewPaymentNotification struct {
	PluginName        string
	ID                string
	Amount            string
	Currency          string
	Denomination      string
	Memo              string
	RawData           []byte
	IsPersonalPayment bool
	ClientOrderID     string
}

type Manifest struct {
	Name        string
	Type        string
	RPC         []string
	Events      []string
	Version     string
	Description string
}

const (
	TypePayment = "payment"

	EventReceivePayment = "receivePayment"
)

// Module is the loadable, not-yet-running form of a plugin. A Manager
// resolves an entryPoint to a Module, then calls Init to obtain the
// running instance whose manifest and capabilities get validated and
// registered.
type Module interface {
	Init(ctx context.Context, storage any) (any, error)
}

type ManifestProvider interface {
	GetManifest(ctx context.Context) (Manifest, error)
}

// EventHandler is an optional capability dispatched by manifest-declared
// event name. A payment-type plugin implements it to receive
// EventReceivePayment.
type EventHandler interface {
	HandleEvent(ctx context.Context, eventName string, data any) error
}

// ModuleFunc adapts a plain function to Module, for plugins registered
// as constructors rather than objects.
type ModuleFunc func(ctx context.Context, storage any) (any, error)

func (f ModuleFunc) Init(ctx context.Context, storage any) (any, error) { return f(ctx, storage) }
