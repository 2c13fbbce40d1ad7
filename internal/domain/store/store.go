// Package store defines the durable CRUD contract for orders and
// payments. It holds only the storage-facing record shapes and the
// Store interface; the domain packages (order, paymentobject) convert
// to/from these records so that neither side needs to import the
// other, keeping persistence a leaf dependency.
package store

import (
	"context"
	"time"

	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/paystate"
)

// RemovedFilter selects how a Get* call treats the soft-delete
// tombstone flag: with no option supplied the default excludes
// tombstones; Only returns just tombstones; Any ignores removed entirely.
type RemovedFilter int

const (
	RemovedDefault RemovedFilter = iota
	RemovedOnly
	RemovedAny
)

type GetOptions struct {
	Removed RemovedFilter
}

// OrderRecord is the durable shape of a PaymentOrder, minus its
// payments slice: payments are stored independently as
// OutgoingPaymentRecords filtered by OrderID, reassembled by the order
// package's Find.
type OrderRecord struct {
	ID              string
	ClientOrderID   string
	State           string
	FrequencyMillis int64
	Amount          amount.Amount
	CounterpartyURL string
	Memo            string
	SendingPriority []string
	CreatedAt       time.Time
	FirstPaymentAt  time.Time
	LastPaymentAt   *time.Time
	Removed         bool
}

type OutgoingPaymentRecord struct {
	ID              string
	OrderID         string
	ClientOrderID   string
	CounterpartyURL string
	Memo            string
	SendingPriority []string
	Amount          amount.Amount
	CreatedAt       time.Time
	ExecuteAt       time.Time
	State           paystate.PaymentState
	PluginUpdate    map[string]any
	Removed         bool
}

type ReceivedByPlugin struct {
	Name       string
	State      string
	Amount     amount.Amount
	RawData    []byte
	ReceivedAt time.Time
}

type IncomingPaymentRecord struct {
	ID                string
	ClientOrderID     string
	Memo              string
	Amount            *amount.Amount
	ExpectedAmount    amount.Amount
	InternalState     string
	ReceivedByPlugins []ReceivedByPlugin
	CreatedAt         time.Time
	Removed           bool
}

// Store is the durable CRUD contract. All operations are asynchronous
// (context-bound) but serialisable with respect to a single logical
// engine: implementations own whatever locking is needed to make that
// true.
type Store interface {
	Init(ctx context.Context) error
	Close(ctx context.Context) error

	SaveOrder(ctx context.Context, rec OrderRecord) error
	GetOrder(ctx context.Context, id string, opts GetOptions) (*OrderRecord, error)
	UpdateOrder(ctx context.Context, id string, patch map[string]any) error

	SaveOutgoingPayment(ctx context.Context, rec OutgoingPaymentRecord) error
	GetOutgoingPayment(ctx context.Context, id string, opts GetOptions) (*OutgoingPaymentRecord, error)
	UpdateOutgoingPayment(ctx context.Context, id string, patch map[string]any) error
	GetOutgoingPayments(ctx context.Context, filter map[string]any, opts GetOptions) ([]OutgoingPaymentRecord, error)

	SaveIncomingPayment(ctx context.Context, rec IncomingPaymentRecord) error
	GetIncomingPayment(ctx context.Context, id string, opts GetOptions) (*IncomingPaymentRecord, error)
	UpdateIncomingPayment(ctx context.Context, id string, patch map[string]any) error
	GetIncomingPayments(ctx context.Context, filter map[string]any, opts GetOptions) ([]IncomingPaymentRecord, error)
}

// Patch field names, shared between callers building a patch and
// store implementations validating it: unknown fields are rejected.
const (
	FieldRemoved           = "removed"
	FieldState             = "state"
	FieldLastPaymentAt     = "lastPaymentAt"
	FieldExecuteAt         = "executeAt"
	FieldAmount            = "amount"
	FieldInternalState     = "internalState"
	FieldReceivedByPlugins = "receivedByPlugins"
	FieldPluginUpdate      = "pluginUpdate"
)

// Patch is a shallow merge patch over a record: missing fields are
// preserved, unknown fields are rejected. Values are typed per field
// via the wrapper types below rather than bare `any`, so a store
// implementation's patch application is a type switch, not a runtime
// schema validator.
type Patch map[string]any

type TimeValue struct{ T time.Time }
type TimePtrValue struct{ T *time.Time }
type AmountValue struct{ A amount.Amount }
type StateValue struct{ S paystate.PaymentState }
type ReceivedByPluginsValue struct{ V []ReceivedByPlugin }
type MapValue struct{ V map[string]any }
