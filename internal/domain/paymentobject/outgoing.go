// Package paymentobject implements the outgoing and incoming
// PaymentObject: the unit that owns an Amount and (for outgoing
// payments) a PaymentState, and persists itself through Store.
package paymentobject

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/paystate"
	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
)

type Direction string

const (
	DirectionOut Direction = "OUT"
	DirectionIn  Direction = "IN"
)

// OutgoingParams are the caller-supplied fields needed to construct an
// outgoing PaymentObject.
type OutgoingParams struct {
	ID              string
	OrderID         string
	ClientOrderID   string
	CounterpartyURL string
	Memo            string
	SendingPriority []string
	Amount          amount.Amount
	CreatedAt       time.Time
	ExecuteAt       time.Time
}

type Outgoing struct {
	ID              string
	OrderID         string
	ClientOrderID   string
	CounterpartyURL string
	Memo            string
	SendingPriority []string
	Amount          amount.Amount
	CreatedAt       time.Time
	ExecuteAt       time.Time
	State           *paystate.PaymentState
	Removed         bool

	store store.Store
}

// NewOutgoing constructs an uninitialised outgoing PaymentObject. Call
// Init to assign an id (if absent), set up its PaymentState, and
// persist it.
func NewOutgoing(p OutgoingParams, st store.Store) *Outgoing {
	return &Outgoing{
		ID:              p.ID,
		OrderID:         p.OrderID,
		ClientOrderID:   p.ClientOrderID,
		CounterpartyURL: p.CounterpartyURL,
		Memo:            p.Memo,
		SendingPriority: p.SendingPriority,
		Amount:          p.Amount,
		CreatedAt:       p.CreatedAt,
		ExecuteAt:       p.ExecuteAt,
		store:           st,
	}
}

// FromRecord reconstructs an Outgoing PaymentObject from its durable record.
func FromRecord(rec store.OutgoingPaymentRecord, st store.Store) *Outgoing {
	state := rec.State.Clone()
	return &Outgoing{
		ID:              rec.ID,
		OrderID:         rec.OrderID,
		ClientOrderID:   rec.ClientOrderID,
		CounterpartyURL: rec.CounterpartyURL,
		Memo:            rec.Memo,
		SendingPriority: rec.SendingPriority,
		Amount:          rec.Amount,
		CreatedAt:       rec.CreatedAt,
		ExecuteAt:       rec.ExecuteAt,
		State:           state,
		Removed:         rec.Removed,
		store:           st,
	}
}

// Init assigns an id if absent, builds the INITIAL PaymentState from
// SendingPriority, and saves the payment.
func (p *Outgoing) Init(ctx context.Context) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	state, err := paystate.New(p.SendingPriority)
	if err != nil {
		return err
	}
	p.State = state
	return p.Save(ctx)
}

func (p *Outgoing) record() store.OutgoingPaymentRecord {
	return store.OutgoingPaymentRecord{
		ID:              p.ID,
		OrderID:         p.OrderID,
		ClientOrderID:   p.ClientOrderID,
		CounterpartyURL: p.CounterpartyURL,
		Memo:            p.Memo,
		SendingPriority: p.SendingPriority,
		Amount:          p.Amount,
		CreatedAt:       p.CreatedAt,
		ExecuteAt:       p.ExecuteAt,
		State:           *p.State,
		Removed:         p.Removed,
	}
}

func (p *Outgoing) Save(ctx context.Context) error {
	return p.store.SaveOutgoingPayment(ctx, p.record())
}

// Update persists either the supplied patch, or (if nil) a default
// patch resyncing state/executeAt/removed, the fields this object's
// own transitions mutate.
func (p *Outgoing) Update(ctx context.Context, patch store.Patch) error {
	if patch == nil {
		patch = store.Patch{
			store.FieldState:     store.StateValue{S: *p.State},
			store.FieldExecuteAt: store.TimeValue{T: p.ExecuteAt},
			store.FieldRemoved:   p.Removed,
		}
	}
	return p.store.UpdateOutgoingPayment(ctx, p.ID, patch)
}

// Process delegates to the PaymentState driver, gated by ExecuteAt: a
// payment not yet due is returned unchanged so the caller can re-poll
// later.
func (p *Outgoing) Process(ctx context.Context, now time.Time) (engaged bool, err error) {
	if now.Before(p.ExecuteAt) {
		return false, nil
	}
	engaged, err = p.State.Process(now)
	if err != nil {
		return false, err
	}
	if uerr := p.Update(ctx, nil); uerr != nil {
		return engaged, uerr
	}
	return engaged, nil
}

// IsDue reports whether ExecuteAt has passed as of now.
func (p *Outgoing) IsDue(now time.Time) bool { return !now.Before(p.ExecuteAt) }

func (p *Outgoing) FailCurrentPlugin(ctx context.Context, now time.Time) error {
	if err := p.State.FailCurrentPlugin(now); err != nil {
		return err
	}
	return p.Update(ctx, nil)
}

func (p *Outgoing) Complete(ctx context.Context, now time.Time) error {
	if err := p.State.Complete(now); err != nil {
		return err
	}
	return p.Update(ctx, nil)
}

func (p *Outgoing) Cancel(ctx context.Context, now time.Time) error {
	if err := p.State.Cancel(now); err != nil {
		return err
	}
	return p.Update(ctx, nil)
}

func (p *Outgoing) GetCurrentPlugin() *paystate.PluginRun { return p.State.CurrentPlugin }

func (p *Outgoing) IsFailed() bool     { return p.State.InternalState == paystate.StateFailed }
func (p *Outgoing) IsInProgress() bool { return p.State.InternalState == paystate.StateInProgress }
func (p *Outgoing) IsFinal() bool      { return p.State.InternalState.IsTerminal() }

// SerializedForPlugin is the restricted payload a plugin is allowed to see.
type SerializedForPlugin struct {
	ID           string
	OrderID      string
	Memo         string
	Amount       string
	Currency     string
	Denomination string
}

func (p *Outgoing) SerializeForPlugin() SerializedForPlugin {
	return SerializedForPlugin{
		ID:           p.ID,
		OrderID:      p.OrderID,
		Memo:         p.Memo,
		Amount:       p.Amount.Amount(),
		Currency:     p.Amount.Currency(),
		Denomination: string(p.Amount.Denomination()),
	}
}

// Record exposes the record form, e.g. for use by Store callers that
// are not the payment itself.
func (p *Outgoing) Record() store.OutgoingPaymentRecord { return p.record() }
