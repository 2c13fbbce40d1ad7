// Package order implements the PaymentOrder: the entity that
// materialises one or more outgoing PaymentObjects and drives
// scheduling across them.
package order

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/paymentobject"
	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
)

type State string

const (
	StateCreated     State = "CREATED"
	StateInitialized State = "INITIALIZED"
	StateProcessing  State = "PROCESSING"
	StateCompleted   State = "COMPLETED"
	StateCancelled   State = "CANCELLED"
)

// MinFrequency is the smallest accepted recurring interval.
const MinFrequency = time.Millisecond

// BatchSize bounds how many payments an open-ended recurring order
// materialises at a time.
const BatchSize = 100

type Params struct {
	ID              string
	ClientOrderID   string
	Amount          amount.Amount
	CounterpartyURL string
	Memo            string
	SendingPriority []string
	FrequencyMillis int64
	CreatedAt       time.Time
	FirstPaymentAt  time.Time
	LastPaymentAt   *time.Time
}

type Order struct {
	ID              string
	ClientOrderID   string
	State           State
	FrequencyMillis int64
	Amount          amount.Amount
	CounterpartyURL string
	Memo            string
	SendingPriority []string
	CreatedAt       time.Time
	FirstPaymentAt  time.Time
	LastPaymentAt   *time.Time
	Removed         bool

	Payments []*paymentobject.Outgoing

	store store.Store
}

// New validates params and returns an uninitialised Order.
func New(p Params, st store.Store) (*Order, error) {
	if p.CounterpartyURL == "" {
		return nil, corerr.ErrCounterpartyRequired
	}
	if p.FrequencyMillis < 0 {
		return nil, corerr.ErrInvalidFrequency
	}
	if p.FrequencyMillis > 0 && time.Duration(p.FrequencyMillis)*time.Millisecond < MinFrequency {
		return nil, corerr.ErrInvalidFrequency
	}
	if p.CreatedAt.IsZero() || p.FirstPaymentAt.IsZero() {
		return nil, corerr.ErrInvalidTimestamp
	}
	if p.LastPaymentAt != nil && p.LastPaymentAt.Before(p.FirstPaymentAt) {
		return nil, corerr.ErrInvalidTimestamp
	}

	sendingPriority := p.SendingPriority
	if sendingPriority == nil {
		sendingPriority = []string{}
	}

	return &Order{
		ID:              p.ID,
		ClientOrderID:   p.ClientOrderID,
		State:           StateCreated,
		FrequencyMillis: p.FrequencyMillis,
		Amount:          p.Amount,
		CounterpartyURL: p.CounterpartyURL,
		Memo:            p.Memo,
		SendingPriority: sendingPriority,
		CreatedAt:       p.CreatedAt,
		FirstPaymentAt:  p.FirstPaymentAt,
		LastPaymentAt:   p.LastPaymentAt,
		store:           st,
	}, nil
}

func (o *Order) isRecurring() bool { return o.FrequencyMillis > 0 }

func (o *Order) frequency() time.Duration {
	return time.Duration(o.FrequencyMillis) * time.Millisecond
}

// Init assigns an id if absent, materialises the payment batch, and
// persists the order and every payment.
func (o *Order) Init(ctx context.Context) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.State = StateInitialized

	executeAts := o.batchSchedule(0)
	for _, at := range executeAts {
		if err := o.appendPayment(ctx, at); err != nil {
			return err
		}
	}

	return o.saveOrder(ctx)
}

// batchSchedule returns the executeAt timestamps of the next batch to
// materialise starting at payment index `from`.
func (o *Order) batchSchedule(from int) []time.Time {
	if !o.isRecurring() {
		if from > 0 {
			return nil
		}
		return []time.Time{o.FirstPaymentAt}
	}

	count := from + BatchSize
	if o.LastPaymentAt != nil {
		count = int(o.LastPaymentAt.Sub(o.FirstPaymentAt) / o.frequency())
	}

	out := make([]time.Time, 0, count-from)
	for i := from; i < count; i++ {
		out = append(out, o.FirstPaymentAt.Add(time.Duration(i)*o.frequency()))
	}
	return out
}

func (o *Order) appendPayment(ctx context.Context, executeAt time.Time) error {
	p := paymentobject.NewOutgoing(paymentobject.OutgoingParams{
		OrderID:         o.ID,
		ClientOrderID:   o.ClientOrderID,
		CounterpartyURL: o.CounterpartyURL,
		Memo:            o.Memo,
		SendingPriority: o.SendingPriority,
		Amount:          o.Amount,
		CreatedAt:       o.CreatedAt,
		ExecuteAt:       executeAt,
	}, o.store)
	if err := p.Init(ctx); err != nil {
		return err
	}
	o.Payments = append(o.Payments, p)
	return nil
}

func (o *Order) saveOrder(ctx context.Context) error {
	return o.store.SaveOrder(ctx, o.record())
}

func (o *Order) record() store.OrderRecord {
	return store.OrderRecord{
		ID:              o.ID,
		ClientOrderID:   o.ClientOrderID,
		State:           string(o.State),
		FrequencyMillis: o.FrequencyMillis,
		Amount:          o.Amount,
		CounterpartyURL: o.CounterpartyURL,
		Memo:            o.Memo,
		SendingPriority: o.SendingPriority,
		CreatedAt:       o.CreatedAt,
		FirstPaymentAt:  o.FirstPaymentAt,
		LastPaymentAt:   o.LastPaymentAt,
		Removed:         o.Removed,
	}
}

func (o *Order) Record() store.OrderRecord { return o.record() }

func (o *Order) updateState(ctx context.Context, s State) error {
	o.State = s
	return o.store.UpdateOrder(ctx, o.ID, store.Patch{store.FieldState: string(o.State)})
}

// Find loads an order and reconstructs its (non-removed) outgoing
// payments by orderId.
func Find(ctx context.Context, id string, st store.Store) (*Order, error) {
	rec, err := st.GetOrder(ctx, id, store.GetOptions{})
	if err != nil {
		if errors.Is(err, corerr.ErrNotFound) {
			return nil, corerr.OrderNotFound(id)
		}
		return nil, err
	}

	payRecs, err := st.GetOutgoingPayments(ctx, map[string]any{"orderId": id}, store.GetOptions{})
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:              rec.ID,
		ClientOrderID:   rec.ClientOrderID,
		State:           State(rec.State),
		FrequencyMillis: rec.FrequencyMillis,
		Amount:          rec.Amount,
		CounterpartyURL: rec.CounterpartyURL,
		Memo:            rec.Memo,
		SendingPriority: rec.SendingPriority,
		CreatedAt:       rec.CreatedAt,
		FirstPaymentAt:  rec.FirstPaymentAt,
		LastPaymentAt:   rec.LastPaymentAt,
		Removed:         rec.Removed,
		store:           st,
	}

	o.Payments = make([]*paymentobject.Outgoing, 0, len(payRecs))
	for _, pr := range payRecs {
		o.Payments = append(o.Payments, paymentobject.FromRecord(pr, st))
	}
	sortByExecuteAt(o.Payments)

	return o, nil
}

// Process returns the next actionable payment.
func (o *Order) Process(ctx context.Context, now time.Time) (*paymentobject.Outgoing, error) {
	for _, p := range o.Payments {
		if p.IsFailed() {
			return nil, corerr.ErrCanNotProcessOrder
		}
	}

	for _, p := range o.Payments {
		if p.IsInProgress() {
			if _, err := p.Process(ctx, now); err != nil {
				return nil, err
			}
			return p, nil
		}
	}

	candidate, err := o.nextNonFinal(ctx)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		if err := o.Complete(ctx, now); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if now.Before(candidate.ExecuteAt) {
		return candidate, nil
	}

	if candidate.State == nil {
		if err := candidate.Init(ctx); err != nil {
			return nil, err
		}
	}

	if err := o.updateState(ctx, StateProcessing); err != nil {
		return nil, err
	}

	if _, err := candidate.Process(ctx, now); err != nil {
		return nil, err
	}
	return candidate, nil
}

func (o *Order) nextNonFinal(ctx context.Context) (*paymentobject.Outgoing, error) {
	for _, p := range o.Payments {
		if !p.IsFinal() {
			return p, nil
		}
	}

	if !o.isRecurring() {
		return nil, nil
	}
	if o.LastPaymentAt != nil && !o.canExtend() {
		return nil, nil
	}

	from := len(o.Payments)
	for _, at := range o.batchSchedule(from) {
		if err := o.appendPayment(ctx, at); err != nil {
			return nil, err
		}
	}
	if len(o.Payments) == from {
		return nil, nil
	}
	return o.Payments[from], nil
}

// canExtend reports whether a bounded recurring order still has room
// for another scheduled payment before LastPaymentAt (exclusive upper
// bound).
func (o *Order) canExtend() bool {
	if o.LastPaymentAt == nil {
		return true
	}
	next := o.FirstPaymentAt.Add(time.Duration(len(o.Payments)) * o.frequency())
	return next.Before(*o.LastPaymentAt)
}

// Complete requires all payments terminal.
func (o *Order) Complete(ctx context.Context, now time.Time) error {
	switch o.State {
	case StateCancelled:
		return corerr.ErrOrderCancelled
	case StateCompleted:
		return corerr.ErrOrderCompleted
	}

	for _, p := range o.Payments {
		if !p.IsFinal() {
			return corerr.ErrOutstandingPayments
		}
	}
	return o.updateState(ctx, StateCompleted)
}

// Cancel moves the order and every non-final payment to CANCELLED.
func (o *Order) Cancel(ctx context.Context, now time.Time) error {
	if o.State == StateCompleted {
		return corerr.ErrOrderCompleted
	}
	for _, p := range o.Payments {
		if !p.IsFinal() {
			if err := p.Cancel(ctx, now); err != nil {
				return err
			}
		}
	}
	return o.updateState(ctx, StateCancelled)
}

func sortByExecuteAt(ps []*paymentobject.Outgoing) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ExecuteAt.Before(ps[j].ExecuteAt) })
}
