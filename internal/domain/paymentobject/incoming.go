package paymentobject

import (
	"context"
	"time"

	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
)

type IncomingInternalState string

const (
	IncomingInProgress IncomingInternalState = "IN_PROGRESS"
	IncomingCompleted  IncomingInternalState = "COMPLETED"
)

// ReceivedByPlugin mirrors store.ReceivedByPlugin in the domain layer.
type ReceivedByPlugin struct {
	Name       string
	State      string
	Amount     amount.Amount
	RawData    []byte
	ReceivedAt time.Time
}

// IncomingParams are the caller-supplied fields for a new incoming
// PaymentObject.
type IncomingParams struct {
	ID             string
	ClientOrderID  string
	Memo           string
	ExpectedAmount amount.Amount
	CreatedAt      time.Time
}

// Incoming is the incoming PaymentObject. Amount stays nil until
// reconciliation assigns it.
type Incoming struct {
	ID                string
	ClientOrderID     string
	Memo              string
	Amount            *amount.Amount
	ExpectedAmount    amount.Amount
	InternalState     IncomingInternalState
	ReceivedByPlugins []ReceivedByPlugin
	CreatedAt         time.Time
	Removed           bool

	store store.Store
}

func NewIncoming(p IncomingParams, st store.Store) *Incoming {
	return &Incoming{
		ID:             p.ID,
		ClientOrderID:  p.ClientOrderID,
		Memo:           p.Memo,
		ExpectedAmount: p.ExpectedAmount,
		InternalState:  IncomingInProgress,
		CreatedAt:      p.CreatedAt,
		store:          st,
	}
}

func fromReceivedRecords(in []store.ReceivedByPlugin) []ReceivedByPlugin {
	out := make([]ReceivedByPlugin, len(in))
	for i, r := range in {
		out[i] = ReceivedByPlugin{Name: r.Name, State: r.State, Amount: r.Amount, RawData: r.RawData, ReceivedAt: r.ReceivedAt}
	}
	return out
}

func toReceivedRecords(in []ReceivedByPlugin) []store.ReceivedByPlugin {
	out := make([]store.ReceivedByPlugin, len(in))
	for i, r := range in {
		out[i] = store.ReceivedByPlugin{Name: r.Name, State: r.State, Amount: r.Amount, RawData: r.RawData, ReceivedAt: r.ReceivedAt}
	}
	return out
}

func IncomingFromRecord(rec store.IncomingPaymentRecord, st store.Store) *Incoming {
	return &Incoming{
		ID:                rec.ID,
		ClientOrderID:     rec.ClientOrderID,
		Memo:              rec.Memo,
		Amount:            rec.Amount,
		ExpectedAmount:    rec.ExpectedAmount,
		InternalState:     IncomingInternalState(rec.InternalState),
		ReceivedByPlugins: fromReceivedRecords(rec.ReceivedByPlugins),
		CreatedAt:         rec.CreatedAt,
		Removed:           rec.Removed,
		store:             st,
	}
}

func (p *Incoming) record() store.IncomingPaymentRecord {
	return store.IncomingPaymentRecord{
		ID:                p.ID,
		ClientOrderID:     p.ClientOrderID,
		Memo:              p.Memo,
		Amount:            p.Amount,
		ExpectedAmount:    p.ExpectedAmount,
		InternalState:     string(p.InternalState),
		ReceivedByPlugins: toReceivedRecords(p.ReceivedByPlugins),
		CreatedAt:         p.CreatedAt,
		Removed:           p.Removed,
	}
}

func (p *Incoming) Record() store.IncomingPaymentRecord { return p.record() }

func (p *Incoming) Save(ctx context.Context) error {
	return p.store.SaveIncomingPayment(ctx, p.record())
}

func (p *Incoming) Update(ctx context.Context, patch store.Patch) error {
	if patch == nil {
		patch = store.Patch{
			store.FieldInternalState:     string(p.InternalState),
			store.FieldReceivedByPlugins: store.ReceivedByPluginsValue{V: toReceivedRecords(p.ReceivedByPlugins)},
			store.FieldRemoved:           p.Removed,
		}
		if p.Amount != nil {
			patch[store.FieldAmount] = store.AmountValue{A: *p.Amount}
		}
	}
	return p.store.UpdateIncomingPayment(ctx, p.ID, patch)
}

// AppendReceipt records a plugin receipt and recomputes the total
// received, marking the payment COMPLETED once it covers
// ExpectedAmount.
func (p *Incoming) AppendReceipt(ctx context.Context, r ReceivedByPlugin) (missing *amount.Amount, err error) {
	p.ReceivedByPlugins = append(p.ReceivedByPlugins, r)

	total := r.Amount
	if p.Amount != nil {
		total, err = p.Amount.Add(r.Amount)
		if err != nil {
			return nil, err
		}
	}
	p.Amount = &total

	ok, err := total.GreaterThanOrEqual(p.ExpectedAmount)
	if err != nil {
		return nil, err
	}
	if ok {
		p.InternalState = IncomingCompleted
		return nil, p.Update(ctx, nil)
	}

	p.InternalState = IncomingInProgress
	miss, err := p.ExpectedAmount.Sub(total)
	if err != nil {
		return nil, err
	}
	if err := p.Update(ctx, nil); err != nil {
		return nil, err
	}
	return &miss, nil
}

func (p *Incoming) IsCompleted() bool { return p.InternalState == IncomingCompleted }
