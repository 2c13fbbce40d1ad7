package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/order"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/persistence/inmemory"
)

func testAmount(t *testing.T) amount.Amount {
	amt, err := amount.New("250", "BTC", amount.DenominationBase)
	require.NoError(t, err)
	return amt
}

func newStore(t *testing.T) *inmemory.Store {
	st := inmemory.New()
	require.NoError(t, st.Init(context.Background()))
	return st
}

func TestNewRejectsMissingCounterparty(t *testing.T) {
	now := time.Now()
	_, err := order.New(order.Params{
		Amount:         testAmount(t),
		CreatedAt:      now,
		FirstPaymentAt: now,
	}, newStore(t))
	require.ErrorIs(t, err, corerr.ErrCounterpartyRequired)
}

func TestNewAcceptsZeroAndRejectsNegativeFrequency(t *testing.T) {
	now := time.Now()
	_, err := order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		FrequencyMillis: 0,
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, newStore(t))
	require.NoError(t, err)

	_, err = order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		FrequencyMillis: -5,
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, newStore(t))
	require.ErrorIs(t, err, corerr.ErrInvalidFrequency)
}

func TestNewRejectsLastPaymentBeforeFirst(t *testing.T) {
	now := time.Now()
	before := now.Add(-time.Hour)
	_, err := order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		FrequencyMillis: 1000,
		CreatedAt:       now,
		FirstPaymentAt:  now,
		LastPaymentAt:   &before,
	}, newStore(t))
	require.ErrorIs(t, err, corerr.ErrInvalidTimestamp)
}

func TestInit_OneShotOrderMaterialisesSinglePayment(t *testing.T) {
	now := time.Now()
	o, err := order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, newStore(t))
	require.NoError(t, err)

	require.NoError(t, o.Init(context.Background()))
	require.NotEmpty(t, o.ID)
	require.Equal(t, order.StateInitialized, o.State)
	require.Len(t, o.Payments, 1)
	require.Equal(t, now, o.Payments[0].ExecuteAt)
}

func TestInit_BoundedRecurringOrderMaterialisesExclusiveUpperBound(t *testing.T) {
	now := time.Now()
	// Every hour, bounded at now+3h: first payment at t0, then +1h, +2h.
	// +3h is excluded by the exclusive-upper-bound resolution.
	last := now.Add(3 * time.Hour)
	o, err := order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		FrequencyMillis: int64(time.Hour / time.Millisecond),
		CreatedAt:       now,
		FirstPaymentAt:  now,
		LastPaymentAt:   &last,
	}, newStore(t))
	require.NoError(t, err)

	require.NoError(t, o.Init(context.Background()))
	require.Len(t, o.Payments, 3)
	require.Equal(t, now, o.Payments[0].ExecuteAt)
	require.Equal(t, now.Add(2*time.Hour), o.Payments[2].ExecuteAt)
}

func TestInit_OpenEndedRecurringOrderMaterialisesOneBatch(t *testing.T) {
	now := time.Now()
	o, err := order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		FrequencyMillis: int64(time.Minute / time.Millisecond),
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, newStore(t))
	require.NoError(t, err)

	require.NoError(t, o.Init(context.Background()))
	require.Len(t, o.Payments, order.BatchSize)
}

func TestProcess_NotYetDueReturnsCandidateWithoutEngaging(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	o, err := order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		CreatedAt:       now,
		FirstPaymentAt:  future,
	}, newStore(t))
	require.NoError(t, err)
	require.NoError(t, o.Init(context.Background()))

	p, err := o.Process(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, order.StateInitialized, o.State)
}

func TestProcess_DuePaymentAdvancesOrderAndPayment(t *testing.T) {
	now := time.Now()
	o, err := order.New(order.Params{
		SendingPriority: []string{"p2wpkh"},
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, newStore(t))
	require.NoError(t, err)
	require.NoError(t, o.Init(context.Background()))

	p, err := o.Process(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, order.StateProcessing, o.State)
	require.True(t, p.IsInProgress())
	require.Equal(t, "p2wpkh", p.GetCurrentPlugin().Name)
}

func TestProcess_FailedPaymentBlocksFurtherProcessing(t *testing.T) {
	now := time.Now()
	o, err := order.New(order.Params{
		SendingPriority: []string{"p2wpkh"},
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, newStore(t))
	require.NoError(t, err)
	require.NoError(t, o.Init(context.Background()))

	_, err = o.Process(context.Background(), now)
	require.NoError(t, err)
	require.NoError(t, o.Payments[0].FailCurrentPlugin(context.Background(), now))
	// No remaining pending plugins: next Process call drives it to FAILED.
	_, err = o.Process(context.Background(), now)
	require.NoError(t, err)
	require.True(t, o.Payments[0].IsFailed())

	_, err = o.Process(context.Background(), now)
	require.ErrorIs(t, err, corerr.ErrCanNotProcessOrder)
}

func TestComplete_RequiresAllPaymentsFinal(t *testing.T) {
	now := time.Now()
	o, err := order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, newStore(t))
	require.NoError(t, err)
	require.NoError(t, o.Init(context.Background()))

	err = o.Complete(context.Background(), now)
	require.ErrorIs(t, err, corerr.ErrOutstandingPayments)

	require.NoError(t, o.Payments[0].Cancel(context.Background(), now))
	require.NoError(t, o.Complete(context.Background(), now))
	require.Equal(t, order.StateCompleted, o.State)

	require.ErrorIs(t, o.Complete(context.Background(), now), corerr.ErrOrderCompleted)
}

func TestCancel_CancelsOrderAndAllNonFinalPayments(t *testing.T) {
	now := time.Now()
	o, err := order.New(order.Params{
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, newStore(t))
	require.NoError(t, err)
	require.NoError(t, o.Init(context.Background()))

	require.NoError(t, o.Cancel(context.Background(), now))
	require.Equal(t, order.StateCancelled, o.State)
	require.True(t, o.Payments[0].IsFinal())

	require.ErrorIs(t, o.Complete(context.Background(), now), corerr.ErrOrderCancelled)
}

func TestFind_ReconstructsOrderAndPaymentsSortedByExecuteAt(t *testing.T) {
	st := newStore(t)
	now := time.Now()
	o, err := order.New(order.Params{
		SendingPriority: []string{"p2wpkh"},
		Amount:          testAmount(t),
		CounterpartyURL: "https://counterparty.example",
		FrequencyMillis: int64(time.Minute / time.Millisecond),
		CreatedAt:       now,
		FirstPaymentAt:  now,
	}, st)
	require.NoError(t, err)
	require.NoError(t, o.Init(context.Background()))

	found, err := order.Find(context.Background(), o.ID, st)
	require.NoError(t, err)
	require.Equal(t, o.ID, found.ID)
	require.Len(t, found.Payments, len(o.Payments))
	for i := 1; i < len(found.Payments); i++ {
		require.False(t, found.Payments[i].ExecuteAt.Before(found.Payments[i-1].ExecuteAt))
	}
}

func TestFind_MissingOrderReturnsOrderNotFound(t *testing.T) {
	st := newStore(t)
	_, err := order.Find(context.Background(), "missing-order", st)
	require.ErrorIs(t, err, corerr.OrderNotFound("missing-order"))
}
