package paymentobject_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
	"github.com/paymentfabric/slashpay-engine/internal/domain/paymentobject"
	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
)

func TestIncomingAppendReceipt_PartialStaysInProgressAndReportsMissing(t *testing.T) {
	st := newStore(t)
	expected, err := amount.New("500", "BTC", amount.DenominationBase)
	require.NoError(t, err)

	p := paymentobject.NewIncoming(paymentobject.IncomingParams{
		ID:             "invoice-1",
		ClientOrderID:  "invoice-1",
		ExpectedAmount: expected,
		CreatedAt:      time.Now(),
	}, st)
	require.NoError(t, p.Save(context.Background()))

	received, err := amount.New("200", "BTC", amount.DenominationBase)
	require.NoError(t, err)

	missing, err := p.AppendReceipt(context.Background(), paymentobject.ReceivedByPlugin{
		Name:       "lightning",
		State:      "received",
		Amount:     received,
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, missing)
	require.Equal(t, "300", missing.Amount())
	require.False(t, p.IsCompleted())
	require.Len(t, p.ReceivedByPlugins, 1)
}

func TestIncomingAppendReceipt_CumulativeReceiptsComplete(t *testing.T) {
	st := newStore(t)
	expected, err := amount.New("500", "BTC", amount.DenominationBase)
	require.NoError(t, err)

	p := paymentobject.NewIncoming(paymentobject.IncomingParams{
		ID:             "invoice-2",
		ClientOrderID:  "invoice-2",
		ExpectedAmount: expected,
		CreatedAt:      time.Now(),
	}, st)
	require.NoError(t, p.Save(context.Background()))

	first, err := amount.New("300", "BTC", amount.DenominationBase)
	require.NoError(t, err)
	_, err = p.AppendReceipt(context.Background(), paymentobject.ReceivedByPlugin{Name: "lightning", Amount: first, ReceivedAt: time.Now()})
	require.NoError(t, err)
	require.False(t, p.IsCompleted())

	second, err := amount.New("200", "BTC", amount.DenominationBase)
	require.NoError(t, err)
	missing, err := p.AppendReceipt(context.Background(), paymentobject.ReceivedByPlugin{Name: "onchain", Amount: second, ReceivedAt: time.Now()})
	require.NoError(t, err)
	require.Nil(t, missing)
	require.True(t, p.IsCompleted())
	require.Len(t, p.ReceivedByPlugins, 2)
}

func TestIncomingAppendReceipt_OverpaymentStillCompletes(t *testing.T) {
	st := newStore(t)
	expected, err := amount.New("100", "BTC", amount.DenominationBase)
	require.NoError(t, err)

	p := paymentobject.NewIncoming(paymentobject.IncomingParams{
		ID:             "invoice-3",
		ClientOrderID:  "invoice-3",
		ExpectedAmount: expected,
		CreatedAt:      time.Now(),
	}, st)
	require.NoError(t, p.Save(context.Background()))

	paid, err := amount.New("150", "BTC", amount.DenominationBase)
	require.NoError(t, err)
	missing, err := p.AppendReceipt(context.Background(), paymentobject.ReceivedByPlugin{Name: "onchain", Amount: paid, ReceivedAt: time.Now()})
	require.NoError(t, err)
	require.Nil(t, missing)
	require.True(t, p.IsCompleted())
}

func TestIncomingFromRecord_Roundtrips(t *testing.T) {
	st := newStore(t)
	expected, err := amount.New("100", "BTC", amount.DenominationBase)
	require.NoError(t, err)

	p := paymentobject.NewIncoming(paymentobject.IncomingParams{
		ID:             "invoice-4",
		ClientOrderID:  "invoice-4",
		ExpectedAmount: expected,
		CreatedAt:      time.Now(),
	}, st)
	require.NoError(t, p.Save(context.Background()))

	rec, err := st.GetIncomingPayment(context.Background(), "invoice-4", store.GetOptions{})
	require.NoError(t, err)

	reloaded := paymentobject.IncomingFromRecord(*rec, st)
	require.Equal(t, p.ID, reloaded.ID)
	require.Equal(t, p.ClientOrderID, reloaded.ClientOrderID)
	require.False(t, reloaded.IsCompleted())
}
