package amount_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paymentfabric/slashpay-engine/internal/domain/amount"
)

func TestNew_Defaults(t *testing.T) {
	a, err := amount.New("100", "", "")
	require.NoError(t, err)
	require.Equal(t, "100", a.Amount())
	require.Equal(t, amount.DefaultCurrency, a.Currency())
	require.Equal(t, amount.DenominationBase, a.Denomination())
}

func TestNew_RejectsNegative(t *testing.T) {
	_, err := amount.New("-1", "BTC", amount.DenominationBase)
	require.Error(t, err)
}

func TestNew_RejectsBadDenomination(t *testing.T) {
	_, err := amount.New("1", "BTC", "WEIRD")
	require.Error(t, err)
}

func TestAddSub(t *testing.T) {
	a, _ := amount.New("60", "BTC", amount.DenominationBase)
	b, _ := amount.New("40", "BTC", amount.DenominationBase)

	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, "100", sum.Amount())

	diff, err := sum.Sub(a)
	require.NoError(t, err)
	require.Equal(t, "40", diff.Amount())
}

func TestAdd_MismatchedCurrency(t *testing.T) {
	a, _ := amount.New("1", "BTC", amount.DenominationBase)
	b, _ := amount.New("1", "ETH", amount.DenominationBase)

	_, err := a.Add(b)
	require.Error(t, err)
}

func TestGreaterThanOrEqual(t *testing.T) {
	expected, _ := amount.New("100", "BTC", amount.DenominationBase)
	received, _ := amount.New("100", "BTC", amount.DenominationBase)

	ok, err := received.GreaterThanOrEqual(expected)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	a, _ := amount.New("12.5", "BTC", amount.DenominationMain)

	data, err := a.MarshalJSON()
	require.NoError(t, err)

	var out amount.Amount
	require.NoError(t, out.UnmarshalJSON(data))

	require.Equal(t, a.Amount(), out.Amount())
	require.Equal(t, a.Currency(), out.Currency())
	require.Equal(t, a.Denomination(), out.Denomination())
}
