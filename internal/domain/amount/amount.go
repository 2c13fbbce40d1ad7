// Package amount implements the validated Amount triple: a
// non-negative decimal-string amount, a currency tag, and a BASE/MAIN
// denomination. Conversion between denominations is a plugin concern;
// this package only validates, serialises, and compares/adds in BASE
// units.
package amount

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type Denomination string

const (
	DenominationBase Denomination = "BASE"
	DenominationMain Denomination = "MAIN"

	DefaultCurrency = "BTC"
)

type Amount struct {
	value        decimal.Decimal
	currency     string
	denomination Denomination
}

// New validates amount/currency/denomination and returns an Amount.
// Empty currency defaults to "BTC"; empty denomination defaults to BASE.
func New(amountStr, currency string, denomination Denomination) (Amount, error) {
	if currency == "" {
		currency = DefaultCurrency
	}
	if denomination == "" {
		denomination = DenominationBase
	}
	if denomination != DenominationBase && denomination != DenominationMain {
		return Amount{}, fmt.Errorf("amount: invalid denomination %q", denomination)
	}

	v, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: invalid amount %q: %w", amountStr, err)
	}
	if v.IsNegative() {
		return Amount{}, fmt.Errorf("amount: amount %q must not be negative", amountStr)
	}

	return Amount{value: v, currency: currency, denomination: denomination}, nil
}

func (a Amount) Amount() string             { return a.value.String() }
func (a Amount) Currency() string           { return a.currency }
func (a Amount) Denomination() Denomination { return a.denomination }
func (a Amount) Decimal() decimal.Decimal   { return a.value }

func (a Amount) IsZero() bool { return a.value.IsZero() }

// Add returns a+b. The two amounts must share currency and denomination.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.currency != b.currency {
		return Amount{}, fmt.Errorf("amount: currency mismatch %q != %q", a.currency, b.currency)
	}
	if a.denomination != b.denomination {
		return Amount{}, fmt.Errorf("amount: denomination mismatch %q != %q", a.denomination, b.denomination)
	}
	return Amount{value: a.value.Add(b.value), currency: a.currency, denomination: a.denomination}, nil
}

// Sub returns a-b under the same constraints as Add.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.currency != b.currency {
		return Amount{}, fmt.Errorf("amount: currency mismatch %q != %q", a.currency, b.currency)
	}
	if a.denomination != b.denomination {
		return Amount{}, fmt.Errorf("amount: denomination mismatch %q != %q", a.denomination, b.denomination)
	}
	return Amount{value: a.value.Sub(b.value), currency: a.currency, denomination: a.denomination}, nil
}

func (a Amount) GreaterThanOrEqual(b Amount) (bool, error) {
	if a.currency != b.currency || a.denomination != b.denomination {
		return false, fmt.Errorf("amount: cannot compare %s/%s with %s/%s", a.currency, a.denomination, b.currency, b.denomination)
	}
	return a.value.GreaterThanOrEqual(b.value), nil
}

type serial struct {
	Amount       string       `json:"amount"`
	Currency     string       `json:"currency"`
	Denomination Denomination `json:"denomination"`
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(serial{
		Amount:       a.value.String(),
		Currency:     a.currency,
		Denomination: a.denomination,
	})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s serial
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := New(s.Amount, s.Currency, s.Denomination)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
