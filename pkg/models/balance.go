package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNegativeBalance = errors.New("balance would become negative")

// Balance is one ledger of the traded pair. TotalValue is only ever set by
// NewBalance and Revalue so it cannot drift from Base*price+Quote.
type Balance struct {
	Base       decimal.Decimal `json:"base"`
	Quote      decimal.Decimal `json:"quote"`
	TotalValue decimal.Decimal `json:"total_value"`
	ValuedAt   decimal.Decimal `json:"valued_at_price"`
}

type BalanceDelta struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

func NewBalance(base, quote, price decimal.Decimal) Balance {
	return Balance{
		Base:       base,
		Quote:      quote,
		TotalValue: base.Mul(price).Add(quote),
		ValuedAt:   price,
	}
}

func (b Balance) Revalue(price decimal.Decimal) Balance {
	return NewBalance(b.Base, b.Quote, price)
}

// Apply returns the ledger after delta, valued at price. The receiver is left
// untouched when either side would go negative.
func (b Balance) Apply(delta BalanceDelta, price decimal.Decimal) (Balance, error) {
	base := b.Base.Add(delta.Base)
	quote := b.Quote.Add(delta.Quote)
	if base.IsNegative() || quote.IsNegative() {
		return b, ErrNegativeBalance
	}
	return NewBalance(base, quote, price), nil
}
