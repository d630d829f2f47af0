package trader

import "github.com/shopspring/decimal"

var volumeLiquidityShare = decimal.RequireFromString("0.001")

// SlippageModel estimates execution degradation from trade size relative to
// 24h volume.
type SlippageModel struct {
	Base        decimal.Decimal
	Coefficient decimal.Decimal
	Cap         decimal.Decimal
}

func DefaultSlippageModel() SlippageModel {
	return SlippageModel{
		Base:        decimal.RequireFromString("0.001"),
		Coefficient: decimal.RequireFromString("0.01"),
		Cap:         decimal.RequireFromString("0.05"),
	}
}

// Estimate returns min(base + usd/(volume*0.001)*coefficient, cap). Unknown or
// zero volume means no measurable liquidity, so the cap applies.
func (m SlippageModel) Estimate(usdAmount decimal.Decimal, volume24h decimal.NullDecimal) decimal.Decimal {
	if !volume24h.Valid || !volume24h.Decimal.IsPositive() {
		return m.Cap
	}
	if !usdAmount.IsPositive() {
		return decimal.Min(m.Base, m.Cap)
	}

	impact := usdAmount.Div(volume24h.Decimal.Mul(volumeLiquidityShare))
	return decimal.Min(m.Base.Add(impact.Mul(m.Coefficient)), m.Cap)
}
