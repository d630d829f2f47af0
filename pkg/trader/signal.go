package trader

import (
	"fmt"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	StrategyVolatility = "volatility"
	StrategyMomentum   = "momentum"
	StrategyTechnical  = "technical"
	StrategyFallback   = "fallback"
)

var (
	volatilityThreshold = decimal.NewFromInt(8)
	momentumVolume      = decimal.NewFromInt(75_000_000)
	momentumChange      = decimal.NewFromInt(3)
	supportLevel        = decimal.RequireFromString("0.015")
	resistanceLevel     = decimal.RequireFromString("0.0181")

	volatilitySellMinBase = decimal.NewFromInt(20)
	momentumSellMinBase   = decimal.NewFromInt(15)
	resistanceSellMinBase = decimal.NewFromInt(25)

	volatilitySellShare = decimal.RequireFromString("0.25")
	momentumSellShare   = decimal.RequireFromString("0.15")
	resistanceSellShare = decimal.RequireFromString("0.3")

	probeCap          = decimal.RequireFromString("0.1")
	probeShare        = decimal.RequireFromString("0.02")
	probeMinBase      = decimal.NewFromInt(1)
	probeMinQuote     = decimal.RequireFromString("0.1")
	momentumBuyFactor = decimal.NewFromInt(3)
	momentumSellCap   = decimal.NewFromInt(2)
)

// strategy reports whether it claimed the cycle. A claimed cycle whose guard
// failed yields WAIT and hands over to the fallback.
type strategy func(snap models.PriceSnapshot, trend models.Trend, bal models.Balance) (models.TradeSignal, bool)

// SignalEngine turns a snapshot, trend and balance into one signal. It holds
// only configuration, so identical inputs always give identical signals.
type SignalEngine struct {
	minTradeSize decimal.Decimal
	maxTradeSize decimal.Decimal
}

func NewSignalEngine(minTradeSize, maxTradeSize decimal.Decimal) *SignalEngine {
	return &SignalEngine{
		minTradeSize: minTradeSize,
		maxTradeSize: maxTradeSize,
	}
}

func (e *SignalEngine) Generate(snap models.PriceSnapshot, trend models.Trend, bal models.Balance) models.TradeSignal {
	for _, s := range []strategy{e.volatility, e.momentum, e.technical} {
		sig, claimed := s(snap, trend, bal)
		if !claimed {
			continue
		}
		if sig.Action != models.ActionWait {
			return sig
		}
		break
	}
	return e.fallback(snap, bal)
}

func (e *SignalEngine) volatility(snap models.PriceSnapshot, _ models.Trend, bal models.Balance) (models.TradeSignal, bool) {
	if !snap.Change24h.Valid || snap.Change24h.Decimal.Abs().LessThanOrEqual(volatilityThreshold) {
		return models.TradeSignal{}, false
	}
	change := snap.Change24h.Decimal

	if change.IsNegative() {
		if !bal.Quote.IsPositive() {
			return wait(StrategyVolatility, "volatility drop ignored: no quote balance"), true
		}
		return models.TradeSignal{
			Action:     models.ActionBuy,
			USDAmount:  e.maxTradeSize,
			Confidence: 85,
			Strategy:   StrategyVolatility,
			Rationale:  fmt.Sprintf("High volatility drop (-%s%%) - contrarian buying opportunity", change.Abs().StringFixed(2)),
		}, true
	}

	if !bal.Base.GreaterThan(volatilitySellMinBase) {
		return wait(StrategyVolatility, "volatility spike ignored: base balance too small"), true
	}
	return models.TradeSignal{
		Action:     models.ActionSell,
		USDAmount:  decimal.Min(bal.Base.Mul(snap.SpotPrice).Mul(volatilitySellShare), e.maxTradeSize),
		Confidence: 80,
		Strategy:   StrategyVolatility,
		Rationale:  fmt.Sprintf("High volatility spike (+%s%%) - profit taking opportunity", change.StringFixed(2)),
	}, true
}

func (e *SignalEngine) momentum(snap models.PriceSnapshot, trend models.Trend, bal models.Balance) (models.TradeSignal, bool) {
	if !snap.Volume24h.Valid || !snap.Volume24h.Decimal.GreaterThan(momentumVolume) {
		return models.TradeSignal{}, false
	}
	if !snap.Change24h.Valid {
		return wait(StrategyMomentum, "high volume without 24h change"), true
	}
	change := snap.Change24h.Decimal
	volumeM := snap.Volume24h.Decimal.Div(decimal.NewFromInt(1_000_000)).StringFixed(1)

	switch {
	case change.GreaterThan(momentumChange) && trend == models.TrendUp:
		return models.TradeSignal{
			Action:     models.ActionBuy,
			USDAmount:  e.minTradeSize.Mul(momentumBuyFactor),
			Confidence: 75,
			Strategy:   StrategyMomentum,
			Rationale:  fmt.Sprintf("High volume (%sM) + upward momentum - trend following", volumeM),
		}, true
	case change.LessThan(momentumChange.Neg()) && bal.Base.GreaterThan(momentumSellMinBase):
		return models.TradeSignal{
			Action:     models.ActionSell,
			USDAmount:  decimal.Min(bal.Base.Mul(snap.SpotPrice).Mul(momentumSellShare), e.minTradeSize.Mul(momentumSellCap)),
			Confidence: 70,
			Strategy:   StrategyMomentum,
			Rationale:  fmt.Sprintf("High volume (%sM) with negative momentum - risk management", volumeM),
		}, true
	default:
		return wait(StrategyMomentum, "high volume without a momentum setup"), true
	}
}

func (e *SignalEngine) technical(snap models.PriceSnapshot, trend models.Trend, bal models.Balance) (models.TradeSignal, bool) {
	switch {
	case snap.SpotPrice.LessThan(supportLevel) && trend != models.TrendDown:
		return models.TradeSignal{
			Action:     models.ActionBuy,
			USDAmount:  e.maxTradeSize,
			Confidence: 78,
			Strategy:   StrategyTechnical,
			Rationale:  fmt.Sprintf("Price below key support level ($%s) with %s trend", supportLevel, trend),
		}, true
	case snap.SpotPrice.GreaterThan(resistanceLevel) && bal.Base.GreaterThan(resistanceSellMinBase):
		return models.TradeSignal{
			Action:     models.ActionSell,
			USDAmount:  decimal.Min(bal.Base.Mul(snap.SpotPrice).Mul(resistanceSellShare), e.maxTradeSize),
			Confidence: 72,
			Strategy:   StrategyTechnical,
			Rationale:  fmt.Sprintf("Price above key resistance level ($%s) - taking profits", resistanceLevel),
		}, true
	default:
		return models.TradeSignal{}, false
	}
}

// fallback keeps the bot from idling forever while it holds funds by probing
// with a tiny trade.
func (e *SignalEngine) fallback(snap models.PriceSnapshot, bal models.Balance) models.TradeSignal {
	switch {
	case bal.Base.GreaterThan(probeMinBase):
		return models.TradeSignal{
			Action:     models.ActionSell,
			USDAmount:  decimal.Min(probeCap, bal.Base.Mul(snap.SpotPrice).Mul(probeShare)),
			Confidence: 50,
			Strategy:   StrategyFallback,
			Rationale:  "No strategy setup - probe SELL (sufficient base balance)",
		}
	case bal.Quote.GreaterThan(probeMinQuote):
		return models.TradeSignal{
			Action:     models.ActionBuy,
			USDAmount:  decimal.Min(probeCap, bal.Quote.Mul(probeShare)),
			Confidence: 50,
			Strategy:   StrategyFallback,
			Rationale:  "No strategy setup - probe BUY (sufficient quote balance)",
		}
	default:
		return models.TradeSignal{
			Action:     models.ActionWait,
			USDAmount:  decimal.Zero,
			Confidence: 50,
			Strategy:   StrategyFallback,
			Rationale:  "Insufficient balance for trading",
		}
	}
}

func wait(strategy, rationale string) models.TradeSignal {
	return models.TradeSignal{
		Action:    models.ActionWait,
		USDAmount: decimal.Zero,
		Strategy:  strategy,
		Rationale: rationale,
	}
}
