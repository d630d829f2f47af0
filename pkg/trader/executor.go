package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	opQuote = "quote"
	opSwap  = "swap"
)

var DefaultFeeRate = decimal.RequireFromString("0.003")

// Exchange is the slice of the DEX API the executor needs in real mode.
type Exchange interface {
	AssetFetcher
	QuoteExactInput(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (models.Quote, error)
	Swap(ctx context.Context, tokenIn, tokenOut string, feeTier int, amounts models.SwapAmounts, wallet string) (models.SwapReceipt, error)
}

type ExecutorConfig struct {
	FeeRate    decimal.Decimal
	Slippage   SlippageModel
	BaseToken  string
	QuoteToken string
	Wallet     string
	Retry      RetryPolicy
}

// Executor sizes a signal and moves the balance, either on the local ledger or
// through the exchange. Which one is fixed at construction.
type Executor struct {
	cfg      ExecutorConfig
	ledger   BalanceSource
	exchange Exchange
	session  *Session
	logger   *logrus.Logger
	now      func() time.Time
}

func NewSimulatedExecutor(ledger BalanceSource, session *Session, cfg ExecutorConfig, logger *logrus.Logger) *Executor {
	return newExecutor(ledger, nil, session, cfg, logger)
}

func NewRealExecutor(ledger BalanceSource, exchange Exchange, session *Session, cfg ExecutorConfig, logger *logrus.Logger) *Executor {
	return newExecutor(ledger, exchange, session, cfg, logger)
}

func newExecutor(ledger BalanceSource, exchange Exchange, session *Session, cfg ExecutorConfig, logger *logrus.Logger) *Executor {
	if cfg.FeeRate.IsZero() {
		cfg.FeeRate = DefaultFeeRate
	}
	if cfg.Slippage.Cap.IsZero() {
		cfg.Slippage = DefaultSlippageModel()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Executor{
		cfg:      cfg,
		ledger:   ledger,
		exchange: exchange,
		session:  session,
		logger:   logger,
		now:      time.Now,
	}
}

func (e *Executor) Mode() models.Mode {
	if e.exchange == nil {
		return models.ModeSimulated
	}
	return models.ModeReal
}

func (e *Executor) Balance(ctx context.Context, snap models.PriceSnapshot) (models.Balance, error) {
	return e.ledger.Balance(ctx, snap.SpotPrice)
}

// Execute runs one signal. Locally rejected trades come back as a failed
// result with a nil error; only exchange failures return an error, always a
// *TradeError.
func (e *Executor) Execute(ctx context.Context, sig models.TradeSignal, snap models.PriceSnapshot) (models.TradeResult, error) {
	result := models.TradeResult{
		ID:         uuid.NewString(),
		Action:     sig.Action,
		Mode:       e.Mode(),
		BaseDelta:  decimal.Zero,
		QuoteDelta: decimal.Zero,
		Slippage:   e.cfg.Slippage.Estimate(sig.USDAmount, snap.Volume24h),
		FeesPaid:   decimal.Zero,
		ExecutedAt: e.now().UTC(),
	}

	if sig.Action == models.ActionWait {
		result.Reason = "wait"
		return result, nil
	}

	bal, err := e.ledger.Balance(ctx, snap.SpotPrice)
	if err != nil {
		return result, fmt.Errorf("load balance: %w", err)
	}

	log := e.logger.WithFields(logrus.Fields{
		"trade_id":   result.ID,
		"action":     sig.Action,
		"usd_amount": sig.USDAmount.StringFixed(4),
		"slippage":   result.Slippage.StringFixed(6),
		"mode":       result.Mode,
	})

	if e.exchange == nil {
		return e.executeSimulated(log, result, sig, snap, bal), nil
	}
	return e.executeReal(ctx, log, result, sig, snap, bal)
}

func (e *Executor) executeSimulated(log *logrus.Entry, result models.TradeResult, sig models.TradeSignal, snap models.PriceSnapshot, bal models.Balance) models.TradeResult {
	usd := sig.USDAmount
	fees := usd.Mul(e.cfg.FeeRate)
	keep := decimal.NewFromInt(1).Sub(result.Slippage)

	var delta models.BalanceDelta
	switch sig.Action {
	case models.ActionBuy:
		required := usd.Add(fees)
		if !usd.IsPositive() {
			return e.reject(log, result, ErrZeroAmount)
		}
		if bal.Quote.LessThan(required) {
			log.WithFields(logrus.Fields{
				"required":  required.StringFixed(4),
				"available": bal.Quote.StringFixed(4),
			}).Warn("Insufficient quote balance for BUY order")
			return e.reject(log, result, ErrInsufficientFunds)
		}
		delta = models.BalanceDelta{
			Base:  usd.Mul(snap.InverseRate).Mul(keep),
			Quote: required.Neg(),
		}
	case models.ActionSell:
		sellAmount := decimal.Min(usd.Mul(snap.InverseRate), bal.Base)
		if !sellAmount.IsPositive() {
			return e.reject(log, result, ErrZeroAmount)
		}
		// Dividing by the inverse rate is multiplying by spot.
		delta = models.BalanceDelta{
			Base:  sellAmount.Neg(),
			Quote: sellAmount.Mul(snap.SpotPrice).Mul(keep).Sub(fees),
		}
	default:
		return e.reject(log, result, fmt.Errorf("unsupported action %q", sig.Action))
	}

	after, err := e.ledger.Apply(delta, snap.SpotPrice)
	if err != nil {
		log.WithError(err).Warn("Simulated trade would overdraw the ledger")
		return e.reject(log, result, ErrInsufficientFunds)
	}

	result.Succeeded = true
	result.BaseDelta = delta.Base
	result.QuoteDelta = delta.Quote
	result.FeesPaid = fees
	e.session.RecordSuccess()

	log.WithFields(logrus.Fields{
		"base_delta":  delta.Base.StringFixed(4),
		"quote_delta": delta.Quote.StringFixed(4),
		"fees":        fees.StringFixed(4),
		"base":        after.Base.StringFixed(4),
		"quote":       after.Quote.StringFixed(4),
		"total_value": after.TotalValue.StringFixed(4),
	}).Info("Simulated trade executed")
	return result
}

func (e *Executor) executeReal(ctx context.Context, log *logrus.Entry, result models.TradeResult, sig models.TradeSignal, snap models.PriceSnapshot, bal models.Balance) (models.TradeResult, error) {
	var tokenIn, tokenOut string
	var amountIn decimal.Decimal

	switch sig.Action {
	case models.ActionBuy:
		amountIn = sig.USDAmount
		if !amountIn.IsPositive() {
			return e.reject(log, result, ErrZeroAmount), nil
		}
		if bal.Quote.LessThan(amountIn) {
			log.WithField("available", bal.Quote.StringFixed(4)).Warn("Insufficient quote balance for BUY order")
			return e.reject(log, result, ErrInsufficientFunds), nil
		}
		tokenIn, tokenOut = e.cfg.QuoteToken, e.cfg.BaseToken
	case models.ActionSell:
		amountIn = decimal.Min(sig.USDAmount.Mul(snap.InverseRate), bal.Base)
		if !amountIn.IsPositive() {
			return e.reject(log, result, ErrZeroAmount), nil
		}
		tokenIn, tokenOut = e.cfg.BaseToken, e.cfg.QuoteToken
	default:
		return e.reject(log, result, fmt.Errorf("unsupported action %q", sig.Action)), nil
	}

	var quote models.Quote
	err := e.cfg.Retry.Do(ctx, e.logger, opQuote, func(int) error {
		var qerr error
		quote, qerr = e.exchange.QuoteExactInput(ctx, tokenIn, tokenOut, amountIn)
		return qerr
	})
	if err != nil {
		return e.fail(log, result, &TradeError{Op: opQuote, Cause: Classify(err), Err: err})
	}

	minOut := quote.AmountOut.Mul(decimal.NewFromInt(1).Sub(result.Slippage))
	log.WithFields(logrus.Fields{
		"amount_in":  amountIn.String(),
		"amount_out": quote.AmountOut.String(),
		"min_out":    minOut.String(),
		"fee_tier":   quote.FeeTier,
	}).Info("Quote received, submitting swap")

	// Swaps are not idempotent, so a failed submission is never retried here.
	receipt, err := e.exchange.Swap(ctx, tokenIn, tokenOut, quote.FeeTier, models.SwapAmounts{
		ExactIn:          amountIn,
		AmountOutMinimum: minOut,
	}, e.cfg.Wallet)
	if err != nil {
		return e.fail(log, result, &TradeError{Op: opSwap, Cause: Classify(err), Err: err})
	}

	var delta models.BalanceDelta
	if sig.Action == models.ActionBuy {
		delta = models.BalanceDelta{Base: quote.AmountOut, Quote: amountIn.Neg()}
	} else {
		delta = models.BalanceDelta{Base: amountIn.Neg(), Quote: quote.AmountOut}
	}

	result.Succeeded = true
	result.TxID = receipt.TxID
	result.BaseDelta = delta.Base
	result.QuoteDelta = delta.Quote
	e.session.RecordSuccess()

	after, err := e.ledger.Apply(delta, snap.SpotPrice)
	if err != nil {
		log.WithError(err).Error("Ledger reconciliation failed, reloading wallet balance next cycle")
		e.ledger.Invalidate()
		result.Reason = "ledger reconciliation deferred"
	}

	log.WithFields(logrus.Fields{
		"tx_id":       receipt.TxID,
		"status":      receipt.Status,
		"base":        after.Base.StringFixed(4),
		"quote":       after.Quote.StringFixed(4),
		"total_value": after.TotalValue.StringFixed(4),
	}).Info("Swap executed")
	return result, nil
}

func (e *Executor) reject(log *logrus.Entry, result models.TradeResult, err error) models.TradeResult {
	result.Succeeded = false
	result.Cause = string(Classify(err))
	result.Reason = err.Error()
	log.WithField("cause", result.Cause).Info("Trade skipped")
	return result
}

func (e *Executor) fail(log *logrus.Entry, result models.TradeResult, err *TradeError) (models.TradeResult, error) {
	result.Succeeded = false
	result.Cause = string(err.Cause)
	result.Reason = describeCause(err.Cause)
	log.WithError(err).WithField("cause", err.Cause).Error(result.Reason)
	return result, err
}
