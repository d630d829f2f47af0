package trader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

type Cause string

const (
	CauseInsufficientFunds Cause = "insufficient_funds"
	CauseZeroAmount        Cause = "zero_amount"
	CauseNetwork           Cause = "network"
	CauseSlippage          Cause = "slippage"
	CauseUnknown           Cause = "unknown"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAmount        = errors.New("trade amount is zero")
	ErrFeedUnavailable   = errors.New("price feed unavailable")
)

// TradeError is an exchange failure tagged with the step that failed and its
// operator-facing cause.
type TradeError struct {
	Op    string
	Cause Cause
	Err   error
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Cause, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// Classify maps an error onto the small set of causes operators act on.
func Classify(err error) Cause {
	if err == nil {
		return ""
	}

	var tradeErr *TradeError
	if errors.As(err, &tradeErr) && tradeErr.Cause != "" {
		return tradeErr.Cause
	}

	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return CauseInsufficientFunds
	case errors.Is(err, ErrZeroAmount):
		return CauseZeroAmount
	case errors.Is(err, context.DeadlineExceeded):
		return CauseNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CauseNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return CauseInsufficientFunds
	case strings.Contains(msg, "network"), strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"):
		return CauseNetwork
	case strings.Contains(msg, "slippage"):
		return CauseSlippage
	default:
		return CauseUnknown
	}
}

func describeCause(cause Cause) string {
	switch cause {
	case CauseInsufficientFunds:
		return "Insufficient funds for transaction"
	case CauseNetwork:
		return "Network connection issue"
	case CauseSlippage:
		return "Slippage too high, consider a smaller trade size"
	case CauseZeroAmount:
		return "Nothing to trade"
	default:
		return "Unknown error, check transaction details"
	}
}
