package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeReal      Mode = "real"
)

type TradeSignal struct {
	Action     Action          `json:"action"`
	USDAmount  decimal.Decimal `json:"usd_amount"`
	Confidence int             `json:"confidence"`
	Strategy   string          `json:"strategy"`
	Rationale  string          `json:"rationale"`
}

type TradeResult struct {
	ID         string          `json:"id"`
	Action     Action          `json:"action"`
	Mode       Mode            `json:"mode"`
	Succeeded  bool            `json:"succeeded"`
	BaseDelta  decimal.Decimal `json:"base_delta"`
	QuoteDelta decimal.Decimal `json:"quote_delta"`
	Slippage   decimal.Decimal `json:"slippage"`
	FeesPaid   decimal.Decimal `json:"fees_paid"`
	TxID       string          `json:"tx_id,omitempty"`
	Cause      string          `json:"cause,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

type Portfolio struct {
	Mode             Mode      `json:"mode"`
	Balance          Balance   `json:"balance"`
	TotalTrades      int64     `json:"total_trades"`
	SuccessfulTrades int64     `json:"successful_trades"`
	Cycles           int64     `json:"cycles"`
	UpdatedAt        time.Time `json:"updated_at"`
}
