package models

import "github.com/shopspring/decimal"

type Quote struct {
	TokenIn   string          `json:"token_in"`
	TokenOut  string          `json:"token_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	FeeTier   int             `json:"fee_tier"`
}

type SwapAmounts struct {
	ExactIn          decimal.Decimal `json:"exact_in"`
	AmountOutMinimum decimal.Decimal `json:"amount_out_minimum"`
}

type SwapStatus string

const (
	SwapPending   SwapStatus = "PENDING"
	SwapProcessed SwapStatus = "PROCESSED"
	SwapFailed    SwapStatus = "FAILED"
)

type SwapReceipt struct {
	TxID   string     `json:"tx_id"`
	Status SwapStatus `json:"status"`
}

func (s SwapStatus) Terminal() bool {
	return s == SwapProcessed || s == SwapFailed
}
