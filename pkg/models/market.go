package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Trend string

const (
	TrendUp     Trend = "UP"
	TrendDown   Trend = "DOWN"
	TrendStable Trend = "STABLE"
)

var (
	ErrNonPositivePrice = errors.New("spot price must be positive")
	ErrNegativeVolume   = errors.New("24h volume must not be negative")
)

type PriceSnapshot struct {
	Symbol      string              `json:"symbol"`
	Source      string              `json:"source"`
	SpotPrice   decimal.Decimal     `json:"spot_price"`
	InverseRate decimal.Decimal     `json:"inverse_rate"`
	Change24h   decimal.NullDecimal `json:"change_24h"`
	Volume24h   decimal.NullDecimal `json:"volume_24h"`
	ObservedAt  time.Time           `json:"observed_at"`
}

// NewPriceSnapshot derives the inverse rate from spot and rejects prices the
// rest of the pipeline cannot divide by.
func NewPriceSnapshot(symbol, source string, spot decimal.Decimal, change, volume decimal.NullDecimal, observedAt time.Time) (PriceSnapshot, error) {
	if !spot.IsPositive() {
		return PriceSnapshot{}, ErrNonPositivePrice
	}
	if volume.Valid && volume.Decimal.IsNegative() {
		return PriceSnapshot{}, ErrNegativeVolume
	}

	return PriceSnapshot{
		Symbol:      symbol,
		Source:      source,
		SpotPrice:   spot,
		InverseRate: decimal.NewFromInt(1).Div(spot),
		Change24h:   change,
		Volume24h:   volume,
		ObservedAt:  observedAt,
	}, nil
}

type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

type Asset struct {
	Symbol   string
	Quantity decimal.Decimal
}
