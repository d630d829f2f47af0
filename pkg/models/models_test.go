package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewPriceSnapshot(t *testing.T) {
	now := time.Now()
	snap, err := NewPriceSnapshot("GALA", "coingecko", dec("0.016"), decimal.NewNullDecimal(dec("-2")), decimal.NullDecimal{}, now)
	require.NoError(t, err)
	assert.True(t, dec("62.5").Equal(snap.InverseRate))
	assert.True(t, snap.Change24h.Valid)
	assert.False(t, snap.Volume24h.Valid)
	assert.Equal(t, now, snap.ObservedAt)
}

func TestNewPriceSnapshotRejectsBadInput(t *testing.T) {
	_, err := NewPriceSnapshot("GALA", "x", decimal.Zero, decimal.NullDecimal{}, decimal.NullDecimal{}, time.Now())
	assert.ErrorIs(t, err, ErrNonPositivePrice)

	_, err = NewPriceSnapshot("GALA", "x", dec("-1"), decimal.NullDecimal{}, decimal.NullDecimal{}, time.Now())
	assert.ErrorIs(t, err, ErrNonPositivePrice)

	_, err = NewPriceSnapshot("GALA", "x", dec("1"), decimal.NullDecimal{}, decimal.NewNullDecimal(dec("-5")), time.Now())
	assert.ErrorIs(t, err, ErrNegativeVolume)
}

func TestBalanceApply(t *testing.T) {
	b := NewBalance(dec("10"), dec("2"), dec("0.5"))
	assert.True(t, dec("7").Equal(b.TotalValue))

	next, err := b.Apply(BalanceDelta{Base: dec("-4"), Quote: dec("1")}, dec("1"))
	require.NoError(t, err)
	assert.True(t, dec("6").Equal(next.Base))
	assert.True(t, dec("3").Equal(next.Quote))
	assert.True(t, dec("9").Equal(next.TotalValue))

	_, err = b.Apply(BalanceDelta{Quote: dec("-2.01")}, dec("1"))
	assert.ErrorIs(t, err, ErrNegativeBalance)
	assert.True(t, dec("2").Equal(b.Quote))
}

func TestBalanceRevalue(t *testing.T) {
	b := NewBalance(dec("100"), dec("1"), dec("0.01"))
	r := b.Revalue(dec("0.02"))
	assert.True(t, dec("3").Equal(r.TotalValue))
	assert.True(t, dec("0.02").Equal(r.ValuedAt))
	assert.True(t, dec("2").Equal(b.TotalValue))
}

func TestSwapStatusTerminal(t *testing.T) {
	assert.False(t, SwapPending.Terminal())
	assert.True(t, SwapProcessed.Terminal())
	assert.True(t, SwapFailed.Terminal())
}
