package trader

import (
	"context"
	"testing"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	galaToken  = "GALA|Unit|none|none"
	gusdcToken = "GUSDC|Unit|none|none"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

func nullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func snapshot(t *testing.T, spot string, change, volume decimal.NullDecimal) models.PriceSnapshot {
	t.Helper()
	snap, err := models.NewPriceSnapshot("GALA", "test", d(spot), change, volume, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return snap
}

func balance(base, quote, spot string) models.Balance {
	return models.NewBalance(d(base), d(quote), d(spot))
}

type mockExchange struct {
	mock.Mock
}

func (m *mockExchange) GetUserAssets(ctx context.Context, wallet string) ([]models.Asset, error) {
	args := m.Called(ctx, wallet)
	assets, _ := args.Get(0).([]models.Asset)
	return assets, args.Error(1)
}

func (m *mockExchange) QuoteExactInput(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (models.Quote, error) {
	args := m.Called(ctx, tokenIn, tokenOut, amountIn)
	return args.Get(0).(models.Quote), args.Error(1)
}

func (m *mockExchange) Swap(ctx context.Context, tokenIn, tokenOut string, feeTier int, amounts models.SwapAmounts, wallet string) (models.SwapReceipt, error) {
	args := m.Called(ctx, tokenIn, tokenOut, feeTier, amounts, wallet)
	return args.Get(0).(models.SwapReceipt), args.Error(1)
}

func decEq(want string) interface{} {
	return mock.MatchedBy(func(got decimal.Decimal) bool { return d(want).Equal(got) })
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
