package trader

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultBalanceCacheTTL = 30 * time.Second

// BalanceSource is the ledger the executor trades against. Simulated and
// remote ledgers share it so the executor never branches on where balances
// come from.
type BalanceSource interface {
	Mode() models.Mode
	// Balance returns the ledger valued at price.
	Balance(ctx context.Context, price decimal.Decimal) (models.Balance, error)
	// Apply adds delta and revalues at price; nothing changes on error.
	Apply(delta models.BalanceDelta, price decimal.Decimal) (models.Balance, error)
	// Invalidate forces the next Balance call to reload ground truth, if any.
	Invalidate()
}

type SimulatedBalance struct {
	mu     sync.Mutex
	ledger models.Balance
}

func NewSimulatedBalance(base, quote decimal.Decimal) *SimulatedBalance {
	return &SimulatedBalance{ledger: models.NewBalance(base, quote, decimal.Zero)}
}

func (s *SimulatedBalance) Mode() models.Mode { return models.ModeSimulated }

func (s *SimulatedBalance) Balance(_ context.Context, price decimal.Decimal) (models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = s.ledger.Revalue(price)
	return s.ledger, nil
}

func (s *SimulatedBalance) Apply(delta models.BalanceDelta, price decimal.Decimal) (models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.ledger.Apply(delta, price)
	if err != nil {
		return s.ledger, err
	}
	s.ledger = next
	return next, nil
}

func (s *SimulatedBalance) Invalidate() {}

type AssetFetcher interface {
	GetUserAssets(ctx context.Context, wallet string) ([]models.Asset, error)
}

// RemoteBalance mirrors the wallet's holdings on the exchange. Queries are
// cached for ttl; trades reconcile the cached ledger in place until the next
// refresh replaces it with ground truth.
type RemoteBalance struct {
	fetcher     AssetFetcher
	wallet      string
	baseSymbol  string
	quoteSymbol string
	ttl         time.Duration
	now         func() time.Time
	logger      *logrus.Logger

	mu        sync.Mutex
	ledger    models.Balance
	fetchedAt time.Time
}

func NewRemoteBalance(fetcher AssetFetcher, wallet, baseSymbol, quoteSymbol string, seed models.Balance, ttl time.Duration, logger *logrus.Logger) *RemoteBalance {
	if ttl <= 0 {
		ttl = DefaultBalanceCacheTTL
	}
	return &RemoteBalance{
		fetcher:     fetcher,
		wallet:      wallet,
		baseSymbol:  baseSymbol,
		quoteSymbol: quoteSymbol,
		ttl:         ttl,
		now:         time.Now,
		logger:      logger,
		ledger:      seed,
	}
}

func (r *RemoteBalance) Mode() models.Mode { return models.ModeReal }

func (r *RemoteBalance) Balance(ctx context.Context, price decimal.Decimal) (models.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.fetchedAt.IsZero() && r.now().Sub(r.fetchedAt) < r.ttl {
		r.logger.Debug("Using cached wallet balance")
		r.ledger = r.ledger.Revalue(price)
		return r.ledger, nil
	}

	assets, err := r.fetcher.GetUserAssets(ctx, r.wallet)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to refresh wallet balance, using last known ledger")
		r.ledger = r.ledger.Revalue(price)
		return r.ledger, nil
	}

	base, quote := decimal.Zero, decimal.Zero
	for _, asset := range assets {
		switch {
		case strings.EqualFold(asset.Symbol, r.baseSymbol):
			base = asset.Quantity
		case strings.EqualFold(asset.Symbol, r.quoteSymbol):
			quote = asset.Quantity
		}
	}

	r.ledger = models.NewBalance(base, quote, price)
	r.fetchedAt = r.now()
	r.logger.WithFields(logrus.Fields{
		r.baseSymbol:  base.StringFixed(4),
		r.quoteSymbol: quote.StringFixed(4),
		"total_value": r.ledger.TotalValue.StringFixed(4),
	}).Info("Wallet balance refreshed")
	return r.ledger, nil
}

func (r *RemoteBalance) Apply(delta models.BalanceDelta, price decimal.Decimal) (models.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := r.ledger.Apply(delta, price)
	if err != nil {
		return r.ledger, err
	}
	r.ledger = next
	return next, nil
}

func (r *RemoteBalance) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchedAt = time.Time{}
}
