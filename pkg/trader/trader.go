package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCycleInterval = 90 * time.Second
	DefaultErrorBackoff  = 30 * time.Second
	recentTradesLimit    = 50
)

type CycleState string

const (
	StateIdle           CycleState = "IDLE"
	StatePriceFetched   CycleState = "PRICE_FETCHED"
	StateSignalComputed CycleState = "SIGNAL_COMPUTED"
	StateExecuting      CycleState = "EXECUTING"
	StateSkipped        CycleState = "SKIPPED"
)

type PriceFeed interface {
	Name() string
	FetchPrice(ctx context.Context) (models.PriceSnapshot, error)
}

// Recorder receives cycle telemetry. The prometheus recorder in pkg/metrics
// satisfies it.
type Recorder interface {
	RecordPrice(snap models.PriceSnapshot)
	RecordSignal(sig models.TradeSignal)
	RecordTrade(result models.TradeResult)
	RecordBalance(mode models.Mode, bal models.Balance)
	RecordCycle(outcome string, d time.Duration)
	RecordError(kind string)
}

type Config struct {
	CycleInterval  time.Duration
	ErrorBackoff   time.Duration
	TradingEnabled bool
}

type CycleReport struct {
	Cycle    int64
	State    CycleState
	Snapshot *models.PriceSnapshot
	Trend    models.Trend
	Signal   *models.TradeSignal
	Result   *models.TradeResult
	Balance  models.Balance
}

type Option func(*GalaTrader)

func WithJournal(j *Journal) Option {
	return func(t *GalaTrader) { t.journal = j }
}

func WithRecorder(r Recorder) Option {
	return func(t *GalaTrader) { t.metrics = r }
}

func WithHistory(h *PriceHistory) Option {
	return func(t *GalaTrader) { t.history = h }
}

// GalaTrader drives fetch, signal and execute cycles one at a time.
type GalaTrader struct {
	cfg      Config
	feed     PriceFeed
	engine   *SignalEngine
	executor *Executor
	session  *Session
	history  *PriceHistory
	journal  *Journal
	metrics  Recorder
	logger   *logrus.Logger

	mu           sync.RWMutex
	state        CycleState
	lastSnapshot *models.PriceSnapshot
	lastSignal   *models.TradeSignal
	lastBalance  models.Balance
	lastTrend    models.Trend
	trades       []models.TradeResult

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewGalaTrader(cfg Config, feed PriceFeed, engine *SignalEngine, executor *Executor, session *Session, logger *logrus.Logger, opts ...Option) *GalaTrader {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}

	t := &GalaTrader{
		cfg:       cfg,
		feed:      feed,
		engine:    engine,
		executor:  executor,
		session:   session,
		history:   NewPriceHistory(DefaultHistoryCapacity),
		metrics:   nopRecorder{},
		logger:    logger,
		state:     StateIdle,
		lastTrend: models.TrendStable,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run blocks until Stop is called or ctx is cancelled. Neither interrupts a
// cycle that is already running: cycles get a context detached from ctx, so
// a hung exchange call delays shutdown until it returns.
func (t *GalaTrader) Run(ctx context.Context) error {
	defer close(t.done)

	t.logger.WithFields(logrus.Fields{
		"mode":           t.executor.Mode(),
		"feed":           t.feed.Name(),
		"cycle_interval": t.cfg.CycleInterval.String(),
		"trading":        t.cfg.TradingEnabled,
	}).Info("Starting GalaSwap trader")

	cycleCtx := context.WithoutCancel(ctx)
	for {
		if t.stopping(ctx) {
			return nil
		}

		delay := t.cfg.CycleInterval
		if _, err := t.safeCycle(cycleCtx); err != nil {
			t.logger.WithError(err).WithField("backoff", t.cfg.ErrorBackoff.String()).Error("Error during strategy execution")
			t.metrics.RecordError(string(Classify(err)))
			delay = t.cfg.ErrorBackoff
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-t.stopCh:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop prevents the next cycle from starting. It is safe to call at any time
// and more than once.
func (t *GalaTrader) Stop() {
	t.stopOnce.Do(func() {
		t.logger.Info("Stopping GalaSwap trader")
		close(t.stopCh)
	})
}

// Done is closed once Run has returned.
func (t *GalaTrader) Done() <-chan struct{} {
	return t.done
}

func (t *GalaTrader) stopping(ctx context.Context) bool {
	select {
	case <-t.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (t *GalaTrader) safeCycle(ctx context.Context) (report CycleReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			t.setState(StateIdle)
		}
	}()
	return t.RunCycle(ctx)
}

// RunCycle executes one IDLE → PRICE_FETCHED → SIGNAL_COMPUTED →
// EXECUTING|SKIPPED → IDLE pass. An unavailable feed skips the cycle without
// an error; exchange failures are returned so the loop backs off.
func (t *GalaTrader) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	report := CycleReport{Cycle: t.session.NextCycle(), State: StateIdle, Trend: models.TrendStable}
	log := t.logger.WithField("cycle", report.Cycle)
	defer t.setState(StateIdle)

	snap, err := t.feed.FetchPrice(ctx)
	if err != nil {
		log.WithError(err).WithField("feed", t.feed.Name()).Warn("Cannot execute strategy without price data")
		t.metrics.RecordError("feed")
		t.metrics.RecordCycle("no_price", time.Since(start))
		report.State = StateSkipped
		t.journalCycle(report, fmt.Errorf("%w: %v", ErrFeedUnavailable, err))
		return report, nil
	}
	report.Snapshot = &snap
	t.metrics.RecordPrice(snap)

	t.mu.Lock()
	t.history.Record(snap.SpotPrice, snap.ObservedAt)
	trend := t.history.Trend()
	t.lastSnapshot = &snap
	t.lastTrend = trend
	t.state = StatePriceFetched
	t.mu.Unlock()
	report.Trend = trend

	bal, err := t.executor.Balance(ctx, snap)
	if err != nil {
		t.metrics.RecordCycle("error", time.Since(start))
		t.journalCycle(report, err)
		return report, fmt.Errorf("load balance: %w", err)
	}
	report.Balance = bal

	sig := t.engine.Generate(snap, trend, bal)
	report.Signal = &sig
	t.metrics.RecordSignal(sig)
	t.mu.Lock()
	t.lastSignal = &sig
	t.lastBalance = bal
	t.state = StateSignalComputed
	t.mu.Unlock()

	log.WithFields(logrus.Fields{
		"price":       snap.SpotPrice.String(),
		"change_24h":  nullString(snap.Change24h.Valid, snap.Change24h.Decimal.StringFixed(2)),
		"volume_24h":  nullString(snap.Volume24h.Valid, snap.Volume24h.Decimal.StringFixed(0)),
		"trend":       trend,
		"action":      sig.Action,
		"usd_amount":  sig.USDAmount.StringFixed(4),
		"confidence":  sig.Confidence,
		"strategy":    sig.Strategy,
		"rationale":   sig.Rationale,
		"base":        bal.Base.StringFixed(4),
		"quote":       bal.Quote.StringFixed(4),
		"total_value": bal.TotalValue.StringFixed(4),
		"trades":      t.session.TotalTrades(),
		"successful":  t.session.SuccessfulTrades(),
		"mode":        t.executor.Mode(),
	}).Info("Market analysis complete")

	if sig.Action == models.ActionWait || !t.cfg.TradingEnabled {
		if sig.Action == models.ActionWait {
			log.Info("No trading opportunity detected, waiting for a better setup")
		} else {
			log.Info("Trading disabled, signal not executed")
		}
		report.State = StateSkipped
		t.metrics.RecordBalance(t.executor.Mode(), bal)
		t.metrics.RecordCycle("skipped", time.Since(start))
		t.journalCycle(report, nil)
		return report, nil
	}

	t.setState(StateExecuting)
	report.State = StateExecuting
	result, execErr := t.executor.Execute(ctx, sig, snap)
	report.Result = &result
	t.metrics.RecordTrade(result)
	t.recordTrade(result)

	if after, err := t.executor.Balance(ctx, snap); err == nil {
		report.Balance = after
		t.mu.Lock()
		t.lastBalance = after
		t.mu.Unlock()
		t.metrics.RecordBalance(t.executor.Mode(), after)
	}

	outcome := "executed"
	if !result.Succeeded {
		outcome = "rejected"
	}
	if execErr != nil {
		outcome = "error"
	}
	t.metrics.RecordCycle(outcome, time.Since(start))
	t.journalCycle(report, execErr)
	return report, execErr
}

// Shutdown logs and journals the final portfolio. Call it after Done.
func (t *GalaTrader) Shutdown() {
	p := t.Portfolio()
	t.logger.WithFields(logrus.Fields{
		"base":              p.Balance.Base.StringFixed(4),
		"quote":             p.Balance.Quote.StringFixed(4),
		"total_value":       p.Balance.TotalValue.StringFixed(4),
		"total_trades":      p.TotalTrades,
		"successful_trades": p.SuccessfulTrades,
		"cycles":            p.Cycles,
	}).Info("Final portfolio state")

	if err := t.journal.Append(JournalEntry{
		Event:     EventShutdown,
		Timestamp: time.Now().UTC(),
		Portfolio: &p,
	}); err != nil {
		t.logger.WithError(err).Error("Failed to journal final portfolio")
	}
}

func (t *GalaTrader) Portfolio() models.Portfolio {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return models.Portfolio{
		Mode:             t.executor.Mode(),
		Balance:          t.lastBalance,
		TotalTrades:      t.session.TotalTrades(),
		SuccessfulTrades: t.session.SuccessfulTrades(),
		Cycles:           t.session.Cycles(),
		UpdatedAt:        time.Now().UTC(),
	}
}

func (t *GalaTrader) LastSignal() (models.TradeSignal, models.Trend, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastSignal == nil {
		return models.TradeSignal{}, t.lastTrend, false
	}
	return *t.lastSignal, t.lastTrend, true
}

func (t *GalaTrader) LastSnapshot() (models.PriceSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastSnapshot == nil {
		return models.PriceSnapshot{}, false
	}
	return *t.lastSnapshot, true
}

func (t *GalaTrader) PriceHistory() []models.PricePoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Points()
}

func (t *GalaTrader) RecentTrades() []models.TradeResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.TradeResult, len(t.trades))
	copy(out, t.trades)
	return out
}

func (t *GalaTrader) State() CycleState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *GalaTrader) setState(s CycleState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *GalaTrader) recordTrade(result models.TradeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, result)
	if len(t.trades) > recentTradesLimit {
		t.trades = t.trades[len(t.trades)-recentTradesLimit:]
	}
}

func (t *GalaTrader) journalCycle(report CycleReport, cycleErr error) {
	entry := JournalEntry{
		Event:     EventCycle,
		Cycle:     report.Cycle,
		Timestamp: time.Now().UTC(),
		State:     report.State,
		Snapshot:  report.Snapshot,
		Trend:     report.Trend,
		Signal:    report.Signal,
		Result:    report.Result,
	}
	if cycleErr != nil {
		entry.Error = cycleErr.Error()
	}
	if err := t.journal.Append(entry); err != nil {
		t.logger.WithError(err).Error("Failed to write journal entry")
	}
}

func nullString(valid bool, s string) string {
	if !valid {
		return "n/a"
	}
	return s
}

type nopRecorder struct{}

func (nopRecorder) RecordPrice(models.PriceSnapshot) {}
func (nopRecorder) RecordSignal(models.TradeSignal) {}
func (nopRecorder) RecordTrade(models.TradeResult) {}
func (nopRecorder) RecordBalance(models.Mode, models.Balance) {}
func (nopRecorder) RecordCycle(string, time.Duration) {}
func (nopRecorder) RecordError(string) {}
