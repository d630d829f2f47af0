package metrics

import (
	"net/http"
	"time"

	"github.com/gregtusar/gswap-trader/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gswap_trader"

// Recorder exports trading loop telemetry on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	spotPrice     *prometheus.GaugeVec
	change24h     *prometheus.GaugeVec
	volume24h     *prometheus.GaugeVec
	signals       *prometheus.CounterVec
	trades        *prometheus.CounterVec
	slippage      prometheus.Histogram
	balance       *prometheus.GaugeVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	errorsTotal   *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		spotPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spot_price",
			Help:      "Last observed spot price",
		}, []string{"symbol", "source"}),
		change24h: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "change_24h_percent",
			Help:      "Last observed 24h price change in percent",
		}, []string{"symbol"}),
		volume24h: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volume_24h",
			Help:      "Last observed 24h volume in quote units",
		}, []string{"symbol"}),
		signals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals generated by action and strategy",
		}, []string{"action", "strategy"}),
		trades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Executed trades by action, mode and outcome",
		}, []string{"action", "mode", "outcome"}),
		slippage: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_slippage_ratio",
			Help:      "Estimated slippage applied to trades",
			Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.03, 0.05},
		}),
		balance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance",
			Help:      "Portfolio holdings by mode and asset",
		}, []string{"mode", "asset"}),
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Trading cycles by outcome",
		}, []string{"outcome"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of trading cycles",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind",
		}, []string{"kind"}),
	}
}

func (r *Recorder) RecordPrice(snap models.PriceSnapshot) {
	r.spotPrice.WithLabelValues(snap.Symbol, snap.Source).Set(snap.SpotPrice.InexactFloat64())
	if snap.Change24h.Valid {
		r.change24h.WithLabelValues(snap.Symbol).Set(snap.Change24h.Decimal.InexactFloat64())
	}
	if snap.Volume24h.Valid {
		r.volume24h.WithLabelValues(snap.Symbol).Set(snap.Volume24h.Decimal.InexactFloat64())
	}
}

func (r *Recorder) RecordSignal(sig models.TradeSignal) {
	r.signals.WithLabelValues(string(sig.Action), sig.Strategy).Inc()
}

func (r *Recorder) RecordTrade(result models.TradeResult) {
	outcome := "succeeded"
	if !result.Succeeded {
		outcome = "failed"
		if result.Cause != "" {
			outcome = result.Cause
		}
	}
	r.trades.WithLabelValues(string(result.Action), string(result.Mode), outcome).Inc()
	if result.Succeeded {
		r.slippage.Observe(result.Slippage.InexactFloat64())
	}
}

func (r *Recorder) RecordBalance(mode models.Mode, bal models.Balance) {
	r.balance.WithLabelValues(string(mode), "base").Set(bal.Base.InexactFloat64())
	r.balance.WithLabelValues(string(mode), "quote").Set(bal.Quote.InexactFloat64())
	r.balance.WithLabelValues(string(mode), "total_value").Set(bal.TotalValue.InexactFloat64())
}

func (r *Recorder) RecordCycle(outcome string, d time.Duration) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
