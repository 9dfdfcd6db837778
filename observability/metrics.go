package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vitrine",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// MarketMetrics captures purchase flow and ledger activity.
type MarketMetrics struct {
	purchases    *prometheus.CounterVec
	latency      prometheus.Histogram
	volume       prometheus.Counter
	splits       *prometheus.CounterVec
	lockTimeouts *prometheus.CounterVec
	withdrawals  prometheus.Counter
	paidOut      prometheus.Counter
	outstanding  prometheus.Gauge
}

// Market returns the singleton metrics registry for the marketplace core.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "market",
				Name:      "purchases_total",
				Help:      "Count of purchase attempts segmented by outcome.",
			}, []string{"outcome"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "vitrine",
				Subsystem: "market",
				Name:      "purchase_duration_seconds",
				Help:      "Latency distribution for purchase settlement including lock waits.",
				Buckets:   prometheus.DefBuckets,
			}),
			volume: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "market",
				Name:      "volume_total",
				Help:      "Sum of settled sale prices in the smallest currency unit.",
			}),
			splits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "market",
				Name:      "split_amount_total",
				Help:      "Settled amounts segmented by recipient kind.",
			}, []string{"kind"}),
			lockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "market",
				Name:      "lock_timeouts_total",
				Help:      "Count of operations rejected because a lock could not be acquired in time.",
			}, []string{"operation"}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "ledger",
				Name:      "withdrawals_total",
				Help:      "Count of successful balance withdrawals.",
			}),
			paidOut: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vitrine",
				Subsystem: "ledger",
				Name:      "paid_out_total",
				Help:      "Sum of withdrawn balances in the smallest currency unit.",
			}),
			outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vitrine",
				Subsystem: "ledger",
				Name:      "outstanding",
				Help:      "Credited balances not yet withdrawn.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.purchases,
			marketRegistry.latency,
			marketRegistry.volume,
			marketRegistry.splits,
			marketRegistry.lockTimeouts,
			marketRegistry.withdrawals,
			marketRegistry.paidOut,
			marketRegistry.outstanding,
		)
	})
	return marketRegistry
}

// ObservePurchase records the outcome and latency of a purchase attempt.
// Outcome should be "success" or a stable error label.
func (m *MarketMetrics) ObservePurchase(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.purchases.WithLabelValues(outcome).Inc()
	m.latency.Observe(d.Seconds())
}

// RecordSale adds a settled sale to the volume and split counters.
func (m *MarketMetrics) RecordSale(price, platform, promoter, seller *big.Int) {
	if m == nil {
		return
	}
	m.volume.Add(bigToFloat(price))
	m.splits.WithLabelValues("platform").Add(bigToFloat(platform))
	m.splits.WithLabelValues("promoter").Add(bigToFloat(promoter))
	m.splits.WithLabelValues("seller").Add(bigToFloat(seller))
}

// RecordLockTimeout increments the lock timeout counter for operation.
func (m *MarketMetrics) RecordLockTimeout(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.lockTimeouts.WithLabelValues(operation).Inc()
}

// RecordWithdrawal records a drained balance.
func (m *MarketMetrics) RecordWithdrawal(amount *big.Int) {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
	m.paidOut.Add(bigToFloat(amount))
}

// SetOutstanding publishes the ledger's credited-but-unpaid total.
func (m *MarketMetrics) SetOutstanding(amount *big.Int) {
	if m == nil {
		return
	}
	m.outstanding.Set(bigToFloat(amount))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil || value.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return math.MaxFloat64
	}
	return f
}
