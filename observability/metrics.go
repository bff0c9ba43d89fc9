package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	walletdMetricsOnce sync.Once
	walletdRegistry    *WalletdMetrics
)

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// HTTP returns the lazily-initialised registry recording API traffic.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "wallet",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the rate limiter.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records one completed request.
func (m *httpMetrics) Observe(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	route = labelOr(route, "unmatched")
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(d.Seconds())
}

// RecordThrottle increments the throttled request counter.
func (m *httpMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOr(route, "unmatched")).Inc()
}

// WalletdMetrics wraps collectors tracking ledger health.
type WalletdMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	conflicts   *prometheus.CounterVec
	accrued     prometheus.Counter
	spinPrizes  *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	subscribers prometheus.Gauge
}

// Walletd exposes the metrics registry for walletd.
func Walletd() *WalletdMetrics {
	walletdMetricsOnce.Do(func() {
		walletdRegistry = &WalletdMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome class.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including retries.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "version_conflicts_total",
				Help:      "Optimistic concurrency conflicts that forced a retry.",
			}, []string{"op"}),
			accrued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "ledger",
				Name:      "accrual_credited_total",
				Help:      "Investment income credited by daily accrual, in currency units.",
			}),
			spinPrizes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "rewards",
				Name:      "spin_prizes_total",
				Help:      "Spin outcomes segmented by prize tier.",
			}, []string{"prize"}),
			decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "wallet",
				Subsystem: "moderation",
				Name:      "decisions_total",
				Help:      "Admin moderation decisions segmented by transaction kind and verdict.",
			}, []string{"kind", "decision"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "wallet",
				Subsystem: "stream",
				Name:      "subscribers",
				Help:      "Live account stream connections.",
			}),
		}
		prometheus.MustRegister(
			walletdRegistry.operations,
			walletdRegistry.latency,
			walletdRegistry.conflicts,
			walletdRegistry.accrued,
			walletdRegistry.spinPrizes,
			walletdRegistry.decisions,
			walletdRegistry.subscribers,
		)
	})
	return walletdRegistry
}

// ObserveOperation records the outcome and latency of one ledger operation.
func (m *WalletdMetrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	op = labelOr(op, "unknown")
	m.operations.WithLabelValues(op, labelOr(outcome, "ok")).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordConflict increments the retry counter for op.
func (m *WalletdMetrics) RecordConflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(labelOr(op, "unknown")).Inc()
}

// RecordAccrual adds credited income to the accrual counter.
func (m *WalletdMetrics) RecordAccrual(credited decimal.Decimal) {
	if m == nil || !credited.IsPositive() {
		return
	}
	m.accrued.Add(credited.InexactFloat64())
}

// RecordSpin counts a spin outcome.
func (m *WalletdMetrics) RecordSpin(prize decimal.Decimal) {
	if m == nil {
		return
	}
	m.spinPrizes.WithLabelValues(prize.String()).Inc()
}

// RecordDecision counts an admin moderation decision.
func (m *WalletdMetrics) RecordDecision(kind, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(labelOr(kind, "unknown"), labelOr(decision, "unknown")).Inc()
}

// SetSubscribers updates the live stream gauge.
func (m *WalletdMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func labelOr(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
