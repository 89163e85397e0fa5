// Package metrics exposes the engine's operational counters/gauges,
// grounded on the single-custom-registry + promauto pattern used in the
// example pack's own trading-metrics package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for this engine's metrics.
var Registry = prometheus.NewRegistry()

var (
	OrdersSubmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korbit_engine",
			Subsystem: "orders",
			Name:      "submitted_total",
			Help:      "Total number of orders submitted, by market and side",
		},
		[]string{"market", "side"},
	)

	OrdersFilled = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korbit_engine",
			Subsystem: "orders",
			Name:      "filled_total",
			Help:      "Total number of orders reaching FILLED",
		},
		[]string{"market"},
	)

	OrdersChased = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korbit_engine",
			Subsystem: "orders",
			Name:      "chase_replacements_total",
			Help:      "Total number of limit-chase replacement orders submitted",
		},
		[]string{"market"},
	)

	OrdersMarketFallback = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korbit_engine",
			Subsystem: "orders",
			Name:      "market_fallback_total",
			Help:      "Total number of chase exhaustions that fell back to a market order",
		},
		[]string{"market"},
	)

	RateLimitRejections = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "korbit_engine",
			Subsystem: "ratelimit",
			Name:      "throttled_total",
			Help:      "Total number of 429/418 responses observed, by group",
		},
		[]string{"group"},
	)

	ComplianceDegraded = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "korbit_engine",
			Subsystem: "compliance",
			Name:      "no_trade_degraded",
			Help:      "Whether the compliance adapter is currently in a no-trade degrade window (1) or not (0)",
		},
	)

	AvailableCapital = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "korbit_engine",
			Subsystem: "capital",
			Name:      "available_krw",
			Help:      "Deployable capital remaining in the ledger",
		},
	)

	OpenPositions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "korbit_engine",
			Subsystem: "positions",
			Name:      "open_count",
			Help:      "Number of currently open positions",
		},
	)

	CurrentDrawdown = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "korbit_engine",
			Subsystem: "risk",
			Name:      "drawdown_current",
			Help:      "Current drawdown from the high-water mark, as a fraction",
		},
	)

	ScanDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "korbit_engine",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Duration of one full market scan pass",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

// Init registers the standard Go runtime collectors alongside the
// engine's own metrics.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// RecordOrderSubmitted increments the submitted-orders counter.
func RecordOrderSubmitted(market, side string) {
	OrdersSubmitted.WithLabelValues(market, side).Inc()
}

// RecordOrderFilled increments the filled-orders counter.
func RecordOrderFilled(market string) {
	OrdersFilled.WithLabelValues(market).Inc()
}

// RecordChaseReplacement increments the limit-chase replacement counter.
func RecordChaseReplacement(market string) {
	OrdersChased.WithLabelValues(market).Inc()
}

// RecordMarketFallback increments the chase-exhaustion fallback counter.
func RecordMarketFallback(market string) {
	OrdersMarketFallback.WithLabelValues(market).Inc()
}

// RecordThrottle increments the rate-limit rejection counter for group.
func RecordThrottle(group string) {
	RateLimitRejections.WithLabelValues(group).Inc()
}

// SetComplianceDegraded reflects the compliance adapter's current
// no-trade state.
func SetComplianceDegraded(degraded bool) {
	v := 0.0
	if degraded {
		v = 1.0
	}
	ComplianceDegraded.Set(v)
}
