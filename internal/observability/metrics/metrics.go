package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the booking engine.
type SchedulingMetrics struct {
	bookingsTotal        *prometheus.CounterVec
	conflictChecksTotal  *prometheus.CounterVec
	alternativesReturned prometheus.Histogram
	operationLatency     *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Total booking writes by operation and outcome",
		}, []string{"operation", "outcome"}),
		conflictChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "conflict_checks_total",
			Help:      "Total conflict detector runs by result",
		}, []string{"result"}),
		alternativesReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "alternatives_returned",
			Help:      "Number of alternative slots returned per search",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "operation_latency_seconds",
			Help:      "Latency of scheduling engine operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.conflictChecksTotal, m.alternativesReturned, m.operationLatency)
	return m
}

// ObserveBooking counts a create/reschedule/update/status write attempt.
func (m *SchedulingMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveConflictCheck(conflicted bool) {
	if m == nil {
		return
	}
	result := "clear"
	if conflicted {
		result = "conflict"
	}
	m.conflictChecksTotal.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveAlternatives(count int) {
	if m == nil {
		return
	}
	m.alternativesReturned.Observe(float64(count))
}

func (m *SchedulingMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}
