package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for reservation flows.
type BookingMetrics struct {
	operationsTotal *prometheus.CounterVec
	txRetriesTotal  *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Reservation operations by outcome",
		}, []string{"operation", "result"}),
		txRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "tx_retries_total",
			Help:      "Serialization-abort retries per operation",
		}, []string{"operation"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "operation_latency_seconds",
			Help:      "Latency of reservation operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.txRetriesTotal, m.latency)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, result string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}

func (m *BookingMetrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.txRetriesTotal.WithLabelValues(operation).Inc()
}

func (m *BookingMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(operation).Observe(seconds)
}
