package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	notifyFailures    *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
	slotCacheRequests *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chairbook",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking engine operations by outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chairbook",
			Subsystem: "booking",
			Name:      "operation_latency_seconds",
			Help:      "Latency of booking engine operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chairbook",
			Subsystem: "booking",
			Name:      "transient_retries_total",
			Help:      "Retries of provider transactions after transient storage failures",
		}, []string{"operation"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chairbook",
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Invalidation notifications that failed",
		}, []string{"kind"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chairbook",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Lifecycle events that could not be published",
		}, []string{"event_type"}),
		slotCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chairbook",
			Subsystem: "slot_cache",
			Name:      "requests_total",
			Help:      "Slot cache lookups by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.retriesTotal, m.notifyFailures, m.publishFailures, m.slotCacheRequests)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
}

func (m *BookingMetrics) ObserveNotifyFailure(kind string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObservePublishFailure(eventType string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(eventType).Inc()
}

func (m *BookingMetrics) ObserveSlotCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.slotCacheRequests.WithLabelValues(result).Inc()
}
