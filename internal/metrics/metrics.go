package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the booking conversation.
type ConversationMetrics struct {
	inboundTotal     *prometheus.CounterVec
	outboundTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	handleLatency    *prometheus.HistogramVec
	conflictsTotal   prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbook",
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Total inbound customer messages",
		}, []string{"source", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbook",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound replies",
		}, []string{"status"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbook",
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Handled messages by step before and after",
		}, []string{"from", "to", "success"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbook",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Bookings created per tenant",
		}, []string{"tenant_id"}),
		handleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatbook",
			Subsystem: "conversation",
			Name:      "handle_latency_seconds",
			Help:      "Latency of processing one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatbook",
			Subsystem: "conversation",
			Name:      "version_conflicts_total",
			Help:      "Optimistic context save conflicts",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.transitionsTotal, m.bookingsTotal, m.handleLatency, m.conflictsTotal)
	return m
}

func (m *ConversationMetrics) ObserveInbound(source, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(source, status).Inc()
}

func (m *ConversationMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveTransition(from, to string, success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.transitionsTotal.WithLabelValues(from, to, label).Inc()
}

func (m *ConversationMetrics) ObserveBooking(tenantID string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(tenantID).Inc()
}

func (m *ConversationMetrics) ObserveLatency(step string, seconds float64) {
	if m == nil {
		return
	}
	m.handleLatency.WithLabelValues(step).Observe(seconds)
}

func (m *ConversationMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}
