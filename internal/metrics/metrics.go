// Package metrics holds the Prometheus collectors shared by both services.
// Every recorder is safe to call on a nil *Metrics so tests and tools can
// construct services without a registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "settlement"

// Outcome labels used across counters.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultReplayed  = "replayed"
	ResultUnchanged = "unchanged"
	ResultRejected  = "rejected"
	ResultRetried   = "retried"
	ResultFailed    = "failed"
)

type Metrics struct {
	paymentsCreated   *prometheus.CounterVec
	settlements       *prometheus.CounterVec
	callbacksSent     *prometheus.CounterVec
	callbacksReceived *prometheus.CounterVec
	outboxDispatch    *prometheus.CounterVec
	checkouts         *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer, service string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		paymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_created_total",
			Help:        "Payment creation requests by provider method and result.",
			ConstLabels: labels,
		}, []string{"method", "result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_settlements_total",
			Help:        "Payment settlements by terminal status and whether the row changed.",
			ConstLabels: labels,
		}, []string{"status", "result"}),
		callbacksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_callbacks_sent_total",
			Help:        "Synchronous order callbacks attempted after settlement.",
			ConstLabels: labels,
		}, []string{"result"}),
		callbacksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_callbacks_received_total",
			Help:        "Inbound payment callbacks by verification and apply result.",
			ConstLabels: labels,
		}, []string{"result"}),
		outboxDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_dispatch_total",
			Help:        "Outbox messages processed by the dispatcher.",
			ConstLabels: labels,
		}, []string{"event_type", "result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkouts_total",
			Help:        "Cart checkouts by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:        "HTTP request latency by route pattern and status code.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.paymentsCreated,
		m.settlements,
		m.callbacksSent,
		m.callbacksReceived,
		m.outboxDispatch,
		m.checkouts,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) PaymentCreated(method, result string) {
	if m == nil {
		return
	}
	m.paymentsCreated.WithLabelValues(method, result).Inc()
}

func (m *Metrics) Settled(status string, changed bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if !changed {
		result = ResultUnchanged
	}
	m.settlements.WithLabelValues(status, result).Inc()
}

func (m *Metrics) CallbackSent(err error) {
	if m == nil {
		return
	}
	m.callbacksSent.WithLabelValues(resultOf(err)).Inc()
}

func (m *Metrics) CallbackReceived(result string) {
	if m == nil {
		return
	}
	m.callbacksReceived.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxDispatched(eventType, result string) {
	if m == nil {
		return
	}
	m.outboxDispatch.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) Checkout(err error) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(resultOf(err)).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
