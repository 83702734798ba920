package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/geoffp/tradeproxy/internal/relay"
)

// Metrics counts signals and dispatched commands. It is a relay.Sink.
type Metrics struct {
	SignalsReceived  *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeproxy_signals_received_total",
				Help: "Signals accepted for relaying",
			},
			[]string{"action"},
		),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeproxy_dispatches_total",
				Help: "Deal commands sent to the remote API by result",
			},
			[]string{"deal_action", "bot_role", "result"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeproxy_dispatch_duration_seconds",
				Help:    "Time to send one deal command and read the response",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"deal_action"},
		),
	}
	reg.MustRegister(m.SignalsReceived, m.Dispatches, m.DispatchDuration)
	return m
}

// ObserveSignal counts one accepted signal.
func (m *Metrics) ObserveSignal(action string) {
	m.SignalsReceived.WithLabelValues(action).Inc()
}

// RecordOutcome implements relay.Sink.
func (m *Metrics) RecordOutcome(_ context.Context, rec relay.Record) {
	result := "failure"
	if rec.Success {
		result = "success"
	}
	m.Dispatches.WithLabelValues(rec.DealAction, rec.BotRole, result).Inc()
	m.DispatchDuration.WithLabelValues(rec.DealAction).Observe(rec.Duration().Seconds())
}
