// Package metrics holds the Prometheus collectors for the textgen service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "textgen"

	LabelSource  = "source"
	LabelDevice  = "device"
	LabelOutcome = "outcome"
	LabelType    = "type"

	TokenTypePrompt    = "prompt"
	TokenTypeGenerated = "generated"

	OutcomeOK = "ok"

	// DeviceNone labels requests that failed before a device was chosen.
	DeviceNone = "none"
)

// Metrics holds all collectors, registered on one registry.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	TokensTotal     *prometheus.CounterVec
	RateLimited     prometheus.Counter

	registerer prometheus.Registerer
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of generation requests by outcome",
			},
			[]string{LabelSource, LabelDevice, LabelOutcome},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Generation request latency distribution",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{LabelSource, LabelDevice, LabelOutcome},
		),

		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total number of prompt and newly generated tokens for completed generations",
			},
			[]string{LabelDevice, LabelType},
		),

		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),

		registerer: reg,
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(source, device, outcome string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(source, device, outcome).Inc()
	m.RequestDuration.WithLabelValues(source, device, outcome).Observe(d.Seconds())
}

// ObserveTokens records the token counts of a completed generation.
func (m *Metrics) ObserveTokens(device string, prompt, generated int) {
	m.TokensTotal.WithLabelValues(device, TokenTypePrompt).Add(float64(prompt))
	m.TokensTotal.WithLabelValues(device, TokenTypeGenerated).Add(float64(generated))
}

// WatchQueue exports depth as the queue depth gauge for device.
func (m *Metrics) WatchQueue(device string, depth func() int) {
	promauto.With(m.registerer).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "queue_depth",
			Help:        "Jobs waiting for a device worker",
			ConstLabels: prometheus.Labels{LabelDevice: device},
		},
		func() float64 { return float64(depth()) },
	)
}
