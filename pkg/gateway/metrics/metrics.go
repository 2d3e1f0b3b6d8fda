// Package metrics holds the Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Call metrics
	CallsActive   prometheus.Gauge
	CallsTotal    *prometheus.CounterVec
	CallDuration  prometheus.Histogram
	BargeInsTotal prometheus.Counter

	// Reasoning metrics
	ReasoningTotal    *prometheus.CounterVec
	ReasoningDuration prometheus.Histogram

	// Audio metrics
	AudioBytesTotal *prometheus.CounterVec
	FramesOutTotal  prometheus.Counter
}

// New creates a Metrics instance with all collectors registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicegate"
	}

	registry := prometheus.NewRegistry()

	callsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calls_active",
		Help:      "Number of calls currently connected",
	})

	callsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_total",
		Help:      "Total number of calls handled",
	}, []string{"status"})

	callDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Call duration in seconds",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	bargeInsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "barge_ins_total",
		Help:      "Total number of caller barge-ins during agent speech",
	})

	reasoningTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reasoning_total",
		Help:      "Total reasoning calls by outcome",
	}, []string{"outcome"})

	reasoningDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reasoning_duration_seconds",
		Help:      "Reasoning call latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15},
	})

	audioBytesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_bytes_total",
		Help:      "Total audio bytes processed",
	}, []string{"direction"})

	framesOutTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_out_total",
		Help:      "Total outbound media frames written to the transport",
	})

	registry.MustRegister(
		callsActive,
		callsTotal,
		callDuration,
		bargeInsTotal,
		reasoningTotal,
		reasoningDuration,
		audioBytesTotal,
		framesOutTotal,
	)

	return &Metrics{
		registry:          registry,
		CallsActive:       callsActive,
		CallsTotal:        callsTotal,
		CallDuration:      callDuration,
		BargeInsTotal:     bargeInsTotal,
		ReasoningTotal:    reasoningTotal,
		ReasoningDuration: reasoningDuration,
		AudioBytesTotal:   audioBytesTotal,
		FramesOutTotal:    framesOutTotal,
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCallStart records a new call becoming active.
func (m *Metrics) RecordCallStart() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

// RecordCallEnd records a call ending with the given status.
func (m *Metrics) RecordCallEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(status).Inc()
	m.CallDuration.Observe(duration.Seconds())
}

// RecordBargeIn records one caller interruption.
func (m *Metrics) RecordBargeIn() {
	if m == nil {
		return
	}
	m.BargeInsTotal.Inc()
}

// RecordReasoning records one reasoning call by outcome ("ok", "repaired",
// "fallback").
func (m *Metrics) RecordReasoning(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ReasoningTotal.WithLabelValues(outcome).Inc()
	m.ReasoningDuration.Observe(duration.Seconds())
}

// RecordAudio records audio bytes in the given direction ("in" or "out").
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrameOut records one outbound media frame.
func (m *Metrics) RecordFrameOut() {
	if m == nil {
		return
	}
	m.FramesOutTotal.Inc()
}
