package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the interview server.
// All Record methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive   prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	RejectionsTotal  *prometheus.CounterVec
	ExternalCalls    *prometheus.CounterVec
	ExternalDuration *prometheus.HistogramVec
	TurnsTotal       *prometheus.CounterVec
	FinalizedTotal   *prometheus.CounterVec
	ProctorEvents    *prometheus.CounterVec
	AudioBytesTotal  *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "interviewer"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of interview sessions currently connected",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Interview sessions by final state",
		}, []string{"state"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Connected duration of interview sessions",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 900},
		}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Connections refused by the gatekeeper",
		}, []string{"reason"}),
		ExternalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to speech and text generation services",
		}, []string{"service", "status"}),
		ExternalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of calls to speech and text generation services",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"service"}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Interviewer turns by how they were produced",
		}, []string{"kind"}),
		FinalizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalized_total",
			Help:      "Interview finalizations by trigger",
		}, []string{"trigger"}),
		ProctorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proctor_events_total",
			Help:      "Proctoring events received from clients",
		}, []string{"event"}),
		AudioBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes received from or sent to clients",
		}, []string{"direction"}),
	}

	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionDuration,
		m.RejectionsTotal,
		m.ExternalCalls,
		m.ExternalDuration,
		m.TurnsTotal,
		m.FinalizedTotal,
		m.ProctorEvents,
		m.AudioBytesTotal,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) RecordSessionEnd(state string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(state).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordExternalCall records one call to service; err decides the status label.
func (m *Metrics) RecordExternalCall(service string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ExternalCalls.WithLabelValues(service, status).Inc()
	m.ExternalDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *Metrics) RecordTurn(kind string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordFinalized(trigger string) {
	if m == nil {
		return
	}
	m.FinalizedTotal.WithLabelValues(trigger).Inc()
}

// proctorLabels bounds the event label; clients choose event names freely.
var proctorLabels = map[string]bool{
	"tab_switch":      true,
	"window_blur":     true,
	"fullscreen_exit": true,
	"copy_paste":      true,
	"face_missing":    true,
	"multiple_faces":  true,
}

// ProctorLabel maps a client event name onto the fixed label set, or "other".
func ProctorLabel(event string) string {
	name := strings.ToLower(strings.TrimSpace(event))
	name = strings.NewReplacer("-", "_", " ", "_").Replace(name)
	if proctorLabels[name] {
		return name
	}
	return "other"
}

func (m *Metrics) RecordProctorEvent(event string) {
	if m == nil {
		return
	}
	m.ProctorEvents.WithLabelValues(ProctorLabel(event)).Inc()
}

func (m *Metrics) RecordAudio(direction string, n int) {
	if m == nil {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}
