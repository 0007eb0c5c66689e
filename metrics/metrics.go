// Package metrics holds the Prometheus instrumentation shared by the engine.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// maxLabelLen is the maximum length for a metric label value
const maxLabelLen = 64

func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// Metrics manages the engine's counters.
type Metrics struct {
	dispatchOutcomes *prometheus.CounterVec
	quotaDecisions   *prometheus.CounterVec
	storageWrites    *prometheus.CounterVec
	storageFallbacks *prometheus.CounterVec
	jobPolls         *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance registered with the default registry.
func Get() *Metrics {
	once.Do(func() {
		instance = New(prometheus.DefaultRegisterer)
	})
	return instance
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assistant",
				Name:      "dispatch_outcomes_total",
				Help:      "Dispatched intents by intent name and outcome status",
			},
			[]string{"intent", "status"},
		),
		quotaDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assistant",
				Name:      "quota_decisions_total",
				Help:      "Quota check-and-consume decisions by feature and result",
			},
			[]string{"feature", "result"},
		),
		storageWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assistant",
				Name:      "storage_writes_total",
				Help:      "Artifact writes by backend and result",
			},
			[]string{"backend", "result"},
		),
		storageFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assistant",
				Name:      "storage_fallbacks_total",
				Help:      "Preferred backend failures that fell through to the guaranteed backend, by stage",
			},
			[]string{"stage"},
		),
		jobPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assistant",
				Name:      "job_polls_total",
				Help:      "Provider job poll observations by provider and result",
			},
			[]string{"provider", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.dispatchOutcomes,
			m.quotaDecisions,
			m.storageWrites,
			m.storageFallbacks,
			m.jobPolls,
		)
	}
	return m
}

// RecordDispatch records one dispatched intent outcome.
func (m *Metrics) RecordDispatch(intent, status string) {
	m.dispatchOutcomes.WithLabelValues(sanitizeLabel(intent), sanitizeLabel(status)).Inc()
}

// RecordQuota records a governor decision.
func (m *Metrics) RecordQuota(feature string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.quotaDecisions.WithLabelValues(sanitizeLabel(feature), result).Inc()
}

// RecordStorageWrite records an artifact write attempt.
func (m *Metrics) RecordStorageWrite(backend string, err error) {
	m.storageWrites.WithLabelValues(sanitizeLabel(backend), resultLabel(err)).Inc()
}

// RecordFallback records a preferred backend failure at the given stage.
func (m *Metrics) RecordFallback(stage string) {
	m.storageFallbacks.WithLabelValues(sanitizeLabel(stage)).Inc()
}

// RecordPoll records a single poll observation.
func (m *Metrics) RecordPoll(provider, result string) {
	m.jobPolls.WithLabelValues(sanitizeLabel(provider), sanitizeLabel(result)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
