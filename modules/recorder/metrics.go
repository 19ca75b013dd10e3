package recorder

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "qaspar"

type metrics struct {
	sessionsStarted prometheus.Counter
	sessionFailures *prometheus.CounterVec
	segmentsSealed  prometheus.Counter
	archiveBytes    prometheus.Counter
	playbackDropped prometheus.Counter
	health          *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "recorder",
			Name:      "sessions_started_total",
			Help:      "Capture sessions opened, including reconnects.",
		}),
		sessionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "recorder",
			Name:      "session_failures_total",
			Help:      "Capture sessions ended by a failure, by reason.",
		}, []string{"reason"}),
		segmentsSealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "recorder",
			Name:      "segments_sealed_total",
			Help:      "Archive segments sealed and renamed into place.",
		}),
		archiveBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "recorder",
			Name:      "archive_bytes_total",
			Help:      "Bytes appended to archive segments.",
		}),
		playbackDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "recorder",
			Name:      "playback_dropped_chunks_total",
			Help:      "Chunks dropped rather than blocking capture on a slow playback sink.",
		}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "recorder",
			Name:      "session_health",
			Help:      "Current capture session health; 1 on the active state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.sessionsStarted,
		m.sessionFailures,
		m.segmentsSealed,
		m.archiveBytes,
		m.playbackDropped,
		m.health,
	)

	return m
}

func (m *metrics) setHealth(h HealthState) {
	for _, s := range healthStates {
		v := 0.0
		if s == h {
			v = 1
		}
		m.health.WithLabelValues(string(s)).Set(v)
	}
}
