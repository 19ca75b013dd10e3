package janitor

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "qaspar"

type metrics struct {
	sweeps       prometheus.Counter
	removed      prometheus.Counter
	removedBytes prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "janitor",
			Name:      "sweeps_total",
			Help:      "Retention sweeps over the archive directory.",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "janitor",
			Name:      "removed_segments_total",
			Help:      "Archived segments deleted by retention.",
		}),
		removedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "janitor",
			Name:      "removed_bytes_total",
			Help:      "Bytes reclaimed by retention.",
		}),
	}

	reg.MustRegister(m.sweeps, m.removed, m.removedBytes)

	return m
}
