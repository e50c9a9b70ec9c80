package storage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the buffer pool's in-process instrumentation. It never
// starts an HTTP server: callers that want a /metrics endpoint register
// these into their own promhttp handler.
type Metrics struct {
	PageHits             prometheus.Counter
	PageMisses           prometheus.Counter
	Evictions            prometheus.Counter
	DiskReads            prometheus.Counter
	DiskWrites           prometheus.Counter
	DiskErrors           prometheus.Counter
	BufferPoolFullErrors prometheus.Counter
	FramesInUse          prometheus.Gauge
}

// NewMetrics builds a Metrics set and, if reg is non-nil, registers every
// collector into it. A nil registry is useful for tests that only want to
// read counters directly.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PageHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "buffer_pool", Name: "page_hits_total",
			Help: "Frame acquisitions that found the page already resident.",
		}),
		PageMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "buffer_pool", Name: "page_misses_total",
			Help: "Frame acquisitions that required a disk read.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "buffer_pool", Name: "evictions_total",
			Help: "Frames reclaimed from a resident page to serve a miss.",
		}),
		DiskReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "buffer_pool", Name: "disk_reads_total",
			Help: "Pages read from the backing file.",
		}),
		DiskWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "buffer_pool", Name: "disk_writes_total",
			Help: "Pages written back to the backing file on write-guard release.",
		}),
		DiskErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "buffer_pool", Name: "disk_errors_total",
			Help: "I/O errors encountered while reading or writing pages.",
		}),
		BufferPoolFullErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbordb", Subsystem: "buffer_pool", Name: "full_errors_total",
			Help: "Guard calls that failed because every frame was pinned.",
		}),
		FramesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbordb", Subsystem: "buffer_pool", Name: "frames_in_use",
			Help: "Number of frames currently mapped to a page.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PageHits, m.PageMisses, m.Evictions, m.DiskReads,
			m.DiskWrites, m.DiskErrors, m.BufferPoolFullErrors, m.FramesInUse)
	}
	return m
}
