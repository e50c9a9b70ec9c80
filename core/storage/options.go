package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a BufferPool at construction time.
type Option func(*BufferPool)

// WithLogger attaches a zap logger. The default is zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(bp *BufferPool) { bp.logger = logger }
}

// WithMetrics attaches a pre-built Metrics set, e.g. one registered into an
// application-wide prometheus.Registry. The default builds an unregistered
// Metrics set.
func WithMetrics(m *Metrics) Option {
	return func(bp *BufferPool) { bp.metrics = m }
}

// WithRegistry builds and registers a Metrics set into reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(bp *BufferPool) { bp.metrics = NewMetrics(reg) }
}

// WithMaxSlots overrides the default page-id space size (how large the
// backing file is allowed to grow). Default is 1<<16 slots.
func WithMaxSlots(n uint32) Option {
	return func(bp *BufferPool) { bp.maxSlots = n }
}
