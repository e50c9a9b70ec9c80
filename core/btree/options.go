package btree

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a BPTree at construction time.
type Option func(*BPTree)

// WithLogger attaches a zap logger. The default is zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(t *BPTree) { t.logger = logger }
}

// WithMetrics attaches a pre-built Metrics set.
func WithMetrics(m *Metrics) Option {
	return func(t *BPTree) { t.metrics = m }
}

// WithRegistry builds and registers a Metrics set into reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(t *BPTree) { t.metrics = NewMetrics(reg) }
}

// WithFrameCount overrides the buffer pool's frame count backing this
// tree. Default is 64.
func WithFrameCount(n int) Option {
	return func(t *BPTree) { t.frameCount = n }
}

// WithMaxSlots overrides the page-id space size. Default is 1<<20 slots.
func WithMaxSlots(n uint32) Option {
	return func(t *BPTree) { t.maxSlots = n }
}
