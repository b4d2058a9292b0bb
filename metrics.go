package credlock

import "sync/atomic"

// MetricID addresses one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRotationMismatch
	MetricLogout
	MetricGlobalLogout
	MetricSessionCreated
	MetricSessionInvalidated
	MetricPasswordChanged
	MetricPasswordSet
	MetricPasswordResetRequested
	MetricPasswordResetConfirmed
	MetricEmailChangeRequested
	MetricEmailChangeConfirmed
	MetricAccountRegistered
	MetricAccountVerified
	MetricDeletionScheduled
	MetricDeletionCancelled
	metricIDCount
)

const cacheLineSize = 64

// paddedCounter keeps each counter on its own cache line so hot counters do
// not false-share under concurrent load.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's in-process counter set. All methods are safe for
// concurrent use; a nil or disabled Metrics is a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	return s
}
