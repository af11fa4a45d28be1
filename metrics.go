package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system. Exporters under metrics/export/ read these via
// [Engine.MetricsSnapshot].
type MetricID uint16

const (
	// MetricSignupSuccess counts identities created.
	MetricSignupSuccess MetricID = iota
	// MetricSignupValidationFailure counts signups rejected by email or
	// password policy validation.
	MetricSignupValidationFailure
	// MetricSignupDuplicate counts signups rejected for an existing email.
	MetricSignupDuplicate
	// MetricLoginSuccess counts logins that issued a session token.
	MetricLoginSuccess
	// MetricLoginFailure counts credential mismatches.
	MetricLoginFailure
	// MetricLoginUnverified counts logins denied pending email verification.
	MetricLoginUnverified
	// MetricRateLimited counts flow requests denied by the rate limiter.
	MetricRateLimited
	// MetricRateLimitFailOpen counts limiter checks allowed because the
	// attempt store was unreachable.
	MetricRateLimitFailOpen
	// MetricLockoutTriggered counts identifiers moved into lockout.
	MetricLockoutTriggered
	// MetricVerificationRequested counts verification tokens minted.
	MetricVerificationRequested
	// MetricVerificationSuccess counts emails verified.
	MetricVerificationSuccess
	// MetricVerificationFailure counts invalid or expired verification tokens.
	MetricVerificationFailure
	// MetricResetRequested counts password reset tokens minted.
	MetricResetRequested
	// MetricResetSuccess counts completed password resets.
	MetricResetSuccess
	// MetricResetFailure counts rejected password reset confirmations.
	MetricResetFailure
	// MetricEnumerationProbe counts uniform responses served for unknown
	// accounts on enumeration-sensitive flows.
	MetricEnumerationProbe
	// MetricSessionIssued counts session tokens signed.
	MetricSessionIssued
	// MetricSessionRejected counts session tokens that failed verification.
	MetricSessionRejected
	// MetricStoreUnavailable counts credential operations failed closed on
	// storage errors.
	MetricStoreUnavailable
	// MetricEmailEnqueued counts email side effects handed to the dispatcher.
	MetricEmailEnqueued
	// MetricSweepRemoved counts attempt windows removed by housekeeping.
	MetricSweepRemoved
	// MetricHashLatency is the password hashing latency histogram.
	MetricHashLatency

	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each hot counter on its own cache line.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional latency histogram. When
// disabled, every operation is a no-op; a nil *Metrics is also valid.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by the given
// [MetricsConfig].
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether metric collection is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add increments a counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a latency sample. Only MetricHashLatency carries a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricHashLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a deep copy of all counters and histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricHashLatency].buckets[i])
		}
		s.Histograms[MetricHashLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
