package goOTP

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an Engine counter.
type MetricID uint16

const (
	MetricOTPRequested MetricID = iota
	MetricOTPRateLimited
	MetricOTPDeliveryFailure
	MetricOTPVerifySuccess
	MetricOTPVerifyFailure
	MetricOTPAttemptsExceeded
	MetricLoginSuccess
	MetricLoginRejected
	MetricSessionCreated
	MetricSessionInvalidated
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLogout
	MetricLogoutAll
	MetricCleanupOTPDeleted
	MetricCleanupSessionsDeleted
	// MetricValidateLatency is the only metric with a latency histogram.
	MetricValidateLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricOTPRequested:           "otp_requested",
	MetricOTPRateLimited:         "otp_rate_limited",
	MetricOTPDeliveryFailure:     "otp_delivery_failure",
	MetricOTPVerifySuccess:       "otp_verify_success",
	MetricOTPVerifyFailure:       "otp_verify_failure",
	MetricOTPAttemptsExceeded:    "otp_attempts_exceeded",
	MetricLoginSuccess:           "login_success",
	MetricLoginRejected:          "login_rejected",
	MetricSessionCreated:         "session_created",
	MetricSessionInvalidated:     "session_invalidated",
	MetricRefreshSuccess:         "refresh_success",
	MetricRefreshFailure:         "refresh_failure",
	MetricRefreshReuseDetected:   "refresh_reuse_detected",
	MetricLogout:                 "logout",
	MetricLogoutAll:              "logout_all",
	MetricCleanupOTPDeleted:      "cleanup_otp_deleted",
	MetricCleanupSessionsDeleted: "cleanup_sessions_deleted",
	MetricValidateLatency:        "validate_latency",
}

// String returns the snake_case exporter name of id.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs returns every defined metric in declaration order.
func MetricIDs() []MetricID {
	out := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		out = append(out, id)
	}
	return out
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// HistogramBounds are the inclusive upper bounds, in milliseconds, of the
// latency buckets. The final bucket is unbounded.
var HistogramBounds = [histBucketCount - 1]float64{5, 10, 25, 50, 100, 250, 500}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the latency histogram of id. Only
// MetricValidateLatency carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Disabled metrics yield empty maps.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	ms := float64(d.Milliseconds())
	for i, bound := range HistogramBounds {
		if ms <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
