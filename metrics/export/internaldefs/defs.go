package internaldefs

import (
	"strconv"

	goOTP "github.com/MrEthical07/goOTP"
)

// Namespace prefixes every exported series.
const Namespace = "gootp"

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = Namespace + "_audit_dropped_total"

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

var counterHelp = map[goOTP.MetricID]string{
	goOTP.MetricOTPRequested:           "One-time codes issued.",
	goOTP.MetricOTPRateLimited:         "Code requests refused by cooldown or hourly cap.",
	goOTP.MetricOTPDeliveryFailure:     "Issued codes the sender failed to deliver.",
	goOTP.MetricOTPVerifySuccess:       "Successful code verifications.",
	goOTP.MetricOTPVerifyFailure:       "Failed code verifications.",
	goOTP.MetricOTPAttemptsExceeded:    "Codes locked after reaching the attempt cap.",
	goOTP.MetricLoginSuccess:           "Completed logins.",
	goOTP.MetricLoginRejected:          "Logins refused for a bad code or inactive account.",
	goOTP.MetricSessionCreated:         "Sessions opened.",
	goOTP.MetricSessionInvalidated:     "Sessions revoked.",
	goOTP.MetricRefreshSuccess:         "Successful refresh rotations.",
	goOTP.MetricRefreshFailure:         "Refresh attempts that returned no tokens.",
	goOTP.MetricRefreshReuseDetected:   "Rotated refresh tokens presented again.",
	goOTP.MetricLogout:                 "Single-session logouts.",
	goOTP.MetricLogoutAll:              "Logout-all operations.",
	goOTP.MetricCleanupOTPDeleted:      "Codes removed by cleanup.",
	goOTP.MetricCleanupSessionsDeleted: "Sessions removed by cleanup.",
}

// CounterDefs lists every counter in MetricID order.
var CounterDefs = buildCounterDefs()

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goOTP.MetricValidateLatency, Name: Namespace + "_validate_latency_seconds", Help: "Session validation latency."},
}

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = len(goOTP.HistogramBounds) + 1

// UpperBoundsSeconds are the finite bucket bounds converted to seconds.
var UpperBoundsSeconds = func() []float64 {
	out := make([]float64, len(goOTP.HistogramBounds))
	for i, ms := range goOTP.HistogramBounds {
		out[i] = ms / 1000
	}
	return out
}()

// BoundLabels are the le label values, ending in +Inf.
var BoundLabels = func() []string {
	out := make([]string, 0, BucketCount)
	for _, s := range UpperBoundsSeconds {
		out = append(out, strconv.FormatFloat(s, 'g', -1, 64))
	}
	return append(out, "+Inf")
}()

func buildCounterDefs() []CounterDef {
	defs := make([]CounterDef, 0, len(counterHelp))
	for _, id := range goOTP.MetricIDs() {
		help, ok := counterHelp[id]
		if !ok {
			continue
		}
		defs = append(defs, CounterDef{ID: id, Name: Namespace + "_" + id.String() + "_total", Help: help})
	}
	return defs
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the running totals both
// exposition formats expect.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
