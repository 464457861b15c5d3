package otel

import (
	"context"
	"sync"
	"testing"

	goOTP "github.com/MrEthical07/goOTP"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goOTP.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goOTP.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goOTP.MetricsSnapshot{
		Counters:   make(map[goOTP.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goOTP.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goOTP.MetricsSnapshot{
			Counters: map[goOTP.MetricID]uint64{
				goOTP.MetricLoginSuccess: 3,
			},
			Histograms: map[goOTP.MetricID][]uint64{
				goOTP.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("gootp-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	login, ok := findMetric(rm, "gootp_login_success_total")
	if !ok {
		t.Fatal("login counter not collected")
	}
	sum, ok := login.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected login counter data %+v", login.Data)
	}

	buckets, ok := findMetric(rm, "gootp_validate_latency_seconds_bucket")
	if !ok {
		t.Fatal("bucket gauge not collected")
	}
	gauge, ok := buckets.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 8 {
		t.Fatalf("unexpected bucket data %+v", buckets.Data)
	}
	for _, dp := range gauge.DataPoints {
		if le, _ := dp.Attributes.Value(attribute.Key("le")); le.AsString() == "+Inf" && dp.Value != 8 {
			t.Fatalf("+Inf bucket = %d, want 8", dp.Value)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("gootp-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goOTP.MetricsSnapshot{
			Counters:   map[goOTP.MetricID]uint64{goOTP.MetricLoginSuccess: 1},
			Histograms: map[goOTP.MetricID][]uint64{},
		},
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("gootp-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goOTP.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
