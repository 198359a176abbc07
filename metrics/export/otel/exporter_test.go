package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goGuard "github.com/MrEthical07/goGuard"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goGuard.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goGuard.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goGuard.MetricsSnapshot{
		Counters:   make(map[goGuard.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goGuard.MetricID][]uint64, len(f.snapshot.Histograms)),
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

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterObservesSnapshot(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters: map[goGuard.MetricID]uint64{
				goGuard.MetricLoginSuccess:     3,
				goGuard.MetricIncidentNotified: 2,
			},
			Histograms: map[goGuard.MetricID][]uint64{
				goGuard.MetricAuthenticateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(provider.Meter("goguard-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	want := map[string]int64{
		"goguard_login_success_total":                          3,
		"goguard_incident_notified_total":                      2,
		"goguard_login_failure_total":                          0,
		"goguard_audit_dropped_total":                          1,
		"goguard_authenticate_latency_seconds_bucket_le_0_005": 1,
		"goguard_authenticate_latency_seconds_bucket_le_0_1":   5,
		"goguard_authenticate_latency_seconds_bucket_le_inf":   8,
		"goguard_authenticate_latency_seconds_count":           8,
	}
	for name, v := range want {
		if got[name] != v {
			t.Fatalf("%s: expected %d, got %d (present=%v)", name, v, got[name], hasKey(got, name))
		}
	}
}

func hasKey(m map[string]int64, k string) bool {
	_, ok := m[k]
	return ok
}

func TestCloseStopsObservation(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{snapshot: goGuard.MetricsSnapshot{
		Counters: map[goGuard.MetricID]uint64{goGuard.MetricLoginSuccess: 1},
	}}
	exp, err := NewExporterFromSource(provider.Meter("goguard-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := collect(t, reader); len(got) != 0 {
		t.Fatalf("expected no observations after Close, got %v", got)
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("goguard-test")

	if _, err := NewExporterFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters:   map[goGuard.MetricID]uint64{goGuard.MetricLoginSuccess: 1},
			Histograms: map[goGuard.MetricID][]uint64{goGuard.MetricAuthenticateLatency: {1}},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("goguard-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goGuard.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
