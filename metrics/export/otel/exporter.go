package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/internaldefs"
)

// Constructor errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goGuard.MetricsSnapshot
	AuditDropped() uint64
}

// reading is the state one collection pass shares across instruments.
type reading struct {
	snapshot goGuard.MetricsSnapshot
	dropped  uint64
	// cumulative bucket counts per histogram, computed once per pass
	buckets map[goGuard.MetricID][8]uint64
}

// binding ties one instrument to the value it reports.
type binding struct {
	instrument metric.Int64Observable
	value      func(*reading) uint64
}

// Exporter publishes engine counters as OpenTelemetry observable instruments.
// Each histogram becomes one cumulative gauge per bucket plus a count gauge.
type Exporter struct {
	source       metricsSource
	bindings     []binding
	registration metric.Registration
}

// NewExporter registers instruments on meter that read engine on every
// collection.
func NewExporter(meter metric.Meter, engine *goGuard.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource is NewExporter for any snapshot source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	counter := func(name, help string, value func(*reading) uint64) error {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("otel counter %s: %w", name, err)
		}
		e.bindings = append(e.bindings, binding{instrument: ins, value: value})
		return nil
	}
	gauge := func(name, help string, value func(*reading) uint64) error {
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("otel gauge %s: %w", name, err)
		}
		e.bindings = append(e.bindings, binding{instrument: ins, value: value})
		return nil
	}

	for _, def := range internaldefs.CounterDefs {
		id := def.ID
		if err := counter(def.Name, def.Help, func(r *reading) uint64 { return r.snapshot.Counters[id] }); err != nil {
			return nil, err
		}
	}
	last := len(internaldefs.HistogramBoundSuffix) - 1
	for _, def := range internaldefs.HistogramDefs {
		id := def.ID
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			if err := gauge(def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.",
				func(r *reading) uint64 { return r.buckets[id][i] }); err != nil {
				return nil, err
			}
		}
		if err := gauge(def.Name+"_count", "Histogram total sample count.",
			func(r *reading) uint64 { return r.buckets[id][last] }); err != nil {
			return nil, err
		}
	}
	if err := counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp,
		func(r *reading) uint64 { return r.dropped }); err != nil {
		return nil, err
	}

	observables := make([]metric.Observable, len(e.bindings))
	for i, b := range e.bindings {
		observables[i] = b.instrument
	}
	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	r := &reading{
		snapshot: e.source.MetricsSnapshot(),
		dropped:  e.source.AuditDropped(),
		buckets:  make(map[goGuard.MetricID][8]uint64, len(internaldefs.HistogramDefs)),
	}
	for _, def := range internaldefs.HistogramDefs {
		r.buckets[def.ID] = internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(r.snapshot.Histograms[def.ID]))
	}
	for _, b := range e.bindings {
		o.ObserveInt64(b.instrument, int64(b.value(r)))
	}
	return nil
}

// Close unregisters the collection callback. Instruments stay registered on
// the meter but report nothing afterwards.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
