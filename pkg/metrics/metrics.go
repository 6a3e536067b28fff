// Package metrics implements the tag-keyed metrics emitter (C10):
// timers (histograms), counters, and distribution summaries keyed by
// the (operation, operation-type, result, hit, attempt, server_group,
// zone) taxonomy of spec §6.3, using three sync.Map handle caches so
// repeated tag combinations reuse the same OTel instrument.
//
// Grounded directly on jonwraymond-toolops/observe/metrics.go's
// meter.Int64Counter/Float64Histogram construction pattern.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Tags is the attribute set a single metric emission carries.
type Tags struct {
	Operation     string
	OperationType string // READ, WRITE, BULK_READ, CONSISTENT_READ
	Result        string // SUCCESS, ERROR, or a fault kind such as NULL_CLIENT, THROTTLED, INVALID_TTL
	Hit           bool
	Attempt       string // "initial", "second", "third_up"
	ServerGroup   string
	Zone          string
}

func (t Tags) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("operation", t.Operation),
	}
	if t.OperationType != "" {
		attrs = append(attrs, attribute.String("operation_type", t.OperationType))
	}
	if t.Result != "" {
		attrs = append(attrs, attribute.String("result", t.Result))
	}
	attrs = append(attrs, attribute.Bool("hit", t.Hit))
	if t.Attempt != "" {
		attrs = append(attrs, attribute.String("attempt", t.Attempt))
	}
	if t.ServerGroup != "" {
		attrs = append(attrs, attribute.String("server_group", t.ServerGroup))
	}
	if t.Zone != "" {
		attrs = append(attrs, attribute.String("zone", t.Zone))
	}
	return attrs
}

// Emitter records timers, counters, and distribution summaries. Its
// three metric-handle caches are sync.Maps written at most once per
// metric name via LoadOrStore, matching the concurrency model of
// spec §5/§7.
type Emitter struct {
	meter metric.Meter

	timers      sync.Map // map[string]metric.Float64Histogram
	counters    sync.Map // map[string]metric.Int64Counter
	summaries   sync.Map // map[string]metric.Float64Histogram
}

// New constructs an Emitter backed by meter.
func New(meter metric.Meter) *Emitter {
	return &Emitter{meter: meter}
}

// RecordTimer records duration for a named timer metric (e.g.
// "zonecache.call.duration_ms") tagged with tags.
func (e *Emitter) RecordTimer(ctx context.Context, name string, duration time.Duration, tags Tags) {
	h := e.histogram(&e.timers, name, "ms")
	if h == nil {
		return
	}
	h.Record(ctx, float64(duration.Microseconds())/1000.0, metric.WithAttributes(tags.attributes()...))
}

// IncrCounter increments a named counter metric by delta, tagged with tags.
func (e *Emitter) IncrCounter(ctx context.Context, name string, delta int64, tags Tags) {
	c := e.counter(name)
	if c == nil {
		return
	}
	c.Add(ctx, delta, metric.WithAttributes(tags.attributes()...))
}

// RecordSummary records value in a named distribution summary (e.g.
// payload size in bytes), tagged with tags.
func (e *Emitter) RecordSummary(ctx context.Context, name string, value float64, tags Tags) {
	h := e.histogram(&e.summaries, name, "1")
	if h == nil {
		return
	}
	h.Record(ctx, value, metric.WithAttributes(tags.attributes()...))
}

func (e *Emitter) histogram(cache *sync.Map, name, unit string) metric.Float64Histogram {
	if v, ok := cache.Load(name); ok {
		return v.(metric.Float64Histogram)
	}
	h, err := e.meter.Float64Histogram(name, metric.WithUnit(unit))
	if err != nil {
		return nil
	}
	actual, _ := cache.LoadOrStore(name, h)
	return actual.(metric.Float64Histogram)
}

func (e *Emitter) counter(name string) metric.Int64Counter {
	if v, ok := e.counters.Load(name); ok {
		return v.(metric.Int64Counter)
	}
	c, err := e.meter.Int64Counter(name)
	if err != nil {
		return nil
	}
	actual, _ := e.counters.LoadOrStore(name, c)
	return actual.(metric.Int64Counter)
}

// AttemptBucket maps a 0-based fallback attempt index onto the
// taxonomy's attempt bucket label (spec §4.4).
func AttemptBucket(attempt int) string {
	switch attempt {
	case 0:
		return "initial"
	case 1:
		return "second"
	default:
		return "third_up"
	}
}
