// Package event implements the per-call event object and listener bus
// of spec §3.4/§4.2: a fast-path-skippable per-call record mutated
// only by the orchestrator and read by registered listeners, plus a
// bus that isolates listener failures from the calling orchestrator.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// CallKind identifies the shape of the orchestrator call that produced
// an Event.
type CallKind string

const (
	CallGet          CallKind = "GET"
	CallGetBulk      CallKind = "GET_BULK"
	CallGetAndTouch  CallKind = "GET_AND_TOUCH"
	CallMetaGet      CallKind = "META_GET"
	CallMetaDebug    CallKind = "META_DEBUG"
	CallSet          CallKind = "SET"
	CallAdd          CallKind = "ADD"
	CallReplace      CallKind = "REPLACE"
	CallAppend       CallKind = "APPEND"
	CallAppendOrAdd  CallKind = "APPEND_OR_ADD"
	CallDelete       CallKind = "DELETE"
	CallTouch        CallKind = "TOUCH"
	CallIncr         CallKind = "INCR"
	CallDecr         CallKind = "DECR"
	CallConsistentGet CallKind = "CONSISTENT_GET"
)

// Event is the per-call object of spec §3.4. It is mutated only by the
// orchestrator, via Bus.Start/Bus.Complete/Bus.Error and SetAttribute,
// and is otherwise read-only for listeners.
type Event struct {
	ID             uuid.UUID
	Call           CallKind
	Application    string
	Prefix         string
	Keys           []string
	TTL            int64
	EncodedPayload []byte // writes only

	StartTime time.Time
	EndTime   time.Time
	Status    string // e.g. "GHIT", "GMISS", "BHIT_PARTIAL"

	mu         sync.Mutex
	attributes map[string]string
}

// New constructs an Event. Callers use Bus.Create instead of calling
// this directly so the fast-path-skip rule (no listeners → nil) is
// enforced in one place.
func New(call CallKind, application, prefix string, keys []string) *Event {
	return &Event{
		ID:          uuid.New(),
		Call:        call,
		Application: application,
		Prefix:      prefix,
		Keys:        keys,
		attributes:  make(map[string]string),
	}
}

// SetAttribute records a free-form attribute on the event.
func (e *Event) SetAttribute(key, value string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.attributes[key] = value
	e.mu.Unlock()
}

// Attribute reads a free-form attribute, returning "" if absent.
func (e *Event) Attribute(key string) string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attributes[key]
}

// MarshalLogObject implements zapcore.ObjectMarshaler for structured
// log emission on error paths.
func (e *Event) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("event_id", e.ID.String())
	enc.AddString("call", string(e.Call))
	enc.AddString("application", e.Application)
	enc.AddString("prefix", e.Prefix)
	enc.AddInt("key_count", len(e.Keys))
	enc.AddString("status", e.Status)
	enc.AddTime("start_time", e.StartTime)
	if !e.EndTime.IsZero() {
		enc.AddDuration("duration", e.EndTime.Sub(e.StartTime))
	}
	return nil
}

// Listener is the capability interface §4.2 describes. Every method
// receives the Event and may inspect but must not retain it beyond the
// call.
type Listener interface {
	// OnThrottle returns true to reject the call with Throttled. The
	// bus short-circuits on the first listener that returns true.
	OnThrottle(ctx context.Context, ev *Event) bool
	OnStart(ctx context.Context, ev *Event)
	OnComplete(ctx context.Context, ev *Event)
	OnError(ctx context.Context, ev *Event, err error)
}

// Bus dispatches lifecycle callbacks to registered listeners, isolating
// any one listener's panic from the calling orchestrator and from other
// listeners. Callbacks run synchronously, so a slow listener delays the
// caller and the listeners after it.
type Bus struct {
	listeners []Listener

	failures sync.Map // map[failureKey]*atomic.Int64
}

type failureKey struct {
	listenerIndex int
	stage         string
}

// NewBus constructs a Bus with the given listeners. A Bus with no
// listeners is valid; Create will return nil for it, letting callers
// take the fast path.
func NewBus(listeners ...Listener) *Bus {
	return &Bus{listeners: listeners}
}

// HasListeners reports whether any listener is registered.
func (b *Bus) HasListeners() bool { return len(b.listeners) > 0 }

// Create returns a new Event, or nil if no listeners are registered
// (the fast-path skip of spec §4.2).
func (b *Bus) Create(call CallKind, application, prefix string, keys []string) *Event {
	if !b.HasListeners() {
		return nil
	}
	return New(call, application, prefix, keys)
}

// Throttle runs OnThrottle across all listeners, short-circuiting true
// on the first one that rejects the call.
func (b *Bus) Throttle(ctx context.Context, ev *Event) bool {
	if ev == nil {
		return false
	}
	for i, l := range b.listeners {
		rejected := b.guardBool(i, "throttle", func() bool { return l.OnThrottle(ctx, ev) })
		if rejected {
			return true
		}
	}
	return false
}

// Start runs OnStart across all listeners and stamps ev.StartTime.
func (b *Bus) Start(ctx context.Context, ev *Event) {
	if ev == nil {
		return
	}
	ev.StartTime = time.Now()
	for i, l := range b.listeners {
		b.guard(i, "start", func() { l.OnStart(ctx, ev) })
	}
}

// Complete runs OnComplete across all listeners and stamps ev.EndTime.
func (b *Bus) Complete(ctx context.Context, ev *Event) {
	if ev == nil {
		return
	}
	ev.EndTime = time.Now()
	for i, l := range b.listeners {
		b.guard(i, "complete", func() { l.OnComplete(ctx, ev) })
	}
}

// Error runs OnError across all listeners and stamps ev.EndTime.
func (b *Bus) Error(ctx context.Context, ev *Event, callErr error) {
	if ev == nil {
		return
	}
	ev.EndTime = time.Now()
	for i, l := range b.listeners {
		b.guard(i, "error", func() { l.OnError(ctx, ev, callErr) })
	}
}

// FailureCount returns how many times the listener at listenerIndex has
// failed (panicked) at the named stage.
func (b *Bus) FailureCount(listenerIndex int, stage string) int64 {
	v, ok := b.failures.Load(failureKey{listenerIndex, stage})
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (b *Bus) guard(listenerIndex int, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.recordFailure(listenerIndex, stage)
		}
	}()
	fn()
}

func (b *Bus) guardBool(listenerIndex int, stage string, fn func() bool) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			b.recordFailure(listenerIndex, stage)
			result = false
		}
	}()
	return fn()
}

func (b *Bus) recordFailure(listenerIndex int, stage string) {
	key := failureKey{listenerIndex, stage}
	counter, _ := b.failures.LoadOrStore(key, &atomic.Int64{})
	counter.(*atomic.Int64).Add(1)
}
