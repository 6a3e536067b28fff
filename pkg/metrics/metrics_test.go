package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestEmitterRecordTimerDoesNotPanic(t *testing.T) {
	e := New(noop.NewMeterProvider().Meter("zonecache"))
	e.RecordTimer(context.Background(), "zonecache.call.duration_ms", 5*time.Millisecond, Tags{
		Operation:     "GET",
		OperationType: "READ",
		Result:        "HIT",
		Hit:           true,
		Attempt:       "initial",
		ServerGroup:   "us-east-1a",
		Zone:          "us-east-1",
	})
}

func TestEmitterIncrCounterDoesNotPanic(t *testing.T) {
	e := New(noop.NewMeterProvider().Meter("zonecache"))
	e.IncrCounter(context.Background(), "zonecache.key_hash_collision", 1, Tags{Operation: "GET"})
}

func TestEmitterReusesHandleAcrossCalls(t *testing.T) {
	e := New(noop.NewMeterProvider().Meter("zonecache"))
	e.RecordTimer(context.Background(), "dup", time.Millisecond, Tags{Operation: "GET"})
	e.RecordTimer(context.Background(), "dup", time.Millisecond, Tags{Operation: "SET"})

	count := 0
	e.timers.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != 1 {
		t.Errorf("expected one cached histogram handle, got %d", count)
	}
}

func TestAttemptBucket(t *testing.T) {
	cases := map[int]string{0: "initial", 1: "second", 2: "third_up", 5: "third_up"}
	for attempt, want := range cases {
		if got := AttemptBucket(attempt); got != want {
			t.Errorf("AttemptBucket(%d) = %q, want %q", attempt, got, want)
		}
	}
}
