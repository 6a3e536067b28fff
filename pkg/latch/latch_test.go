package latch

import (
	"context"
	"testing"
	"time"
)

func TestRequiredSuccessesTable(t *testing.T) {
	cases := []struct {
		policy Policy
		n      int
		want   int
	}{
		{PolicyNone, 5, 0},
		{PolicyOne, 0, 0},
		{PolicyOne, 3, 1},
		{PolicyQuorum, 0, 0},
		{PolicyQuorum, 2, 2},
		{PolicyQuorum, 5, 3},
		{PolicyAllMinusOne, 0, 0},
		{PolicyAllMinusOne, 2, 1},
		{PolicyAllMinusOne, 5, 4},
		{PolicyAll, 4, 4},
	}
	for _, c := range cases {
		if got := RequiredSuccesses(c.policy, c.n); got != c.want {
			t.Errorf("RequiredSuccesses(%s, %d) = %d, want %d", c.policy, c.n, got, c.want)
		}
	}
}

func TestLatchClosesImmediatelyForZeroRequired(t *testing.T) {
	l := New(PolicyNone, 3)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Await(ctx); err != nil {
		t.Fatalf("Await: %v", err)
	}
}

func TestLatchClosesOnRequiredSuccesses(t *testing.T) {
	l := New(PolicyQuorum, 3)
	if l.Required() != 2 {
		t.Fatalf("Required() = %d, want 2", l.Required())
	}
	l.MarkSuccess()
	select {
	case <-l.done:
		t.Fatal("latch closed after only one success")
	default:
	}
	l.MarkSuccess()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Await(ctx); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !l.Satisfied() {
		t.Fatal("expected latch to be satisfied")
	}
}

func TestLatchClosesWhenUnreachable(t *testing.T) {
	l := New(PolicyAll, 3)
	l.MarkFailure()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Await(ctx); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if l.Satisfied() {
		t.Fatal("latch should not be satisfied after unreachable failure")
	}
}

func TestLatchAwaitRespectsContextCancellation(t *testing.T) {
	l := New(PolicyAll, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Await(ctx); err == nil {
		t.Fatal("expected context deadline error")
	}
}
