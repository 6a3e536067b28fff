// Package latch implements the fan-out completion latch described in
// spec §3.5: a policy-driven success threshold that a write
// orchestrator can hand back to a caller and await independently of
// the individual replica calls that feed it.
//
// Latch lives in its own package, rather than alongside the
// orchestrator that creates it, so that pkg/replica can accept one as
// a parameter without importing the orchestrator package that
// constructs it.
package latch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Policy names the completion policy a fan-out write was issued under.
type Policy string

const (
	PolicyNone       Policy = "NONE"
	PolicyOne        Policy = "ONE"
	PolicyQuorum     Policy = "QUORUM"
	PolicyAllMinusOne Policy = "ALL_MINUS_1"
	PolicyAll        Policy = "ALL"
)

// RequiredSuccesses computes the success threshold for policy given n
// participating (non-write-only) replicas, per the table in spec §3.5.
func RequiredSuccesses(policy Policy, n int) int {
	switch policy {
	case PolicyNone:
		return 0
	case PolicyOne:
		if n == 0 {
			return 0
		}
		return 1
	case PolicyQuorum:
		switch {
		case n == 0:
			return 0
		case n <= 2:
			return n
		default:
			return n/2 + 1
		}
	case PolicyAllMinusOne:
		switch {
		case n == 0:
			return 0
		case n <= 2:
			return 1
		default:
			return n - 1
		}
	case PolicyAll:
		return n
	default:
		return n
	}
}

// Latch tracks per-replica fan-out outcomes and is satisfied once the
// required number of successes has been observed, or fails permanently
// once success becomes mathematically unreachable.
type Latch struct {
	policy    Policy
	total     int
	required  int
	successes atomic.Int32
	failures  atomic.Int32

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// New creates a Latch for a fan-out of total participating replicas
// (write-only replicas excluded, per spec §4.6) under policy.
func New(policy Policy, total int) *Latch {
	l := &Latch{
		policy:   policy,
		total:    total,
		required: RequiredSuccesses(policy, total),
		done:     make(chan struct{}),
	}
	if l.required == 0 {
		l.close()
	}
	return l
}

// Policy returns the latch's completion policy.
func (l *Latch) Policy() Policy { return l.policy }

// Required returns the number of successes needed to satisfy the latch.
func (l *Latch) Required() int { return l.required }

// Total returns the number of replicas participating in the fan-out.
func (l *Latch) Total() int { return l.total }

// MarkSuccess records a single replica's successful completion. The
// latch is closed once the required count is reached.
func (l *Latch) MarkSuccess() {
	if int(l.successes.Add(1)) >= l.required {
		l.close()
	}
}

// MarkFailure records a single replica's failed completion. The latch
// is closed once success becomes unreachable (remaining replicas, even
// if all succeed, could not meet the required count).
func (l *Latch) MarkFailure() {
	l.failures.Add(1)
	remaining := l.total - int(l.successes.Load()) - int(l.failures.Load())
	if int(l.successes.Load())+remaining < l.required {
		l.close()
	}
}

// Satisfied reports whether the required success count has been met.
func (l *Latch) Satisfied() bool {
	return int(l.successes.Load()) >= l.required
}

// Await blocks until the latch closes (required count met, or success
// became unreachable) or ctx is cancelled, whichever comes first.
func (l *Latch) Await(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Latch) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
}
