// Package replica defines the capability contract the core
// orchestrator (pkg/zonecache) issues operations against, and provides
// a TCP-backed implementation adapted from the teacher's
// pkg/client.ConnectionPool plus an in-process double for tests and
// examples.
package replica

import (
	"context"
	"errors"

	"github.com/cachemir/zonecache/pkg/latch"
)

// ErrConnect is returned when a TCPReplica cannot obtain a usable
// connection to its backend.
var ErrConnect = errors.New("replica: connect failed")

// ErrQueueFull is returned when a TCPReplica's connection pool has no
// capacity left and its connect timeout elapses while waiting for one.
var ErrQueueFull = errors.New("replica: connection pool exhausted")

// Result is the outcome of a single-key read.
type Result struct {
	Found bool
	Flags uint32
	Value []byte
}

// MetaResult extends Result with the diagnostic fields meta-get and
// meta-debug can optionally surface (spec §4.4).
type MetaResult struct {
	Result
	TTL               int64
	LastAccessSeconds int64
	HitBefore         bool
}

// CounterResult is the outcome of an incr/decr operation. Value is -1
// when the backend had no prior counter for the key, matching the
// convergence rule in spec §4.6.
type CounterResult struct {
	Value int64
}

// Replica is the capability contract of spec §3.3. Every operation
// accepts an optional *latch.Latch so the write orchestrator can
// attach fan-out completion tracking; implementations must tolerate a
// nil latch (single-replica read paths never attach one).
type Replica interface {
	ServerGroup() string
	IsDuetClient() bool

	Get(ctx context.Context, wireKey string) (Result, error)
	GetBulk(ctx context.Context, wireKeys []string) (map[string]Result, error)
	AsyncGet(ctx context.Context, wireKey string) (<-chan Result, <-chan error)
	MetaGet(ctx context.Context, wireKey string, flags uint8) (MetaResult, error)
	MetaDebug(ctx context.Context, wireKey string) (map[string]string, error)

	Set(ctx context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error
	Add(ctx context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error
	Replace(ctx context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error
	Append(ctx context.Context, wireKey string, value []byte, l *latch.Latch) error
	AppendOrAdd(ctx context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error
	Delete(ctx context.Context, wireKey string, l *latch.Latch) error
	Touch(ctx context.Context, wireKey string, ttl int64, l *latch.Latch) error
	Incr(ctx context.Context, wireKey string, delta int64, initial int64, l *latch.Latch) (CounterResult, error)
	Decr(ctx context.Context, wireKey string, delta int64, initial int64, l *latch.Latch) (CounterResult, error)
}
