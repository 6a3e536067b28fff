package zonecache

import "fmt"

// ErrorKind classifies a zonecache.Fault per spec §7.
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	KindInvalidTTL      ErrorKind = "INVALID_TTL"
	KindNullClient      ErrorKind = "NULL_CLIENT"
	KindThrottled       ErrorKind = "THROTTLED"
	KindTimeout         ErrorKind = "TIMEOUT"
	KindConnectError    ErrorKind = "CONNECT_ERROR"
	KindReadQueueFull   ErrorKind = "READ_QUEUE_FULL"
	KindCollision       ErrorKind = "KEY_HASH_COLLISION"
)

// Fault is satisfied by every typed error this package returns,
// letting callers branch on Kind() instead of sentinel comparison
// when they need the structured failure-reason tag for metrics (spec
// §6.3's FAST_FAIL/INTERNAL_FAIL counters).
type Fault interface {
	error
	Kind() ErrorKind
}

type fault struct {
	kind ErrorKind
	msg  string
}

func (f *fault) Error() string  { return f.msg }
func (f *fault) Kind() ErrorKind { return f.kind }

func newFault(kind ErrorKind, format string, args ...any) *fault {
	return &fault{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// ErrThrottled is returned when a listener rejects a call via the event bus.
func ErrThrottled() Fault { return newFault(KindThrottled, "zonecache: call throttled by listener") }

// ErrNullClient is returned when the pool has no replica for a required role.
func ErrNullClient(reason string) Fault {
	return newFault(KindNullClient, "zonecache: no client available: %s", reason)
}

// ErrInvalidTTL is returned when a caller-supplied TTL fails §4.8's rules.
func ErrInvalidTTL(reason string) Fault {
	return newFault(KindInvalidTTL, "zonecache: invalid ttl: %s", reason)
}

// ErrInvalidArgument is returned for null/empty/whitespace keys or nil
// write values.
func ErrInvalidArgument(reason string) Fault {
	return newFault(KindInvalidArgument, "zonecache: invalid argument: %s", reason)
}

// ErrTimeout is the error handed to event listeners when a write latch
// does not reach its required successes within the pool's operation
// timeout; no client call returns it.
func ErrTimeout(reason string) Fault {
	return newFault(KindTimeout, "zonecache: timeout: %s", reason)
}

// ErrCollision describes a hashed read whose envelope canonical key
// does not match the caller's canonical key. Read paths do not return
// it: they count the collision and report a miss.
func ErrCollision(canonicalKey string) Fault {
	return newFault(KindCollision, "zonecache: hash collision detected for key %q", canonicalKey)
}
