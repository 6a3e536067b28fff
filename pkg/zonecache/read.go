package zonecache

import (
	"context"
	"time"

	"github.com/cachemir/zonecache/pkg/event"
	"github.com/cachemir/zonecache/pkg/key"
	"github.com/cachemir/zonecache/pkg/metrics"
	"github.com/cachemir/zonecache/pkg/nearcache"
	"github.com/cachemir/zonecache/pkg/replica"
	"github.com/cachemir/zonecache/pkg/transcoder"
)

// GetResult is a single-key read outcome: the decoded wire value plus
// its flags, and whether the key was found.
type GetResult struct {
	Found bool
	Flags uint32
	Value []byte
}

// Get performs the single-key read orchestrator of spec §4.4. throw,
// if non-nil, overrides the live throw-on-error configuration for this
// call only.
func (c *Client) Get(ctx context.Context, applicationKey string, throw *bool) (GetResult, error) {
	return c.get(ctx, applicationKey, event.CallGet, throw)
}

// GetAndTouch performs a get and, on hit, fans out a best-effort touch
// to every write replica (spec §4.4). If the live configuration has
// IgnoreTouch set, this degrades to a plain Get.
func (c *Client) GetAndTouch(ctx context.Context, applicationKey string, ttlSeconds int64, throw *bool) (GetResult, error) {
	if c.config.IgnoreTouch() {
		return c.Get(ctx, applicationKey, throw)
	}
	res, err := c.get(ctx, applicationKey, event.CallGetAndTouch, throw)
	if err == nil && res.Found {
		nk, nerr := c.normalise(applicationKey)
		if nerr == nil {
			for _, r := range c.pool.ClientsForWrite() {
				go func(r replica.Replica) {
					_ = r.Touch(context.Background(), nk.DerivedKey(r.IsDuetClient()), ttlSeconds, nil)
				}(r)
			}
		}
	}
	return res, err
}

func (c *Client) get(ctx context.Context, applicationKey string, call event.CallKind, throw *bool) (GetResult, error) {
	nk, err := c.normalise(applicationKey)
	if err != nil {
		c.incrCounter(ctx, "zonecache.fast_fail", metrics.Tags{Operation: string(call), OperationType: "READ", Result: "INVALID_ARGUMENT"})
		return GetResult{}, c.throwOrZero(err, throw)
	}

	if c.nearCache == nil {
		return c.readThrough(ctx, nk, call, throw)
	}

	v, found, ncErr := c.nearCache.Get(nk.DerivedKey(false), func() (any, error) {
		res, loadErr := c.readThroughRaw(ctx, nk, call)
		if loadErr != nil {
			return nil, loadErr
		}
		if !res.Found {
			return nearcache.NotFound, nil
		}
		return res, nil
	})
	if ncErr != nil {
		return GetResult{}, c.throwOrZero(ncErr, throw)
	}
	if !found {
		return GetResult{}, nil
	}
	return v.(GetResult), nil
}

// readThrough wraps readThroughRaw with the throw/zero-value policy,
// used on the no-near-cache path where there is no loader closure to
// carry the error through.
func (c *Client) readThrough(ctx context.Context, nk key.NormalisedKey, call event.CallKind, throw *bool) (GetResult, error) {
	res, err := c.readThroughRaw(ctx, nk, call)
	if err != nil {
		return GetResult{}, c.throwOrZero(err, throw)
	}
	return res, nil
}

// readThroughRaw runs the replica-level fallback algorithm of spec
// §4.4, independent of near-cache participation and of throw policy.
func (c *Client) readThroughRaw(ctx context.Context, nk key.NormalisedKey, call event.CallKind) (GetResult, error) {
	primary, poolErr := c.pool.ClientForRead()
	if poolErr != nil {
		c.incrCounter(ctx, "zonecache.fast_fail", metrics.Tags{Operation: string(call), OperationType: "READ", Result: "NULL_CLIENT"})
		return GetResult{}, ErrNullClient("no primary read replica")
	}

	ev := c.bus.Create(call, c.application, c.prefix, []string{nk.CanonicalKey})
	if c.bus.Throttle(ctx, ev) {
		c.incrCounter(ctx, "zonecache.fast_fail", metrics.Tags{Operation: string(call), OperationType: "READ", Result: "THROTTLED"})
		return GetResult{}, ErrThrottled()
	}
	c.bus.Start(ctx, ev)

	start := time.Now()
	res, server, attempt, status, callErr := c.readWithFallback(ctx, nk, primary)
	duration := time.Since(start)

	tags := metrics.Tags{
		Operation:     string(call),
		OperationType: "READ",
		Result:        resultTag(callErr),
		Hit:           status == "GHIT",
		Attempt:       metrics.AttemptBucket(attempt),
		ServerGroup:   server,
	}
	c.recordTimer(ctx, "zonecache.overall_call", duration, tags)

	if ev != nil {
		ev.Status = status
	}
	if callErr != nil {
		c.bus.Error(ctx, ev, callErr)
		return GetResult{}, callErr
	}
	c.bus.Complete(ctx, ev)
	return res, nil
}

// readWithFallback implements the primary-then-fallback loop of spec
// §4.4, returning the winning result (if any), the server group it
// came from, how many fallback attempts were made, a status tag for
// the event/metrics taxonomy, and an error if every attempt failed.
func (c *Client) readWithFallback(ctx context.Context, nk key.NormalisedKey, primary replica.Replica) (GetResult, string, int, string, error) {
	res, err := c.readOne(ctx, nk, primary)
	if err == nil && res.Found {
		return res, primary.ServerGroup(), 0, "GHIT", nil
	}
	if !c.config.FallbackZone() {
		if err != nil {
			return GetResult{}, primary.ServerGroup(), 0, "ERROR", err
		}
		return GetResult{}, primary.ServerGroup(), 0, "GMISS", nil
	}

	fallbacks := c.pool.ClientsForReadExcluding(primary.ServerGroup())
	lastErr := err
	for i, r := range fallbacks {
		attempt := i + 1
		res, err := c.readOne(ctx, nk, r)
		if err == nil && res.Found {
			return res, r.ServerGroup(), attempt, "GHIT", nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return GetResult{}, primary.ServerGroup(), len(fallbacks), "ERROR", lastErr
	}
	return GetResult{}, primary.ServerGroup(), len(fallbacks), "GMISS", nil
}

// readOne issues a single-replica read and, for hashed keys, unwraps
// and validates the envelope (spec §3.2/§4.4). An envelope whose
// canonical key doesn't match nk is a hash collision and is treated as
// a miss, not an error, per the same section.
func (c *Client) readOne(ctx context.Context, nk key.NormalisedKey, r replica.Replica) (GetResult, error) {
	result, err := r.Get(ctx, nk.DerivedKey(r.IsDuetClient()))
	if err != nil {
		return GetResult{}, err
	}
	if !result.Found {
		return GetResult{}, nil
	}
	if !nk.IsHashed() {
		return GetResult{Found: true, Flags: result.Flags, Value: result.Value}, nil
	}

	var env transcoder.Envelope
	if decodeErr := transcoder.EnvelopeTranscoder.Decode(result.Flags, result.Value, &env); decodeErr != nil {
		return GetResult{}, decodeErr
	}
	if env.CanonicalKey != nk.CanonicalKey {
		c.incrCounter(ctx, "zonecache.internal_fail", metrics.Tags{Operation: string(event.CallGet), Result: "KEY_HASH_COLLISION"})
		return GetResult{}, nil
	}
	return GetResult{Found: true, Flags: env.Flags, Value: env.PayloadBytes}, nil
}

// MetaResult is the outcome of MetaGet.
type MetaResult struct {
	GetResult
	TTL               int64
	LastAccessSeconds int64
	HitBefore         bool
}

// MetaGet performs a read that additionally requests diagnostic fields
// from the backend (spec §4.4).
func (c *Client) MetaGet(ctx context.Context, applicationKey string, wantTTL, wantLastAccess, wantHitBefore bool, throw *bool) (MetaResult, error) {
	nk, err := c.normalise(applicationKey)
	if err != nil {
		return MetaResult{}, c.throwOrZero(err, throw)
	}

	primary, poolErr := c.pool.ClientForRead()
	if poolErr != nil {
		return MetaResult{}, ErrNullClient("no primary read replica")
	}

	var flags uint8
	if wantTTL {
		flags |= 1
	}
	if wantLastAccess {
		flags |= 2
	}
	if wantHitBefore {
		flags |= 4
	}

	mr, err := primary.MetaGet(ctx, nk.DerivedKey(primary.IsDuetClient()), flags)
	if err != nil {
		return MetaResult{}, c.throwOrZero(err, throw)
	}
	return MetaResult{
		GetResult:         GetResult{Found: mr.Found, Flags: mr.Flags, Value: mr.Value},
		TTL:               mr.TTL,
		LastAccessSeconds: mr.LastAccessSeconds,
		HitBefore:         mr.HitBefore,
	}, nil
}

// MetaDebug returns the raw diagnostic flag map a backend's meta-debug
// command reports.
func (c *Client) MetaDebug(ctx context.Context, applicationKey string) (map[string]string, error) {
	nk, err := c.normalise(applicationKey)
	if err != nil {
		return nil, err
	}
	primary, poolErr := c.pool.ClientForRead()
	if poolErr != nil {
		return nil, ErrNullClient("no primary read replica")
	}
	return primary.MetaDebug(ctx, nk.DerivedKey(primary.IsDuetClient()))
}

// throwOrZero applies the throw-on-error policy: propagate err when
// the policy says to, otherwise swallow it so the caller returns its
// zero value. Invalid-argument failures always propagate since there
// is no sensible zero value to substitute for a caller mistake.
func (c *Client) throwOrZero(err error, throw *bool) error {
	if f, ok := err.(Fault); ok && f.Kind() == KindInvalidArgument {
		return err
	}
	if c.throwPolicy(throw) {
		return err
	}
	return nil
}

func resultTag(err error) string {
	if err == nil {
		return "SUCCESS"
	}
	if f, ok := err.(Fault); ok {
		return string(f.Kind())
	}
	return "ERROR"
}
