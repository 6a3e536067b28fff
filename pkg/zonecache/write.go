package zonecache

import (
	"context"
	"strconv"
	"time"

	"github.com/cachemir/zonecache/pkg/event"
	"github.com/cachemir/zonecache/pkg/latch"
	"github.com/cachemir/zonecache/pkg/metrics"
	"github.com/cachemir/zonecache/pkg/replica"
	"github.com/cachemir/zonecache/pkg/transcoder"
)

// Set stores value for applicationKey with the given TTL, fanning out
// to every write replica (spec §4.6).
func (c *Client) Set(ctx context.Context, applicationKey string, value any, ttlSeconds int64, tc transcoder.Transcoder, throw *bool) (*latch.Latch, error) {
	return c.writeValue(ctx, applicationKey, value, ttlSeconds, tc, event.CallSet, throw, func(r replica.Replica, wireKey string, flags uint32, data []byte, l *latch.Latch) error {
		return r.Set(ctx, wireKey, flags, data, ttlSeconds, l)
	})
}

// Add stores value only if applicationKey does not already exist on
// the replica.
func (c *Client) Add(ctx context.Context, applicationKey string, value any, ttlSeconds int64, tc transcoder.Transcoder, throw *bool) (*latch.Latch, error) {
	return c.writeValue(ctx, applicationKey, value, ttlSeconds, tc, event.CallAdd, throw, func(r replica.Replica, wireKey string, flags uint32, data []byte, l *latch.Latch) error {
		return r.Add(ctx, wireKey, flags, data, ttlSeconds, l)
	})
}

// Replace stores value only if applicationKey already exists on the replica.
func (c *Client) Replace(ctx context.Context, applicationKey string, value any, ttlSeconds int64, tc transcoder.Transcoder, throw *bool) (*latch.Latch, error) {
	return c.writeValue(ctx, applicationKey, value, ttlSeconds, tc, event.CallReplace, throw, func(r replica.Replica, wireKey string, flags uint32, data []byte, l *latch.Latch) error {
		return r.Replace(ctx, wireKey, flags, data, ttlSeconds, l)
	})
}

// Append concatenates value onto the existing value for applicationKey.
func (c *Client) Append(ctx context.Context, applicationKey string, value any, tc transcoder.Transcoder, throw *bool) (*latch.Latch, error) {
	return c.writeValue(ctx, applicationKey, value, 0, tc, event.CallAppend, throw, func(r replica.Replica, wireKey string, _ uint32, data []byte, l *latch.Latch) error {
		return r.Append(ctx, wireKey, data, l)
	})
}

// AppendOrAdd appends if applicationKey exists, else adds it as a new entry.
func (c *Client) AppendOrAdd(ctx context.Context, applicationKey string, value any, ttlSeconds int64, tc transcoder.Transcoder, throw *bool) (*latch.Latch, error) {
	return c.writeValue(ctx, applicationKey, value, ttlSeconds, tc, event.CallAppendOrAdd, throw, func(r replica.Replica, wireKey string, flags uint32, data []byte, l *latch.Latch) error {
		return r.AppendOrAdd(ctx, wireKey, flags, data, ttlSeconds, l)
	})
}

// Delete removes applicationKey from every write replica.
func (c *Client) Delete(ctx context.Context, applicationKey string, throw *bool) (*latch.Latch, error) {
	return c.writeNoValue(ctx, applicationKey, event.CallDelete, throw, func(r replica.Replica, wireKey string, l *latch.Latch) error {
		return r.Delete(ctx, wireKey, l)
	})
}

// Touch refreshes applicationKey's TTL on every write replica without
// touching its value.
func (c *Client) Touch(ctx context.Context, applicationKey string, ttlSeconds int64, throw *bool) (*latch.Latch, error) {
	if err := validateTTL(ttlSeconds, time.Now()); err != nil {
		return nil, c.failFastTTL(ctx, event.CallTouch, err, throw)
	}
	l, err := c.writeNoValue(ctx, applicationKey, event.CallTouch, throw, func(r replica.Replica, wireKey string, l *latch.Latch) error {
		return r.Touch(ctx, wireKey, ttlSeconds, l)
	})
	c.recordSummary(ctx, "zonecache.ttl", float64(ttlSeconds), metrics.Tags{Operation: string(event.CallTouch), OperationType: "WRITE"})
	return l, err
}

// Incr increments applicationKey's counter by delta on every write
// replica, seeding it with initial where absent, then runs the
// cross-replica convergence step of spec §4.6.
func (c *Client) Incr(ctx context.Context, applicationKey string, delta, initial int64, throw *bool) (int64, *latch.Latch, error) {
	return c.counterOp(ctx, applicationKey, delta, initial, event.CallIncr, throw, func(r replica.Replica, wireKey string, l *latch.Latch) (replica.CounterResult, error) {
		return r.Incr(ctx, wireKey, delta, initial, l)
	})
}

// Decr is Incr's counterpart for decrement operations.
func (c *Client) Decr(ctx context.Context, applicationKey string, delta, initial int64, throw *bool) (int64, *latch.Latch, error) {
	return c.counterOp(ctx, applicationKey, delta, initial, event.CallDecr, throw, func(r replica.Replica, wireKey string, l *latch.Latch) (replica.CounterResult, error) {
		return r.Decr(ctx, wireKey, delta, initial, l)
	})
}

// writeValue implements the value-carrying branch of spec §4.6: encode
// once (wrapping in an envelope when the key is hashed), then fan the
// encoded payload out to every write replica.
func (c *Client) writeValue(
	ctx context.Context,
	applicationKey string,
	value any,
	ttlSeconds int64,
	tc transcoder.Transcoder,
	call event.CallKind,
	throw *bool,
	issue func(r replica.Replica, wireKey string, flags uint32, data []byte, l *latch.Latch) error,
) (*latch.Latch, error) {
	if err := validateTTL(ttlSeconds, time.Now()); err != nil {
		return nil, c.failFastTTL(ctx, call, err, throw)
	}

	nk, err := c.normalise(applicationKey)
	if err != nil {
		return nil, c.throwOrZero(err, throw)
	}
	if value == nil {
		return nil, c.throwOrZero(ErrInvalidArgument("nil value"), throw)
	}

	if tc == nil {
		tc = c.transcoder
	}
	flags, data, encErr := tc.Encode(value)
	if encErr != nil {
		return nil, c.throwOrZero(ErrInvalidArgument(encErr.Error()), throw)
	}

	if nk.IsHashed() {
		env := transcoder.Envelope{
			CanonicalKey: nk.CanonicalKey,
			Flags:        flags,
			PayloadBytes: data,
			TTL:          ttlSeconds,
			WriteTime:    time.Now().Unix(),
		}
		_, envData, envErr := transcoder.EnvelopeTranscoder.Encode(env)
		if envErr != nil {
			return nil, c.throwOrZero(ErrInvalidArgument(envErr.Error()), throw)
		}
		flags, data = 0, envData
	}

	start := time.Now()
	writeSet, writeOnly, l, prepErr := c.prepareFanOut(ctx, call, []string{nk.CanonicalKey}, throw)
	if prepErr != nil {
		return nil, prepErr
	}

	for _, r := range fanOutSet(writeSet, writeOnly) {
		go func(r replica.Replica) {
			wireKey := nk.DerivedKey(r.IsDuetClient())
			err := issue(r, wireKey, flags, data, nil)
			c.markFanOut(l, r, writeOnly, err)
		}(r)
	}

	tags := metrics.Tags{Operation: string(call), OperationType: "WRITE"}
	c.recordTimer(ctx, "zonecache.overall_call", time.Since(start), tags)
	c.recordSummary(ctx, "zonecache.ttl", float64(ttlSeconds), tags)

	return l, nil
}

// fanOutSet returns every replica that should receive a fan-out call:
// the success-counted write-set plus the write-only replicas that
// participate but don't count toward the latch.
func fanOutSet(writeSet, writeOnly []replica.Replica) []replica.Replica {
	all := make([]replica.Replica, 0, len(writeSet)+len(writeOnly))
	all = append(all, writeSet...)
	all = append(all, writeOnly...)
	return all
}

// writeNoValue implements the no-value branch of spec §4.6 (delete/touch).
func (c *Client) writeNoValue(
	ctx context.Context,
	applicationKey string,
	call event.CallKind,
	throw *bool,
	issue func(r replica.Replica, wireKey string, l *latch.Latch) error,
) (*latch.Latch, error) {
	nk, err := c.normalise(applicationKey)
	if err != nil {
		return nil, c.throwOrZero(err, throw)
	}

	start := time.Now()
	writeSet, writeOnly, l, prepErr := c.prepareFanOut(ctx, call, []string{nk.CanonicalKey}, throw)
	if prepErr != nil {
		return nil, prepErr
	}

	for _, r := range fanOutSet(writeSet, writeOnly) {
		go func(r replica.Replica) {
			err := issue(r, nk.DerivedKey(r.IsDuetClient()), nil)
			c.markFanOut(l, r, writeOnly, err)
		}(r)
	}

	c.recordTimer(ctx, "zonecache.overall_call", time.Since(start), metrics.Tags{Operation: string(call), OperationType: "WRITE"})
	return l, nil
}

// counterOp implements incr/decr fan-out plus the cross-replica
// convergence step of spec §4.6.
func (c *Client) counterOp(
	ctx context.Context,
	applicationKey string,
	delta, initial int64,
	call event.CallKind,
	throw *bool,
	issue func(r replica.Replica, wireKey string, l *latch.Latch) (replica.CounterResult, error),
) (int64, *latch.Latch, error) {
	nk, err := c.normalise(applicationKey)
	if err != nil {
		return 0, nil, c.throwOrZero(err, throw)
	}

	start := time.Now()
	writeSet, writeOnly, l, prepErr := c.prepareFanOut(ctx, call, []string{nk.CanonicalKey}, throw)
	if prepErr != nil {
		return 0, nil, prepErr
	}

	all := fanOutSet(writeSet, writeOnly)
	type outcome struct {
		r     replica.Replica
		value int64
		err   error
	}
	results := make(chan outcome, len(all))

	for _, r := range all {
		go func(r replica.Replica) {
			cr, err := issue(r, nk.DerivedKey(r.IsDuetClient()), nil)
			c.markFanOut(l, r, writeOnly, err)
			results <- outcome{r: r, value: cr.Value, err: err}
		}(r)
	}

	var current int64 = -1
	observed := make([]outcome, 0, len(all))
	for range all {
		o := <-results
		observed = append(observed, o)
		if o.err == nil && o.value > current {
			current = o.value
		}
	}

	// Converge every replica that didn't land on the highest observed value —
	// including one reporting the -1 sentinel (no prior counter) —
	// straight to current via Set. Re-issuing the original incr/decr
	// through issue would resend the caller's delta/initial and diverge
	// the replica further instead of converging it.
	if current >= 0 {
		for _, o := range observed {
			if o.err != nil || o.value == current {
				continue
			}
			wireKey := nk.DerivedKey(o.r.IsDuetClient())
			go func(r replica.Replica, wireKey string) {
				_ = r.Set(context.Background(), wireKey, 0, []byte(strconv.FormatInt(current, 10)), 0, nil)
			}(o.r, wireKey)
		}
	}

	c.recordTimer(ctx, "zonecache.overall_call", time.Since(start), metrics.Tags{Operation: string(call), OperationType: "WRITE"})
	return current, l, nil
}

// prepareFanOut resolves the write-set, fast-fails with NullClient if
// it is empty, constructs the latch, and starts the associated event.
func (c *Client) prepareFanOut(ctx context.Context, call event.CallKind, keys []string, throw *bool) ([]replica.Replica, []replica.Replica, *latch.Latch, error) {
	all := c.pool.ClientsForWrite()
	if len(all) == 0 {
		c.incrCounter(ctx, "zonecache.fast_fail", metrics.Tags{Operation: string(call), OperationType: "WRITE", Result: "NULL_CLIENT"})
		return nil, nil, latch.New(latch.PolicyNone, 0), ErrNullClient("no write replicas configured")
	}
	writeOnly := c.pool.WriteOnlyClients()
	writeOnlySet := make(map[replica.Replica]bool, len(writeOnly))
	for _, r := range writeOnly {
		writeOnlySet[r] = true
	}
	var writeSet []replica.Replica
	for _, r := range all {
		if !writeOnlySet[r] {
			writeSet = append(writeSet, r)
		}
	}

	l := latch.New(latch.PolicyAll, len(writeSet))

	ev := c.bus.Create(call, c.application, c.prefix, keys)
	if c.bus.Throttle(ctx, ev) {
		c.incrCounter(ctx, "zonecache.fast_fail", metrics.Tags{Operation: string(call), OperationType: "WRITE", Result: "THROTTLED"})
		return nil, nil, latch.New(latch.PolicyNone, 0), ErrThrottled()
	}
	c.bus.Start(ctx, ev)

	if c.config.EventsUsingLatch() {
		go func() {
			waitCtx, cancel := context.WithTimeout(context.Background(), c.pool.OperationTimeout())
			defer cancel()
			_ = l.Await(waitCtx)
			if l.Satisfied() {
				c.bus.Complete(ctx, ev)
			} else {
				c.bus.Error(ctx, ev, ErrTimeout("write latch did not reach required successes"))
			}
		}()
	} else {
		c.bus.Complete(ctx, ev)
	}

	return writeSet, writeOnly, l, nil
}

// markFanOut records a single replica's outcome against the latch,
// skipping write-only replicas (spec §4.6: they participate in
// fan-out but are excluded from the success denominator, so the latch
// was never sized to include them).
func (c *Client) markFanOut(l *latch.Latch, r replica.Replica, writeOnly []replica.Replica, err error) {
	for _, wo := range writeOnly {
		if wo == r {
			return
		}
	}
	if err != nil {
		l.MarkFailure()
		return
	}
	l.MarkSuccess()
}

func (c *Client) failFastTTL(ctx context.Context, call event.CallKind, err error, throw *bool) error {
	c.incrCounter(ctx, "zonecache.fast_fail", metrics.Tags{Operation: string(call), OperationType: "WRITE", Result: "INVALID_TTL"})
	return c.throwOrZero(err, throw)
}
