package zonecache

import (
	"context"
	"strings"
	"time"

	"github.com/cachemir/zonecache/pkg/event"
	"github.com/cachemir/zonecache/pkg/key"
	"github.com/cachemir/zonecache/pkg/metrics"
	"github.com/cachemir/zonecache/pkg/replica"
	"github.com/cachemir/zonecache/pkg/transcoder"
)

// BulkResult maps application keys to their outcome. On a full or
// partial hit, only keys that resolved are present. On BMISS_ALL every
// requested key is present, mapped to a zero-value GetResult.
type BulkResult map[string]GetResult

// GetBulk performs the bulk read orchestrator of spec §4.7: near-cache
// partial fill, primary bulk phase with hashed-key collision
// detection, and (if enabled) full or partial fallback.
func (c *Client) GetBulk(ctx context.Context, applicationKeys []string, throw *bool) (BulkResult, error) {
	if len(applicationKeys) == 0 {
		return BulkResult{}, nil
	}

	normalised := make(map[string]key.NormalisedKey, len(applicationKeys))
	order := make([]string, 0, len(applicationKeys))
	for _, ak := range applicationKeys {
		nk, err := c.normalise(ak)
		if err != nil {
			return nil, c.throwOrZero(err, throw)
		}
		normalised[ak] = nk
		order = append(order, ak)
	}

	out := make(BulkResult, len(order))
	remaining := make(map[string]key.NormalisedKey, len(order))
	for ak, nk := range normalised {
		remaining[ak] = nk
	}

	if c.nearCache != nil {
		for ak, nk := range normalised {
			if v, found := c.nearCache.Peek(nk.DerivedKey(false)); found {
				out[ak] = v.(GetResult)
				delete(remaining, ak)
			}
		}
	}

	if len(remaining) == 0 {
		return out, nil
	}

	primary, poolErr := c.pool.ClientForRead()
	if poolErr != nil {
		return nil, ErrNullClient("no primary read replica")
	}

	ev := c.bus.Create(event.CallGetBulk, c.application, c.prefix, order)
	if c.bus.Throttle(ctx, ev) {
		return nil, ErrThrottled()
	}
	c.bus.Start(ctx, ev)

	start := time.Now()
	hitKeys, err := c.bulkReadWithFallback(ctx, remaining, primary, out)
	duration := time.Since(start)

	status := bulkStatus(order, out)
	if ev != nil {
		ev.Status = status
		ev.SetAttribute("hit_keys", strings.Join(hitKeys, ","))
	}

	tags := metrics.Tags{
		Operation:     string(event.CallGetBulk),
		OperationType: "BULK_READ",
		Result:        resultTag(err),
		Hit:           status == "BHIT",
		ServerGroup:   primary.ServerGroup(),
	}
	c.recordTimer(ctx, "zonecache.overall_call", duration, tags)
	c.recordSummary(ctx, "zonecache.overall_keys_size", float64(len(order)), tags)

	if err != nil {
		c.bus.Error(ctx, ev, err)
		return nil, c.throwOrZero(err, throw)
	}
	c.bus.Complete(ctx, ev)

	if status == "BMISS_ALL" {
		fillMisses(order, out)
	}
	return out, nil
}

// GetBulkAndTouch performs GetBulk and fans out a best-effort touch to
// every write replica for each key that resolved to a value.
func (c *Client) GetBulkAndTouch(ctx context.Context, applicationKeys []string, ttlSeconds int64, throw *bool) (BulkResult, error) {
	out, err := c.GetBulk(ctx, applicationKeys, throw)
	if err != nil {
		return out, err
	}
	for ak, res := range out {
		if !res.Found {
			continue
		}
		nk, nerr := c.normalise(ak)
		if nerr != nil {
			continue
		}
		for _, r := range c.pool.ClientsForWrite() {
			go func(r replica.Replica, nk key.NormalisedKey) {
				_ = r.Touch(context.Background(), nk.DerivedKey(r.IsDuetClient()), ttlSeconds, nil)
			}(r, nk)
		}
	}
	return out, nil
}

// bulkReadWithFallback runs the primary phase, then (per config) the
// full-fallback or partial-fallback phase, writing results directly
// into out and returning the set of application keys that hit.
func (c *Client) bulkReadWithFallback(ctx context.Context, remaining map[string]key.NormalisedKey, primary replica.Replica, out BulkResult) ([]string, error) {
	primaryHits, err := c.bulkReadOne(ctx, remaining, primary)
	var hitKeys []string
	for ak, res := range primaryHits {
		out[ak] = res
		hitKeys = append(hitKeys, ak)
		delete(remaining, ak)
	}

	if len(remaining) == 0 {
		return hitKeys, nil
	}

	allEmpty := len(primaryHits) == 0
	if allEmpty && c.config.BulkFallbackZone() {
		for _, r := range c.pool.ClientsForReadExcluding(primary.ServerGroup()) {
			hits, ferr := c.bulkReadOne(ctx, remaining, r)
			err = ferr
			for ak, res := range hits {
				out[ak] = res
				hitKeys = append(hitKeys, ak)
				delete(remaining, ak)
			}
			if len(remaining) == 0 {
				return hitKeys, nil
			}
		}
		return hitKeys, err
	}

	if !allEmpty && c.config.BulkPartialFallbackZone() {
		for _, r := range c.pool.ClientsForReadExcluding(primary.ServerGroup()) {
			if len(remaining) == 0 {
				break
			}
			hits, ferr := c.bulkReadOne(ctx, remaining, r)
			err = ferr
			for ak, res := range hits {
				out[ak] = res
				hitKeys = append(hitKeys, ak)
				delete(remaining, ak)
			}
		}
	}

	return hitKeys, err
}

// bulkReadOne issues one bulk read against r for the keys in remaining
// and returns the subset that hit, keyed by application key.
func (c *Client) bulkReadOne(ctx context.Context, remaining map[string]key.NormalisedKey, r replica.Replica) (map[string]GetResult, error) {
	wireToApp := make(map[string]string, len(remaining))
	wireKeys := make([]string, 0, len(remaining))
	anyHashed := false
	for ak, nk := range remaining {
		wk := nk.DerivedKey(r.IsDuetClient())
		wireToApp[wk] = ak
		wireKeys = append(wireKeys, wk)
		if nk.IsHashed() {
			anyHashed = true
		}
	}

	results, err := r.GetBulk(ctx, wireKeys)
	if err != nil {
		return nil, err
	}

	hits := make(map[string]GetResult, len(results))
	for wk, res := range results {
		ak, ok := wireToApp[wk]
		if !ok || !res.Found {
			continue
		}
		nk := remaining[ak]
		if !anyHashed || !nk.IsHashed() {
			hits[ak] = GetResult{Found: true, Flags: res.Flags, Value: res.Value}
			continue
		}

		var env transcoder.Envelope
		if decodeErr := transcoder.EnvelopeTranscoder.Decode(res.Flags, res.Value, &env); decodeErr != nil {
			continue
		}
		if env.CanonicalKey != nk.CanonicalKey {
			c.incrCounter(ctx, "zonecache.internal_fail", metrics.Tags{Operation: string(event.CallGetBulk), Result: "KEY_HASH_COLLISION"})
			continue
		}
		hits[ak] = GetResult{Found: true, Flags: env.Flags, Value: env.PayloadBytes}
	}
	return hits, nil
}

func bulkStatus(order []string, out BulkResult) string {
	hitCount := 0
	for _, ak := range order {
		if out[ak].Found {
			hitCount++
		}
	}
	switch {
	case hitCount == 0:
		return "BMISS_ALL"
	case hitCount == len(order):
		return "BHIT"
	default:
		return "BHIT_PARTIAL"
	}
}

// fillMisses ensures every requested key has a map entry, mapped to a
// zero-value (not-found) GetResult. Only called for BMISS_ALL, per
// spec §4.7: a partial result's map contains only the keys that hit.
func fillMisses(order []string, out BulkResult) {
	for _, ak := range order {
		if _, ok := out[ak]; !ok {
			out[ak] = GetResult{}
		}
	}
}
