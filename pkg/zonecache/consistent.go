package zonecache

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/cachemir/zonecache/pkg/event"
	"github.com/cachemir/zonecache/pkg/key"
	"github.com/cachemir/zonecache/pkg/latch"
	"github.com/cachemir/zonecache/pkg/metrics"
	"github.com/cachemir/zonecache/pkg/replica"
	"github.com/cachemir/zonecache/pkg/transcoder"
)

// minAsyncWait is the floor on the remaining read-timeout budget the
// consistent read applies to each per-replica future (spec §4.5/§5).
const minAsyncWait = 20 * time.Millisecond

// ConsistentGet performs the consistent-read orchestrator of spec
// §4.5: read every write replica in parallel, bucket the non-null
// results by equality, and return the value of the first bucket whose
// size meets policy's required-success threshold, repairing (by
// delete) every other bucket's members. If policy's threshold is ≤ 1,
// this degrades to a normal single-replica Get.
func (c *Client) ConsistentGet(ctx context.Context, applicationKey string, policy latch.Policy, throw *bool) (GetResult, error) {
	policy = latchPolicyOrDefault(policy)

	replicas := c.pool.ClientsForWrite()
	required := latch.RequiredSuccesses(policy, len(replicas))
	if required <= 1 {
		return c.Get(ctx, applicationKey, throw)
	}

	nk, err := c.normalise(applicationKey)
	if err != nil {
		return GetResult{}, c.throwOrZero(err, throw)
	}

	ev := c.bus.Create(event.CallConsistentGet, c.application, c.prefix, []string{nk.CanonicalKey})
	if c.bus.Throttle(ctx, ev) {
		return GetResult{}, ErrThrottled()
	}
	c.bus.Start(ctx, ev)

	start := time.Now()
	deadline := start.Add(c.pool.ReadTimeout())
	waitCtx, cancel := context.WithDeadline(ctx, maxTime(deadline, start.Add(minAsyncWait)))
	defer cancel()

	buckets := c.collectBuckets(waitCtx, nk, replicas)
	winner, winningReplicas, found := pickWinningBucket(buckets, required)

	c.repairMinorityBuckets(nk, buckets, winningReplicas)

	duration := time.Since(start)
	status := "CMISS"
	if found {
		status = "CHIT"
	}
	if ev != nil {
		ev.Status = status
	}
	c.recordTimer(ctx, "zonecache.overall_call", duration, metrics.Tags{
		Operation:     string(event.CallConsistentGet),
		OperationType: "CONSISTENT_READ",
		Result:        "SUCCESS",
		Hit:           found,
	})
	c.bus.Complete(ctx, ev)

	if !found {
		return GetResult{}, nil
	}
	return winner, nil
}

type bucketEntry struct {
	value GetResult
	r     replica.Replica
}

// collectBuckets issues one async read per replica and groups the
// non-null results by equal (flags, bytes) value.
func (c *Client) collectBuckets(ctx context.Context, nk key.NormalisedKey, replicas []replica.Replica) map[string][]bucketEntry {
	type reply struct {
		r   replica.Replica
		res GetResult
		ok  bool
	}
	results := make(chan reply, len(replicas))

	for _, r := range replicas {
		go func(r replica.Replica) {
			resCh, errCh := r.AsyncGet(ctx, nk.DerivedKey(r.IsDuetClient()))
			select {
			case res := <-resCh:
				gr, ok := c.decodeConsistentResult(nk, res)
				results <- reply{r: r, res: gr, ok: ok}
			case <-errCh:
				results <- reply{r: r, ok: false}
			case <-ctx.Done():
				results <- reply{r: r, ok: false}
			}
		}(r)
	}

	buckets := make(map[string][]bucketEntry)
	for range replicas {
		rep := <-results
		if !rep.ok {
			continue
		}
		k := bucketKey(rep.res)
		buckets[k] = append(buckets[k], bucketEntry{value: rep.res, r: rep.r})
	}
	return buckets
}

func (c *Client) decodeConsistentResult(nk key.NormalisedKey, res replica.Result) (GetResult, bool) {
	if !res.Found {
		return GetResult{}, false
	}
	if !nk.IsHashed() {
		return GetResult{Found: true, Flags: res.Flags, Value: res.Value}, true
	}
	var env transcoder.Envelope
	if err := transcoder.EnvelopeTranscoder.Decode(res.Flags, res.Value, &env); err != nil {
		return GetResult{}, false
	}
	if env.CanonicalKey != nk.CanonicalKey {
		return GetResult{}, false
	}
	return GetResult{Found: true, Flags: env.Flags, Value: env.PayloadBytes}, true
}

// bucketKey composes a comparable map key from a GetResult's value,
// since []byte (and so GetResult itself) is not comparable.
func bucketKey(gr GetResult) string {
	return strconv.FormatUint(uint64(gr.Flags), 16) + ":" + string(gr.Value)
}

type bucketCandidate struct {
	key     string
	entries []bucketEntry
}

// pickWinningBucket returns the first bucket whose size meets
// required, its member replicas, and whether a winner was found.
// Go's map iteration order is randomized, so buckets are sorted by
// (size desc, key asc) before selection, making the choice
// deterministic and testable — resolving the open question the spec
// leaves implementation-defined (see DESIGN.md).
func pickWinningBucket(buckets map[string][]bucketEntry, required int) (GetResult, map[replica.Replica]bool, bool) {
	candidates := make([]bucketCandidate, 0, len(buckets))
	for k, entries := range buckets {
		candidates = append(candidates, bucketCandidate{key: k, entries: entries})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i].entries) != len(candidates[j].entries) {
			return len(candidates[i].entries) > len(candidates[j].entries)
		}
		return candidates[i].key < candidates[j].key
	})

	for _, cand := range candidates {
		if len(cand.entries) >= required {
			winners := make(map[replica.Replica]bool, len(cand.entries))
			for _, e := range cand.entries {
				winners[e.r] = true
			}
			return cand.entries[0].value, winners, true
		}
	}
	return GetResult{}, nil, false
}

// repairMinorityBuckets issues a best-effort delete against every
// replica that is not in the winning set (spec §4.5). Repair is
// fire-and-forget and does not affect the call's outcome.
func (c *Client) repairMinorityBuckets(nk key.NormalisedKey, buckets map[string][]bucketEntry, winners map[replica.Replica]bool) {
	for _, entries := range buckets {
		for _, e := range entries {
			if winners[e.r] {
				continue
			}
			go func(r replica.Replica) {
				_ = r.Delete(context.Background(), nk.DerivedKey(r.IsDuetClient()), nil)
			}(e.r)
		}
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
