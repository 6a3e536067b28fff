package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/cachemir/zonecache/pkg/replica"
)

// rendezvousRing picks among a fixed set of same-group replicas using
// highest-random-weight (rendezvous) hashing keyed on a monotonically
// increasing call counter, the way the teacher's ConsistentHash picks
// a node for a key — except the "key" here is a call sequence number,
// since every replica in a group serves the same keyspace.
type rendezvousRing struct {
	replicas []replica.Replica
	counter  atomic.Uint64
}

func newRendezvousRing(replicas []replica.Replica) *rendezvousRing {
	return &rendezvousRing{replicas: replicas}
}

func (r *rendezvousRing) pick() replica.Replica {
	if len(r.replicas) == 0 {
		return nil
	}
	if len(r.replicas) == 1 {
		return r.replicas[0]
	}

	seq := r.counter.Add(1)
	var best replica.Replica
	var bestWeight uint64
	for i, candidate := range r.replicas {
		weight := xxhash.Sum64String(fmt.Sprintf("%d:%d", seq, i))
		if best == nil || weight > bestWeight {
			best = candidate
			bestWeight = weight
		}
	}
	return best
}
