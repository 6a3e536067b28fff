package replica

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cachemir/zonecache/pkg/latch"
)

type memoryEntry struct {
	flags      uint32
	value      []byte
	expiresAt  time.Time // zero means no expiry
	lastAccess time.Time
	hitBefore  bool
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryReplica is an in-process Replica double backed by a map. It is
// used by the orchestrator's own tests, by cmd/zonecache-bench, and by
// internal/memberd's example membership table. It is adapted from the
// teacher's pkg/cache in-memory store rather than its TCP client,
// since it never touches the network.
type MemoryReplica struct {
	serverGroup string
	duet        bool

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryReplica constructs an empty MemoryReplica for serverGroup.
func NewMemoryReplica(serverGroup string, isDuetClient bool) *MemoryReplica {
	return &MemoryReplica{
		serverGroup: serverGroup,
		duet:        isDuetClient,
		entries:     make(map[string]memoryEntry),
	}
}

func (r *MemoryReplica) ServerGroup() string { return r.serverGroup }
func (r *MemoryReplica) IsDuetClient() bool  { return r.duet }

func (r *MemoryReplica) Get(_ context.Context, wireKey string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(wireKey)
}

func (r *MemoryReplica) getLocked(wireKey string) (Result, error) {
	e, ok := r.entries[wireKey]
	now := time.Now()
	if !ok || e.expired(now) {
		if ok {
			delete(r.entries, wireKey)
		}
		return Result{Found: false}, nil
	}
	e.lastAccess = now
	e.hitBefore = true
	r.entries[wireKey] = e
	return Result{Found: true, Flags: e.flags, Value: e.value}, nil
}

func (r *MemoryReplica) GetBulk(ctx context.Context, wireKeys []string) (map[string]Result, error) {
	out := make(map[string]Result, len(wireKeys))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range wireKeys {
		res, _ := r.getLocked(k)
		if res.Found {
			out[k] = res
		}
	}
	return out, nil
}

func (r *MemoryReplica) AsyncGet(ctx context.Context, wireKey string) (<-chan Result, <-chan error) {
	resultCh := make(chan Result, 1)
	errCh := make(chan error, 1)
	res, err := r.Get(ctx, wireKey)
	if err != nil {
		errCh <- err
	} else {
		resultCh <- res
	}
	return resultCh, errCh
}

func (r *MemoryReplica) MetaGet(ctx context.Context, wireKey string, flags uint8) (MetaResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[wireKey]
	now := time.Now()
	if !ok || e.expired(now) {
		return MetaResult{}, nil
	}
	remaining := int64(-1)
	if !e.expiresAt.IsZero() {
		remaining = int64(e.expiresAt.Sub(now).Seconds())
	}
	result := MetaResult{
		Result:            Result{Found: true, Flags: e.flags, Value: e.value},
		TTL:               remaining,
		LastAccessSeconds: e.lastAccess.Unix(),
		HitBefore:         e.hitBefore,
	}
	e.lastAccess = now
	e.hitBefore = true
	r.entries[wireKey] = e
	return result, nil
}

func (r *MemoryReplica) MetaDebug(ctx context.Context, wireKey string) (map[string]string, error) {
	mr, err := r.MetaGet(ctx, wireKey, 0)
	if err != nil || !mr.Found {
		return nil, err
	}
	hv := "0"
	if mr.HitBefore {
		hv = "1"
	}
	return map[string]string{
		"la": fmt.Sprintf("%d", mr.LastAccessSeconds),
		"hv": hv,
	}, nil
}

func (r *MemoryReplica) store(wireKey string, flags uint32, value []byte, ttl int64) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(time.Duration(ttl) * time.Second)
	}
	r.entries[wireKey] = memoryEntry{flags: flags, value: value, expiresAt: expiresAt}
}

func (r *MemoryReplica) Set(_ context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error {
	r.mu.Lock()
	r.store(wireKey, flags, value, ttl)
	r.mu.Unlock()
	markLatch(l, nil)
	return nil
}

func (r *MemoryReplica) Add(_ context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[wireKey]; ok && !e.expired(time.Now()) {
		err := fmt.Errorf("replica: key already exists")
		markLatch(l, err)
		return err
	}
	r.store(wireKey, flags, value, ttl)
	markLatch(l, nil)
	return nil
}

func (r *MemoryReplica) Replace(_ context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[wireKey]
	if !ok || e.expired(time.Now()) {
		err := fmt.Errorf("replica: key does not exist")
		markLatch(l, err)
		return err
	}
	r.store(wireKey, flags, value, ttl)
	markLatch(l, nil)
	return nil
}

func (r *MemoryReplica) Append(_ context.Context, wireKey string, value []byte, l *latch.Latch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[wireKey]
	if !ok || e.expired(time.Now()) {
		err := fmt.Errorf("replica: key does not exist")
		markLatch(l, err)
		return err
	}
	e.value = append(e.value, value...)
	r.entries[wireKey] = e
	markLatch(l, nil)
	return nil
}

func (r *MemoryReplica) AppendOrAdd(_ context.Context, wireKey string, flags uint32, value []byte, ttl int64, l *latch.Latch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[wireKey]
	if ok && !e.expired(time.Now()) {
		e.value = append(e.value, value...)
		r.entries[wireKey] = e
	} else {
		r.store(wireKey, flags, value, ttl)
	}
	markLatch(l, nil)
	return nil
}

func (r *MemoryReplica) Delete(_ context.Context, wireKey string, l *latch.Latch) error {
	r.mu.Lock()
	delete(r.entries, wireKey)
	r.mu.Unlock()
	markLatch(l, nil)
	return nil
}

func (r *MemoryReplica) Touch(_ context.Context, wireKey string, ttl int64, l *latch.Latch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[wireKey]
	if !ok || e.expired(time.Now()) {
		err := fmt.Errorf("replica: key does not exist")
		markLatch(l, err)
		return err
	}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(time.Duration(ttl) * time.Second)
	} else {
		e.expiresAt = time.Time{}
	}
	r.entries[wireKey] = e
	markLatch(l, nil)
	return nil
}

func (r *MemoryReplica) Incr(ctx context.Context, wireKey string, delta int64, initial int64, l *latch.Latch) (CounterResult, error) {
	return r.addDelta(wireKey, delta, initial, l)
}

func (r *MemoryReplica) Decr(ctx context.Context, wireKey string, delta int64, initial int64, l *latch.Latch) (CounterResult, error) {
	return r.addDelta(wireKey, -delta, initial, l)
}

func (r *MemoryReplica) addDelta(wireKey string, delta int64, initial int64, l *latch.Latch) (CounterResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[wireKey]
	if !ok || e.expired(time.Now()) {
		if initial < 0 {
			markLatch(l, nil)
			return CounterResult{Value: -1}, nil
		}
		r.store(wireKey, 0, []byte(fmt.Sprintf("%d", initial)), 0)
		markLatch(l, nil)
		return CounterResult{Value: initial}, nil
	}

	var current int64
	_, _ = fmt.Sscanf(string(e.value), "%d", &current)
	current += delta
	if current < 0 {
		current = 0
	}
	e.value = []byte(fmt.Sprintf("%d", current))
	r.entries[wireKey] = e
	markLatch(l, nil)
	return CounterResult{Value: current}, nil
}
