package zonecache

import (
	"context"
	"sync"
	"time"

	"github.com/cachemir/zonecache/pkg/config"
	"github.com/cachemir/zonecache/pkg/event"
	"github.com/cachemir/zonecache/pkg/latch"
	"github.com/cachemir/zonecache/pkg/pool"
	"github.com/cachemir/zonecache/pkg/replica"
)

// countingReplica wraps a MemoryReplica and counts Get/GetBulk calls,
// so near-cache and fallback tests can assert on replica traffic
// instead of only on returned values.
type countingReplica struct {
	*replica.MemoryReplica

	mu       sync.Mutex
	gets     int
	bulkGets int
}

func newCountingReplica(serverGroup string) *countingReplica {
	return &countingReplica{MemoryReplica: replica.NewMemoryReplica(serverGroup, false)}
}

func (r *countingReplica) Get(ctx context.Context, wireKey string) (replica.Result, error) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()
	return r.MemoryReplica.Get(ctx, wireKey)
}

func (r *countingReplica) GetBulk(ctx context.Context, wireKeys []string) (map[string]replica.Result, error) {
	r.mu.Lock()
	r.bulkGets++
	r.mu.Unlock()
	return r.MemoryReplica.GetBulk(ctx, wireKeys)
}

func (r *countingReplica) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

// newTestPool builds a Static pool with one single-replica group per
// name, in the given order (first is primary).
func newTestPool(groupNames ...string) (*pool.Static, []replica.Replica) {
	groups := make([]pool.Group, 0, len(groupNames))
	replicas := make([]replica.Replica, 0, len(groupNames))
	for _, name := range groupNames {
		r := replica.NewMemoryReplica(name, false)
		replicas = append(replicas, r)
		groups = append(groups, pool.Group{Name: name, Replicas: []replica.Replica{r}})
	}
	return pool.New(pool.Config{
		Groups:           groups,
		SupportsFallback: true,
		ReadTimeout:      200 * time.Millisecond,
		OperationTimeout: 200 * time.Millisecond,
	}), replicas
}

func newTestClient(p pool.Pool, props *config.Properties) *Client {
	if props == nil {
		props = config.New("testapp", "testprefix")
	}
	return New(Config{
		Application: "testapp",
		Prefix:      "testprefix",
		Pool:        p,
		Properties:  props,
		Bus:         event.NewBus(),
	})
}

func boolPtr(b bool) *bool { return &b }

func awaitLatch(t interface{ Fatalf(string, ...any) }, l *latch.Latch, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := l.Await(ctx); err != nil {
		t.Fatalf("latch did not settle: %v", err)
	}
}
