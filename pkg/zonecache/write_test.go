package zonecache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cachemir/zonecache/pkg/event"
	"github.com/cachemir/zonecache/pkg/pool"
	"github.com/cachemir/zonecache/pkg/replica"
)

func TestSetFansOutToEveryWriteReplica(t *testing.T) {
	a := replica.NewMemoryReplica("a", false)
	b := replica.NewMemoryReplica("b", false)
	p := pool.New(pool.Config{
		Groups: []pool.Group{
			{Name: "a", Replicas: []replica.Replica{a}},
			{Name: "b", Replicas: []replica.Replica{b}},
		},
	})
	c := newTestClient(p, nil)
	ctx := context.Background()

	l, err := c.Set(ctx, "widget", "value", 0, nil, boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l, time.Second)
	require.True(t, l.Satisfied())

	ra, err := a.Get(ctx, "testprefix:widget")
	require.NoError(t, err)
	require.True(t, ra.Found)
	rb, err := b.Get(ctx, "testprefix:widget")
	require.NoError(t, err)
	require.True(t, rb.Found)
}

func TestSetRejectsInvalidTTL(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)

	_, err := c.Set(context.Background(), "widget", "value", -1, nil, boolPtr(true))
	require.Error(t, err)
	fault, ok := err.(Fault)
	require.True(t, ok)
	require.Equal(t, KindInvalidTTL, fault.Kind())
}

func TestAddFailsWhenKeyAlreadyExists(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)
	ctx := context.Background()

	l1, err := c.Add(ctx, "widget", "first", 0, nil, boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l1, time.Second)
	require.True(t, l1.Satisfied())

	l2, err := c.Add(ctx, "widget", "second", 0, nil, boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l2, time.Second)
	require.False(t, l2.Satisfied(), "Add against an existing key must fail the latch")
}

func TestDeleteRemovesKeyFromEveryReplica(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)
	setAndAwait(t, c, "widget", "value", 0)

	l, err := c.Delete(context.Background(), "widget", boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l, time.Second)

	res, err := c.Get(context.Background(), "widget", boolPtr(true))
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestTouchRejectsInvalidTTLBeforeFanOut(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)

	_, err := c.Touch(context.Background(), "widget", -5, boolPtr(true))
	require.Error(t, err)
	fault, ok := err.(Fault)
	require.True(t, ok)
	require.Equal(t, KindInvalidTTL, fault.Kind())
}

func TestIncrSeedsInitialValue(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)

	current, l, err := c.Incr(context.Background(), "counter", 1, 10, boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l, time.Second)
	require.Equal(t, int64(10), current)
}

func TestIncrConvergesDivergentReplicas(t *testing.T) {
	a := replica.NewMemoryReplica("a", false)
	b := replica.NewMemoryReplica("b", false)
	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "testprefix:counter", 0, []byte("5"), 0, nil))
	require.NoError(t, b.Set(ctx, "testprefix:counter", 0, []byte("2"), 0, nil))

	p := pool.New(pool.Config{
		Groups: []pool.Group{
			{Name: "a", Replicas: []replica.Replica{a}},
			{Name: "b", Replicas: []replica.Replica{b}},
		},
	})
	c := newTestClient(p, nil)

	current, l, err := c.Incr(ctx, "counter", 1, 0, boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l, time.Second)
	require.Equal(t, int64(6), current, "highest observed value (5) plus delta (1) wins")

	time.Sleep(50 * time.Millisecond)
	ra, err := a.Get(ctx, "testprefix:counter")
	require.NoError(t, err)
	rb, err := b.Get(ctx, "testprefix:counter")
	require.NoError(t, err)
	require.Equal(t, string(ra.Value), string(rb.Value), "replicas should converge to the same counter value")
}

func TestIncrConvergesSentinelReplica(t *testing.T) {
	a := replica.NewMemoryReplica("a", false)
	b := replica.NewMemoryReplica("b", false)
	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "testprefix:counter", 0, []byte("5"), 0, nil))
	// b has no prior counter for this key; its Incr call reports the -1
	// sentinel (replica.CounterResult) instead of a delta result.

	p := pool.New(pool.Config{
		Groups: []pool.Group{
			{Name: "a", Replicas: []replica.Replica{a}},
			{Name: "b", Replicas: []replica.Replica{b}},
		},
	})
	c := newTestClient(p, nil)

	current, l, err := c.Incr(ctx, "counter", 1, -1, boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l, time.Second)
	require.Equal(t, int64(6), current, "a's existing value (5) plus delta (1) wins over b's sentinel")

	time.Sleep(50 * time.Millisecond)
	rb, err := b.Get(ctx, "testprefix:counter")
	require.NoError(t, err)
	require.True(t, rb.Found, "a sentinel-reporting replica must be converged to the majority value, not left unset")
	require.Equal(t, "6", string(rb.Value))
}

func TestWriteOnlyReplicasDoNotCountTowardLatch(t *testing.T) {
	counted := replica.NewMemoryReplica("counted", false)
	writeOnly := replica.NewMemoryReplica("writeOnly", false)
	p := pool.New(pool.Config{
		Groups: []pool.Group{
			{Name: "counted", Replicas: []replica.Replica{counted}},
			{Name: "writeOnly", Replicas: []replica.Replica{writeOnly}, WriteOnly: true},
		},
	})
	c := newTestClient(p, nil)
	ctx := context.Background()

	l, err := c.Set(ctx, "widget", "value", 0, nil, boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l, time.Second)
	require.Equal(t, 1, l.Total(), "write-only replicas must not be part of the success denominator")

	time.Sleep(50 * time.Millisecond)
	rw, err := writeOnly.Get(ctx, "testprefix:widget")
	require.NoError(t, err)
	require.True(t, rw.Found, "write-only replicas still receive the fan-out call")
}

func TestPrepareFanOutFailsFastWhenNoWriteReplicas(t *testing.T) {
	p := pool.New(pool.Config{})
	c := newTestClient(p, nil)

	_, err := c.Set(context.Background(), "widget", "value", 0, nil, boolPtr(true))
	require.Error(t, err)
	fault, ok := err.(Fault)
	require.True(t, ok)
	require.Equal(t, KindNullClient, fault.Kind())
}

type completeCounter struct{ completes int32 }

func (l *completeCounter) OnThrottle(ctx context.Context, ev *event.Event) bool { return false }
func (l *completeCounter) OnStart(ctx context.Context, ev *event.Event)         {}
func (l *completeCounter) OnComplete(ctx context.Context, ev *event.Event) {
	atomic.AddInt32(&l.completes, 1)
}
func (l *completeCounter) OnError(ctx context.Context, ev *event.Event, err error) {}

func TestEventsUsingLatchCompletesEventOnSatisfaction(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)
	c.config.SetEventsUsingLatch(true)
	listener := &completeCounter{}
	c.bus = event.NewBus(listener)

	l, err := c.Set(context.Background(), "widget", "value", 0, nil, boolPtr(true))
	require.NoError(t, err)
	require.NotNil(t, l)
	awaitLatch(t, l, time.Second)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&listener.completes) == 1 }, time.Second, 10*time.Millisecond)
}
