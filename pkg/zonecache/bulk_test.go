package zonecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cachemir/zonecache/pkg/config"
	"github.com/cachemir/zonecache/pkg/pool"
	"github.com/cachemir/zonecache/pkg/replica"
)

func setAndAwait(t *testing.T, c *Client, key string, value any, ttl int64) {
	t.Helper()
	l, err := c.Set(context.Background(), key, value, ttl, nil, boolPtr(true))
	require.NoError(t, err)
	awaitLatch(t, l, time.Second)
}

func TestGetBulkFullHit(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)
	setAndAwait(t, c, "a", "1", 0)
	setAndAwait(t, c, "b", "2", 0)

	out, err := c.GetBulk(context.Background(), []string{"a", "b"}, boolPtr(true))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "1", string(out["a"].Value))
	require.Equal(t, "2", string(out["b"].Value))
}

func TestGetBulkPartialHitOmitsMissingKeys(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)
	setAndAwait(t, c, "a", "1", 0)

	out, err := c.GetBulk(context.Background(), []string{"a", "b"}, boolPtr(true))
	require.NoError(t, err)
	require.Len(t, out, 1, "BHIT_PARTIAL must not fill unresolved keys")
	require.Contains(t, out, "a")
	require.NotContains(t, out, "b")
}

func TestGetBulkFullMissFillsEveryKey(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)

	out, err := c.GetBulk(context.Background(), []string{"a", "b"}, boolPtr(true))
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.False(t, out["a"].Found)
	require.False(t, out["b"].Found)
}

func TestGetBulkFallsBackOnFullMiss(t *testing.T) {
	primary := replica.NewMemoryReplica("primary", false)
	fallback := replica.NewMemoryReplica("fallback", false)
	p := pool.New(pool.Config{
		Groups: []pool.Group{
			{Name: "primary", Replicas: []replica.Replica{primary}},
			{Name: "fallback", Replicas: []replica.Replica{fallback}},
		},
		SupportsFallback: true,
	})
	c := newTestClient(p, nil)
	ctx := context.Background()
	require.NoError(t, fallback.Set(ctx, "testprefix:a", 0, []byte("from-fallback"), 0, nil))

	out, err := c.GetBulk(ctx, []string{"a"}, boolPtr(true))
	require.NoError(t, err)
	require.True(t, out["a"].Found)
	require.Equal(t, "from-fallback", string(out["a"].Value))
}

func TestGetBulkPartialFallbackFillsRemainder(t *testing.T) {
	primary := replica.NewMemoryReplica("primary", false)
	fallback := replica.NewMemoryReplica("fallback", false)
	p := pool.New(pool.Config{
		Groups: []pool.Group{
			{Name: "primary", Replicas: []replica.Replica{primary}},
			{Name: "fallback", Replicas: []replica.Replica{fallback}},
		},
		SupportsFallback: true,
	})
	c := newTestClient(p, nil)
	ctx := context.Background()
	require.NoError(t, primary.Set(ctx, "testprefix:a", 0, []byte("from-primary"), 0, nil))
	require.NoError(t, fallback.Set(ctx, "testprefix:b", 0, []byte("from-fallback"), 0, nil))

	out, err := c.GetBulk(ctx, []string{"a", "b"}, boolPtr(true))
	require.NoError(t, err)
	require.True(t, out["a"].Found)
	require.True(t, out["b"].Found)
	require.Equal(t, "from-primary", string(out["a"].Value))
	require.Equal(t, "from-fallback", string(out["b"].Value))
}

func TestGetBulkDoesNotPartialFallbackWhenDisabled(t *testing.T) {
	primary := replica.NewMemoryReplica("primary", false)
	fallback := replica.NewMemoryReplica("fallback", false)
	p := pool.New(pool.Config{
		Groups: []pool.Group{
			{Name: "primary", Replicas: []replica.Replica{primary}},
			{Name: "fallback", Replicas: []replica.Replica{fallback}},
		},
		SupportsFallback: true,
	})
	props := config.New("testapp", "testprefix")
	props.SetBulkPartialFallbackZone(false)
	c := newTestClient(p, props)
	ctx := context.Background()
	require.NoError(t, primary.Set(ctx, "testprefix:a", 0, []byte("from-primary"), 0, nil))
	require.NoError(t, fallback.Set(ctx, "testprefix:b", 0, []byte("from-fallback"), 0, nil))

	out, err := c.GetBulk(ctx, []string{"a", "b"}, boolPtr(true))
	require.NoError(t, err)
	require.True(t, out["a"].Found)
	require.NotContains(t, out, "b")
}

func TestGetBulkAndTouchFansOutToWriteReplicas(t *testing.T) {
	p, replicas := newTestPool("primary")
	c := newTestClient(p, nil)
	setAndAwait(t, c, "a", "1", 300)

	out, err := c.GetBulkAndTouch(context.Background(), []string{"a"}, 600, boolPtr(true))
	require.NoError(t, err)
	require.True(t, out["a"].Found)
	require.Eventually(t, func() bool {
		mr, err := replicas[0].MetaGet(context.Background(), "testprefix:a", 0)
		return err == nil && mr.Found && mr.TTL > 300
	}, time.Second, 10*time.Millisecond)
}

func TestGetBulkEmptyInputReturnsEmptyMap(t *testing.T) {
	p, _ := newTestPool("primary")
	c := newTestClient(p, nil)

	out, err := c.GetBulk(context.Background(), nil, boolPtr(true))
	require.NoError(t, err)
	require.Empty(t, out)
}
