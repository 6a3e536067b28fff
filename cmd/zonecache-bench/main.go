// Command zonecache-bench is a runnable driver that exercises most
// public zonecache.Client operations (all but GetAndTouch, AppendOrAdd
// and GetBulkAndTouch) against an in-process cluster of
// replica.MemoryReplica nodes wired together through internal/memberd,
// in place of a real server-group deployment. It plays the same role
// the teacher's cmd/client-example and examples/simple_usage.go play:
// a readable, end-to-end demonstration of the client surface, not a
// load-testing tool despite the name.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/cachemir/zonecache/internal/memberd"
	"github.com/cachemir/zonecache/pkg/config"
	"github.com/cachemir/zonecache/pkg/event"
	"github.com/cachemir/zonecache/pkg/latch"
	"github.com/cachemir/zonecache/pkg/metrics"
	"github.com/cachemir/zonecache/pkg/pool"
	"github.com/cachemir/zonecache/pkg/replica"
	"github.com/cachemir/zonecache/pkg/zonecache"
)

func main() {
	application := flag.String("application", "zonecache-bench", "application name reported in metrics and logs")
	prefix := flag.String("prefix", "bench", "key prefix applied to every key this driver touches")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	table := buildCluster()
	logger.Info("cluster assembled", zap.String("groups", table.String()))

	c := buildClient(*application, *prefix, table, logger)
	ctx := context.Background()

	runStringOperations(ctx, logger, c)
	runExpiration(ctx, logger, c)
	runCounters(ctx, logger, c)
	runBulk(ctx, logger, c)
	runConsistentRead(ctx, logger, c, table)
	runDiagnostics(ctx, logger, c)
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level.SetLevel(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		// zap.NewDevelopmentConfig().Build() only fails on a malformed
		// encoder config, which this driver never supplies.
		panic(err)
	}
	return logger
}

// buildCluster stands up a three-group topology -- a primary group,
// a fallback group, and a write-only "duet" group that receives
// fan-out writes but is never read from -- entirely with in-memory
// replicas. A real deployment would register TCP endpoints here via
// replica.NewTCPReplica instead.
func buildCluster() *memberd.Table {
	table := memberd.New()
	table.Register("primary", "mem-primary-1:0", replica.NewMemoryReplica("primary", false), false)
	table.Register("primary", "mem-primary-2:0", replica.NewMemoryReplica("primary", false), false)
	table.Register("fallback", "mem-fallback-1:0", replica.NewMemoryReplica("fallback", false), false)
	table.Register("duet", "mem-duet-1:0", replica.NewMemoryReplica("duet", true), true)
	return table
}

func buildClient(application, prefix string, table *memberd.Table, logger *zap.Logger) *zonecache.Client {
	p := pool.New(pool.Config{
		Groups:           table.Groups(),
		ReadTimeout:      500 * time.Millisecond,
		OperationTimeout: time.Second,
		SupportsFallback: true,
	})

	props := config.New(application, prefix)
	props.SetUseInMemoryCache(true)

	bus := event.NewBus(&loggingListener{log: logger})
	emitter := metrics.New(noop.NewMeterProvider().Meter("zonecache-bench"))

	return zonecache.New(zonecache.Config{
		Application:  application,
		Prefix:       prefix,
		Pool:         p,
		Properties:   props,
		Bus:          bus,
		Metrics:      emitter,
		NearCacheTTL: 10 * time.Second,
		Logger:       logger,
	})
}

// loggingListener narrates orchestrator lifecycle events at debug
// level, giving -verbose runs visibility into fan-out without
// requiring a real metrics backend.
type loggingListener struct {
	log *zap.Logger
}

func (l *loggingListener) OnThrottle(_ context.Context, ev *event.Event) bool {
	return false
}

func (l *loggingListener) OnStart(_ context.Context, ev *event.Event) {
	l.log.Debug("call started", zap.String("call", string(ev.Call)), zap.Strings("keys", ev.Keys))
}

func (l *loggingListener) OnComplete(_ context.Context, ev *event.Event) {
	l.log.Debug("call completed", zap.String("call", string(ev.Call)), zap.Strings("keys", ev.Keys))
}

func (l *loggingListener) OnError(_ context.Context, ev *event.Event, err error) {
	l.log.Warn("call errored", zap.String("call", string(ev.Call)), zap.Strings("keys", ev.Keys), zap.Error(err))
}

func await(ctx context.Context, logger *zap.Logger, op string, l *latch.Latch, err error) {
	if err != nil {
		logger.Error(op, zap.Error(err))
		return
	}
	if l == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if awaitErr := l.Await(waitCtx); awaitErr != nil {
		logger.Warn(op+" latch did not close in time", zap.Error(awaitErr))
		return
	}
	logger.Info(op, zap.Bool("satisfied", l.Satisfied()), zap.Int("successes_required", l.Required()), zap.Int("total", l.Total()))
}

func runStringOperations(ctx context.Context, logger *zap.Logger, c *zonecache.Client) {
	logger.Info("--- string operations ---")

	l, err := c.Set(ctx, "greeting", "hello, zonecache", 0, nil, boolPtr(true))
	await(ctx, logger, "SET greeting", l, err)

	res, err := c.Get(ctx, "greeting", boolPtr(true))
	if err != nil {
		logger.Error("GET greeting", zap.Error(err))
	} else {
		logger.Info("GET greeting", zap.Bool("found", res.Found), zap.ByteString("value", res.Value))
	}

	l, err = c.Add(ctx, "greeting", "should not overwrite", 0, nil, boolPtr(true))
	await(ctx, logger, "ADD greeting (expected to fail)", l, err)

	l, err = c.Replace(ctx, "greeting", "hello again, zonecache", 0, nil, boolPtr(true))
	await(ctx, logger, "REPLACE greeting", l, err)

	l, err = c.Append(ctx, "greeting", "!", nil, boolPtr(true))
	await(ctx, logger, "APPEND greeting", l, err)
}

func runExpiration(ctx context.Context, logger *zap.Logger, c *zonecache.Client) {
	logger.Info("--- expiration ---")

	l, err := c.Set(ctx, "ephemeral", "fleeting", 1, nil, boolPtr(true))
	await(ctx, logger, "SET ephemeral ttl=1s", l, err)

	mr, err := c.MetaGet(ctx, "ephemeral", true, false, false, boolPtr(true))
	if err != nil {
		logger.Error("META_GET ephemeral", zap.Error(err))
	} else {
		logger.Info("META_GET ephemeral", zap.Bool("found", mr.Found), zap.Int64("ttl", mr.TTL))
	}

	l, err = c.Touch(ctx, "ephemeral", 120, boolPtr(true))
	await(ctx, logger, "TOUCH ephemeral ttl=120s", l, err)

	l, err = c.Delete(ctx, "ephemeral", boolPtr(true))
	await(ctx, logger, "DELETE ephemeral", l, err)
}

func runCounters(ctx context.Context, logger *zap.Logger, c *zonecache.Client) {
	logger.Info("--- counters ---")

	current, l, err := c.Incr(ctx, "visits", 1, 0, boolPtr(true))
	await(ctx, logger, "INCR visits", l, err)
	logger.Info("INCR visits", zap.Int64("current", current))

	current, l, err = c.Incr(ctx, "visits", 4, 0, boolPtr(true))
	await(ctx, logger, "INCR visits by 4", l, err)
	logger.Info("INCR visits by 4", zap.Int64("current", current))

	current, l, err = c.Decr(ctx, "visits", 2, 0, boolPtr(true))
	await(ctx, logger, "DECR visits by 2", l, err)
	logger.Info("DECR visits by 2", zap.Int64("current", current))
}

func runBulk(ctx context.Context, logger *zap.Logger, c *zonecache.Client) {
	logger.Info("--- bulk read ---")

	keys := []string{"bulk-a", "bulk-b", "bulk-c"}
	for i, k := range keys {
		l, err := c.Set(ctx, k, fmt.Sprintf("value-%d", i), 0, nil, boolPtr(true))
		await(ctx, logger, "SET "+k, l, err)
	}

	results, err := c.GetBulk(ctx, append(keys, "bulk-missing"), boolPtr(true))
	if err != nil {
		logger.Error("GET_BULK", zap.Error(err))
		return
	}
	for _, k := range keys {
		logger.Info("GET_BULK", zap.String("key", k), zap.Bool("found", results[k].Found), zap.ByteString("value", results[k].Value))
	}
	if _, ok := results["bulk-missing"]; !ok {
		logger.Info("GET_BULK", zap.String("key", "bulk-missing"), zap.Bool("found", false))
	}
}

func runConsistentRead(ctx context.Context, logger *zap.Logger, c *zonecache.Client, table *memberd.Table) {
	logger.Info("--- consistent read ---")

	l, err := c.Set(ctx, "quorum-key", "agreed-value", 0, nil, boolPtr(true))
	await(ctx, logger, "SET quorum-key", l, err)

	res, err := c.ConsistentGet(ctx, "quorum-key", latch.PolicyQuorum, boolPtr(true))
	if err != nil {
		logger.Error("CONSISTENT_GET quorum-key", zap.Error(err))
	} else {
		logger.Info("CONSISTENT_GET quorum-key", zap.Bool("found", res.Found), zap.ByteString("value", res.Value))
	}

	if target, ok := table.RouteTo("primary", "quorum-key"); ok {
		logger.Debug("sticky routing would send quorum-key to", zap.Any("replica", target))
	}
}

func runDiagnostics(ctx context.Context, logger *zap.Logger, c *zonecache.Client) {
	logger.Info("--- diagnostics ---")

	l, err := c.Set(ctx, "diag-key", "diag-value", 300, nil, boolPtr(true))
	await(ctx, logger, "SET diag-key", l, err)

	fields, err := c.MetaDebug(ctx, "diag-key")
	if err != nil {
		logger.Error("META_DEBUG diag-key", zap.Error(err))
		return
	}
	logger.Info("META_DEBUG diag-key", zap.Any("fields", fields))
}

func boolPtr(b bool) *bool { return &b }
