// Package zonecache implements the CORE request orchestrator: key
// normalisation through to per-replica fan-out, fallback, consistent
// reads, near-cache participation, and metrics emission. It is the
// concrete realization of components C6-C9 described in spec.md
// §2/§4, built on the collaborator packages pkg/key, pkg/pool,
// pkg/replica, pkg/transcoder, pkg/event, pkg/nearcache, pkg/metrics,
// pkg/config, and pkg/latch (which holds the Latch of §3.5).
package zonecache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cachemir/zonecache/pkg/config"
	"github.com/cachemir/zonecache/pkg/event"
	"github.com/cachemir/zonecache/pkg/key"
	"github.com/cachemir/zonecache/pkg/latch"
	"github.com/cachemir/zonecache/pkg/metrics"
	"github.com/cachemir/zonecache/pkg/nearcache"
	"github.com/cachemir/zonecache/pkg/pool"
	"github.com/cachemir/zonecache/pkg/transcoder"
)

// Client is the application-facing facade: one per (application,
// prefix) pair, matching spec.md's per-app/per-prefix configuration
// scoping.
type Client struct {
	application string
	prefix      string

	pool       pool.Pool
	config     *config.Properties
	bus        *event.Bus
	metrics    *metrics.Emitter
	transcoder transcoder.Transcoder
	nearCache  *nearcache.Cache
	log        *zap.Logger
}

// Config constructs a Client.
type Config struct {
	Application string
	Prefix      string
	Pool        pool.Pool
	Properties  *config.Properties // defaults to config.New(Application, Prefix) if nil
	Bus         *event.Bus         // defaults to an empty bus (no listeners) if nil
	Metrics     *metrics.Emitter   // metrics are skipped if nil
	Transcoder  transcoder.Transcoder // defaults to transcoder.Default{} if nil
	NearCacheTTL time.Duration     // near-cache entry TTL, defaults to 30s if zero; the near-cache exists only if Properties.UseInMemoryCache() is true at New
	Logger       *zap.Logger
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	props := cfg.Properties
	if props == nil {
		props = config.New(cfg.Application, cfg.Prefix)
	}
	bus := cfg.Bus
	if bus == nil {
		bus = event.NewBus()
	}
	tc := cfg.Transcoder
	if tc == nil {
		tc = transcoder.Default{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var nc *nearcache.Cache
	if props.UseInMemoryCache() {
		ttl := cfg.NearCacheTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		nc = nearcache.New(ttl)
	}

	return &Client{
		application: cfg.Application,
		prefix:      cfg.Prefix,
		pool:        cfg.Pool,
		config:      props,
		bus:         bus,
		metrics:     cfg.Metrics,
		transcoder:  tc,
		nearCache:   nc,
		log:         logger.With(zap.String("application", cfg.Application), zap.String("prefix", cfg.Prefix)),
	}
}

// keyOptions derives pkg/key.Options from the client's live configuration.
func (c *Client) keyOptions() key.Options {
	snap := c.config.Snapshot()
	return key.Options{
		Prefix:       c.prefix,
		MaxKeyLength: snap.MaxKeyLength,
		Algorithm:    key.Algorithm(snap.HashAlgo),
		ForceHash:    snap.HashKey,
		AutoHash:     snap.AutoHashKeys,
	}
}

func (c *Client) normalise(applicationKey string) (key.NormalisedKey, error) {
	nk, err := key.New(applicationKey, c.keyOptions())
	if err != nil {
		return key.NormalisedKey{}, ErrInvalidArgument(err.Error())
	}
	return nk, nil
}

// recordTimer is a no-op when the client has no metrics emitter, so
// callers never need a nil check at call sites.
func (c *Client) recordTimer(ctx context.Context, name string, d time.Duration, tags metrics.Tags) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordTimer(ctx, name, d, tags)
}

func (c *Client) incrCounter(ctx context.Context, name string, tags metrics.Tags) {
	if c.metrics == nil {
		return
	}
	c.metrics.IncrCounter(ctx, name, 1, tags)
}

func (c *Client) recordSummary(ctx context.Context, name string, value float64, tags metrics.Tags) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordSummary(ctx, name, value, tags)
}

// throwPolicy resolves the per-call "propagate errors instead of
// returning a zero value" policy: an explicit override wins, else the
// live configuration value.
func (c *Client) throwPolicy(override *bool) bool {
	if override != nil {
		return *override
	}
	return c.config.ThrowException()
}

// latchPolicyOrDefault resolves the consistent-read success policy
// option, defaulting to latch.PolicyOne (a normal single-value read,
// per spec §4.5's degrade-to-single-replica rule).
func latchPolicyOrDefault(p latch.Policy) latch.Policy {
	if p == "" {
		return latch.PolicyOne
	}
	return p
}
