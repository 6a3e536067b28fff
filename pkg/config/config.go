// Package config implements the live-reloadable configuration
// properties of spec §6.2: atomically-updated scalar cells seeded from
// environment variables, generalizing the teacher's flag+env-var
// ClientConfig into values that may change between calls without
// restarting the process.
//
// Environment variables are prefixed "ZONECACHE_<APP>_", mirroring the
// teacher's "CACHEMIR_" convention (pkg/config/config.go in the
// cachemir teacher repo). A per-prefix variable, when set, takes
// precedence over the per-application one, matching spec.md's
// "<app>.<prefix>.X" / "<app>.X" option naming.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Defaults per spec §6.2.
const (
	DefaultMaxKeyLength = 200
	DefaultHashAlgo     = "siphash24"
)

// Properties holds one application's live-reloadable settings. All
// accessors are safe for concurrent use; a Set call may race with a
// concurrent Get from an in-flight orchestrator call — the same
// tradeoff the teacher's env-seeded ClientConfig makes, just without
// reload.
type Properties struct {
	application string
	prefix      string

	throwException           atomic.Bool
	fallbackZone              atomic.Bool
	bulkFallbackZone          atomic.Bool
	bulkPartialFallbackZone   atomic.Bool
	useInMemoryCache          atomic.Bool
	eventsUsingLatch          atomic.Bool
	ignoreTouch               atomic.Bool
	hashKey                   atomic.Bool
	autoHashKeys              atomic.Bool
	hashAlgo                  atomic.Value // string
	maxKeyLength              atomic.Int64
	maxReadDurationMetricMs   atomic.Int64
	maxWriteDurationMetricMs  atomic.Int64
	poolAlias                 atomic.Value // string
}

// New constructs Properties for application/prefix, seeded from
// environment variables and falling back to spec.md §6.2's defaults.
func New(application, prefix string) *Properties {
	p := &Properties{application: application, prefix: prefix}

	p.fallbackZone.Store(p.envBool("fallback.zone", true))
	p.bulkFallbackZone.Store(p.envBool("bulk.fallback.zone", true))
	p.bulkPartialFallbackZone.Store(p.envBool("bulk.partial.fallback.zone", true))
	p.useInMemoryCache.Store(p.envBool("use.inmemory.cache", false))
	p.eventsUsingLatch.Store(p.envBool("events.using.latch", false))
	p.ignoreTouch.Store(p.envBool("ignore.touch", false))
	p.hashKey.Store(p.envBool("hash.key", false))
	p.autoHashKeys.Store(p.envBool("auto.hash.keys", false))
	p.hashAlgo.Store(p.envString("hash.algo", DefaultHashAlgo))
	p.maxKeyLength.Store(p.envInt64("max.key.length", DefaultMaxKeyLength))
	p.maxReadDurationMetricMs.Store(p.envInt64("max.read.duration.metric", 0))
	p.maxWriteDurationMetricMs.Store(p.envInt64("max.write.duration.metric", 0))
	p.throwException.Store(p.envBool("throw.exception", false))
	p.poolAlias.Store(envString(envName("", "EVCacheClientPoolManager."+application+".alias"), ""))

	return p
}

// envName renders option into the "ZONECACHE_<scope>_<OPTION>" form.
// scope is either the bare application name or "application_prefix".
func envName(scope, option string) string {
	upperOption := strings.ToUpper(strings.ReplaceAll(option, ".", "_"))
	if scope == "" {
		return "ZONECACHE_" + upperOption
	}
	return "ZONECACHE_" + strings.ToUpper(scope) + "_" + upperOption
}

// lookup resolves option for p, preferring the per-prefix environment
// variable over the per-application one.
func (p *Properties) lookup(option string) (string, bool) {
	if p.prefix != "" {
		if v, ok := os.LookupEnv(envName(p.application+"_"+p.prefix, option)); ok {
			return v, true
		}
	}
	return os.LookupEnv(envName(p.application, option))
}

func (p *Properties) envBool(option string, def bool) bool {
	if v, ok := p.lookup(option); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (p *Properties) envString(option string, def string) string {
	if v, ok := p.lookup(option); ok {
		return v
	}
	return def
}

func (p *Properties) envInt64(option string, def int64) int64 {
	if v, ok := p.lookup(option); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envString(name string, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

// Accessors. Each reads the current live value; the matching Set
// mutates it for subsequent calls (the live-reload path).

func (p *Properties) ThrowException() bool             { return p.throwException.Load() }
func (p *Properties) SetThrowException(v bool)         { p.throwException.Store(v) }
func (p *Properties) FallbackZone() bool                { return p.fallbackZone.Load() }
func (p *Properties) SetFallbackZone(v bool)            { p.fallbackZone.Store(v) }
func (p *Properties) BulkFallbackZone() bool            { return p.bulkFallbackZone.Load() }
func (p *Properties) SetBulkFallbackZone(v bool)        { p.bulkFallbackZone.Store(v) }
func (p *Properties) BulkPartialFallbackZone() bool     { return p.bulkPartialFallbackZone.Load() }
func (p *Properties) SetBulkPartialFallbackZone(v bool) { p.bulkPartialFallbackZone.Store(v) }
func (p *Properties) UseInMemoryCache() bool            { return p.useInMemoryCache.Load() }
func (p *Properties) SetUseInMemoryCache(v bool)        { p.useInMemoryCache.Store(v) }
func (p *Properties) EventsUsingLatch() bool            { return p.eventsUsingLatch.Load() }
func (p *Properties) SetEventsUsingLatch(v bool)        { p.eventsUsingLatch.Store(v) }
func (p *Properties) IgnoreTouch() bool                 { return p.ignoreTouch.Load() }
func (p *Properties) SetIgnoreTouch(v bool)             { p.ignoreTouch.Store(v) }
func (p *Properties) HashKey() bool                     { return p.hashKey.Load() }
func (p *Properties) SetHashKey(v bool)                 { p.hashKey.Store(v) }
func (p *Properties) AutoHashKeys() bool                { return p.autoHashKeys.Load() }
func (p *Properties) SetAutoHashKeys(v bool)            { p.autoHashKeys.Store(v) }
func (p *Properties) HashAlgo() string                  { return p.hashAlgo.Load().(string) }
func (p *Properties) SetHashAlgo(v string)              { p.hashAlgo.Store(v) }
func (p *Properties) MaxKeyLength() int                 { return int(p.maxKeyLength.Load()) }
func (p *Properties) SetMaxKeyLength(v int)             { p.maxKeyLength.Store(int64(v)) }
func (p *Properties) MaxReadDurationMetricMs() int64    { return p.maxReadDurationMetricMs.Load() }
func (p *Properties) MaxWriteDurationMetricMs() int64   { return p.maxWriteDurationMetricMs.Load() }
func (p *Properties) PoolAlias() string                 { return p.poolAlias.Load().(string) }
func (p *Properties) SetPoolAlias(v string)             { p.poolAlias.Store(v) }

// Snapshot is an immutable copy of Properties taken at one instant, for
// callers that need a consistent view across a single orchestrator
// call (spec.md's "atomically-updated scalar cells" read together).
type Snapshot struct {
	ThrowException           bool
	FallbackZone              bool
	BulkFallbackZone          bool
	BulkPartialFallbackZone   bool
	UseInMemoryCache          bool
	EventsUsingLatch          bool
	IgnoreTouch               bool
	HashKey                   bool
	AutoHashKeys              bool
	HashAlgo                  string
	MaxKeyLength              int
	MaxReadDurationMetricMs   int64
	MaxWriteDurationMetricMs  int64
	PoolAlias                 string
}

// Snapshot takes a point-in-time copy of p. Individual fields may still
// interleave with a concurrent Set; this documents intent rather than
// promising struct-wide atomicity, matching spec.md's own phrasing
// ("scalar cells", not "atomic struct").
func (p *Properties) Snapshot() Snapshot {
	return Snapshot{
		ThrowException:           p.ThrowException(),
		FallbackZone:             p.FallbackZone(),
		BulkFallbackZone:         p.BulkFallbackZone(),
		BulkPartialFallbackZone:  p.BulkPartialFallbackZone(),
		UseInMemoryCache:         p.UseInMemoryCache(),
		EventsUsingLatch:         p.EventsUsingLatch(),
		IgnoreTouch:              p.IgnoreTouch(),
		HashKey:                  p.HashKey(),
		AutoHashKeys:             p.AutoHashKeys(),
		HashAlgo:                 p.HashAlgo(),
		MaxKeyLength:             p.MaxKeyLength(),
		MaxReadDurationMetricMs:  p.MaxReadDurationMetricMs(),
		MaxWriteDurationMetricMs: p.MaxWriteDurationMetricMs(),
		PoolAlias:                p.PoolAlias(),
	}
}
