// Command-less overview of the zonecache module.
//
// zonecache is a distributed, multi-replica, in-process ephemeral
// cache client in the style of Netflix EVCache: an application-side
// library that fans reads and writes out across memcached-style
// backends organized into server groups (zones), with client-side
// quorum writes, read fallback between zones, consistent ("golden
// copy") reads, and an optional in-process near-cache.
//
// # Architecture Overview
//
// zonecache consists of several collaborating packages:
//
//   - pkg/zonecache: the request orchestrator (Client) -- key
//     normalisation through fan-out, fallback, consistent reads, and
//     metrics emission
//   - pkg/key: application-key to wire-key normalisation, including
//     optional hashing for oversized keys, or for every key when forced
//   - pkg/pool: per-server-group replica selection (rendezvous
//     rotation for load spreading across same-group replicas)
//   - pkg/replica: the Replica contract and its TCP and in-memory
//     implementations
//   - pkg/transcoder: value <-> wire envelope encoding, including
//     hashed-key collision detection
//   - pkg/latch: the fan-out completion latch and its success-policy
//     table (ONE, QUORUM, ALL_MINUS_1, ALL)
//   - pkg/event: the call lifecycle bus (start/complete/error/throttle)
//   - pkg/nearcache: the optional in-process near-cache
//   - pkg/metrics: the tag-keyed OpenTelemetry metrics emitter
//   - pkg/config: live-reloadable per-application/per-prefix properties
//   - internal/memberd: a static server-group membership table used in
//     place of real discovery/health/reconnect machinery
//
// # Quick Start
//
//	import "github.com/cachemir/zonecache/pkg/zonecache"
//	import "github.com/cachemir/zonecache/pkg/pool"
//	import "github.com/cachemir/zonecache/pkg/replica"
//
//	p := pool.New(pool.Config{
//		Groups: []pool.Group{
//			{Name: "us-east-1a", Replicas: []replica.Replica{replica.NewTCPReplica(cfg)}},
//		},
//	})
//	c := zonecache.New(zonecache.Config{Application: "myapp", Prefix: "myapp", Pool: p})
//
//	latch, err := c.Set(ctx, "user:123", "john_doe", 3600, nil, nil)
//	res, err := c.Get(ctx, "user:123", nil)
//
// See cmd/zonecache-bench for a runnable driver exercising most
// operations against an in-process cluster.
//
// # Non-goals
//
// zonecache is a client library. It does not implement the
// memcached-compatible server, server-group discovery/health/ping, or
// the over-the-wire protocol framing those servers speak; those are
// out of scope and assumed to be provided by the deployment.
package main
