// Package cachemir collects the overview documentation for the
// zonecache module's pkg/ tree. It holds no code of its own; the
// public API lives in pkg/zonecache.
//
// # Overview
//
// zonecache gives an application a single logical cache backed by one
// or more server groups (zones), each a set of replica memcached-style
// nodes. A write fans out to every write-eligible replica and is
// considered complete once a configurable success policy is met,
// independent of how long the slowest replica takes. A read goes to
// one replica in the primary group, optionally falling back to a
// secondary zone on miss, and optionally consults a short-lived
// in-process near-cache first.
//
// # Key Packages
//
// pkg/zonecache (Client):
//   - Get/GetAndTouch/MetaGet/MetaDebug: single-key reads
//   - GetBulk/GetBulkAndTouch: bulk reads with partial fallback
//   - Set/Add/Replace/Append/AppendOrAdd/Delete/Touch/Incr/Decr: writes
//   - ConsistentGet: majority-quorum "golden copy" read with
//     best-effort minority repair
//
// pkg/key:
//   - Normalises an application key into prefix-qualified canonical
//     and (optionally) hashed wire forms
//
// pkg/pool:
//   - Selects which replica within a server group serves a given call,
//     spreading load across same-group replicas via rendezvous hashing
//
// pkg/replica:
//   - The Replica contract plus a TCP implementation (wire protocol
//     framed with pkg/wire) and an in-memory implementation used by
//     tests and cmd/zonecache-bench
//
// pkg/latch:
//   - The fan-out completion latch: ONE, QUORUM, ALL_MINUS_1, and ALL
//     success policies over a set of participating replicas
//
// pkg/transcoder:
//   - Envelope encoding for values written to the wire, with
//     collision detection for hashed keys
//
// pkg/event, pkg/metrics, pkg/config, pkg/nearcache:
//   - The ambient lifecycle, observability, live configuration, and
//     near-cache layers the orchestrator is built on
//
// internal/memberd:
//   - A static, in-process stand-in for real server-group discovery,
//     health checking, and reconnection, used by examples and tests
//
// For detailed documentation of individual packages, see their
// respective godoc pages.
package cachemir
