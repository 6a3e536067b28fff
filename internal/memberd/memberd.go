// Package memberd is a minimal in-process stand-in for spec.md's
// explicitly out-of-scope server-group discovery, health checking,
// reconnection and ping machinery: a static table mapping each server
// group to its member replicas, with endpoint-aware routing, for
// examples and tests that need something concrete to hand to
// pkg/pool without standing up real discovery.
//
// It is adapted from two teacher pieces: the accept-loop shape of
// internal/server.Server (here, "accepting" a replica registration
// rather than a TCP connection) and pkg/hash.ConsistentHash (reused,
// not reimplemented, for endpoint-to-replica lookup within a group).
package memberd

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cachemir/zonecache/pkg/hash"
	"github.com/cachemir/zonecache/pkg/pool"
	"github.com/cachemir/zonecache/pkg/replica"
)

// member is one registered replica plus the endpoint label it was
// registered under.
type member struct {
	endpoint string
	replica  replica.Replica
}

// groupEntry holds one server group's membership: its ordered replica
// list (registration order, which is also pool.Group's read-fallback
// order) and a consistent-hash ring over member endpoints for
// routing-key-based lookup.
type groupEntry struct {
	writeOnly bool
	members   []member
	ring      *hash.ConsistentHash
}

// Table is a static, in-process server-group membership directory.
// All methods are safe for concurrent use. A Table is built once at
// startup from known endpoints; it never discovers, health-checks, or
// reconnects to anything (spec.md's non-goals for this area).
type Table struct {
	mu     sync.RWMutex
	order  []string
	groups map[string]*groupEntry
}

// New constructs an empty Table.
func New() *Table {
	return &Table{groups: make(map[string]*groupEntry)}
}

// Register adds replica r to group under endpoint, a caller-chosen
// label (e.g. "host:port") used only for consistent-hash routing and
// diagnostics. Groups keeps registration order, so the first group
// Registered that is not write-only becomes the primary read group.
func (t *Table) Register(group, endpoint string, r replica.Replica, writeOnly bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.groups[group]
	if !ok {
		g = &groupEntry{writeOnly: writeOnly, ring: hash.New(hash.DefaultVirtualNodes)}
		t.groups[group] = g
		t.order = append(t.order, group)
	}
	g.members = append(g.members, member{endpoint: endpoint, replica: r})
	g.ring.AddNode(endpoint)
}

// Deregister removes the member registered under endpoint from group,
// if present.
func (t *Table) Deregister(group, endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.groups[group]
	if !ok {
		return
	}
	g.ring.RemoveNode(endpoint)
	kept := g.members[:0]
	for _, m := range g.members {
		if m.endpoint != endpoint {
			kept = append(kept, m)
		}
	}
	g.members = kept
}

// RouteTo returns the replica a routingKey consistently hashes to
// within group, for sticky client-side routing among same-group
// replicas (distinct from pkg/pool's per-call rendezvous rotation,
// which intentionally spreads load instead of sticking to one
// member). Returns false if group is unknown or empty.
func (t *Table) RouteTo(group, routingKey string) (replica.Replica, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	g, ok := t.groups[group]
	if !ok || len(g.members) == 0 {
		return nil, false
	}
	endpoint := g.ring.GetNode(routingKey)
	for _, m := range g.members {
		if m.endpoint == endpoint {
			return m.replica, true
		}
	}
	return nil, false
}

// Members returns every replica currently registered to group, in
// registration order.
func (t *Table) Members(group string) []replica.Replica {
	t.mu.RLock()
	defer t.mu.RUnlock()

	g, ok := t.groups[group]
	if !ok {
		return nil
	}
	out := make([]replica.Replica, len(g.members))
	for i, m := range g.members {
		out[i] = m.replica
	}
	return out
}

// Groups renders the table as pool.Group values in registration
// order, ready to hand to pool.Config.Groups.
func (t *Table) Groups() []pool.Group {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]pool.Group, 0, len(t.order))
	for _, name := range t.order {
		g := t.groups[name]
		replicas := make([]replica.Replica, len(g.members))
		for i, m := range g.members {
			replicas[i] = m.replica
		}
		out = append(out, pool.Group{Name: name, Replicas: replicas, WriteOnly: g.writeOnly})
	}
	return out
}

// GroupNames returns every registered group's name, in registration order.
func (t *Table) GroupNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// String renders a short per-group member count summary, for logging.
func (t *Table) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.groups))
	for name := range t.groups {
		names = append(names, name)
	}
	sort.Strings(names)

	s := "memberd.Table{"
	for i, name := range names {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s:%d", name, len(t.groups[name].members))
	}
	return s + "}"
}
