// Package pool implements the client pool collaborator (C2): primary
// read replica selection, ordered fallback lists, and the write-set /
// write-only split the write orchestrator uses to compute its success
// denominator.
//
// Unlike the teacher's pkg/client, which shards keys across nodes with
// one consistent-hash ring, a zonecache pool's replicas within a
// server group are full copies of the same keyspace (the read/write
// orchestrators fan data out themselves); the ring here is reused
// instead to pick evenly among same-group replicas on each call, the
// way the teacher picks a node for a key.
package pool

import (
	"time"

	"github.com/cachemir/zonecache/pkg/replica"
)

// Pool is the collaborator contract of spec §6.1.
type Pool interface {
	ClientForRead() (replica.Replica, error)
	ClientsForReadExcluding(serverGroup string) []replica.Replica
	ClientsForWrite() []replica.Replica
	WriteOnlyClients() []replica.Replica
	ReadTimeout() time.Duration
	OperationTimeout() time.Duration
	SupportsFallback() bool
}

// ErrNullClient is returned when the pool has no replica to offer for
// an operation (no server groups configured, or every group empty).
type ErrNullClient struct{ Reason string }

func (e *ErrNullClient) Error() string { return "pool: no client available: " + e.Reason }

// Group is one failure domain's replica set plus its role.
type Group struct {
	Name      string
	Replicas  []replica.Replica
	WriteOnly bool
}

// Static is a Pool backed by a fixed, caller-supplied topology. Groups
// are tried for reads in the order given, skipping write-only groups;
// the first group that is not write-only is primary.
type Static struct {
	groups        []Group
	readTimeout   time.Duration
	opTimeout     time.Duration
	fallback      bool
	rings         map[string]*rendezvousRing
}

// Config configures a Static pool.
type Config struct {
	Groups            []Group
	ReadTimeout       time.Duration
	OperationTimeout  time.Duration
	SupportsFallback  bool
}

// New builds a Static pool from cfg.
func New(cfg Config) *Static {
	rings := make(map[string]*rendezvousRing, len(cfg.Groups))
	for _, g := range cfg.Groups {
		rings[g.Name] = newRendezvousRing(g.Replicas)
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 750 * time.Millisecond
	}
	opTimeout := cfg.OperationTimeout
	if opTimeout <= 0 {
		opTimeout = readTimeout
	}
	return &Static{
		groups:      cfg.Groups,
		readTimeout: readTimeout,
		opTimeout:   opTimeout,
		fallback:    cfg.SupportsFallback,
		rings:       rings,
	}
}

func (p *Static) ClientForRead() (replica.Replica, error) {
	for _, g := range p.groups {
		if g.WriteOnly || len(g.Replicas) == 0 {
			continue
		}
		r := p.rings[g.Name].pick()
		if r != nil {
			return r, nil
		}
	}
	return nil, &ErrNullClient{Reason: "no readable server group has replicas"}
}

// ClientsForReadExcluding returns one representative replica per
// remaining readable group, in pool-defined (configuration) order,
// excluding serverGroup and any write-only group.
func (p *Static) ClientsForReadExcluding(serverGroup string) []replica.Replica {
	var out []replica.Replica
	for _, g := range p.groups {
		if g.Name == serverGroup || g.WriteOnly || len(g.Replicas) == 0 {
			continue
		}
		if r := p.rings[g.Name].pick(); r != nil {
			out = append(out, r)
		}
	}
	return out
}

// ClientsForWrite returns every replica participating in fan-out,
// including write-only groups.
func (p *Static) ClientsForWrite() []replica.Replica {
	var out []replica.Replica
	for _, g := range p.groups {
		out = append(out, g.Replicas...)
	}
	return out
}

// WriteOnlyClients returns the subset of ClientsForWrite excluded from
// the success denominator.
func (p *Static) WriteOnlyClients() []replica.Replica {
	var out []replica.Replica
	for _, g := range p.groups {
		if g.WriteOnly {
			out = append(out, g.Replicas...)
		}
	}
	return out
}

func (p *Static) ReadTimeout() time.Duration      { return p.readTimeout }
func (p *Static) OperationTimeout() time.Duration { return p.opTimeout }
func (p *Static) SupportsFallback() bool          { return p.fallback }
