package pool

import (
	"testing"
	"time"

	"github.com/cachemir/zonecache/pkg/replica"
)

func TestClientForReadPicksFirstReadableGroup(t *testing.T) {
	p := New(Config{
		Groups: []Group{
			{Name: "us-east-1a", Replicas: []replica.Replica{replica.NewMemoryReplica("us-east-1a", false)}},
			{Name: "us-east-1b", Replicas: []replica.Replica{replica.NewMemoryReplica("us-east-1b", false)}},
		},
		SupportsFallback: true,
	})

	r, err := p.ClientForRead()
	if err != nil {
		t.Fatalf("ClientForRead: %v", err)
	}
	if r.ServerGroup() != "us-east-1a" {
		t.Errorf("ServerGroup() = %q, want us-east-1a", r.ServerGroup())
	}
}

func TestClientForReadSkipsWriteOnlyGroups(t *testing.T) {
	p := New(Config{
		Groups: []Group{
			{Name: "write-only-zone", Replicas: []replica.Replica{replica.NewMemoryReplica("write-only-zone", false)}, WriteOnly: true},
			{Name: "us-east-1b", Replicas: []replica.Replica{replica.NewMemoryReplica("us-east-1b", false)}},
		},
	})

	r, err := p.ClientForRead()
	if err != nil {
		t.Fatalf("ClientForRead: %v", err)
	}
	if r.ServerGroup() != "us-east-1b" {
		t.Errorf("ServerGroup() = %q, want us-east-1b", r.ServerGroup())
	}
}

func TestClientForReadErrorsWhenEmpty(t *testing.T) {
	p := New(Config{})
	if _, err := p.ClientForRead(); err == nil {
		t.Fatal("expected error for empty pool")
	}
}

func TestClientsForReadExcludingOmitsPrimaryGroup(t *testing.T) {
	p := New(Config{
		Groups: []Group{
			{Name: "a", Replicas: []replica.Replica{replica.NewMemoryReplica("a", false)}},
			{Name: "b", Replicas: []replica.Replica{replica.NewMemoryReplica("b", false)}},
			{Name: "c", Replicas: []replica.Replica{replica.NewMemoryReplica("c", false)}},
		},
	})

	fallback := p.ClientsForReadExcluding("a")
	if len(fallback) != 2 {
		t.Fatalf("len(fallback) = %d, want 2", len(fallback))
	}
	if fallback[0].ServerGroup() != "b" || fallback[1].ServerGroup() != "c" {
		t.Errorf("fallback order = %v", fallback)
	}
}

func TestClientsForWriteIncludesWriteOnly(t *testing.T) {
	p := New(Config{
		Groups: []Group{
			{Name: "a", Replicas: []replica.Replica{replica.NewMemoryReplica("a", false)}},
			{Name: "wo", Replicas: []replica.Replica{replica.NewMemoryReplica("wo", false)}, WriteOnly: true},
		},
	})
	writeSet := p.ClientsForWrite()
	if len(writeSet) != 2 {
		t.Fatalf("len(writeSet) = %d, want 2", len(writeSet))
	}
	writeOnly := p.WriteOnlyClients()
	if len(writeOnly) != 1 || writeOnly[0].ServerGroup() != "wo" {
		t.Errorf("WriteOnlyClients() = %v", writeOnly)
	}
}

func TestDefaultTimeoutsApplied(t *testing.T) {
	p := New(Config{})
	if p.ReadTimeout() != 750*time.Millisecond {
		t.Errorf("ReadTimeout() = %v, want 750ms", p.ReadTimeout())
	}
	if p.OperationTimeout() != p.ReadTimeout() {
		t.Errorf("OperationTimeout() = %v, want %v", p.OperationTimeout(), p.ReadTimeout())
	}
}

func TestRendezvousRingDistributesAcrossReplicas(t *testing.T) {
	r1 := replica.NewMemoryReplica("a", false)
	r2 := replica.NewMemoryReplica("a", false)
	ring := newRendezvousRing([]replica.Replica{r1, r2})

	seen := make(map[replica.Replica]int)
	for i := 0; i < 200; i++ {
		seen[ring.pick()]++
	}
	if len(seen) < 2 {
		t.Error("expected rendezvous hashing to select both replicas over many calls")
	}
}
