package replica

import (
	"context"
	"testing"
	"time"
)

func TestMemoryReplicaSetGet(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	ctx := context.Background()

	if err := r.Set(ctx, "k1", 7, []byte("v1"), 0, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	res, err := r.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !res.Found || string(res.Value) != "v1" || res.Flags != 7 {
		t.Errorf("got %+v", res)
	}
}

func TestMemoryReplicaGetMissing(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	res, err := r.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Found {
		t.Error("expected miss")
	}
}

func TestMemoryReplicaTTLExpiry(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	ctx := context.Background()
	if err := r.Set(ctx, "k1", 0, []byte("v1"), 1, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	r.mu.Lock()
	e := r.entries["k1"]
	e.expiresAt = time.Now().Add(-time.Second)
	r.entries["k1"] = e
	r.mu.Unlock()

	res, err := r.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Found {
		t.Error("expected expired key to miss")
	}
}

func TestMemoryReplicaAddRejectsExisting(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	ctx := context.Background()
	if err := r.Add(ctx, "k1", 0, []byte("v1"), 0, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(ctx, "k1", 0, []byte("v2"), 0, nil); err == nil {
		t.Fatal("expected error adding existing key")
	}
}

func TestMemoryReplicaReplaceRequiresExisting(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	ctx := context.Background()
	if err := r.Replace(ctx, "k1", 0, []byte("v1"), 0, nil); err == nil {
		t.Fatal("expected error replacing missing key")
	}
}

func TestMemoryReplicaAppend(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	ctx := context.Background()
	if err := r.Set(ctx, "k1", 0, []byte("foo"), 0, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.Append(ctx, "k1", []byte("bar"), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	res, _ := r.Get(ctx, "k1")
	if string(res.Value) != "foobar" {
		t.Errorf("got %q, want %q", res.Value, "foobar")
	}
}

func TestMemoryReplicaIncrInitializesWithDefault(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	ctx := context.Background()
	res, err := r.Incr(ctx, "counter", 1, 5, nil)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if res.Value != 5 {
		t.Errorf("Value = %d, want 5", res.Value)
	}
	res, err = r.Incr(ctx, "counter", 3, 5, nil)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if res.Value != 8 {
		t.Errorf("Value = %d, want 8", res.Value)
	}
}

func TestMemoryReplicaIncrReturnsNegativeOneWithoutInitial(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	res, err := r.Incr(context.Background(), "counter", 1, -1, nil)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if res.Value != -1 {
		t.Errorf("Value = %d, want -1", res.Value)
	}
}

func TestMemoryReplicaGetBulk(t *testing.T) {
	r := NewMemoryReplica("zone-a", false)
	ctx := context.Background()
	_ = r.Set(ctx, "a", 0, []byte("1"), 0, nil)
	_ = r.Set(ctx, "b", 0, []byte("2"), 0, nil)
	out, err := r.GetBulk(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetBulk: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("len(out) = %d, want 2", len(out))
	}
}
