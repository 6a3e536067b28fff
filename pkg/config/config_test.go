package config

import (
	"testing"
)

func TestNewAppliesDefaults(t *testing.T) {
	p := New("myapp", "")
	if !p.FallbackZone() {
		t.Error("expected FallbackZone default true")
	}
	if p.UseInMemoryCache() {
		t.Error("expected UseInMemoryCache default false")
	}
	if p.HashAlgo() != DefaultHashAlgo {
		t.Errorf("HashAlgo() = %q, want %q", p.HashAlgo(), DefaultHashAlgo)
	}
	if p.MaxKeyLength() != DefaultMaxKeyLength {
		t.Errorf("MaxKeyLength() = %d, want %d", p.MaxKeyLength(), DefaultMaxKeyLength)
	}
}

func TestNewReadsApplicationScopedEnvVar(t *testing.T) {
	t.Setenv("ZONECACHE_MYAPP_MAX_KEY_LENGTH", "64")
	p := New("myapp", "")
	if p.MaxKeyLength() != 64 {
		t.Errorf("MaxKeyLength() = %d, want 64", p.MaxKeyLength())
	}
}

func TestPrefixScopedEnvVarTakesPrecedence(t *testing.T) {
	t.Setenv("ZONECACHE_MYAPP_FALLBACK_ZONE", "true")
	t.Setenv("ZONECACHE_MYAPP_USERS_FALLBACK_ZONE", "false")
	p := New("myapp", "users")
	if p.FallbackZone() {
		t.Error("expected prefix-scoped env var to override app-scoped one")
	}
}

func TestSetMutatesLiveValue(t *testing.T) {
	p := New("myapp", "")
	p.SetUseInMemoryCache(true)
	if !p.UseInMemoryCache() {
		t.Error("expected SetUseInMemoryCache to take effect immediately")
	}
}

func TestSnapshotCapturesCurrentValues(t *testing.T) {
	p := New("myapp", "")
	p.SetMaxKeyLength(99)
	snap := p.Snapshot()
	if snap.MaxKeyLength != 99 {
		t.Errorf("snap.MaxKeyLength = %d, want 99", snap.MaxKeyLength)
	}
	p.SetMaxKeyLength(1)
	if snap.MaxKeyLength != 99 {
		t.Error("expected Snapshot to be a point-in-time copy, unaffected by later Set calls")
	}
}
