package nearcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetLoadsOnMiss(t *testing.T) {
	c := New(time.Minute)
	var loads int32
	v, found, err := c.Get("k", func() (any, error) {
		atomic.AddInt32(&loads, 1)
		return "value", nil
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || v != "value" {
		t.Errorf("got (%v, %v)", v, found)
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
}

func TestGetServesFromCacheWithoutReload(t *testing.T) {
	c := New(time.Minute)
	var loads int32
	load := func() (any, error) {
		atomic.AddInt32(&loads, 1)
		return "value", nil
	}
	_, _, _ = c.Get("k", load)
	_, _, _ = c.Get("k", load)
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
}

func TestGetCachesNotFoundSentinel(t *testing.T) {
	c := New(time.Minute)
	var loads int32
	load := func() (any, error) {
		atomic.AddInt32(&loads, 1)
		return NotFound, nil
	}
	_, found, err := c.Get("k", load)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected NotFound sentinel to report found=false")
	}
	_, found, _ = c.Get("k", load)
	if found {
		t.Error("expected cached NotFound to still report found=false")
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1 (NotFound should not re-trigger within TTL)", loads)
	}
}

func TestGetDoesNotCacheErrors(t *testing.T) {
	c := New(time.Minute)
	wantErr := errors.New("boom")
	_, _, err := c.Get("k", func() (any, error) { return nil, wantErr })
	if err != wantErr {
		t.Fatalf("got err %v, want %v", err, wantErr)
	}
	var loads int32
	_, found, err := c.Get("k", func() (any, error) {
		atomic.AddInt32(&loads, 1)
		return "value", nil
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || loads != 1 {
		t.Error("expected error not to be cached, so the next Get reloads")
	}
}

func TestGetCoalescesConcurrentLoads(t *testing.T) {
	c := New(time.Minute)
	var loads int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.Get("k", func() (any, error) {
				atomic.AddInt32(&loads, 1)
				<-release
				return "value", nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if loads != 1 {
		t.Errorf("loads = %d, want 1 (single-flight should coalesce concurrent loads)", loads)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	c := New(time.Minute)
	var loads int32
	load := func() (any, error) {
		atomic.AddInt32(&loads, 1)
		return "value", nil
	}
	_, _, _ = c.Get("k", load)
	c.Invalidate("k")
	_, _, _ = c.Get("k", load)
	if loads != 2 {
		t.Errorf("loads = %d, want 2", loads)
	}
}
