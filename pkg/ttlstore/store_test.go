package ttlstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*Store[string], *manualClock) {
	clk := &manualClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New[string]().WithClock(clk.Now), clk
}

func TestPutGeneratesDistinctKeys(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		k := s.Put("v", time.Minute)
		if k == "" {
			t.Fatal("empty key")
		}
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
	if s.Len() != 100 {
		t.Fatalf("Len = %d, want 100", s.Len())
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()
	if v, ok := s.Get("nope"); ok || v != "" {
		t.Fatalf("Get(missing) = %q, %v", v, ok)
	}
}

func TestGetDoesNotSweep(t *testing.T) {
	t.Parallel()
	s, clk := newTestStore()
	k := s.Put("draft", time.Second)

	clk.Advance(2 * time.Second)
	if v, ok := s.Get(k); !ok || v != "draft" {
		t.Fatalf("expired entry should stay visible until sweep, got %q, %v", v, ok)
	}
	if n := s.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, ok := s.Get(k); ok {
		t.Fatal("entry still present after sweep")
	}
}

func TestUpdateKeepsExpiry(t *testing.T) {
	t.Parallel()
	s, clk := newTestStore()
	k := s.Put("a", 10*time.Second)

	clk.Advance(8 * time.Second)
	s.Update(k, "b")
	clk.Advance(3 * time.Second)
	s.Sweep()
	if _, ok := s.Get(k); ok {
		t.Fatal("Update must not extend expiry")
	}
}

func TestUpdateTTLRestartsExpiry(t *testing.T) {
	t.Parallel()
	s, clk := newTestStore()
	k := s.Put("a", 10*time.Second)

	clk.Advance(8 * time.Second)
	s.UpdateTTL(k, "b", 10*time.Second)
	clk.Advance(3 * time.Second)
	s.Sweep()
	if v, ok := s.Get(k); !ok || v != "b" {
		t.Fatalf("Get = %q, %v; want b, true", v, ok)
	}
}

func TestUpdateAbsentIsNoop(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()
	s.Update("ghost", "x")
	s.UpdateTTL("ghost", "x", time.Minute)
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestSweepKeepsLiveEntries(t *testing.T) {
	t.Parallel()
	s, clk := newTestStore()
	short := s.Put("short", time.Second)
	long := s.Put("long", time.Hour)

	clk.Advance(time.Second)
	s.Sweep()
	if _, ok := s.Get(short); ok {
		t.Fatal("entry expiring exactly now should be swept")
	}
	if _, ok := s.Get(long); !ok {
		t.Fatal("live entry was swept")
	}
}

func TestMaxEvictsSoonestExpiry(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()
	s.WithMax(2)

	first := s.Put("1", time.Minute)
	second := s.Put("2", time.Hour)
	third := s.Put("3", 30*time.Minute)

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if _, ok := s.Get(first); ok {
		t.Fatal("entry with the soonest expiry should be evicted")
	}
	for _, k := range []string{second, third} {
		if _, ok := s.Get(k); !ok {
			t.Fatalf("key %q evicted unexpectedly", k)
		}
	}
}

func TestRunSweepsUntilCanceled(t *testing.T) {
	t.Parallel()
	s := New[int]().WithSweepInterval(5 * time.Millisecond)
	k := s.Put(1, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := s.Get(k); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background sweep never removed the entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()
	s := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := s.Put(i, time.Minute)
			s.Update(k, i+1)
			if v, ok := s.Get(k); !ok || v != i+1 {
				t.Errorf("Get = %d, %v; want %d", v, ok, i+1)
			}
			s.Sweep()
		}(i)
	}
	wg.Wait()
}
