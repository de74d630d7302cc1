package auction_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"cardbot/internal/auction"
	kit "cardbot/internal/transport"
)

func (e *env) seedQueued(ids ...int64) {
	at := e.clock.Now().Add(-time.Hour)
	for _, id := range ids {
		e.store.Put(auction.Auction{
			ID: id, TenantID: tenant, InitiatorID: id, Category: "rare",
			Status: auction.StatusQueued, Channel: kit.ChatTarget{ChatID: tenant},
			CreatedAt: at.Add(time.Duration(id) * time.Second),
		})
	}
}

func TestCapacityChangesPromoteWithoutDemoting(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.withQueue(2)
	var ids []int64
	for u := int64(1); u <= 3; u++ {
		a := e.create(t, u)
		if err := e.svc.Approve(context.Background(), a.ID); err != nil {
			t.Fatalf("Approve: %v", err)
		}
		ids = append(ids, a.ID)
	}
	if e.store.Count(rare, auction.StatusActive) != 2 || e.status(t, ids[2]) != auction.StatusQueued {
		t.Fatalf("want two active and the third queued")
	}

	e.set(auction.CapacityKey("rare"), "3")
	n, err := e.svc.Rebalance(context.Background(), rare)
	if err != nil || n != 1 {
		t.Fatalf("Rebalance after raise: n=%d err=%v", n, err)
	}
	if e.status(t, ids[2]) != auction.StatusActive {
		t.Fatalf("third auction not promoted")
	}

	e.set(auction.CapacityKey("rare"), "0")
	if n, err := e.svc.Rebalance(context.Background(), rare); err != nil || n != 0 {
		t.Fatalf("Rebalance at zero: n=%d err=%v", n, err)
	}
	if e.store.Count(rare, auction.StatusActive) != 3 {
		t.Fatalf("lowering capacity must not end running auctions")
	}
}

func TestRebalanceFIFOWithIDTieBreak(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.withQueue(1)
	same := e.clock.Now().Add(-time.Minute)
	for _, id := range []int64{3, 1, 2} {
		e.store.Put(auction.Auction{
			ID: id, TenantID: tenant, Category: "rare", Status: auction.StatusQueued,
			Channel: kit.ChatTarget{ChatID: tenant}, CreatedAt: same,
		})
	}

	n, err := e.svc.Rebalance(context.Background(), auction.Pair{TenantID: tenant, Category: "RARE"})
	if err != nil || n != 1 {
		t.Fatalf("Rebalance: n=%d err=%v", n, err)
	}
	for id, want := range map[int64]auction.Status{1: auction.StatusActive, 2: auction.StatusQueued, 3: auction.StatusQueued} {
		if got := e.status(t, id); got != want {
			t.Fatalf("auction %d status=%s want %s", id, got, want)
		}
	}

	if err := e.svc.Finish(context.Background(), 1); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if e.status(t, 2) != auction.StatusActive || e.status(t, 3) != auction.StatusQueued {
		t.Fatalf("finish should promote the next in line")
	}
}

func TestRebalanceWithoutCapacityIsStalled(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.set(auction.KeyQueueChannel, strconv.FormatInt(queueChat, 10))
	a := e.create(t, 1)
	if err := e.svc.Approve(context.Background(), a.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if e.status(t, a.ID) != auction.StatusQueued {
		t.Fatalf("auction promoted without capacity")
	}
	if n, err := e.svc.Rebalance(context.Background(), rare); err != nil || n != 0 {
		t.Fatalf("Rebalance: n=%d err=%v", n, err)
	}
	if len(e.fake.Topics()) != 0 {
		t.Fatalf("topics=%v", e.fake.Topics())
	}
}

func TestConcurrentRebalanceRespectsCapacity(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.withQueue(2)
	e.seedQueued(1, 2, 3, 4, 5, 6)

	var wg sync.WaitGroup
	total := make(chan int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := e.svc.Rebalance(context.Background(), rare)
			if err == nil {
				total <- n
			}
		}()
	}
	wg.Wait()
	close(total)
	sum := 0
	for n := range total {
		sum += n
	}
	if sum != 2 || e.store.Count(rare, auction.StatusActive) != 2 {
		t.Fatalf("promoted=%d active=%d want 2", sum, e.store.Count(rare, auction.StatusActive))
	}
	if e.status(t, 1) != auction.StatusActive || e.status(t, 2) != auction.StatusActive {
		t.Fatalf("oldest auctions should hold the slots")
	}
}

func TestExpiriesKeepActiveWithinCapacity(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.withQueue(2)
	e.seedQueued(1, 2, 3, 4, 5)

	if _, err := e.svc.Rebalance(context.Background(), rare); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	for round := 0; round < 3; round++ {
		if n := e.store.Count(rare, auction.StatusActive); n > 2 {
			t.Fatalf("round %d: active=%d", round, n)
		}
		e.clock.Advance(auction.DefaultLifetime)
	}
	if n := e.store.Count(rare, auction.StatusDone); n != 5 {
		t.Fatalf("done=%d want 5", n)
	}
	if e.svc.ArmedTimers() != 0 {
		t.Fatalf("armed=%d", e.svc.ArmedTimers())
	}
}

func TestRebalanceAllCoversEveryPair(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.withQueue(1)
	e.set(auction.CapacityKey("epic"), "1")
	e.seedQueued(1)
	e.store.Put(auction.Auction{
		ID: 2, TenantID: tenant, Category: "epic", Status: auction.StatusQueued,
		Channel: kit.ChatTarget{ChatID: tenant}, CreatedAt: e.clock.Now(),
	})

	if err := e.svc.RebalanceAll(context.Background()); err != nil {
		t.Fatalf("RebalanceAll: %v", err)
	}
	if e.status(t, 1) != auction.StatusActive || e.status(t, 2) != auction.StatusActive {
		t.Fatalf("both pairs should have promoted")
	}
}

func TestSubchannelFailureStillActivates(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.fake.FailTopics(true)
	a := e.create(t, 1)
	if err := e.svc.Approve(context.Background(), a.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	got, _ := e.svc.Get(context.Background(), a.ID)
	if got.Status != auction.StatusActive || !got.Thread.IsZero() {
		t.Fatalf("auction=%+v", got)
	}
	e.clock.Advance(auction.DefaultLifetime)
	if e.status(t, a.ID) != auction.StatusDone {
		t.Fatalf("not finished")
	}
	if len(e.fake.Closed()) != 0 {
		t.Fatalf("no thread to close, got %v", e.fake.Closed())
	}
}
