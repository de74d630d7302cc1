package storage

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cardbot/internal/auction"
	"cardbot/internal/deferred"
	"cardbot/internal/deferred/deferredtest"
	"cardbot/internal/notifier"
	"cardbot/internal/transport/transporttest"
	logx "cardbot/pkg/logx"
)

const (
	flowTenant   int64 = -1001
	flowApproval int64 = -2001
	flowQueue    int64 = -3001
)

func newAuctionService(st *Store, fake *transporttest.Fake, clock *deferredtest.Clock) *auction.Service {
	n := notifier.New(fake, notifier.Config{RatePerSec: 10000, Burst: 100}, logx.Nop())
	return auction.NewService(st, st, n, deferred.New(deferred.WithClock(clock)))
}

func statusIDs(t *testing.T, st *Store, status auction.Status) []int64 {
	t.Helper()
	as, err := st.ListAuctions(context.Background(), auction.Filter{TenantID: flowTenant, Statuses: []auction.Status{status}, Oldest: true})
	if err != nil {
		t.Fatalf("ListAuctions(%s): %v", status, err)
	}
	ids := make([]int64, 0, len(as))
	for _, a := range as {
		ids = append(ids, a.ID)
	}
	slices.Sort(ids)
	return ids
}

// The queue lives in SQL, so FIFO order comes from the created_at ordering
// and each promotion from a partial UPDATE.
func TestAuctionLifecycleOnSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTest(t)
	fake := transporttest.New()
	clock := deferredtest.New(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newAuctionService(st, fake, clock)
	pair := auction.Pair{TenantID: flowTenant, Category: "rare"}

	scope := auction.Scope(flowTenant)
	for k, v := range map[string]string{
		auction.KeyApprovalChannel:  strconv.FormatInt(flowApproval, 10),
		auction.KeyQueueChannel:     strconv.FormatInt(flowQueue, 10),
		auction.ChannelKey("rare"):  strconv.FormatInt(flowTenant, 10),
		auction.CapacityKey("rare"): "0",
	} {
		if err := st.SetSetting(ctx, scope, k, v); err != nil {
			t.Fatalf("SetSetting %s: %v", k, err)
		}
	}

	var ids []int64
	for i := 0; i < 10; i++ {
		a, err := svc.Create(ctx, auction.Draft{
			TenantID:      flowTenant,
			InitiatorID:   int64(100 + i),
			InitiatorName: "user" + strconv.Itoa(i),
			ItemID:        "card-" + strconv.Itoa(i),
			Name:          "Rem",
			Category:      "Rare",
		})
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		ids = append(ids, a.ID)
		clock.Advance(time.Second)
	}

	// Approve out of creation order; the queue still follows created_at.
	var wg sync.WaitGroup
	for i := len(ids) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := svc.Approve(ctx, id); err != nil {
				t.Errorf("Approve %d: %v", id, err)
			}
		}(ids[i])
	}
	wg.Wait()
	if got := statusIDs(t, st, auction.StatusQueued); len(got) != 10 {
		t.Fatalf("queued=%v want all 10", got)
	}

	if err := st.SetSetting(ctx, scope, auction.CapacityKey("rare"), "3"); err != nil {
		t.Fatalf("raise capacity: %v", err)
	}
	var promoted atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.Rebalance(ctx, pair)
			if err != nil {
				t.Errorf("Rebalance: %v", err)
			}
			promoted.Add(int64(n))
		}()
	}
	wg.Wait()
	if promoted.Load() != 3 {
		t.Fatalf("promoted=%d want 3", promoted.Load())
	}
	if got, want := statusIDs(t, st, auction.StatusActive), ids[:3]; !slices.Equal(got, want) {
		t.Fatalf("active=%v want %v", got, want)
	}
	if n, err := svc.Rebalance(ctx, pair); n != 0 || err != nil {
		t.Fatalf("second rebalance promoted %d err=%v", n, err)
	}

	// Two finishes race for the same auction; one slot frees up.
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Finish(ctx, ids[0]); err != nil {
				t.Errorf("Finish: %v", err)
			}
		}()
	}
	wg.Wait()
	if got, want := statusIDs(t, st, auction.StatusActive), ids[1:4]; !slices.Equal(got, want) {
		t.Fatalf("after finish active=%v want %v", got, want)
	}
	if got := statusIDs(t, st, auction.StatusDone); !slices.Equal(got, ids[:1]) {
		t.Fatalf("done=%v", got)
	}

	// Restart after every live auction has expired.
	svc.Stop()
	clock.Advance(auction.DefaultLifetime + time.Minute)
	restarted := newAuctionService(st, fake, clock)
	if err := restarted.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got := statusIDs(t, st, auction.StatusDone); !slices.Equal(got, ids[:4]) {
		t.Fatalf("done after recover=%v want %v", got, ids[:4])
	}
	if got, want := statusIDs(t, st, auction.StatusActive), ids[4:7]; !slices.Equal(got, want) {
		t.Fatalf("active after recover=%v want %v", got, want)
	}
	if restarted.ArmedTimers() != 3 {
		t.Fatalf("armed=%d want 3", restarted.ArmedTimers())
	}
	if got := statusIDs(t, st, auction.StatusQueued); !slices.Equal(got, ids[7:]) {
		t.Fatalf("queued after recover=%v", got)
	}
}
