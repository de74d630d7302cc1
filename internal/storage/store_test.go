package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cardbot/internal/auction"
	"cardbot/internal/reminder"
	kit "cardbot/internal/transport"
	logx "cardbot/pkg/logx"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "cardbot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "postgres"}, logx.Nop())
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Open(context.Background(), Config{Driver: "mysql"}, logx.Nop()); err == nil {
		t.Fatalf("mysql without dsn should fail")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	if err := st.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, name := range []string{sqliteDialect.migrations, mysqlDialect.migrations} {
		b, err := migrationsFS.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if n := len(splitStatements(string(b))); n < 4 {
			t.Fatalf("%s: %d statements", name, n)
		}
	}
}

func TestAuctionRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	created := time.UnixMilli(1_700_000_000_000)

	a := &auction.Auction{
		TenantID: -100, InitiatorID: 7, InitiatorName: "alice",
		ItemID: "abc", Version: "2", Name: "Rem", Category: "rare", Series: "Re:Zero", ImageURL: "https://img/abc",
		Channel:         kit.ChatTarget{ChatID: -100},
		ApprovalMessage: kit.MessageRef{ChatID: -200, MessageID: 5},
		Status:          auction.StatusPending,
		CreatedAt:       created,
	}
	id, err := st.InsertAuction(ctx, a)
	if err != nil || id == 0 {
		t.Fatalf("InsertAuction: id=%d err=%v", id, err)
	}

	got, ok, err := st.GetAuction(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetAuction: ok=%v err=%v", ok, err)
	}
	if got.Name != "Rem" || got.Channel != a.Channel || got.ApprovalMessage != a.ApprovalMessage || !got.CreatedAt.Equal(created) || !got.ExpiresAt.IsZero() {
		t.Fatalf("got=%+v", got)
	}

	thread := kit.ChatTarget{ChatID: -100, ThreadID: 44}
	expires := created.Add(10 * time.Minute)
	active := auction.StatusActive
	if err := st.UpdateAuction(ctx, id, auction.Patch{Status: &active, Thread: &thread, ExpiresAt: &expires, ApprovalMessage: &kit.MessageRef{}}); err != nil {
		t.Fatalf("UpdateAuction: %v", err)
	}
	got, _, _ = st.GetAuction(ctx, id)
	if got.Status != auction.StatusActive || got.Thread != thread || !got.ExpiresAt.Equal(expires) || !got.ApprovalMessage.IsZero() {
		t.Fatalf("after update: %+v", got)
	}
	if got.InitiatorName != "alice" {
		t.Fatalf("unpatched column changed: %+v", got)
	}

	if err := st.UpdateAuction(ctx, 9999, auction.Patch{Status: &active}); !errors.Is(err, auction.ErrNotFound) {
		t.Fatalf("update missing: err=%v", err)
	}
	if _, ok, err := st.GetAuction(ctx, 9999); ok || err != nil {
		t.Fatalf("get missing: ok=%v err=%v", ok, err)
	}
}

func TestListAuctionsFilterAndOrder(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	seed := []auction.Auction{
		{TenantID: 1, InitiatorID: 1, ItemID: "a", Category: "rare", Status: auction.StatusQueued, CreatedAt: base.Add(2 * time.Second)},
		{TenantID: 1, InitiatorID: 2, ItemID: "b", Category: "rare", Status: auction.StatusQueued, CreatedAt: base},
		{TenantID: 1, InitiatorID: 3, ItemID: "c", Category: "rare", Status: auction.StatusQueued, CreatedAt: base},
		{TenantID: 1, InitiatorID: 1, ItemID: "d", Category: "epic", Status: auction.StatusActive, CreatedAt: base},
		{TenantID: 2, InitiatorID: 1, ItemID: "e", Category: "rare", Status: auction.StatusQueued, CreatedAt: base},
	}
	ids := make([]int64, len(seed))
	for i := range seed {
		id, err := st.InsertAuction(ctx, &seed[i])
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids[i] = id
	}

	cases := []struct {
		name string
		f    auction.Filter
		want []int64
	}{
		{"pair oldest first", auction.Filter{TenantID: 1, Category: "rare", Statuses: []auction.Status{auction.StatusQueued}, Oldest: true}, []int64{ids[1], ids[2], ids[0]}},
		{"newest first", auction.Filter{TenantID: 1, Category: "rare"}, []int64{ids[0], ids[2], ids[1]}},
		{"limit", auction.Filter{TenantID: 1, Category: "rare", Oldest: true, Limit: 1}, []int64{ids[1]}},
		{"initiator across categories", auction.Filter{TenantID: 1, InitiatorID: 1, Oldest: true}, []int64{ids[3], ids[0]}},
		{"several statuses", auction.Filter{Statuses: []auction.Status{auction.StatusActive, auction.StatusDone}}, []int64{ids[3]}},
	}
	for _, tc := range cases {
		got, err := st.ListAuctions(ctx, tc.f)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %d rows want %d", tc.name, len(got), len(tc.want))
		}
		for i := range got {
			if got[i].ID != tc.want[i] {
				t.Fatalf("%s: row %d id=%d want %d", tc.name, i, got[i].ID, tc.want[i])
			}
		}
	}
}

func TestPruneAuctionsKeepsOpenRows(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	old := time.UnixMilli(1_600_000_000_000)
	for _, s := range []auction.Status{auction.StatusDone, auction.StatusRejected, auction.StatusActive, auction.StatusQueued} {
		if _, err := st.InsertAuction(ctx, &auction.Auction{TenantID: 1, ItemID: "x", Category: "rare", Status: s, CreatedAt: old}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	n, err := st.PruneAuctions(ctx, old.Add(time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("PruneAuctions: n=%d err=%v", n, err)
	}
	left, _ := st.ListAuctions(ctx, auction.Filter{})
	if len(left) != 2 {
		t.Fatalf("left=%d", len(left))
	}
}

func TestSettingsUpsert(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()

	if _, ok, err := st.GetSetting(ctx, "-100", "queue_channel"); ok || err != nil {
		t.Fatalf("missing: ok=%v err=%v", ok, err)
	}
	if err := st.SetSetting(ctx, "-100", "queue_channel", "-300:0"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.SetSetting(ctx, "-100", "queue_channel", "-301:0"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_ = st.SetSetting(ctx, "-100", "auction_capacity:rare", "2")
	_ = st.SetSetting(ctx, "-999", "queue_channel", "-1:0")

	v, ok, err := st.GetSetting(ctx, "-100", "queue_channel")
	if err != nil || !ok || v != "-301:0" {
		t.Fatalf("get: %q ok=%v err=%v", v, ok, err)
	}
	all, err := st.ListSettings(ctx, "-100")
	if err != nil || len(all) != 2 || all["auction_capacity:rare"] != "2" {
		t.Fatalf("ListSettings=%v err=%v", all, err)
	}
}

func TestReminders(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	late, _ := st.InsertReminder(ctx, &reminder.Reminder{UserID: 1, Chat: kit.ChatTarget{ChatID: -5, ThreadID: 3}, Reason: "later", FireAt: at.Add(time.Hour), CreatedAt: at})
	early, _ := st.InsertReminder(ctx, &reminder.Reminder{UserID: 2, Username: "bob", Chat: kit.ChatTarget{ChatID: -5}, Info: "x", FireAt: at, CreatedAt: at})

	rs, err := st.ListReminders(ctx)
	if err != nil || len(rs) != 2 {
		t.Fatalf("ListReminders: %d err=%v", len(rs), err)
	}
	if rs[0].ID != early || rs[1].ID != late || rs[1].Chat.ThreadID != 3 || !rs[0].FireAt.Equal(at) || rs[0].Username != "bob" {
		t.Fatalf("rows=%+v", rs)
	}
	mine, err := st.ListUserReminders(ctx, 1)
	if err != nil || len(mine) != 1 || mine[0].ID != late || mine[0].Reason != "later" {
		t.Fatalf("ListUserReminders(1)=%+v err=%v", mine, err)
	}
	if none, err := st.ListUserReminders(ctx, 3); err != nil || len(none) != 0 {
		t.Fatalf("ListUserReminders(3)=%+v err=%v", none, err)
	}

	if ok, err := st.DeleteReminder(ctx, early); !ok || err != nil {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, _ := st.DeleteReminder(ctx, early); ok {
		t.Fatalf("second delete reported a row")
	}
}

func TestAudit(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	_ = st.AppendAudit(ctx, AuditEntry{At: at, ActorID: 1, ChatID: -5, Action: "auction.approve", Target: "1", OK: true})
	_ = st.AppendAudit(ctx, AuditEntry{At: at.Add(time.Minute), ActorID: 2, ActorUsername: "mod", ChatID: -5, Action: "auction.reject", Target: "2", Error: "boom"})
	_ = st.AppendAudit(ctx, AuditEntry{At: at, ActorID: 3, ChatID: -6, Action: "settings.set", OK: true})

	got, err := st.RecentAudit(ctx, -5, 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("RecentAudit: %d err=%v", len(got), err)
	}
	if got[0].Action != "auction.reject" || got[0].OK || got[0].Error != "boom" || got[0].ActorUsername != "mod" || !got[1].OK {
		t.Fatalf("entries=%+v", got)
	}

	n, err := st.PruneAudit(ctx, at.Add(time.Second))
	if err != nil || n != 2 {
		t.Fatalf("PruneAudit: n=%d err=%v", n, err)
	}
}
