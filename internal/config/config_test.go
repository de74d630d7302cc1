package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  log_chat: "-1001:7"
  poll_timeout: 15s
logging:
  level: debug
  console: true
  chat:
    enabled: true
    min_level: warn
storage:
  driver: sqlite
  path: ./cardbot.db
auctions:
  default_lifetime: 20m
  editor_ttl: 30m
reminders:
  max_duration: 48h
catalog:
  base_url: http://localhost/catalog
  rate_per_sec: 2
maintenance:
  reconcile: "@every 1m"
  prune: "off"
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || !reflect.DeepEqual(cfg.Telegram.OwnerUserIDs, []int64{42}) {
		t.Fatalf("telegram=%+v", cfg.Telegram)
	}
	if cfg.Catalog.RatePerSec != 2 {
		t.Fatalf("catalog=%+v", cfg.Catalog)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := Decode("config.json", []byte(`{"telegram":{"token":"x"},"plugins":{}}`))
	if err == nil || !strings.Contains(err.Error(), "plugins") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	if _, err := Decode("config.json", []byte(`{} {}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestResolveDefaultsAndSpecs(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rt, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.PollTimeout != 15*time.Second || rt.AuctionLifetime != 20*time.Minute || rt.EditorTTL != 30*time.Minute {
		t.Fatalf("durations: %+v", rt)
	}
	if rt.ActionTimeout != DefaultActionTimeout || rt.KeepFinished != DefaultKeepFinished {
		t.Fatalf("defaults: %+v", rt)
	}
	if rt.DefaultUserLimit != 1 {
		t.Fatalf("user limit default=%d", rt.DefaultUserLimit)
	}
	if rt.LogChat.ChatID != -1001 || rt.LogChat.ThreadID != 7 {
		t.Fatalf("log chat=%+v", rt.LogChat)
	}
	if rt.ReconcileSpec != "@every 1m" || rt.PruneSpec != "" {
		t.Fatalf("specs reconcile=%q prune=%q", rt.ReconcileSpec, rt.PruneSpec)
	}
}

func TestResolveCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Storage:     StorageConfig{Driver: "mysql"},
		Auctions:    AuctionsConfig{DefaultLifetime: "soon", DefaultUserLimit: -1},
		Maintenance: MaintenanceConfig{Reconcile: "every now and then"},
	}
	_, err := Resolve(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"telegram.token", "storage.dsn", "auctions.default_lifetime", "default_user_limit", "maintenance.reconcile"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	t.Setenv("CARDBOT_TELEGRAM_TOKEN", "from-env")
	t.Setenv("CARDBOT_STORAGE_DSN", "u:p@tcp(db:3306)/cards")
	cfg := &Config{Telegram: TelegramConfig{Token: "from-file"}}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.Token != "from-env" || cfg.Storage.DSN != "u:p@tcp(db:3306)/cards" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadDotEnvIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "nope.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	p := filepath.Join(dir, ".env")
	if err := os.WriteFile(p, []byte("CARDBOT_DOTENV_PROBE=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CARDBOT_DOTENV_PROBE") })
	if err := LoadDotEnv(p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if os.Getenv("CARDBOT_DOTENV_PROBE") != "yes" {
		t.Fatalf("variable not loaded")
	}
}

func TestChangedSectionsHidesSecrets(t *testing.T) {
	t.Parallel()
	a := &Config{Telegram: TelegramConfig{Token: "a"}}
	b := &Config{Telegram: TelegramConfig{Token: "b"}, Auctions: AuctionsConfig{EditorTTL: "2h"}}
	got := ChangedSections(a, b)
	if !reflect.DeepEqual(got, []string{"auctions"}) {
		t.Fatalf("changed=%v", got)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	write := func(ttl string) {
		t.Helper()
		body := `{"telegram":{"token":"t"},"auctions":{"editor_ttl":"` + ttl + `"}}`
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("1h")
	m := NewConfigManager(p)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)
	write("2h")

	select {
	case cfg := <-sub:
		if cfg.Auctions.EditorTTL != "2h" {
			t.Fatalf("editor_ttl=%q", cfg.Auctions.EditorTTL)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no reload published")
	}
	if m.Get().Auctions.EditorTTL != "2h" {
		t.Fatalf("Get not updated")
	}
}
