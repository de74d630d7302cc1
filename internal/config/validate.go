package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cardbot/internal/maintenance"
	kit "cardbot/internal/transport"
)

const (
	DefaultAuctionLifetime = 10 * time.Minute
	DefaultEditorTTL       = time.Hour
	DefaultActionTimeout   = 30 * time.Second
	DefaultReminderMax     = 365 * 24 * time.Hour
	DefaultCatalogURL      = "https://server.mazoku.cc/card/catalog"
	DefaultCatalogImageURL = "https://cdn7.mazoku.cc/cards/%s/card"
	DefaultReconcileSpec   = "@every 5m"
	DefaultPruneSpec       = "@daily"
	DefaultKeepFinished    = 30 * 24 * time.Hour
)

// Runtime is the parsed, defaulted view of a Config.
type Runtime struct {
	PollTimeout      time.Duration
	LogChat          kit.ChatTarget
	AuctionLifetime  time.Duration
	DefaultUserLimit int
	EditorTTL        time.Duration
	ActionTimeout    time.Duration
	ReminderMax      time.Duration
	CatalogTimeout   time.Duration
	KeepFinished     time.Duration
	ReconcileSpec    string // empty when disabled
	PruneSpec        string // empty when disabled
	Location         *time.Location
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault returns def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// Resolve validates cfg and returns its runtime view. Every problem is
// reported, not just the first.
func Resolve(cfg *Config) (Runtime, error) {
	if cfg == nil {
		return Runtime{}, errors.New("config is nil")
	}
	var (
		rt   Runtime
		errs []error
		err  error
	)
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, e := ParseDurationOrDefault(path, raw, def)
		if e != nil {
			errs = append(errs, e)
		}
		return d
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	rt.PollTimeout = dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if rt.LogChat, err = kit.ParseChatTarget(cfg.Telegram.LogChat); err != nil {
		errs = append(errs, fmt.Errorf("telegram.log_chat: %w", err))
	}
	if cfg.Logging.Chat.Enabled && rt.LogChat.IsZero() {
		errs = append(errs, errors.New("logging.chat.enabled requires telegram.log_chat"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite":
	case "mysql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	_ = dur("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)

	rt.AuctionLifetime = dur("auctions.default_lifetime", cfg.Auctions.DefaultLifetime, DefaultAuctionLifetime)
	rt.EditorTTL = dur("auctions.editor_ttl", cfg.Auctions.EditorTTL, DefaultEditorTTL)
	rt.ActionTimeout = dur("auctions.action_timeout", cfg.Auctions.ActionTimeout, DefaultActionTimeout)
	rt.DefaultUserLimit = cfg.Auctions.DefaultUserLimit
	switch {
	case rt.DefaultUserLimit < 0:
		errs = append(errs, errors.New("auctions.default_user_limit must be >= 0"))
	case rt.DefaultUserLimit == 0:
		rt.DefaultUserLimit = 1
	}

	rt.ReminderMax = dur("reminders.max_duration", cfg.Reminders.MaxDuration, DefaultReminderMax)
	rt.CatalogTimeout = dur("catalog.timeout", cfg.Catalog.Timeout, 8*time.Second)
	if cfg.Catalog.RatePerSec < 0 {
		errs = append(errs, errors.New("catalog.rate_per_sec must be >= 0"))
	}

	rt.KeepFinished = dur("maintenance.keep_finished", cfg.Maintenance.KeepFinished, DefaultKeepFinished)
	spec := func(path, raw, def string) string {
		if strings.TrimSpace(raw) == "" {
			raw = def
		}
		out, err := maintenance.NormalizeSpec(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
		return out
	}
	rt.ReconcileSpec = spec("maintenance.reconcile", cfg.Maintenance.Reconcile, DefaultReconcileSpec)
	rt.PruneSpec = spec("maintenance.prune", cfg.Maintenance.Prune, DefaultPruneSpec)
	rt.Location = time.Local
	if tz := strings.TrimSpace(cfg.Maintenance.Timezone); tz != "" {
		if rt.Location, err = time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.timezone: %w", err))
		}
	}

	return rt, errors.Join(errs...)
}
