package app

import (
	"strings"
	"time"

	"cardbot/internal/catalog"
	"cardbot/internal/config"
	"cardbot/internal/maintenance"
	"cardbot/internal/notifier"
	"cardbot/internal/storage"
	kit "cardbot/internal/transport"
	logx "cardbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = "./data/cardbot.db"
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        path,
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

func mapLogConfig(cfg *config.Config, target kit.ChatTarget) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			Target:     target,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapCatalogConfig(cfg *config.Config, rt config.Runtime) catalog.Config {
	return catalog.Config{
		BaseURL:    strings.TrimSpace(cfg.Catalog.BaseURL),
		ImageURL:   strings.TrimSpace(cfg.Catalog.ImageURL),
		RatePerSec: cfg.Catalog.RatePerSec,
		Timeout:    rt.CatalogTimeout,
	}
}

// Telegram allows roughly 30 messages per second per bot.
func mapNotifierConfig() notifier.Config {
	return notifier.Config{
		RatePerSec:    25,
		Burst:         5,
		RetryMax:      3,
		RetryBase:     500 * time.Millisecond,
		RetryMaxDelay: 10 * time.Second,
	}
}

func mapMaintenancePlan(rt config.Runtime) maintenance.Plan {
	return maintenance.Plan{
		ReconcileSpec: rt.ReconcileSpec,
		PruneSpec:     rt.PruneSpec,
		Keep:          rt.KeepFinished,
	}
}
