package config

type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Auctions    AuctionsConfig    `json:"auctions"`
	Reminders   RemindersConfig   `json:"reminders"`
	Catalog     CatalogConfig     `json:"catalog"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChat receives forwarded log lines, "chat" or "chat:thread".
	LogChat string `json:"log_chat,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
	// Workers sizes the command worker pool (0 means NumCPU).
	Workers int `json:"workers,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the SQL backend.
//
//	storage:
//	  driver: sqlite
//	  path: ./cardbot.db
//
// For mysql, dsn is a go-sql-driver DSN ("user:pass@tcp(host:3306)/cardbot").
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// AuctionsConfig holds defaults used when a group has not set its own value.
type AuctionsConfig struct {
	// DefaultLifetime is how long an auction stays active ("10m").
	DefaultLifetime string `json:"default_lifetime"`
	// DefaultUserLimit caps open auctions per user (0 means 1).
	DefaultUserLimit int `json:"default_user_limit"`
	// EditorTTL bounds how long a draft waits for submit/cancel ("1h").
	EditorTTL string `json:"editor_ttl"`
	// ActionTimeout bounds a single scheduler action run from a timer ("30s").
	ActionTimeout string `json:"action_timeout,omitempty"`
}

type RemindersConfig struct {
	// MaxDuration caps /timer durations ("8760h").
	MaxDuration string `json:"max_duration"`
}

type CatalogConfig struct {
	BaseURL string `json:"base_url"`
	// ImageURL is a fmt template taking the card id.
	ImageURL   string  `json:"image_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec"`
	Timeout    string  `json:"timeout"`
}

// MaintenanceConfig holds cron specs for background jobs. Empty keeps the
// default schedule; "off" disables the job.
type MaintenanceConfig struct {
	Reconcile  string `json:"reconcile"`
	Prune      string `json:"prune"`
	// KeepFinished is how long finished auctions are kept ("720h").
	KeepFinished string `json:"keep_finished"`
	Timezone     string `json:"timezone,omitempty"`
}
