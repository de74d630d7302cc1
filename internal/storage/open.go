package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	logx "cardbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type dialect struct {
	name          string
	migrations    string
	upsertSetting string
}

var (
	sqliteDialect = dialect{
		name:       "sqlite",
		migrations: "migrations/sqlite.sql",
		upsertSetting: `INSERT INTO settings(scope, setting_key, setting_value, updated_at) VALUES(?,?,?,?)
			ON CONFLICT(scope, setting_key) DO UPDATE SET setting_value=excluded.setting_value, updated_at=excluded.updated_at`,
	}
	mysqlDialect = dialect{
		name:       "mysql",
		migrations: "migrations/mysql.sql",
		upsertSetting: `INSERT INTO settings(scope, setting_key, setting_value, updated_at) VALUES(?,?,?,?)
			ON DUPLICATE KEY UPDATE setting_value=VALUES(setting_value), updated_at=VALUES(updated_at)`,
	}
)

// Store implements auction.Store, auction.Settings and reminder.Store on
// one *sql.DB. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect dialect
	log     logx.Logger
	now     func() time.Time
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch driver {
	case "", "sqlite", "sqlite3":
		db, err = openSQLite(cfg)
		d = sqliteDialect
	case "mysql":
		db, err = openMySQL(cfg)
		d = mysqlDialect
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.name, err)
	}

	st := &Store{db: db, dialect: d, log: log, now: time.Now}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", d.name))
	return st, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	return db, nil
}

func openMySQL(cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("mysql dsn is required")
	}
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.Loc = time.UTC
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// migrate runs the dialect's schema one statement at a time; MySQL does not
// accept multi-statement Exec without a DSN flag.
func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile(s.dialect.migrations)
	if err != nil {
		return err
	}
	for _, stmt := range splitStatements(string(b)) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migration: %w", s.dialect.name, err)
		}
	}
	return nil
}

func splitStatements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func (s *Store) Driver() string { return s.dialect.name }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
