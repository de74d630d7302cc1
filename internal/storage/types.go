package storage

import (
	"errors"
	"time"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Config configures storage.
//
// Driver values:
//   - "sqlite": database file at Path (default)
//   - "mysql": server at DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// AuditEntry records an operator action.
type AuditEntry struct {
	At            time.Time
	ActorID       int64
	ActorUsername string
	ChatID        int64
	Action        string
	Target        string
	OK            bool
	Error         string
}
