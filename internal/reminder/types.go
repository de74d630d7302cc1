// Package reminder implements /timer: persisted one-shot reminders that fire
// through the long-horizon executor and survive restarts.
package reminder

import (
	"context"
	"errors"
	"time"

	kit "cardbot/internal/transport"
)

var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrTooLong         = errors.New("duration exceeds maximum")
)

type Reminder struct {
	ID       int64
	UserID   int64
	Username string
	Chat     kit.ChatTarget
	Reason   string
	// Info is an extra line shown under the reason, used by reminders that
	// other features create on a user's behalf.
	Info      string
	FireAt    time.Time
	CreatedAt time.Time
}

// Store persists reminders until they fire.
type Store interface {
	InsertReminder(ctx context.Context, r *Reminder) (int64, error)
	DeleteReminder(ctx context.Context, id int64) (bool, error)
	ListReminders(ctx context.Context) ([]Reminder, error)
	ListUserReminders(ctx context.Context, userID int64) ([]Reminder, error)
}

// Poster is the part of the notifier reminders need.
type Poster interface {
	Post(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error)
}
