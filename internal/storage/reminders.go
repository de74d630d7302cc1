package storage

import (
	"context"
	"database/sql"

	"cardbot/internal/reminder"
	kit "cardbot/internal/transport"
	logx "cardbot/pkg/logx"
)

var _ reminder.Store = (*Store)(nil)

func (s *Store) InsertReminder(ctx context.Context, r *reminder.Reminder) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(user_id, username, chat, reason, info, fire_at, created_at) VALUES(?,?,?,?,?,?,?)`,
		r.UserID, r.Username, r.Chat.String(), r.Reason, r.Info, unixMilli(r.FireAt), unixMilli(r.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) DeleteReminder(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const reminderCols = `id, user_id, username, chat, reason, info, fire_at, created_at`

func (s *Store) ListReminders(ctx context.Context) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders ORDER BY fire_at, id`)
	if err != nil {
		return nil, err
	}
	return s.scanReminders(rows)
}

// ListUserReminders returns one user's pending reminders, soonest first.
func (s *Store) ListUserReminders(ctx context.Context, userID int64) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE user_id = ? ORDER BY fire_at, id`, userID)
	if err != nil {
		return nil, err
	}
	return s.scanReminders(rows)
}

func (s *Store) scanReminders(rows *sql.Rows) ([]reminder.Reminder, error) {
	defer rows.Close()
	var out []reminder.Reminder
	for rows.Next() {
		var (
			r               reminder.Reminder
			chat            string
			fireAt, created int64
			err             error
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Username, &chat, &r.Reason, &r.Info, &fireAt, &created); err != nil {
			return nil, err
		}
		if r.Chat, err = kit.ParseChatTarget(chat); err != nil {
			s.log.Warn("skipping reminder with bad chat", logx.Int64("reminder_id", r.ID), logx.Err(err))
			continue
		}
		r.FireAt, r.CreatedAt = fromMilli(fireAt), fromMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}
