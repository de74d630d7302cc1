package storage

import (
	"context"
	"database/sql"
	"time"
)

func (s *Store) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, action, target, ok, err) VALUES(?,?,?,?,?,?,?,?)`,
		e.At.UnixMilli(), e.ActorID, nullStr(e.ActorUsername), e.ChatID, e.Action, e.Target, ok, nullStr(e.Error),
	)
	return err
}

// RecentAudit returns the newest entries for a chat, newest first.
func (s *Store) RecentAudit(ctx context.Context, chatID int64, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, actor_id, actor_username, chat_id, action, target, ok, err FROM audit
		 WHERE chat_id = ? ORDER BY at DESC, id DESC LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var (
			e        AuditEntry
			at       int64
			ok       int
			username sql.NullString
			errText  sql.NullString
		)
		if err := rows.Scan(&at, &e.ActorID, &username, &e.ChatID, &e.Action, &e.Target, &ok, &errText); err != nil {
			return nil, err
		}
		e.At, e.OK, e.ActorUsername, e.Error = time.UnixMilli(at), ok == 1, username.String, errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) PruneAudit(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit WHERE at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
