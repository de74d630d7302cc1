package storage

import (
	"context"
	"database/sql"
	"errors"

	"cardbot/internal/auction"
)

var _ auction.Settings = (*Store)(nil)

func (s *Store) GetSetting(ctx context.Context, scope, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT setting_value FROM settings WHERE scope = ? AND setting_key = ?`, scope, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SetSetting(ctx context.Context, scope, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsertSetting, scope, key, value, s.now().UnixMilli())
	return err
}

// ListSettings returns every key of a scope.
func (s *Store) ListSettings(ctx context.Context, scope string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT setting_key, setting_value FROM settings WHERE scope = ? ORDER BY setting_key`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
