package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cardbot/internal/auction"
	kit "cardbot/internal/transport"
)

var _ auction.Store = (*Store)(nil)

const auctionColumns = `id, tenant_id, initiator_id, initiator_name, item_id, version, name, category, series, image_url,
	channel, thread, queue_message, approval_message, status, created_at, expires_at`

func (s *Store) InsertAuction(ctx context.Context, a *auction.Auction) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO auctions(tenant_id, initiator_id, initiator_name, item_id, version, name, category, series, image_url,
			channel, thread, queue_message, approval_message, status, created_at, expires_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.TenantID, a.InitiatorID, a.InitiatorName, a.ItemID, a.Version, a.Name, a.Category, a.Series, a.ImageURL,
		a.Channel.String(), a.Thread.String(), a.QueueMessage.String(), a.ApprovalMessage.String(),
		string(a.Status), unixMilli(a.CreatedAt), unixMilli(a.ExpiresAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateAuction writes only the patched columns. Unknown ids report
// auction.ErrNotFound.
func (s *Store) UpdateAuction(ctx context.Context, id int64, p auction.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	if p.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, string(*p.Status))
	}
	if p.Thread != nil {
		sets, args = append(sets, "thread = ?"), append(args, p.Thread.String())
	}
	if p.QueueMessage != nil {
		sets, args = append(sets, "queue_message = ?"), append(args, p.QueueMessage.String())
	}
	if p.ApprovalMessage != nil {
		sets, args = append(sets, "approval_message = ?"), append(args, p.ApprovalMessage.String())
	}
	if p.ExpiresAt != nil {
		sets, args = append(sets, "expires_at = ?"), append(args, unixMilli(*p.ExpiresAt))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE auctions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	// MySQL reports 0 rows for updates that change nothing, so only a
	// missing row is an error.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM auctions WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("auction %d: %w", id, auction.ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *Store) GetAuction(ctx context.Context, id int64) (*auction.Auction, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

func (s *Store) ListAuctions(ctx context.Context, f auction.Filter) ([]auction.Auction, error) {
	var (
		where []string
		args  []any
	)
	if f.TenantID != 0 {
		where, args = append(where, "tenant_id = ?"), append(args, f.TenantID)
	}
	if f.Category != "" {
		where, args = append(where, "category = ?"), append(args, f.Category)
	}
	if f.InitiatorID != 0 {
		where, args = append(where, "initiator_id = ?"), append(args, f.InitiatorID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ",")+")")
	}

	q := `SELECT ` + auctionColumns + ` FROM auctions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Oldest {
		q += " ORDER BY created_at ASC, id ASC"
	} else {
		q += " ORDER BY created_at DESC, id DESC"
	}
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneAuctions deletes Done and Rejected auctions created before the cutoff.
func (s *Store) PruneAuctions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auctions WHERE status IN (?, ?) AND created_at < ?`,
		string(auction.StatusDone), string(auction.StatusRejected), unixMilli(before),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuction(sc scanner) (auction.Auction, error) {
	var (
		a                                   auction.Auction
		channel, thread, queueMsg, approval string
		status                              string
		created, expires                    int64
	)
	err := sc.Scan(&a.ID, &a.TenantID, &a.InitiatorID, &a.InitiatorName, &a.ItemID, &a.Version, &a.Name, &a.Category,
		&a.Series, &a.ImageURL, &channel, &thread, &queueMsg, &approval, &status, &created, &expires)
	if err != nil {
		return a, err
	}
	a.Status = auction.Status(status)
	a.CreatedAt, a.ExpiresAt = fromMilli(created), fromMilli(expires)
	if a.Channel, err = kit.ParseChatTarget(channel); err != nil {
		return a, err
	}
	if a.Thread, err = kit.ParseChatTarget(thread); err != nil {
		return a, err
	}
	if a.QueueMessage, err = kit.ParseMessageRef(queueMsg); err != nil {
		return a, err
	}
	if a.ApprovalMessage, err = kit.ParseMessageRef(approval); err != nil {
		return a, err
	}
	return a, nil
}
