// Package auctiontest holds in-memory auction.Store and auction.Settings
// implementations for tests.
package auctiontest

import (
	"context"
	"sort"
	"sync"

	"cardbot/internal/auction"
)

type MemStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]auction.Auction
	// Updates counts UpdateAuction calls per id.
	Updates map[int64]int
}

var _ auction.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{rows: map[int64]auction.Auction{}, Updates: map[int64]int{}}
}

func (m *MemStore) InsertAuction(_ context.Context, a *auction.Auction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := *a
	row.ID = m.nextID
	row.Position = 0
	m.rows[row.ID] = row
	return row.ID, nil
}

func (m *MemStore) UpdateAuction(_ context.Context, id int64, p auction.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return auction.ErrNotFound
	}
	p.Apply(&row)
	m.rows[id] = row
	m.Updates[id]++
	return nil
}

func (m *MemStore) GetAuction(_ context.Context, id int64) (*auction.Auction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, false, nil
	}
	return &row, true, nil
}

func (m *MemStore) ListAuctions(_ context.Context, f auction.Filter) ([]auction.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auction.Auction
	for _, row := range m.rows {
		if f.Match(&row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if f.Oldest {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if f.Oldest {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Put stores a row as-is, keeping its ID, for seeding recovery tests.
func (m *MemStore) Put(a auction.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = a
	if a.ID > m.nextID {
		m.nextID = a.ID
	}
}

// Count returns how many rows of a pair are in status.
func (m *MemStore) Count(p auction.Pair, status auction.Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.TenantID == p.TenantID && row.Category == p.Category && row.Status == status {
			n++
		}
	}
	return n
}

type MemSettings struct {
	mu sync.Mutex
	kv map[[2]string]string
}

var _ auction.Settings = (*MemSettings)(nil)

func NewMemSettings() *MemSettings { return &MemSettings{kv: map[[2]string]string{}} }

func (s *MemSettings) GetSetting(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[[2]string{scope, key}]
	return v, ok, nil
}

func (s *MemSettings) SetSetting(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[[2]string{scope, key}] = value
	return nil
}
