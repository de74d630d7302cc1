// Package ttlstore provides an in-memory keyed store whose entries expire.
//
// Keys are generated by the store (UUIDv4) so callers never pick them. Expired
// entries are removed by a periodic sweep (Run) rather than on access: Get may
// still return an entry that expired since the last sweep.
package ttlstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSweepInterval = 5 * time.Second
	defaultMax           = 5000
)

// Store is an in-memory TTL store for values of type V.
//
// It is safe for concurrent use. Different keys are independent; concurrent
// updates of the same key are last-write-wins.
type Store[V any] struct {
	mu sync.RWMutex

	max           int
	sweepInterval time.Duration
	now           func() time.Time
	newKey        func() string

	m map[string]entry[V]
}

type entry[V any] struct {
	v   V
	exp time.Time
}

// New creates a Store with defaults: sweep every 5s, at most 5000 entries.
func New[V any]() *Store[V] {
	return &Store[V]{
		max:           defaultMax,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		newKey:        func() string { return uuid.NewString() },
		m:             map[string]entry[V]{},
	}
}

// WithSweepInterval sets how often Run removes expired entries.
func (s *Store[V]) WithSweepInterval(d time.Duration) *Store[V] {
	if d <= 0 {
		d = defaultSweepInterval
	}
	s.mu.Lock()
	s.sweepInterval = d
	s.mu.Unlock()
	return s
}

// WithMax sets the maximum number of live entries.
func (s *Store[V]) WithMax(max int) *Store[V] {
	if max <= 0 {
		max = defaultMax
	}
	s.mu.Lock()
	s.max = max
	s.mu.Unlock()
	return s
}

// WithClock replaces the time source. Tests use it to drive expiry.
func (s *Store[V]) WithClock(now func() time.Time) *Store[V] {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Put stores v for ttl and returns the generated key.
func (s *Store[V]) Put(v V, ttl time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp := s.now().Add(ttl)
	for {
		key := s.newKey()
		if _, exists := s.m[key]; exists {
			continue
		}
		s.m[key] = entry[V]{v: v, exp: exp}
		s.enforceMaxLocked(key)
		return key
	}
}

// Get returns the value stored under key.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	return e.v, true
}

// Update replaces the value under key and keeps its expiry.
// It is a no-op when key is absent.
func (s *Store[V]) Update(key string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.m[key]
	if !ok {
		return
	}
	s.m[key] = entry[V]{v: v, exp: old.exp}
}

// UpdateTTL replaces the value under key and restarts its expiry at ttl.
// It is a no-op when key is absent.
func (s *Store[V]) UpdateTTL(key string, v V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return
	}
	s.m[key] = entry[V]{v: v, exp: s.now().Add(ttl)}
}

// Delete removes key.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Sweep removes every entry whose expiry is at or before now and returns how
// many were removed.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.m {
		if !e.exp.After(now) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

// Run sweeps on the configured interval until ctx is canceled.
func (s *Store[V]) Run(ctx context.Context) {
	s.mu.RLock()
	interval := s.sweepInterval
	s.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// enforceMaxLocked evicts the entries closest to expiry until the store is
// within max. keep is never evicted.
func (s *Store[V]) enforceMaxLocked(keep string) {
	for s.max > 0 && len(s.m) > s.max {
		var (
			victim string
			exp    time.Time
		)
		for k, e := range s.m {
			if k == keep {
				continue
			}
			if victim == "" || e.exp.Before(exp) {
				victim, exp = k, e.exp
			}
		}
		if victim == "" {
			return
		}
		delete(s.m, victim)
	}
}
