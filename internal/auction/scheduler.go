package auction

import (
	"context"
	"errors"
	"fmt"

	logx "cardbot/pkg/logx"
)

// Rebalance promotes the oldest queued auctions of a pair while the pair has
// free capacity. It returns how many were promoted.
func (s *Service) Rebalance(ctx context.Context, p Pair) (int, error) {
	p.Category = NormalizeCategory(p.Category)
	release, err := s.locks.acquire(ctx, p)
	if err != nil {
		return 0, err
	}
	defer release()
	return s.rebalanceLocked(ctx, p)
}

// rebalanceLocked reads capacity, active count and the queue as one unit;
// the caller holds the pair lock.
func (s *Service) rebalanceLocked(ctx context.Context, p Pair) (int, error) {
	log := s.log.With(logx.String("pair", p.String()))

	capacity, ok, err := s.settingsFor(p.TenantID).integer(ctx, CapacityKey(p.Category))
	if err != nil {
		return 0, err
	}
	if !ok || capacity <= 0 {
		queued, err := s.store.ListAuctions(ctx, Filter{TenantID: p.TenantID, Category: p.Category, Statuses: []Status{StatusQueued}, Limit: 1})
		if err == nil && len(queued) > 0 {
			log.Warn("no auction capacity configured; queue is stalled", logx.String("key", CapacityKey(p.Category)))
		}
		return 0, err
	}

	active, err := s.store.ListAuctions(ctx, Filter{TenantID: p.TenantID, Category: p.Category, Statuses: []Status{StatusActive}})
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	available := max(capacity-len(active), 0)
	if available == 0 {
		return 0, nil
	}

	queued, err := s.store.ListAuctions(ctx, Filter{TenantID: p.TenantID, Category: p.Category, Statuses: []Status{StatusQueued}, Oldest: true})
	if err != nil {
		return 0, fmt.Errorf("list queue: %w", err)
	}
	sortOldest(queued)

	promoted := 0
	var errs []error
	for i := range queued {
		if promoted == available {
			break
		}
		if err := s.activateLocked(ctx, &queued[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		promoted++
	}
	if promoted > 0 {
		log.Info("queue advanced", logx.Int("promoted", promoted), logx.Int("capacity", capacity), logx.Int("active", len(active)+promoted))
	}
	return promoted, errors.Join(errs...)
}

// RebalanceAll rebalances every pair that has queued auctions. One pair
// failing does not stop the others.
func (s *Service) RebalanceAll(ctx context.Context) error {
	queued, err := s.store.ListAuctions(ctx, Filter{Statuses: []Status{StatusQueued}, Oldest: true})
	if err != nil {
		return fmt.Errorf("list queued auctions: %w", err)
	}
	seen := map[Pair]bool{}
	var errs []error
	for _, a := range queued {
		p := a.Pair()
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := s.Rebalance(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
