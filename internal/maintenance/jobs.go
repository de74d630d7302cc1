package maintenance

import (
	"context"
	"errors"
	"time"

	logx "cardbot/pkg/logx"
)

const (
	JobReconcile = "reconcile"
	JobPrune     = "prune"
)

type Rebalancer interface {
	RebalanceAll(ctx context.Context) error
}

type Pruner interface {
	PruneAuctions(ctx context.Context, before time.Time) (int64, error)
	PruneAudit(ctx context.Context, before time.Time) (int64, error)
}

type Plan struct {
	ReconcileSpec string
	PruneSpec     string
	// Keep is how long finished auctions and audit rows are retained.
	Keep time.Duration
	Now  func() time.Time
}

// Jobs builds the reconcile and prune jobs. Reconcile catches queues that
// missed a promotion, e.g. after a failed notification or a manual DB edit.
func Jobs(p Plan, auctions Rebalancer, store Pruner, log logx.Logger) []Job {
	if p.Now == nil {
		p.Now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return []Job{
		{
			Name:    JobReconcile,
			Spec:    p.ReconcileSpec,
			Timeout: 2 * time.Minute,
			Run:     auctions.RebalanceAll,
		},
		{
			Name:    JobPrune,
			Spec:    p.PruneSpec,
			Timeout: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				if p.Keep <= 0 {
					return nil
				}
				cutoff := p.Now().Add(-p.Keep)
				na, errA := store.PruneAuctions(ctx, cutoff)
				nl, errL := store.PruneAudit(ctx, cutoff)
				if na > 0 || nl > 0 {
					log.Info("pruned old rows", logx.Int64("auctions", na), logx.Int64("audit", nl), logx.Time("before", cutoff))
				}
				return errors.Join(errA, errL)
			},
		},
	}
}
