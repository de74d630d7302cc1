package auction

import (
	"context"
	"sync"
)

// pairLocks serializes work per (tenant, category). Each pair owns a
// one-token channel so waiting respects context cancellation.
type pairLocks struct {
	mu    sync.Mutex
	locks map[Pair]chan struct{}
}

func (l *pairLocks) get(p Pair) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = map[Pair]chan struct{}{}
	}
	ch, ok := l.locks[p]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		l.locks[p] = ch
	}
	return ch
}

// acquire blocks until the pair is free or ctx is done.
func (l *pairLocks) acquire(ctx context.Context, p Pair) (release func(), err error) {
	ch := l.get(p)
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
