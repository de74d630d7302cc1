package auction

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"cardbot/internal/deferred"
	kit "cardbot/internal/transport"
	logx "cardbot/pkg/logx"
)

const (
	DefaultLifetime      = 10 * time.Minute
	DefaultUserLimit     = 1
	DefaultActionTimeout = 30 * time.Second
)

// Service owns the auction lifecycle: every status change goes through it
// while holding the lock of the auction's (tenant, category) pair.
type Service struct {
	store    Store
	settings Settings
	notify   Notifier
	exec     *deferred.Executor
	log      logx.Logger

	lifetime      time.Duration
	userLimit     int
	actionTimeout time.Duration

	locks pairLocks

	tasksMu sync.Mutex
	tasks   map[int64]*deferred.Task
}

type Option func(*Service)

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }

// WithDefaultLifetime applies when a tenant has no auction_lifetime_minutes.
func WithDefaultLifetime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithDefaultUserLimit applies when a tenant has no max_auctions_per_user.
func WithDefaultUserLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.userLimit = n
		}
	}
}

// WithActionTimeout bounds a Finish run started by an expiry timer.
func WithActionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.actionTimeout = d
		}
	}
}

func NewService(store Store, settings Settings, notify Notifier, exec *deferred.Executor, opts ...Option) *Service {
	if exec == nil {
		exec = deferred.New()
	}
	s := &Service{
		store:         store,
		settings:      settings,
		notify:        notify,
		exec:          exec,
		lifetime:      DefaultLifetime,
		userLimit:     DefaultUserLimit,
		actionTimeout: DefaultActionTimeout,
		tasks:         map[int64]*deferred.Task{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "auction"))
	return s
}

func (s *Service) now() time.Time { return s.exec.Clock().Now() }

// Get returns ErrNotFound for unknown ids.
func (s *Service) Get(ctx context.Context, id int64) (*Auction, error) {
	a, ok, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get auction %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	return a, nil
}

// Create validates routing and limits, stores a Pending auction and posts
// the approval request.
func (s *Service) Create(ctx context.Context, d Draft) (*Auction, error) {
	d.Category = NormalizeCategory(d.Category)
	if d.ItemID == "" || d.Category == "" {
		return nil, ErrUnknownItem
	}
	ts := s.settingsFor(d.TenantID)

	approval, ok, err := ts.channel(ctx, KeyApprovalChannel)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: approval channel not set", ErrConfigurationMissing)
	}
	target, ok, err := ts.channel(ctx, ChannelKey(d.Category))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no auction channel for %q", ErrConfigurationMissing, d.Category)
	}
	for _, c := range []kit.ChatTarget{approval, target} {
		if err := s.notify.CanPost(ctx, c); err != nil {
			if errors.Is(err, ErrChannelUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
		}
	}

	limit, ok, err := ts.integer(ctx, KeyMaxAuctionsPerUser)
	if err != nil {
		return nil, err
	}
	if !ok || limit < 1 {
		limit = s.userLimit
	}
	open, err := s.store.ListAuctions(ctx, Filter{
		TenantID:    d.TenantID,
		InitiatorID: d.InitiatorID,
		Statuses:    []Status{StatusPending, StatusQueued, StatusActive},
	})
	if err != nil {
		return nil, fmt.Errorf("list open auctions: %w", err)
	}
	if len(open) >= limit {
		return nil, fmt.Errorf("%w (%d)", ErrUserLimit, limit)
	}

	a := &Auction{
		TenantID:      d.TenantID,
		InitiatorID:   d.InitiatorID,
		InitiatorName: d.InitiatorName,
		ItemID:        d.ItemID,
		Version:       d.Version,
		Name:          d.Name,
		Category:      d.Category,
		Series:        d.Series,
		ImageURL:      d.ImageURL,
		Channel:       target,
		Status:        StatusPending,
		CreatedAt:     s.now(),
	}
	if a.ID, err = s.store.InsertAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("insert auction: %w", err)
	}
	log := s.log.With(logx.Int64("auction_id", a.ID), logx.String("pair", a.Pair().String()))

	ref, err := s.notify.PostWithButtons(ctx, approval, approvalText(a), approvalButtons(a.ID))
	if err != nil {
		log.Warn("approval request not posted", logx.Err(err))
	} else {
		a.ApprovalMessage = ref
		if err := s.store.UpdateAuction(ctx, a.ID, Patch{ApprovalMessage: &ref}); err != nil {
			log.Warn("approval message ref not saved", logx.Err(err))
		}
	}
	log.Info("auction created", logx.Int64("initiator_id", a.InitiatorID), logx.String("item_id", a.ItemID))
	return a, nil
}

// lockAuction loads id, takes its pair lock and reloads it under the lock.
func (s *Service) lockAuction(ctx context.Context, id int64) (*Auction, func(), error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	release, err := s.locks.acquire(ctx, a.Pair())
	if err != nil {
		return nil, nil, err
	}
	a, err = s.Get(ctx, id)
	if err != nil {
		release()
		return nil, nil, err
	}
	return a, release, nil
}

func transitionErr(a *Auction, to Status) error {
	return fmt.Errorf("auction %d %s -> %s: %w", a.ID, a.Status, to, ErrInvalidTransition)
}

// Approve queues a Pending auction, or activates it directly when the tenant
// has no queue channel, then rebalances the pair.
func (s *Service) Approve(ctx context.Context, id int64) error {
	a, release, err := s.lockAuction(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if a.Status != StatusPending {
		return transitionErr(a, StatusQueued)
	}
	approval := a.ApprovalMessage

	queue, queued, err := s.settingsFor(a.TenantID).channel(ctx, KeyQueueChannel)
	if err != nil {
		return err
	}
	if !queued {
		if err := s.activateLocked(ctx, a); err != nil {
			return err
		}
	} else {
		var ref kit.MessageRef
		if r, err := s.notify.Post(ctx, queue, queueText(a)); err != nil {
			s.log.Warn("queue message not posted", logx.Int64("auction_id", a.ID), logx.Err(err))
		} else {
			ref = r
		}
		if err := s.store.UpdateAuction(ctx, a.ID, Patch{Status: ptr(StatusQueued), QueueMessage: &ref, ApprovalMessage: &kit.MessageRef{}}); err != nil {
			return fmt.Errorf("queue auction %d: %w", a.ID, err)
		}
		s.log.Info("auction queued", logx.Int64("auction_id", a.ID), logx.String("pair", a.Pair().String()))
	}
	// The buttons stay until the row has left Pending, so a failed approve
	// can be retried.
	s.deleteMessage(ctx, a, approval, "approval")

	_, err = s.rebalanceLocked(ctx, a.Pair())
	return err
}

// Reject closes a Pending auction and removes its approval request.
func (s *Service) Reject(ctx context.Context, id int64) error {
	a, release, err := s.lockAuction(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if !a.Status.CanTransition(StatusRejected) {
		return transitionErr(a, StatusRejected)
	}
	if err := s.store.UpdateAuction(ctx, a.ID, Patch{Status: ptr(StatusRejected), ApprovalMessage: &kit.MessageRef{}}); err != nil {
		return fmt.Errorf("reject auction %d: %w", a.ID, err)
	}
	s.deleteMessage(ctx, a, a.ApprovalMessage, "approval")
	s.log.Info("auction rejected", logx.Int64("auction_id", a.ID))
	return nil
}

// Activate promotes one auction outside of a rebalance, under its pair lock.
func (s *Service) Activate(ctx context.Context, id int64) error {
	a, release, err := s.lockAuction(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return s.activateLocked(ctx, a)
}

// activateLocked opens the auction thread, persists Active with its expiry
// and arms Finish. The caller holds the pair lock.
func (s *Service) activateLocked(ctx context.Context, a *Auction) error {
	if !a.Status.CanTransition(StatusActive) {
		return transitionErr(a, StatusActive)
	}
	lifetime, err := s.settingsFor(a.TenantID).lifetime(ctx, s.lifetime)
	if err != nil {
		return err
	}
	expires := s.now().Add(lifetime)
	log := s.log.With(logx.Int64("auction_id", a.ID), logx.String("pair", a.Pair().String()))

	thread, err := s.notify.CreateSubchannel(ctx, a.Channel, topicTitle(a), topicText(a, expires))
	if err != nil {
		log.Warn("auction thread not created", logx.Err(err))
		thread = kit.ChatTarget{}
	}
	s.deleteMessage(ctx, a, a.QueueMessage, "queue")

	if err := s.store.UpdateAuction(ctx, a.ID, Patch{
		Status:          ptr(StatusActive),
		Thread:          &thread,
		QueueMessage:    &kit.MessageRef{},
		ApprovalMessage: &kit.MessageRef{},
		ExpiresAt:       &expires,
	}); err != nil {
		return fmt.Errorf("activate auction %d: %w", a.ID, err)
	}
	a.Status, a.Thread, a.QueueMessage, a.ExpiresAt = StatusActive, thread, kit.MessageRef{}, expires

	s.arm(a.ID, expires)
	log.Info("auction active", logx.Time("expires_at", expires))
	return nil
}

// Finish ends an Active auction and rebalances its pair. Calls for missing
// or non-Active auctions are no-ops.
func (s *Service) Finish(ctx context.Context, id int64) error {
	a, release, err := s.lockAuction(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.forget(id)
		return nil
	}
	if err != nil {
		return err
	}
	defer release()

	if a.Status != StatusActive {
		return nil
	}
	if err := s.store.UpdateAuction(ctx, a.ID, Patch{Status: ptr(StatusDone)}); err != nil {
		return fmt.Errorf("finish auction %d: %w", a.ID, err)
	}
	s.forget(a.ID)

	log := s.log.With(logx.Int64("auction_id", a.ID), logx.String("pair", a.Pair().String()))
	where := a.Thread
	if where.IsZero() {
		where = a.Channel
	}
	if _, err := s.notify.Post(ctx, where, closingText(a)); err != nil {
		log.Warn("closing message not posted", logx.Err(err))
	}
	if !a.Thread.IsZero() {
		if err := s.notify.Lock(ctx, a.Thread); err != nil {
			log.Warn("auction thread not locked", logx.Err(err))
		}
	}
	log.Info("auction finished")

	_, err = s.rebalanceLocked(ctx, a.Pair())
	return err
}

// ForceStatus sets a status outside the normal transition table. Any
// pending expiry is canceled; forcing Active arms a fresh one. Thread and
// message refs follow the target status: leaving Active locks the thread
// and only Done keeps the ref, leaving Queued or Pending drops the queue or
// approval message.
func (s *Service) ForceStatus(ctx context.Context, id int64, to Status) error {
	a, release, err := s.lockAuction(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.forget(a.ID)
	log := s.log.With(logx.Int64("auction_id", a.ID), logx.String("pair", a.Pair().String()))
	from := a.Status
	p := Patch{Status: &to}
	var expires time.Time
	switch {
	case to == StatusActive:
		lifetime, err := s.settingsFor(a.TenantID).lifetime(ctx, s.lifetime)
		if err != nil {
			return err
		}
		expires = s.now().Add(lifetime)
		p.ExpiresAt = &expires
		if from != StatusActive {
			thread, err := s.notify.CreateSubchannel(ctx, a.Channel, topicTitle(a), topicText(a, expires))
			if err != nil {
				log.Warn("auction thread not created", logx.Err(err))
				thread = kit.ChatTarget{}
			}
			p.Thread = &thread
		}
	case from == StatusActive && to != StatusDone:
		p.Thread = &kit.ChatTarget{}
	}
	if from == StatusQueued && to != StatusQueued {
		p.QueueMessage = &kit.MessageRef{}
	}
	if from == StatusPending && to != StatusPending {
		p.ApprovalMessage = &kit.MessageRef{}
	}
	if err := s.store.UpdateAuction(ctx, a.ID, p); err != nil {
		return fmt.Errorf("force auction %d: %w", a.ID, err)
	}
	if to == StatusActive {
		s.arm(a.ID, expires)
	}
	if from == StatusActive && to != StatusActive && !a.Thread.IsZero() {
		if err := s.notify.Lock(ctx, a.Thread); err != nil {
			log.Warn("auction thread not locked", logx.Err(err))
		}
	}
	if p.QueueMessage != nil {
		s.deleteMessage(ctx, a, a.QueueMessage, "queue")
	}
	if p.ApprovalMessage != nil {
		s.deleteMessage(ctx, a, a.ApprovalMessage, "approval")
	}
	log.Warn("auction status forced", logx.String("from", string(from)), logx.String("to", string(to)))

	_, err = s.rebalanceLocked(ctx, a.Pair())
	return err
}

// List returns the open auctions of one user, with queue positions filled in.
func (s *Service) List(ctx context.Context, tenantID, initiatorID int64) ([]Auction, error) {
	mine, err := s.store.ListAuctions(ctx, Filter{
		TenantID:    tenantID,
		InitiatorID: initiatorID,
		Statuses:    []Status{StatusPending, StatusQueued, StatusActive},
	})
	if err != nil {
		return nil, err
	}
	queued, err := s.store.ListAuctions(ctx, Filter{TenantID: tenantID, Statuses: []Status{StatusQueued}, Oldest: true})
	if err != nil {
		return nil, err
	}
	sortOldest(queued)
	pos := make(map[int64]int, len(queued))
	for i, q := range queued {
		pos[q.ID] = i + 1
	}
	for i := range mine {
		if mine[i].Status == StatusQueued {
			mine[i].Position = pos[mine[i].ID]
		}
	}
	return mine, nil
}

// Recover re-arms expiries of Active auctions (past ones finish now) and
// then rebalances every pair with queued auctions.
func (s *Service) Recover(ctx context.Context) error {
	active, err := s.store.ListAuctions(ctx, Filter{Statuses: []Status{StatusActive}, Oldest: true})
	if err != nil {
		return fmt.Errorf("list active auctions: %w", err)
	}
	for _, a := range active {
		at := a.ExpiresAt
		if at.IsZero() {
			at = s.now()
		}
		s.arm(a.ID, at)
	}
	s.log.Info("auction timers restored", logx.Int("active", len(active)))
	return s.RebalanceAll(ctx)
}

// Stop cancels every armed expiry. Stored auctions are untouched; the next
// Recover re-arms them.
func (s *Service) Stop() {
	s.tasksMu.Lock()
	tasks := s.tasks
	s.tasks = map[int64]*deferred.Task{}
	s.tasksMu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
}

// ArmedTimers reports how many expiry timers are pending.
func (s *Service) ArmedTimers() int {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	return len(s.tasks)
}

// arm schedules Finish at the given instant, replacing an earlier task.
// A due instant finishes synchronously, so callers must not hold the pair lock then.
func (s *Service) arm(id int64, at time.Time) {
	s.forget(id)
	task := s.exec.ExecuteAt(at, func() { s.expire(id) })
	s.tasksMu.Lock()
	// checked under tasksMu so a timer firing right away cannot leave a stale entry
	if !task.Fired() {
		s.tasks[id] = task
	}
	s.tasksMu.Unlock()
}

func (s *Service) forget(id int64) {
	s.tasksMu.Lock()
	t := s.tasks[id]
	delete(s.tasks, id)
	s.tasksMu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// expire is the timer callback; it has no caller to report to.
func (s *Service) expire(id int64) {
	s.tasksMu.Lock()
	// A task armed after this one is not fired yet and must stay.
	if t, ok := s.tasks[id]; ok && t.Fired() {
		delete(s.tasks, id)
	}
	s.tasksMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic finishing auction", logx.Int64("auction_id", id), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), s.actionTimeout)
	defer cancel()
	if err := s.Finish(ctx, id); err != nil {
		s.log.Error("finish auction failed", logx.Int64("auction_id", id), logx.Err(err))
	}
}

func (s *Service) deleteMessage(ctx context.Context, a *Auction, ref kit.MessageRef, what string) {
	if ref.IsZero() {
		return
	}
	if err := s.notify.Delete(ctx, ref); err != nil {
		s.log.Warn(what+" message not deleted", logx.Int64("auction_id", a.ID), logx.Err(err))
	}
}

func sortOldest(as []Auction) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].CreatedAt.Before(as[j].CreatedAt)
		}
		return as[i].ID < as[j].ID
	})
}
