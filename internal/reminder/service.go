package reminder

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"cardbot/internal/deferred"
	kit "cardbot/internal/transport"
	logx "cardbot/pkg/logx"
)

const DefaultMaxDuration = 365 * 24 * time.Hour

type Service struct {
	store  Store
	poster Poster
	exec   *deferred.Executor
	log    logx.Logger

	maxDuration time.Duration
	fireTimeout time.Duration

	mu    sync.Mutex
	tasks map[int64]*deferred.Task
}

type Option func(*Service)

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }

func WithMaxDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxDuration = d
		}
	}
}

func New(store Store, poster Poster, exec *deferred.Executor, opts ...Option) *Service {
	if exec == nil {
		exec = deferred.New()
	}
	s := &Service{
		store:       store,
		poster:      poster,
		exec:        exec,
		maxDuration: DefaultMaxDuration,
		fireTimeout: 30 * time.Second,
		tasks:       map[int64]*deferred.Task{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "reminder"))
	return s
}

func (s *Service) MaxDuration() time.Duration { return s.maxDuration }

// Draft is a reminder request; After is relative to now.
type Draft struct {
	UserID   int64
	Username string
	Chat     kit.ChatTarget
	Reason   string
	Info     string
	After    time.Duration
}

// Create persists the reminder and arms it.
func (s *Service) Create(ctx context.Context, d Draft) (*Reminder, error) {
	if d.After <= 0 {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	if d.After > s.maxDuration {
		return nil, fmt.Errorf("%w (%s)", ErrTooLong, s.maxDuration)
	}
	now := s.exec.Clock().Now()
	r := &Reminder{
		UserID:    d.UserID,
		Username:  d.Username,
		Chat:      d.Chat,
		Reason:    strings.TrimSpace(d.Reason),
		Info:      strings.TrimSpace(d.Info),
		FireAt:    now.Add(d.After),
		CreatedAt: now,
	}
	id, err := s.store.InsertReminder(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("save reminder: %w", err)
	}
	r.ID = id
	s.arm(*r)
	s.log.Info("reminder set", logx.Int64("reminder_id", id), logx.Int64("user_id", r.UserID), logx.Time("fire_at", r.FireAt))
	return r, nil
}

// Start re-arms every stored reminder. Overdue ones fire right away.
func (s *Service) Start(ctx context.Context) error {
	rs, err := s.store.ListReminders(ctx)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	for _, r := range rs {
		s.arm(r)
	}
	s.log.Info("reminders restored", logx.Int("count", len(rs)))
	return nil
}

// List returns the user's pending reminders, soonest first.
func (s *Service) List(ctx context.Context, userID int64) ([]Reminder, error) {
	rs, err := s.store.ListUserReminders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return rs, nil
}

// Stop cancels all armed reminders without deleting them.
func (s *Service) Stop() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = map[int64]*deferred.Task{}
	s.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
}

// Pending reports how many reminders are armed.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Service) arm(r Reminder) {
	task := s.exec.ExecuteAt(r.FireAt, func() { s.fire(r) })
	s.mu.Lock()
	if !task.Fired() {
		s.tasks[r.ID] = task
	}
	s.mu.Unlock()
}

// fire deletes the row first so a crash never repeats a reminder.
func (s *Service) fire(r Reminder) {
	s.mu.Lock()
	delete(s.tasks, r.ID)
	s.mu.Unlock()

	log := s.log.With(logx.Int64("reminder_id", r.ID))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic firing reminder", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), s.fireTimeout)
	defer cancel()

	ok, err := s.store.DeleteReminder(ctx, r.ID)
	if err != nil {
		log.Error("reminder not deleted", logx.Err(err))
		return
	}
	if !ok {
		return
	}
	if _, err := s.poster.Post(ctx, r.Chat, Text(r)); err != nil {
		log.Warn("reminder not posted", logx.Err(err))
		return
	}
	log.Debug("reminder fired")
}

// Text renders the message posted when r fires.
func Text(r Reminder) string {
	var b strings.Builder
	b.WriteString("Reminder for ")
	b.WriteString(mention(r))
	b.WriteString("!")
	if r.Reason != "" {
		b.WriteString("\nReason: ")
		// Break @mentions so the reason cannot ping other users.
		b.WriteString(strings.ReplaceAll(r.Reason, "@", "@\u200b"))
	}
	if r.Info != "" {
		for _, line := range strings.Split(r.Info, "\n") {
			b.WriteString("\n> ")
			b.WriteString(line)
		}
	}
	return b.String()
}

func mention(r Reminder) string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return fmt.Sprintf("user %d", r.UserID)
}
