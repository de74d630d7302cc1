// Package maintenance runs periodic housekeeping on cron schedules:
// queue reconciliation and pruning of finished auctions and old audit rows.
package maintenance

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "cardbot/pkg/logx"
)

// Job is one scheduled task. An empty Spec disables it.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Service struct {
	log logx.Logger

	mu   sync.Mutex
	c    *cron.Cron
	loc  *time.Location
	jobs map[string]Job
	ids  map[string]cron.EntryID
	ctx  context.Context
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log.With(logx.String("comp", "maintenance")), loc: time.Local, jobs: map[string]Job{}}
}

// Start schedules jobs in loc. Jobs run with a context derived from ctx, so
// canceling ctx aborts running jobs; call Stop to stop triggering.
func (s *Service) Start(ctx context.Context, loc *time.Location, jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return fmt.Errorf("maintenance already started")
	}
	s.ctx = ctx
	return s.startLocked(loc, jobs)
}

func (s *Service) startLocked(loc *time.Location, jobs []Job) error {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	registered := map[string]Job{}
	ids := map[string]cron.EntryID{}
	for _, j := range jobs {
		spec, err := NormalizeSpec(j.Spec)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		j.Spec = spec
		registered[j.Name] = j
		if j.Spec == "" {
			s.log.Info("job disabled", logx.String("job", j.Name))
			continue
		}
		j := j
		id, err := c.AddFunc(j.Spec, func() { _ = s.run(j) })
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		ids[j.Name] = id
	}
	c.Start()
	s.c, s.loc, s.jobs, s.ids = c, loc, registered, ids
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("jobs", len(c.Entries())))
	return nil
}

// Apply replaces the schedule, e.g. after a config reload. Running jobs finish.
func (s *Service) Apply(loc *time.Location, jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return fmt.Errorf("maintenance not started")
	}
	old := s.c
	if err := s.startLocked(loc, jobs); err != nil {
		return err
	}
	old.Stop()
	return nil
}

// Stop stops triggering and waits for running jobs or ctx, whichever ends first.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

// RunNow runs a registered job synchronously, outside its schedule.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(j)
}

// Next returns the next trigger time per scheduled job.
func (s *Service) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]time.Time{}
	if s.c == nil {
		return out
	}
	for name, id := range s.ids {
		out[name] = s.c.Entry(id).Next
	}
	return out
}

func (s *Service) run(j Job) (err error) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, j.Timeout)
		defer cancel()
	}
	log := s.log.With(logx.String("job", j.Name))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("job panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	if err = j.Run(ctx); err != nil {
		log.Warn("job failed", logx.Duration("took", time.Since(start)), logx.Err(err))
		return err
	}
	log.Debug("job done", logx.Duration("took", time.Since(start)))
	return nil
}

// cronLogger adapts logx to cron.Logger for the Recover and
// SkipIfStillRunning wrappers.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) { l.log.Debug("cron: "+msg, kvFields(kv)...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
