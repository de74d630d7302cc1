// Package deferred runs callbacks at arbitrary future instants using only
// bounded single-shot timers.
//
// A task waits in chunks of at most Chunk. Every wakeup recomputes the
// remaining time from the original target, so long waits do not drift.
package deferred

import (
	"sync"
	"time"
)

// Chunk is the longest single timer the executor arms.
const Chunk = 24 * time.Hour

// Timer is a single-shot timer handle.
type Timer interface {
	Stop() bool
}

// Clock supplies time and single-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock backed by time.AfterFunc.
var SystemClock Clock = systemClock{}

// Executor schedules callbacks at absolute instants.
type Executor struct {
	clock Clock
	chunk time.Duration
}

type Option func(*Executor)

// WithClock replaces the time source and timer primitive.
func WithClock(c Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithChunk overrides the maximum single timer duration.
func WithChunk(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.chunk = d
		}
	}
}

func New(opts ...Option) *Executor {
	e := &Executor{clock: SystemClock, chunk: Chunk}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Clock returns the executor's clock.
func (e *Executor) Clock() Clock { return e.clock }

// ExecuteAt runs fn at target. A target at or before now runs fn
// synchronously before ExecuteAt returns.
func (e *Executor) ExecuteAt(target time.Time, fn func()) *Task {
	t := &Task{
		e:      e,
		target: target,
		fn:     fn,
		done:   make(chan struct{}),
	}
	t.step()
	return t
}

type taskState int

const (
	stateArmed taskState = iota
	stateFired
	stateCanceled
)

// Task is one pending ExecuteAt call.
type Task struct {
	e      *Executor
	target time.Time
	fn     func()

	mu     sync.Mutex
	state  taskState
	timer  Timer
	wakeup int
	done   chan struct{}
}

func (t *Task) step() {
	t.mu.Lock()
	if t.state != stateArmed {
		t.mu.Unlock()
		return
	}
	remaining := t.target.Sub(t.e.clock.Now())
	if remaining <= 0 {
		t.state = stateFired
		t.timer = nil
		t.mu.Unlock()

		defer close(t.done)
		if t.fn != nil {
			t.fn()
		}
		return
	}
	d := remaining
	if d > t.e.chunk {
		d = t.e.chunk
	}
	t.wakeup++
	t.timer = t.e.clock.AfterFunc(d, t.step)
	t.mu.Unlock()
}

// Target returns the instant the task fires at.
func (t *Task) Target() time.Time { return t.target }

// Wakeups reports how many timers the task has armed so far.
func (t *Task) Wakeups() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wakeup
}

// Fired reports whether the callback has been invoked.
func (t *Task) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateFired
}

// Done is closed once the callback returns or the task is canceled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel stops a pending task. It returns false if the task already fired
// or was canceled.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateArmed {
		return false
	}
	t.state = stateCanceled
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	close(t.done)
	return true
}
