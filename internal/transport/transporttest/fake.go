// Package transporttest provides an in-memory kit.Adapter for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	kit "cardbot/internal/transport"
)

type Sent struct {
	Ref     kit.MessageRef
	Text    string
	Buttons [][]kit.Button
}

type Answer struct {
	CallbackID string
	Text       string
}

// Fake records every outbound call. All methods are safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	nextMsg    int
	nextThread int

	sent    []Sent
	edited  []Sent
	deleted []kit.MessageRef
	topics  []kit.ChatTarget
	closed  []kit.ChatTarget
	answers []Answer

	unavailable map[int64]bool
	admins      map[[2]int64]bool
	failTopics  bool
	notify      chan struct{}
}

func New() *Fake {
	return &Fake{
		nextMsg:     100,
		nextThread:  1000,
		unavailable: map[int64]bool{},
		admins:      map[[2]int64]bool{},
		notify:      make(chan struct{}, 64),
	}
}

// SetUnavailable makes posting to chatID fail with kit.ErrUnavailable.
func (f *Fake) SetUnavailable(chatID int64, v bool) {
	f.mu.Lock()
	f.unavailable[chatID] = v
	f.mu.Unlock()
}

// FailTopics makes CreateTopic fail.
func (f *Fake) FailTopics(v bool) {
	f.mu.Lock()
	f.failTopics = v
	f.mu.Unlock()
}

func (f *Fake) SetAdmin(chatID, userID int64) {
	f.mu.Lock()
	f.admins[[2]int64{chatID, userID}] = true
	f.mu.Unlock()
}

// Notify receives a value after every SendText and AnswerCallback.
func (f *Fake) Notify() <-chan struct{} { return f.notify }

func (f *Fake) ping() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *Fake) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *Fake) Stop(context.Context) error                     { return nil }

func (f *Fake) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	if f.unavailable[to.ChatID] {
		f.mu.Unlock()
		return kit.MessageRef{}, fmt.Errorf("%w: chat %d", kit.ErrUnavailable, to.ChatID)
	}
	f.nextMsg++
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextMsg}
	s := Sent{Ref: ref, Text: text}
	if opt != nil {
		s.Buttons = opt.Buttons
	}
	f.sent = append(f.sent, s)
	f.mu.Unlock()
	f.ping()
	return ref, nil
}

func (f *Fake) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Sent{Ref: ref, Text: text}
	if opt != nil {
		s.Buttons = opt.Buttons
	}
	f.edited = append(f.edited, s)
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, ref kit.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *Fake) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, Answer{CallbackID: id, Text: text})
	f.mu.Unlock()
	f.ping()
	return nil
}

func (f *Fake) CreateTopic(_ context.Context, parent kit.ChatTarget, _ string) (kit.ChatTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTopics || f.unavailable[parent.ChatID] {
		return kit.ChatTarget{}, fmt.Errorf("%w: cannot create topic in %d", kit.ErrUnavailable, parent.ChatID)
	}
	f.nextThread++
	t := kit.ChatTarget{ChatID: parent.ChatID, ThreadID: f.nextThread}
	f.topics = append(f.topics, t)
	return t, nil
}

func (f *Fake) CloseTopic(_ context.Context, topic kit.ChatTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, topic)
	return nil
}

func (f *Fake) CanPost(_ context.Context, to kit.ChatTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to.IsZero() || f.unavailable[to.ChatID] {
		return kit.ErrUnavailable
	}
	return nil
}

func (f *Fake) IsAdmin(_ context.Context, chatID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[[2]int64{chatID, userID}], nil
}

func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// SentTo returns messages posted to chatID, in order.
func (f *Fake) SentTo(chatID int64) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.sent {
		if s.Ref.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (f *Fake) Edited() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.edited...)
}

func (f *Fake) Deleted() []kit.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.MessageRef(nil), f.deleted...)
}

func (f *Fake) Topics() []kit.ChatTarget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.ChatTarget(nil), f.topics...)
}

func (f *Fake) Closed() []kit.ChatTarget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.ChatTarget(nil), f.closed...)
}

func (f *Fake) Answers() []Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Answer(nil), f.answers...)
}

var _ kit.Adapter = (*Fake)(nil)
