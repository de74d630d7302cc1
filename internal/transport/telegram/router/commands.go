package router

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "cardbot/internal/runtime/supervisor"
	kit "cardbot/internal/transport"
	logx "cardbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessAdmin allows chat administrators and bot owners.
	AccessAdmin
	AccessOwner
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute matches callback data of the form "prefix:action[:payload]".
type CallbackRoute struct {
	Prefix  string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	MessageID    int
	Command      string
	Args         []string
	// Rest is the raw text after the command word.
	Rest    string
	Payload string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply posts text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

type Manager struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]CallbackRoute // "prefix:action"
	owners    []int64

	log     logx.Logger
	adapter kit.Adapter
	workers int

	jobs chan func()
}

type Option func(*Manager)

// WithWorkers overrides the worker pool size (default NumCPU, at least 2).
func WithWorkers(n int) Option { return func(m *Manager) { m.workers = n } }

// WithQueueSize sets the job queue capacity.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.jobs = make(chan func(), n)
		}
	}
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64, opts ...Option) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
		owners:    append([]int64(nil), owners...),
		log:       log,
		adapter:   adapter,
		workers:   max(2, runtime.NumCPU()),
		jobs:      make(chan func(), 256),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetOwners replaces the owner list. Safe during hot reload.
func (m *Manager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *Manager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	commands := map[string]Command{}
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		commands[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, taken := commands[a]; !taken {
					commands[a] = c
				}
			}
		}
	}
	help := Command{
		Name:        "help",
		Description: "list commands",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, helpText(cmds), &kit.SendOptions{DisablePreview: true})
			return err
		},
	}
	if _, ok := commands["help"]; !ok {
		commands["help"] = help
	}

	callbacks := map[string]CallbackRoute{}
	for _, r := range cbs {
		p, a := strings.TrimSpace(r.Prefix), strings.TrimSpace(r.Action)
		if p == "" || a == "" || r.Handle == nil {
			continue
		}
		callbacks[p+":"+a] = r
	}

	m.mu.Lock()
	m.commands = commands
	m.callbacks = callbacks
	m.mu.Unlock()
}

func helpText(cmds []Command) string {
	sorted := append([]Command(nil), cmds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range sorted {
		b.WriteString("\n/" + c.Name)
		if c.Usage != "" {
			b.WriteString("  " + c.Usage)
		}
		if c.Description != "" {
			b.WriteString("\n    " + c.Description)
		}
	}
	return b.String()
}

func (m *Manager) snapshot() (map[string]Command, map[string]CallbackRoute, []int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commands, m.callbacks, append([]int64(nil), m.owners...)
}

// tryEnqueue never blocks; a closed queue counts as full.
func (m *Manager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop routes updates to a bounded worker pool until ctx is done
// or updates is closed.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					m.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Manager) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (m *Manager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

// parseCommand splits "/name@bot rest..." into the lowercased name and the rest.
func parseCommand(text string) (name, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", "", false
	}
	return strings.ToLower(word), strings.TrimSpace(rest), true
}

func (m *Manager) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, rest, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	commands, _, owners := m.snapshot()
	cmd, ok := commands[name]
	if !ok {
		return
	}

	rid := newReqID()
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		MessageID:    msg.ID,
		Command:      cmd.Name,
		Args:         strings.Fields(rest),
		Rest:         rest,
		ReqID:        rid,
		Adapter:      m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
		MWAccess(cmd.Access, owners),
	)
	if !m.tryEnqueue(func() {
		if err := final(root, req); err != nil {
			m.replyError(root, req, err)
		}
	}) {
		_, _ = m.adapter.SendText(root, chat, "Busy, try again in a moment.", nil)
	}
}

func (m *Manager) replyError(ctx context.Context, req *Request, err error) {
	text := "Something went wrong."
	if errors.Is(err, ErrForbidden) {
		text = "You are not allowed to use this command."
	}
	_, _ = m.adapter.SendText(ctx, req.Chat, text, nil)
}

func (m *Manager) routeCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	parts := strings.SplitN(cb.Data, ":", 3)
	if len(parts) < 2 {
		return
	}
	key := parts[0] + ":" + parts[1]
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	_, callbacks, owners := m.snapshot()
	route, ok := callbacks[key]
	if !ok {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}

	rid := newReqID()
	req := &Request{
		Update:       up,
		Chat:         kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:       cb.FromID,
		FromUsername: cb.FromUsername,
		MessageID:    cb.MessageID,
		Command:      "cb:" + key,
		Payload:      payload,
		ReqID:        rid,
		Adapter:      m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", cb.ChatID),
			logx.Int64("from_id", cb.FromID),
			logx.String("cmd", "cb:"+key),
		),
	}
	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(
		h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(route.Timeout),
		MWAccess(route.Access, owners),
	)
	if !m.tryEnqueue(func() {
		answer := ""
		if err := final(root, req); errors.Is(err, ErrForbidden) {
			answer = "You are not allowed to do that."
		}
		_ = m.adapter.AnswerCallback(root, cb.ID, answer)
	}) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "Busy, try again.")
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}

func newReqID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
