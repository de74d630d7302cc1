// Package commands holds the chat command and button handlers: auctions,
// the auction editor, group settings, /timer and /timers.
package commands

import (
	"context"
	"time"

	"cardbot/internal/auction"
	"cardbot/internal/catalog"
	"cardbot/internal/reminder"
	"cardbot/internal/storage"
	"cardbot/internal/transport/telegram/router"
	logx "cardbot/pkg/logx"
	"cardbot/pkg/ttlstore"
)

const DefaultEditorTTL = time.Hour

// CardSource looks up catalog details for a card id.
type CardSource interface {
	Card(ctx context.Context, id string) (*catalog.Card, error)
}

// Auditor records operator actions.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Deps struct {
	Auctions  *auction.Service
	Reminders *reminder.Service
	Cards     CardSource
	Settings  auction.Settings
	Audit     Auditor
	Editors   *ttlstore.Store[*Editor]
	EditorTTL time.Duration

	// IsOwner gates /auction force. Nil means nobody is an owner.
	IsOwner func(userID int64) bool
	Log     logx.Logger
	Now     func() time.Time
}

type Handlers struct {
	d   Deps
	log logx.Logger
}

func New(d Deps) *Handlers {
	if d.EditorTTL <= 0 {
		d.EditorTTL = DefaultEditorTTL
	}
	if d.Editors == nil {
		d.Editors = ttlstore.New[*Editor]()
	}
	if d.IsOwner == nil {
		d.IsOwner = func(int64) bool { return false }
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Handlers{d: d, log: d.Log.With(logx.String("comp", "commands"))}
}

// Editors exposes the session store so the app can run its sweeper.
func (h *Handlers) Editors() *ttlstore.Store[*Editor] { return h.d.Editors }

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "auction",
			Aliases:     []string{"auc"},
			Description: "create, list or force auctions",
			Usage:       "/auction create <card_id> [version] | /auction list | /auction force <id> <status>",
			Access:      router.AccessEveryone,
			Timeout:     20 * time.Second,
			Handle:      h.auctionCmd,
		},
		{
			Name:        "timer",
			Aliases:     []string{"remind"},
			Description: "set a reminder",
			Usage:       "/timer [duration] [reason]  (e.g. /timer 2h claim daily)",
			Access:      router.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      h.timerCmd,
		},
		{
			Name:        "timers",
			Description: "list your reminders",
			Usage:       "/timers",
			Access:      router.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      h.timersCmd,
		},
		{
			Name:        "settings",
			Aliases:     []string{"set"},
			Description: "view or change group settings",
			Usage:       "/settings get <key> | /settings set <key> <value> | /settings list",
			Access:      router.AccessAdmin,
			Timeout:     15 * time.Second,
			Handle:      h.settingsCmd,
		},
	}
}

func (h *Handlers) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: "auction", Action: "approve", Access: router.AccessAdmin, Timeout: 20 * time.Second, Handle: h.approveCb},
		{Prefix: "auction", Action: "reject", Access: router.AccessAdmin, Timeout: 20 * time.Second, Handle: h.rejectCb},
		{Prefix: "editor", Action: "submit", Access: router.AccessEveryone, Timeout: 20 * time.Second, Handle: h.submitCb},
		{Prefix: "editor", Action: "cancel", Access: router.AccessEveryone, Timeout: 10 * time.Second, Handle: h.cancelCb},
	}
}

func (h *Handlers) audit(ctx context.Context, req *router.Request, action, target string, err error) {
	if h.d.Audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:            h.d.Now(),
		ActorID:       req.FromID,
		ActorUsername: req.FromUsername,
		ChatID:        req.Chat.ChatID,
		Action:        action,
		Target:        target,
		OK:            err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := h.d.Audit.AppendAudit(ctx, e); aerr != nil {
		req.Logger.Warn("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}

func reply(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Reply(ctx, text, nil)
	return err
}
