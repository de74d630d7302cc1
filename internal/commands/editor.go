package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"cardbot/internal/auction"
	"cardbot/internal/catalog"
	kit "cardbot/internal/transport"
	"cardbot/internal/transport/telegram/router"
	logx "cardbot/pkg/logx"
	"cardbot/pkg/tgui"
)

// Editor is an auction draft waiting for its author to submit it.
type Editor struct {
	Draft auction.Draft
	Card  catalog.Card

	submitting atomic.Bool
}

func editorText(e *Editor) string {
	lines := []string{
		"New auction draft",
		"Card: " + e.Card.Name,
	}
	if e.Draft.Version != "" {
		lines[1] += " v" + e.Draft.Version
	}
	if e.Card.Series != "" {
		lines = append(lines, "Series: "+e.Card.Series)
	}
	lines = append(lines, "Rarity: "+e.Card.Rarity)
	if e.Card.Event != "" {
		lines = append(lines, "Event: "+e.Card.Event)
	}
	if e.Card.ImageURL != "" {
		lines = append(lines, e.Card.ImageURL)
	}
	lines = append(lines, "", "Submit to send it for approval.")
	return strings.Join(lines, "\n")
}

func editorButtons(key string) [][]kit.Button {
	return [][]kit.Button{{
		{Text: "Submit", Data: tgui.Data("editor", "submit", key)},
		{Text: "Cancel", Data: tgui.Data("editor", "cancel", key)},
	}}
}

func (h *Handlers) auctionCreate(ctx context.Context, req *router.Request, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return reply(ctx, req, "Usage: /auction create <card_id> [version]")
	}
	card, err := h.d.Cards.Card(ctx, args[0])
	if errors.Is(err, catalog.ErrNotFound) || (err == nil && card.Rarity == "") {
		return reply(ctx, req, auction.Reason(auction.ErrUnknownItem))
	}
	if err != nil {
		req.Logger.Warn("catalog lookup failed", logx.String("card_id", args[0]), logx.Err(err))
		return reply(ctx, req, "The card catalog is not reachable right now. Try again later.")
	}

	e := &Editor{
		Card: *card,
		Draft: auction.Draft{
			TenantID:      req.Chat.ChatID,
			InitiatorID:   req.FromID,
			InitiatorName: req.FromUsername,
			ItemID:        card.ID,
			Name:          card.Name,
			Category:      card.Rarity,
			Series:        card.Series,
			ImageURL:      card.ImageURL,
		},
	}
	if len(args) == 2 {
		e.Draft.Version = strings.TrimPrefix(strings.ToLower(args[1]), "v")
	}
	key := h.d.Editors.Put(e, h.d.EditorTTL)
	if _, err := req.Reply(ctx, editorText(e), &kit.SendOptions{Buttons: editorButtons(key)}); err != nil {
		h.d.Editors.Delete(key)
		return err
	}
	return nil
}

func callbackMessage(req *router.Request) kit.MessageRef {
	return kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
}

// editorFor returns the session under key if req's user owns it. A nil
// editor with nil error means the session expired and the user was told.
func (h *Handlers) editorFor(ctx context.Context, req *router.Request, key string) (*Editor, error) {
	e, ok := h.d.Editors.Get(key)
	if !ok {
		return nil, req.Adapter.EditText(ctx, callbackMessage(req), "This auction draft has expired. Start again with /auction create.", nil)
	}
	if e.Draft.InitiatorID != req.FromID {
		return nil, router.ErrForbidden
	}
	return e, nil
}

func (h *Handlers) submitCb(ctx context.Context, req *router.Request, key string) error {
	e, err := h.editorFor(ctx, req, key)
	if e == nil {
		return err
	}
	if !e.submitting.CompareAndSwap(false, true) {
		return nil
	}
	a, err := h.d.Auctions.Create(ctx, e.Draft)
	if err != nil {
		e.submitting.Store(false)
		req.Logger.Info("auction draft not accepted", logx.Err(err))
		return reply(ctx, req, auction.Reason(err))
	}
	h.d.Editors.Delete(key)
	text := fmt.Sprintf("Auction #%d (%s) was sent for approval.", a.ID, e.Card.Name)
	return req.Adapter.EditText(ctx, callbackMessage(req), text, nil)
}

func (h *Handlers) cancelCb(ctx context.Context, req *router.Request, key string) error {
	e, err := h.editorFor(ctx, req, key)
	if e == nil {
		return err
	}
	h.d.Editors.Delete(key)
	return req.Adapter.EditText(ctx, callbackMessage(req), "Auction draft canceled.", nil)
}
