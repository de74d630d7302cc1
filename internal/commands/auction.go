package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"cardbot/internal/auction"
	"cardbot/internal/transport/telegram/router"
	logx "cardbot/pkg/logx"
)

func (h *Handlers) auctionCmd(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "Usage: /auction create <card_id> [version] | /auction list | /auction force <id> <status>")
	}
	switch strings.ToLower(req.Args[0]) {
	case "create", "new":
		return h.auctionCreate(ctx, req, req.Args[1:])
	case "list", "ls":
		return h.auctionList(ctx, req)
	case "force":
		if !h.d.IsOwner(req.FromID) {
			return router.ErrForbidden
		}
		return h.auctionForce(ctx, req, req.Args[1:])
	}
	return reply(ctx, req, fmt.Sprintf("Unknown subcommand %q.", req.Args[0]))
}

func (h *Handlers) auctionList(ctx context.Context, req *router.Request) error {
	mine, err := h.d.Auctions.List(ctx, req.Chat.ChatID, req.FromID)
	if err != nil {
		return err
	}
	if len(mine) == 0 {
		return reply(ctx, req, "You have no open auctions.")
	}
	now := h.d.Now()
	lines := []string{"Your auctions:"}
	for _, a := range mine {
		line := fmt.Sprintf("#%d %s", a.ID, a.Name)
		if a.Version != "" {
			line += " v" + a.Version
		}
		line += " (" + a.Category + "): "
		switch a.Status {
		case auction.StatusPending:
			line += "waiting for approval"
		case auction.StatusQueued:
			line += fmt.Sprintf("queued, position %d", a.Position)
		case auction.StatusActive:
			line += "live, ends " + humanize.RelTime(a.ExpiresAt, now, "ago", "from now")
		default:
			line += string(a.Status)
		}
		lines = append(lines, line)
	}
	return reply(ctx, req, strings.Join(lines, "\n"))
}

func (h *Handlers) auctionForce(ctx context.Context, req *router.Request, args []string) error {
	if len(args) != 2 {
		return reply(ctx, req, "Usage: /auction force <id> <pending|queued|active|done|rejected>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return reply(ctx, req, "Auction id must be a number.")
	}
	status, err := auction.ParseStatus(args[1])
	if err != nil {
		return reply(ctx, req, err.Error())
	}
	err = h.d.Auctions.ForceStatus(ctx, id, status)
	h.audit(ctx, req, "auction.force", fmt.Sprintf("%d:%s", id, status), err)
	if err != nil {
		req.Logger.Warn("force status failed", logx.Int64("auction_id", id), logx.Err(err))
		return reply(ctx, req, auction.Reason(err))
	}
	return reply(ctx, req, fmt.Sprintf("Auction #%d is now %s.", id, status))
}

func parseAuctionID(payload string) (int64, error) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad auction id %q: %w", payload, auction.ErrNotFound)
	}
	return id, nil
}

func (h *Handlers) approveCb(ctx context.Context, req *router.Request, payload string) error {
	return h.decide(ctx, req, payload, "auction.approve", h.d.Auctions.Approve)
}

func (h *Handlers) rejectCb(ctx context.Context, req *router.Request, payload string) error {
	return h.decide(ctx, req, payload, "auction.reject", h.d.Auctions.Reject)
}

func (h *Handlers) decide(ctx context.Context, req *router.Request, payload, action string, op func(context.Context, int64) error) error {
	id, err := parseAuctionID(payload)
	if err == nil {
		err = op(ctx, id)
	}
	h.audit(ctx, req, action, payload, err)
	if err == nil {
		return nil
	}
	req.Logger.Warn(action+" failed", logx.String("payload", payload), logx.Err(err))
	if errors.Is(err, auction.ErrInvalidTransition) || errors.Is(err, auction.ErrNotFound) {
		// Stale button; the message is gone or already handled.
		return nil
	}
	return reply(ctx, req, fmt.Sprintf("Auction #%s: %s", payload, auction.Reason(err)))
}
