package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"cardbot/internal/reminder"
	"cardbot/internal/transport/telegram/router"
)

// timerCmd handles "/timer [duration] [reason]". A first word that does not
// start with a digit is part of the reason and the default duration applies.
func (h *Handlers) timerCmd(ctx context.Context, req *router.Request) error {
	spec, reason := "", req.Rest
	if len(req.Args) > 0 && req.Args[0][0] >= '0' && req.Args[0][0] <= '9' {
		spec = req.Args[0]
		reason = strings.TrimSpace(strings.TrimPrefix(req.Rest, spec))
	}
	d, err := reminder.ParseDuration(spec, h.d.Reminders.MaxDuration())
	switch {
	case errors.Is(err, reminder.ErrTooLong):
		return reply(ctx, req, "Timer exceeded the maximum duration.")
	case err != nil:
		return reply(ctx, req, "Usage: /timer [duration] [reason], durations like 30s, 10m, 2h or 3d.")
	}

	r, err := h.d.Reminders.Create(ctx, reminder.Draft{
		UserID:   req.FromID,
		Username: req.FromUsername,
		Chat:     req.Chat,
		Reason:   reason,
		After:    d,
	})
	if err != nil {
		return err
	}
	msg := "Set a timer for " + mentionOf(req) + "."
	if r.Reason != "" {
		msg += "\nReason: " + r.Reason
	}
	msg += "\nIt will go off at " + r.FireAt.UTC().Format("2006-01-02 15:04:05 MST") + "."
	return reply(ctx, req, msg)
}

// timersCmd lists the caller's pending reminders, soonest first.
func (h *Handlers) timersCmd(ctx context.Context, req *router.Request) error {
	rs, err := h.d.Reminders.List(ctx, req.FromID)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		return reply(ctx, req, "You have no active timers.")
	}
	now := h.d.Now()
	lines := []string{fmt.Sprintf("Your timers (%d):", len(rs))}
	for i, r := range rs {
		reason := r.Reason
		if reason == "" {
			reason = "No reason provided"
		}
		lines = append(lines, fmt.Sprintf("%d. %s, goes off %s", i+1, reason, humanize.RelTime(r.FireAt, now, "ago", "from now")))
	}
	return reply(ctx, req, strings.Join(lines, "\n"))
}

func mentionOf(req *router.Request) string {
	if req.FromUsername != "" {
		return "@" + req.FromUsername
	}
	return fmt.Sprintf("user %d", req.FromID)
}
