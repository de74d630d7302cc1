package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cardbot/internal/auction"
	"cardbot/internal/transport/telegram/router"
	logx "cardbot/pkg/logx"
)

const settingsUsage = `Usage:
/settings list
/settings get <key>
/settings set <key> <value>
/settings unset <key>

Keys: approval_channel, queue_channel, auction_channel:<rarity>, auction_capacity:<rarity>, auction_lifetime_minutes, max_auctions_per_user
Channel values take a chat id, chat:topic, or "here".`

type settingsLister interface {
	ListSettings(ctx context.Context, scope string) (map[string]string, error)
}

func (h *Handlers) settingsCmd(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, settingsUsage)
	}
	scope := auction.Scope(req.Chat.ChatID)
	sub, args := strings.ToLower(req.Args[0]), req.Args[1:]

	switch {
	case sub == "list":
		return h.settingsList(ctx, req, scope)
	case sub == "get" && len(args) == 1:
		key := auction.NormalizeKey(args[0])
		v, ok, err := h.d.Settings.GetSetting(ctx, scope, key)
		if err != nil {
			return err
		}
		if !ok || v == "" {
			return reply(ctx, req, key+" is not set.")
		}
		return reply(ctx, req, key+" = "+v)
	case sub == "set" && len(args) == 2:
		return h.settingsSet(ctx, req, scope, auction.NormalizeKey(args[0]), args[1])
	case sub == "unset" && len(args) == 1:
		return h.settingsSet(ctx, req, scope, auction.NormalizeKey(args[0]), "")
	}
	return reply(ctx, req, settingsUsage)
}

func (h *Handlers) settingsSet(ctx context.Context, req *router.Request, scope, key, raw string) error {
	if !auction.KnownKey(key) {
		return reply(ctx, req, fmt.Sprintf("Unknown setting %q.\n\n%s", key, settingsUsage))
	}
	value := ""
	if raw != "" {
		v, err := auction.NormalizeSetting(key, raw, req.Chat)
		if err != nil {
			return reply(ctx, req, err.Error())
		}
		value = v
	}
	err := h.d.Settings.SetSetting(ctx, scope, key, value)
	h.audit(ctx, req, "settings.set", key+"="+value, err)
	if err != nil {
		return err
	}
	req.Logger.Info("setting changed", logx.String("key", key), logx.String("value", value))

	msg := "Saved " + key + " = " + value + "."
	if value == "" {
		msg = "Cleared " + key + "."
	}
	if p, ok := auction.CapacityPair(req.Chat.ChatID, key); ok {
		n, err := h.d.Auctions.Rebalance(ctx, p)
		if err != nil {
			req.Logger.Warn("rebalance after capacity change failed", logx.String("pair", p.String()), logx.Err(err))
		}
		if n > 0 {
			msg += fmt.Sprintf(" Started %d queued auction(s).", n)
		}
	}
	return reply(ctx, req, msg)
}

func (h *Handlers) settingsList(ctx context.Context, req *router.Request, scope string) error {
	l, ok := h.d.Settings.(settingsLister)
	if !ok {
		return reply(ctx, req, settingsUsage)
	}
	all, err := l.ListSettings(ctx, scope)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(all))
	for k, v := range all {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return reply(ctx, req, "No settings yet.\n\n"+settingsUsage)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys)+1)
	lines = append(lines, "Settings:")
	for _, k := range keys {
		lines = append(lines, k+" = "+all[k])
	}
	return reply(ctx, req, strings.Join(lines, "\n"))
}
