package config

import (
	"reflect"

	logx "cardbot/pkg/logx"
)

// ChangedSections names the top-level sections that differ. Secrets are
// compared separately so they never show up in logs.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := *oldCfg, *newCfg
	o.Telegram.Token, n.Telegram.Token = "", ""
	o.Storage.DSN, n.Storage.DSN = "", ""

	var changed []string
	for _, s := range []struct {
		name string
		a, b any
	}{
		{"telegram", o.Telegram, n.Telegram},
		{"logging", o.Logging, n.Logging},
		{"storage", o.Storage, n.Storage},
		{"auctions", o.Auctions, n.Auctions},
		{"reminders", o.Reminders, n.Reminders},
		{"catalog", o.Catalog, n.Catalog},
		{"maintenance", o.Maintenance, n.Maintenance},
	} {
		if !reflect.DeepEqual(s.a, s.b) {
			changed = append(changed, s.name)
		}
	}
	return changed
}

// SummarizeChange returns log fields describing a reload.
func SummarizeChange(oldCfg, newCfg *Config) []logx.Field {
	fields := []logx.Field{logx.Any("changed", ChangedSections(oldCfg, newCfg))}
	if oldCfg == nil || newCfg == nil {
		return fields
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		fields = append(fields, logx.Bool("telegram.token_changed", true))
	}
	if oldCfg.Storage != newCfg.Storage {
		fields = append(fields, logx.Bool("storage.restart_required", true))
	}
	return fields
}
