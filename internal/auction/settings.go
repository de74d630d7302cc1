package auction

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	kit "cardbot/internal/transport"
)

// Setting keys, scoped by tenant id.
const (
	KeyApprovalChannel    = "approval_channel"
	KeyQueueChannel       = "queue_channel"
	KeyChannelPrefix      = "auction_channel:"
	KeyCapacityPrefix     = "auction_capacity:"
	KeyLifetimeMinutes    = "auction_lifetime_minutes"
	KeyMaxAuctionsPerUser = "max_auctions_per_user"
)

func ChannelKey(category string) string  { return KeyChannelPrefix + NormalizeCategory(category) }
func CapacityKey(category string) string { return KeyCapacityPrefix + NormalizeCategory(category) }

func Scope(tenantID int64) string { return strconv.FormatInt(tenantID, 10) }

// NormalizeSetting validates a key/value pair for /settings set and returns
// the value in stored form. Channel values accept "here" for the current chat.
func NormalizeSetting(key, value string, here kit.ChatTarget) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	switch {
	case key == KeyApprovalChannel || key == KeyQueueChannel || strings.HasPrefix(key, KeyChannelPrefix):
		if strings.HasPrefix(key, KeyChannelPrefix) && NormalizeCategory(strings.TrimPrefix(key, KeyChannelPrefix)) == "" {
			return "", fmt.Errorf("%s needs a category", key)
		}
		if strings.EqualFold(value, "here") {
			return here.String(), nil
		}
		t, err := kit.ParseChatTarget(value)
		if err != nil || t.IsZero() {
			return "", fmt.Errorf("%s: want a chat id, chat:thread or \"here\"", key)
		}
		return t.String(), nil
	case strings.HasPrefix(key, KeyCapacityPrefix):
		if NormalizeCategory(strings.TrimPrefix(key, KeyCapacityPrefix)) == "" {
			return "", fmt.Errorf("%s needs a category", key)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return "", fmt.Errorf("%s: want a number >= 0", key)
		}
		return strconv.Itoa(n), nil
	case key == KeyLifetimeMinutes, key == KeyMaxAuctionsPerUser:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return "", fmt.Errorf("%s: want a number >= 1", key)
		}
		return strconv.Itoa(n), nil
	}
	return "", fmt.Errorf("unknown setting %q", key)
}

// NormalizeKey lowercases a key and folds the category part of prefixed keys.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range []string{KeyChannelPrefix, KeyCapacityPrefix} {
		if strings.HasPrefix(key, p) {
			return p + NormalizeCategory(strings.TrimPrefix(key, p))
		}
	}
	return key
}

// KnownKey reports whether key (already normalized) names a setting.
func KnownKey(key string) bool {
	switch key {
	case KeyApprovalChannel, KeyQueueChannel, KeyLifetimeMinutes, KeyMaxAuctionsPerUser:
		return true
	}
	for _, p := range []string{KeyChannelPrefix, KeyCapacityPrefix} {
		if strings.HasPrefix(key, p) && len(key) > len(p) {
			return true
		}
	}
	return false
}

// CapacityPair returns the pair a capacity key refers to.
func CapacityPair(tenantID int64, key string) (Pair, bool) {
	key = NormalizeKey(key)
	if !strings.HasPrefix(key, KeyCapacityPrefix) {
		return Pair{}, false
	}
	return Pair{TenantID: tenantID, Category: strings.TrimPrefix(key, KeyCapacityPrefix)}, true
}

// tenantSettings reads typed settings for one tenant.
type tenantSettings struct {
	src   Settings
	scope string
}

func (s *Service) settingsFor(tenantID int64) tenantSettings {
	return tenantSettings{src: s.settings, scope: Scope(tenantID)}
}

func (t tenantSettings) channel(ctx context.Context, key string) (kit.ChatTarget, bool, error) {
	v, ok, err := t.src.GetSetting(ctx, t.scope, key)
	if err != nil || !ok || strings.TrimSpace(v) == "" {
		return kit.ChatTarget{}, false, err
	}
	c, err := kit.ParseChatTarget(v)
	if err != nil {
		return kit.ChatTarget{}, false, fmt.Errorf("setting %s: %w", key, err)
	}
	return c, !c.IsZero(), nil
}

func (t tenantSettings) integer(ctx context.Context, key string) (int, bool, error) {
	v, ok, err := t.src.GetSetting(ctx, t.scope, key)
	if err != nil || !ok || strings.TrimSpace(v) == "" {
		return 0, false, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false, fmt.Errorf("setting %s: %w", key, err)
	}
	return n, true, nil
}

func (t tenantSettings) lifetime(ctx context.Context, def time.Duration) (time.Duration, error) {
	n, ok, err := t.integer(ctx, KeyLifetimeMinutes)
	if err != nil || !ok || n < 1 {
		return def, err
	}
	return time.Duration(n) * time.Minute, nil
}
