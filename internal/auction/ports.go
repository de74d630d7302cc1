package auction

import (
	"context"

	kit "cardbot/internal/transport"
)

// Store persists auctions. UpdateAuction writes only the columns set in the patch.
type Store interface {
	InsertAuction(ctx context.Context, a *Auction) (int64, error)
	UpdateAuction(ctx context.Context, id int64, p Patch) error
	GetAuction(ctx context.Context, id int64) (*Auction, bool, error)
	ListAuctions(ctx context.Context, f Filter) ([]Auction, error)
}

// Settings is a scoped key/value configuration provider.
type Settings interface {
	GetSetting(ctx context.Context, scope, key string) (string, bool, error)
	SetSetting(ctx context.Context, scope, key, value string) error
}

// Notifier posts to chats. Failures wrap ErrChannelUnavailable when the
// target is gone or the bot lacks permission.
type Notifier interface {
	Post(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error)
	PostWithButtons(ctx context.Context, to kit.ChatTarget, text string, buttons [][]kit.Button) (kit.MessageRef, error)
	CreateSubchannel(ctx context.Context, parent kit.ChatTarget, title, text string) (kit.ChatTarget, error)
	Lock(ctx context.Context, sub kit.ChatTarget) error
	Delete(ctx context.Context, ref kit.MessageRef) error
	CanPost(ctx context.Context, to kit.ChatTarget) error
}
