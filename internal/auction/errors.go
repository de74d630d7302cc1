package auction

import (
	"errors"

	kit "cardbot/internal/transport"
)

var (
	// ErrConfigurationMissing means an operator has not set a channel or capacity.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrChannelUnavailable is the transport sentinel, so adapter errors match it directly.
	ErrChannelUnavailable = kit.ErrUnavailable
	ErrNotFound           = errors.New("auction not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnknownItem        = errors.New("unknown card")
	ErrUserLimit          = errors.New("auction limit reached")
)

// Reason turns an operation error into a short message for the initiating user.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigurationMissing):
		return "Auctions are not set up in this group yet. Ask an admin to configure the auction channels."
	case errors.Is(err, ErrChannelUnavailable):
		return "I can't post in the auction channel. Check my permissions there."
	case errors.Is(err, ErrNotFound):
		return "That auction does not exist."
	case errors.Is(err, ErrInvalidTransition):
		return "That auction can't be changed from its current state."
	case errors.Is(err, ErrUnknownItem):
		return "I couldn't find that card."
	case errors.Is(err, ErrUserLimit):
		return "You already have the maximum number of open auctions."
	}
	return "Something went wrong. Try again later."
}
