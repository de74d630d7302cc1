package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnavailable is returned when the bot cannot post to a target (missing
// permission, deleted chat or topic).
var ErrUnavailable = errors.New("channel unavailable")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID           string
	FromID       int64
	FromUsername string
	ChatID       int64
	ThreadID     int
	MessageID    int
	Data         string
}

// ChatTarget addresses a chat, or a forum topic inside it when ThreadID != 0.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

// String encodes the target as "chat:thread".
func (t ChatTarget) String() string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.ChatID, 10) + ":" + strconv.Itoa(t.ThreadID)
}

// ParseChatTarget decodes "chat" or "chat:thread". Empty input yields the zero target.
func ParseChatTarget(s string) (ChatTarget, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatTarget{}, nil
	}
	chatPart, threadPart, _ := strings.Cut(s, ":")
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return ChatTarget{}, fmt.Errorf("chat target %q: %w", s, err)
	}
	t := ChatTarget{ChatID: chatID}
	if threadPart != "" {
		tid, err := strconv.Atoi(threadPart)
		if err != nil {
			return ChatTarget{}, fmt.Errorf("chat target %q: %w", s, err)
		}
		t.ThreadID = tid
	}
	return t, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 || r.MessageID == 0 }

// String encodes the ref as "chat:thread:message".
func (r MessageRef) String() string {
	if r.IsZero() {
		return ""
	}
	return strconv.FormatInt(r.ChatID, 10) + ":" + strconv.Itoa(r.ThreadID) + ":" + strconv.Itoa(r.MessageID)
}

// ParseMessageRef decodes the String form. Empty input yields the zero ref.
func ParseMessageRef(s string) (MessageRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MessageRef{}, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return MessageRef{}, fmt.Errorf("message ref %q: want chat:thread:message", s)
	}
	chatID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return MessageRef{}, fmt.Errorf("message ref %q: %w", s, err)
	}
	tid, err := strconv.Atoi(parts[1])
	if err != nil {
		return MessageRef{}, fmt.Errorf("message ref %q: %w", s, err)
	}
	mid, err := strconv.Atoi(parts[2])
	if err != nil {
		return MessageRef{}, fmt.Errorf("message ref %q: %w", s, err)
	}
	return MessageRef{ChatID: chatID, ThreadID: tid, MessageID: mid}, nil
}

// Target returns the chat target the message lives in.
func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

// Button is an inline button carrying callback data.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Buttons are rendered as an inline keyboard, one slice per row.
	Buttons [][]Button
}

// Sender is the subset of Adapter needed to post plain messages.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// CreateTopic opens a forum topic in parent's chat and returns its target.
	CreateTopic(ctx context.Context, parent ChatTarget, title string) (ChatTarget, error)
	// CloseTopic closes a forum topic so members can no longer post.
	CloseTopic(ctx context.Context, topic ChatTarget) error
	// CanPost returns ErrUnavailable if the bot may not post to the target.
	CanPost(ctx context.Context, to ChatTarget) error
	// IsAdmin reports whether userID administers chatID.
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}
