package auction

import (
	"fmt"
	"strings"
	"time"

	kit "cardbot/internal/transport"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusQueued   Status = "IN_QUEUE"
	StatusActive   Status = "IN_AUCTION"
	StatusDone     Status = "DONE"
	StatusRejected Status = "REJECTED"
)

// ParseStatus accepts the stored names plus the lowercase aliases used in
// commands (pending, queued, active, done, rejected).
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return StatusPending, nil
	case "IN_QUEUE", "QUEUED":
		return StatusQueued, nil
	case "IN_AUCTION", "ACTIVE":
		return StatusActive, nil
	case "DONE":
		return StatusDone, nil
	case "REJECTED":
		return StatusRejected, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusRejected }

// Open reports whether an auction in s still counts against the user limit.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusQueued || s == StatusActive
}

// CanTransition reports whether s -> to is a normal lifecycle step.
// Pending -> Active is the path for tenants without a queue channel.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusQueued || to == StatusActive || to == StatusRejected
	case StatusQueued:
		return to == StatusActive
	case StatusActive:
		return to == StatusDone
	}
	return false
}

type Auction struct {
	ID            int64
	TenantID      int64
	InitiatorID   int64
	InitiatorName string

	ItemID   string
	Version  string
	Name     string
	Category string
	Series   string
	ImageURL string

	// Channel is where the auction is displayed once active.
	Channel         kit.ChatTarget
	Thread          kit.ChatTarget
	QueueMessage    kit.MessageRef
	ApprovalMessage kit.MessageRef

	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time

	// Position is the 1-indexed queue position; only set for Queued
	// auctions returned by List. Never persisted.
	Position int
}

func (a *Auction) Pair() Pair { return Pair{TenantID: a.TenantID, Category: a.Category} }

// Pair identifies one admission queue.
type Pair struct {
	TenantID int64
	Category string
}

func (p Pair) String() string { return fmt.Sprintf("%d/%s", p.TenantID, p.Category) }

// NormalizeCategory folds a rarity name into the form used in keys and rows.
func NormalizeCategory(c string) string { return strings.ToLower(strings.TrimSpace(c)) }

// Patch lists the columns an update writes; nil fields are left alone.
type Patch struct {
	Status          *Status
	Thread          *kit.ChatTarget
	QueueMessage    *kit.MessageRef
	ApprovalMessage *kit.MessageRef
	ExpiresAt       *time.Time
}

func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.Thread == nil && p.QueueMessage == nil && p.ApprovalMessage == nil && p.ExpiresAt == nil
}

// Apply copies the set fields onto a.
func (p Patch) Apply(a *Auction) {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Thread != nil {
		a.Thread = *p.Thread
	}
	if p.QueueMessage != nil {
		a.QueueMessage = *p.QueueMessage
	}
	if p.ApprovalMessage != nil {
		a.ApprovalMessage = *p.ApprovalMessage
	}
	if p.ExpiresAt != nil {
		a.ExpiresAt = *p.ExpiresAt
	}
}

func ptr[T any](v T) *T { return &v }

// Filter selects auctions. Zero fields match everything. Results are
// ordered by CreatedAt descending, or ascending when Oldest is set, with
// ID breaking ties in the same direction.
type Filter struct {
	Statuses    []Status
	TenantID    int64
	Category    string
	InitiatorID int64
	Oldest      bool
	Limit       int
}

// Match reports whether a satisfies the filter.
func (f Filter) Match(a *Auction) bool {
	if f.TenantID != 0 && a.TenantID != f.TenantID {
		return false
	}
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	if f.InitiatorID != 0 && a.InitiatorID != f.InitiatorID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}

// Draft carries what Create needs; descriptive fields come from the catalog.
type Draft struct {
	TenantID      int64
	InitiatorID   int64
	InitiatorName string
	ItemID        string
	Version       string
	Name          string
	Category      string
	Series        string
	ImageURL      string
}
