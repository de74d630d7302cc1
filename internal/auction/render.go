package auction

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	kit "cardbot/internal/transport"
	"cardbot/pkg/tgui"
)

func handle(a *Auction) string {
	if a.InitiatorName != "" {
		return "@" + a.InitiatorName
	}
	return "user " + strconv.FormatInt(a.InitiatorID, 10)
}

func cardLine(a *Auction) string {
	s := a.Name
	if a.Version != "" {
		s += " v" + a.Version
	}
	return s
}

func approvalText(a *Auction) string {
	lines := []string{
		fmt.Sprintf("Auction request #%d", a.ID),
		"Card: " + cardLine(a),
		"Rarity: " + a.Category,
	}
	if a.Series != "" {
		lines = append(lines, "Series: "+a.Series)
	}
	lines = append(lines, "By: "+handle(a))
	if a.ImageURL != "" {
		lines = append(lines, a.ImageURL)
	}
	return strings.Join(lines, "\n")
}

func approvalButtons(id int64) [][]kit.Button {
	sid := strconv.FormatInt(id, 10)
	return [][]kit.Button{{
		{Text: "Approve", Data: tgui.Data("auction", "approve", sid)},
		{Text: "Reject", Data: tgui.Data("auction", "reject", sid)},
	}}
}

func queueText(a *Auction) string {
	return fmt.Sprintf("#%d %s (%s) by %s is waiting in the queue.", a.ID, cardLine(a), a.Category, handle(a))
}

func topicTitle(a *Auction) string {
	return fmt.Sprintf("#%d %s", a.ID, cardLine(a))
}

func topicText(a *Auction, expires time.Time) string {
	lines := []string{
		fmt.Sprintf("Auction #%d is open!", a.ID),
		"Card: " + cardLine(a),
		"Rarity: " + a.Category,
	}
	if a.Series != "" {
		lines = append(lines, "Series: "+a.Series)
	}
	lines = append(lines,
		"Seller: "+handle(a),
		"Ends: "+expires.UTC().Format("2006-01-02 15:04 MST"),
	)
	if a.ImageURL != "" {
		lines = append(lines, a.ImageURL)
	}
	return strings.Join(lines, "\n")
}

func closingText(a *Auction) string {
	return fmt.Sprintf("Auction #%d (%s) has ended. Thanks for bidding!", a.ID, cardLine(a))
}
