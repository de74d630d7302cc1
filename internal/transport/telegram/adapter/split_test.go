package adapter

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "cardbot/internal/transport"
	"cardbot/pkg/tgui"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(s, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextAvoidsHTMLTag(t *testing.T) {
	t.Parallel()
	s := "abcdef<b>bold</b>"
	got := splitTelegramText(s, 8, tele.ModeHTML)
	if got[0] != "abcdef" {
		t.Fatalf("first chunk %q", got[0])
	}
	if strings.Join(got, "") != s {
		t.Fatalf("chunks lost text: %q", got)
	}
}

func TestMarkup(t *testing.T) {
	t.Parallel()
	if markup(nil) != nil {
		t.Fatalf("nil rows should give nil markup")
	}
	rm := markup([][]kit.Button{{{Text: "Approve", Data: "auction:approve:1"}, {Text: "Reject", Data: "auction:reject:1"}}})
	if len(rm.InlineKeyboard) != 1 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("keyboard shape %v", rm.InlineKeyboard)
	}
	if rm.InlineKeyboard[0][1].Data != "auction:reject:1" {
		t.Fatalf("data %q", rm.InlineKeyboard[0][1].Data)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	if !errors.Is(classify(tele.ErrChatNotFound), kit.ErrUnavailable) {
		t.Fatalf("chat not found should be unavailable")
	}
	if !errors.Is(classify(errors.New("telegram: Bad Request: TOPIC_CLOSED (400)")), kit.ErrUnavailable) {
		t.Fatalf("closed topic should be unavailable")
	}
	other := errors.New("timeout")
	if classify(other) != other {
		t.Fatalf("other errors pass through")
	}
}

func TestCheckButtonsRejectsLongData(t *testing.T) {
	t.Parallel()
	ok := [][]kit.Button{{{Text: "Approve", Data: "auction:approve:42"}}}
	if err := checkButtons(ok); err != nil {
		t.Fatalf("checkButtons: %v", err)
	}
	long := [][]kit.Button{{{Text: "x", Data: strings.Repeat("d", 65)}}}
	if err := checkButtons(long); !errors.Is(err, tgui.ErrCallbackDataTooLong) {
		t.Fatalf("checkButtons long: got %v", err)
	}
}
