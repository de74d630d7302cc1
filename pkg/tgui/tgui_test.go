package tgui

import (
	"errors"
	"strings"
	"testing"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"héllo wörld", 4, "héll…"},
		{"abc", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestData(t *testing.T) {
	t.Parallel()
	if got := Data("auction", "approve", "42"); got != "auction:approve:42" {
		t.Fatalf("Data = %q", got)
	}
	if got := Data(" editor ", "cancel", ""); got != "editor:cancel" {
		t.Fatalf("Data without payload = %q", got)
	}
	if err := CheckData(Data("editor", "submit", strings.Repeat("x", 36))); err != nil {
		t.Fatalf("CheckData short: %v", err)
	}
	if err := CheckData(strings.Repeat("x", MaxCallbackDataLen+1)); !errors.Is(err, ErrCallbackDataTooLong) {
		t.Fatalf("CheckData long: got %v", err)
	}
}
