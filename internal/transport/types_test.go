package transport

import "testing"

func TestChatTargetRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want ChatTarget
	}{
		{raw: "-1001234", want: ChatTarget{ChatID: -1001234}},
		{raw: "-1001234:77", want: ChatTarget{ChatID: -1001234, ThreadID: 77}},
		{raw: "", want: ChatTarget{}},
	}
	for _, tt := range tests {
		got, err := ParseChatTarget(tt.raw)
		if err != nil {
			t.Fatalf("ParseChatTarget(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseChatTarget(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
		back, err := ParseChatTarget(got.String())
		if err != nil || back != got {
			t.Fatalf("round trip of %+v = %+v, %v", got, back, err)
		}
	}
	if _, err := ParseChatTarget("abc"); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}

func TestMessageRefRoundTrip(t *testing.T) {
	t.Parallel()
	ref := MessageRef{ChatID: -100, ThreadID: 3, MessageID: 42}
	got, err := ParseMessageRef(ref.String())
	if err != nil {
		t.Fatalf("ParseMessageRef error: %v", err)
	}
	if got != ref {
		t.Fatalf("got %+v, want %+v", got, ref)
	}
	if z, err := ParseMessageRef(""); err != nil || !z.IsZero() {
		t.Fatalf("empty ref = %+v, %v", z, err)
	}
	for _, bad := range []string{"1:2", "a:b:c", "1:2:x"} {
		if _, err := ParseMessageRef(bad); err == nil {
			t.Fatalf("ParseMessageRef(%q) should fail", bad)
		}
	}
}
