package notifier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	kit "cardbot/internal/transport"
	"cardbot/internal/transport/transporttest"
	logx "cardbot/pkg/logx"
)

// flaky fails SendText a fixed number of times before delegating.
type flaky struct {
	*transporttest.Fake
	failures int32
	err      error
	calls    int32
}

func (f *flaky) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	atomic.AddInt32(&f.calls, 1)
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return kit.MessageRef{}, f.err
	}
	return f.Fake.SendText(ctx, to, text, opt)
}

func fastConfig() Config {
	return Config{RatePerSec: 1000, Burst: 10, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}
}

func TestPostRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	f := &flaky{Fake: transporttest.New(), failures: 2, err: errors.New("timeout")}
	s := New(f, fastConfig(), logx.Nop())

	ref, err := s.Post(context.Background(), kit.ChatTarget{ChatID: 1}, "hi")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if ref.IsZero() || atomic.LoadInt32(&f.calls) != 3 {
		t.Fatalf("ref=%v calls=%d", ref, f.calls)
	}
}

func TestPostDoesNotRetryUnavailable(t *testing.T) {
	t.Parallel()
	f := &flaky{Fake: transporttest.New(), failures: 5, err: kit.ErrUnavailable}
	s := New(f, fastConfig(), logx.Nop())

	_, err := s.Post(context.Background(), kit.ChatTarget{ChatID: 1}, "hi")
	if !errors.Is(err, kit.ErrUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if atomic.LoadInt32(&f.calls) != 1 {
		t.Fatalf("calls=%d want 1", f.calls)
	}
}

func TestCreateSubchannelPostsIntro(t *testing.T) {
	t.Parallel()
	fake := transporttest.New()
	s := New(fake, fastConfig(), logx.Nop())

	sub, err := s.CreateSubchannel(context.Background(), kit.ChatTarget{ChatID: -100}, "#1 Card", "intro")
	if err != nil {
		t.Fatalf("CreateSubchannel: %v", err)
	}
	if sub.ChatID != -100 || sub.ThreadID == 0 {
		t.Fatalf("sub=%+v", sub)
	}
	sent := fake.Sent()
	if len(sent) != 1 || sent[0].Ref.ThreadID != sub.ThreadID || sent[0].Text != "intro" {
		t.Fatalf("sent=%+v", sent)
	}
}

func TestRetryDelayBounded(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt < 8; attempt++ {
		if d := retryDelay(cfg, attempt); d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d delay %v out of range", attempt, d)
		}
	}
}
