// Package notifier posts auction and reminder messages through the chat
// adapter with a global send rate and retries for transient failures.
package notifier

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"cardbot/internal/auction"
	kit "cardbot/internal/transport"
	logx "cardbot/pkg/logx"
	"cardbot/pkg/tgui"
)

type Config struct {
	// RatePerSec caps outgoing calls across all chats (Telegram allows ~30/s).
	RatePerSec    float64
	Burst         int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	CallTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}

// Service implements auction.Notifier. It is safe for concurrent use.
type Service struct {
	adapter kit.Adapter
	cfg     Config
	limiter *rate.Limiter
	log     logx.Logger
}

var _ auction.Notifier = (*Service)(nil)

func New(adapter kit.Adapter, cfg Config, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter: adapter,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log.With(logx.String("comp", "notifier")),
	}
}

// do runs call under the rate limit, retrying transient errors with
// jittered exponential backoff. Unavailable targets are never retried.
func (s *Service) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	attempts := 1 + s.cfg.RetryMax
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if werr := s.limiter.Wait(ctx); werr != nil {
			return werr
		}
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		err = call(cctx)
		cancel()
		if err == nil || errors.Is(err, kit.ErrUnavailable) || errors.Is(err, tgui.ErrCallbackDataTooLong) || ctx.Err() != nil {
			return err
		}
		s.log.Debug("notify call failed", logx.String("op", op), logx.Int("attempt", attempt), logx.Err(err))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(s.cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return err
}

func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	// Jitter 0.7..1.3
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}

func (s *Service) Post(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error) {
	return s.PostWithButtons(ctx, to, text, nil)
}

func (s *Service) PostWithButtons(ctx context.Context, to kit.ChatTarget, text string, buttons [][]kit.Button) (kit.MessageRef, error) {
	var ref kit.MessageRef
	err := s.do(ctx, "post", func(c context.Context) error {
		var err error
		ref, err = s.adapter.SendText(c, to, text, &kit.SendOptions{DisablePreview: false, Buttons: buttons})
		return err
	})
	return ref, err
}

// CreateSubchannel opens a topic and posts text as its first message. If the
// first post fails the topic is still returned.
func (s *Service) CreateSubchannel(ctx context.Context, parent kit.ChatTarget, title, text string) (kit.ChatTarget, error) {
	var sub kit.ChatTarget
	err := s.do(ctx, "create_topic", func(c context.Context) error {
		var err error
		sub, err = s.adapter.CreateTopic(c, parent, title)
		return err
	})
	if err != nil {
		return kit.ChatTarget{}, err
	}
	if text != "" {
		if _, err := s.Post(ctx, sub, text); err != nil {
			s.log.Warn("topic intro not posted", logx.String("topic", sub.String()), logx.Err(err))
		}
	}
	return sub, nil
}

func (s *Service) Lock(ctx context.Context, sub kit.ChatTarget) error {
	return s.do(ctx, "close_topic", func(c context.Context) error { return s.adapter.CloseTopic(c, sub) })
}

func (s *Service) Delete(ctx context.Context, ref kit.MessageRef) error {
	return s.do(ctx, "delete", func(c context.Context) error { return s.adapter.DeleteMessage(c, ref) })
}

func (s *Service) CanPost(ctx context.Context, to kit.ChatTarget) error {
	return s.adapter.CanPost(ctx, to)
}
