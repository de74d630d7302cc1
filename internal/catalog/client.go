// Package catalog looks up card details for auction drafts.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "cardbot/pkg/logx"
)

const (
	DefaultBaseURL  = "https://server.mazoku.cc/card/catalog"
	DefaultImageURL = "https://cdn7.mazoku.cc/cards/%s/card"
)

var ErrNotFound = errors.New("card not found")

type Card struct {
	ID       string
	Name     string
	Series   string
	Rarity   string
	Event    string
	ImageURL string
}

type Config struct {
	BaseURL string
	// ImageURL is a fmt template with one %s for the card id.
	ImageURL   string
	RatePerSec float64
	Timeout    time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	http    *http.Client
	base    string
	image   string
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ImageURL == "" {
		cfg.ImageURL = DefaultImageURL
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		image:   cfg.ImageURL,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     log.With(logx.String("comp", "catalog")),
	}
}

type named struct {
	Name string `json:"name"`
}

type cardResponse struct {
	Name   string `json:"name"`
	Series *named `json:"series"`
	Rarity *named `json:"rarity"`
	Type   *named `json:"type"`
}

// Card fetches one card by id. Unknown ids return ErrNotFound.
func (c *Client) Card(ctx context.Context, id string) (*Card, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	c.log.Debug("catalog lookup", logx.String("card_id", id), logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("catalog: unexpected status %s", resp.Status)
	}

	var body cardResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if body.Name == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	card := &Card{ID: id, Name: body.Name, ImageURL: fmt.Sprintf(c.image, url.PathEscape(id))}
	if body.Series != nil {
		card.Series = body.Series.Name
	}
	if body.Rarity != nil {
		card.Rarity = body.Rarity.Name
	}
	if body.Type != nil {
		card.Event = body.Type.Name
	}
	return card, nil
}
