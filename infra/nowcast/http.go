package nowcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/routeloop/core/model"
	corenowcast "github.com/kilianp07/routeloop/core/nowcast"
	"github.com/kilianp07/routeloop/infra/logger"
)

// Config defines the upstream nowcast source.
type Config struct {
	// Source selects the feed: "http" or "simulator".
	Source string `json:"source"`
	URL    string `json:"url"`
	Token  string `json:"token"`
	// TimeoutMS bounds a single fetch round trip.
	TimeoutMS int `json:"timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Source == "" {
		c.Source = "simulator"
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 3000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Source {
	case "simulator":
	case "http":
		if c.URL == "" {
			return fmt.Errorf("url is required for the http source")
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	return nil
}

// HTTPFeed fetches nowcast fields from an upstream HTTP service.
type HTTPFeed struct {
	client *http.Client
	url    string
	token  string
	log    logger.Logger
}

// NewHTTPFeed creates a feed client for the configured endpoint.
func NewHTTPFeed(cfg Config) *HTTPFeed {
	return &HTTPFeed{
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		url:    strings.TrimSuffix(cfg.URL, "/"),
		token:  cfg.Token,
		log:    logger.New("nowcast-feed"),
	}
}

// Fetch implements nowcast.Feed. Upstream failures map to
// ErrFeedUnavailable so the adapter falls back to its last good field.
func (f *HTTPFeed) Fetch(ctx context.Context, horizon time.Duration) (model.NowcastField, error) {
	q := url.Values{}
	q.Set("horizon_ms", strconv.FormatInt(horizon.Milliseconds(), 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"/fields/latest?"+q.Encode(), nil)
	if err != nil {
		return model.NowcastField{}, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return model.NowcastField{}, fmt.Errorf("%w: %v", corenowcast.ErrFeedUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return model.NowcastField{}, fmt.Errorf("%w: status %s", corenowcast.ErrFeedUnavailable, resp.Status)
	}
	var field model.NowcastField
	if err := json.NewDecoder(resp.Body).Decode(&field); err != nil {
		return model.NowcastField{}, fmt.Errorf("decode field: %w", err)
	}
	return field, nil
}
