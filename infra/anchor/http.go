package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	coreanchor "github.com/kilianp07/routeloop/core/anchor"
	"github.com/kilianp07/routeloop/infra/logger"
)

// Config defines the external anchoring endpoint.
type Config struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
	// TimeoutMS bounds a single submission round trip.
	TimeoutMS int `json:"timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 2000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Enabled && c.URL == "" {
		return fmt.Errorf("url is required when anchoring is enabled")
	}
	return nil
}

// HTTPAnchor submits record digests to an anchoring service over HTTP.
type HTTPAnchor struct {
	client *http.Client
	url    string
	token  string
	log    logger.Logger
}

// NewHTTPAnchor creates a client for the given endpoint.
func NewHTTPAnchor(cfg Config) *HTTPAnchor {
	return &HTTPAnchor{
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		url:    strings.TrimSuffix(cfg.URL, "/"),
		token:  cfg.Token,
		log:    logger.New("anchor-client"),
	}
}

// NewAnchorWithFallback probes the anchoring service and returns a Nop
// anchor if it is disabled or unreachable. Commits then proceed without
// the anchor_pending flag ever resolving externally.
func NewAnchorWithFallback(cfg Config) coreanchor.Anchor {
	if !cfg.Enabled {
		return coreanchor.Nop{}
	}
	a := NewHTTPAnchor(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/health", nil)
	if err != nil {
		a.log.Errorf("anchor health request: %v", err)
		return coreanchor.Nop{}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Errorf("anchor health check error: %v", err)
		return coreanchor.Nop{}
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		a.log.Errorf("anchor health status: %s", resp.Status)
		return coreanchor.Nop{}
	}
	return a
}

type submitRequest struct {
	Digest string `json:"digest"`
}

type submitResponse struct {
	Ref string `json:"ref"`
}

// Submit implements anchor.Anchor.
func (a *HTTPAnchor) Submit(ctx context.Context, digest string) (string, error) {
	body, err := json.Marshal(submitRequest{Digest: digest})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+"/anchors", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("anchor service returned %s", resp.Status)
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode anchor response: %w", err)
	}
	return out.Ref, nil
}
