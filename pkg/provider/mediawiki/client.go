// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package mediawiki implements the DataProvider capability over the
// MediaWiki Action API: one paginated stream per query kind, batched
// page-info lookups, and a thin JSON client shared with the scheduler
// fabric.
package mediawiki

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

// Client speaks `action=query` JSON to one wiki. It is safe for
// concurrent use and cheap to share; the refresher swaps the whole client
// when credentials rot.
type Client struct {
	endpoint  string
	userAgent string
	http      *http.Client
	log       zerolog.Logger
}

// ClientOption adjusts a Client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying HTTP client; tests install
// mocked transports through this.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient returns a client for the given api.php endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:  endpoint,
		userAgent: "pagelistbot (https://github.com/pagelistbot/engine)",
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a request-level failure reported by the remote.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// errEnvelope is the error slice of any response.
type errEnvelope struct {
	Error *APIError `json:"error"`
}

// Get issues one API request and decodes the response into out. The
// fixed format parameters are appended; a reported API error comes back
// as *APIError.
func (c *Client) Get(ctx context.Context, params map[string]string, out any) error {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("format", "json")
	values.Set("formatversion", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("cannot read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("request failed")
		return fmt.Errorf("request failed with status %q", resp.Status)
	}

	var envelope errEnvelope
	if err := jsoniter.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("cannot decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	return jsoniter.Unmarshal(raw, out)
}

// JoinInts renders a MediaWiki multi-value integer parameter.
func JoinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, "|")
}
