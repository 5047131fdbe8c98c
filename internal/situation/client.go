// Package situation fetches comedic prompts from the remote generation endpoint.
package situation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxBodyBytes = 64 << 10

type Client struct {
	endpoint    string
	httpClient  *http.Client
	logger      *zap.Logger
	parallelism int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithParallelism bounds concurrent requests in FetchMany. Zero means unbounded.
func WithParallelism(n int) Option {
	return func(c *Client) { c.parallelism = n }
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Situation string `json:"situation"`
	Error     string `json:"error"`
}

// FetchOne requests a single situation and returns it trimmed.
func (c *Client) FetchOne(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: ErrCancelled, Msg: "before request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return "", requestFailed("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.transportErr(ctx, "send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", c.transportErr(ctx, "read response", err)
	}

	var out response
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("status %s", resp.Status)
		if decodeErr == nil && out.Error != "" {
			msg += ": " + out.Error
		}
		return "", requestFailed(msg, nil)
	}
	if decodeErr != nil {
		return "", requestFailed("decode response", decodeErr)
	}
	if out.Error != "" {
		return "", requestFailed(out.Error, nil)
	}

	text := strings.TrimSpace(out.Situation)
	if text == "" {
		return "", requestFailed("response has no situation", nil)
	}
	return text, nil
}

func (c *Client) transportErr(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: ErrCancelled, Msg: msg, Cause: ctxErr}
	}
	return requestFailed(msg, err)
}

// FetchMany issues count requests concurrently and keeps whatever succeeds.
// Successes are returned in completion order. Only when every request fails is
// an error returned, wrapping the earliest failure to complete.
func (c *Client) FetchMany(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}

	var (
		mu        sync.Mutex
		successes = make([]string, 0, count)
		failures  []error
	)

	// Tasks never return an error into the group, so one failure never cancels
	// its siblings.
	var g errgroup.Group
	if c.parallelism > 0 {
		g.SetLimit(c.parallelism)
	}
	for i := 0; i < count; i++ {
		g.Go(func() error {
			text, err := c.FetchOne(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return nil
			}
			successes = append(successes, text)
			return nil
		})
	}
	_ = g.Wait()

	if len(successes) == 0 {
		c.logger.Warn("every situation request failed",
			zap.Int("count", count),
			zap.Error(multierr.Combine(failures...)))
		return nil, &Error{Kind: ErrAllRequestsFailed, Msg: failures[0].Error(), Cause: failures[0]}
	}
	if len(failures) > 0 {
		c.logger.Debug("partial situation batch",
			zap.Int("requested", count),
			zap.Int("succeeded", len(successes)),
			zap.Error(multierr.Combine(failures...)))
	}
	return successes, nil
}
