// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipe is the HTTP client for the RPC endpoint the helper
// service opens inside the terminal. The endpoint speaks plain HTTP on
// loopback: one POST per API method, the method name as the URL path,
// request and response bodies owned entirely by the terminal side.
//
// The client deliberately does not interpret payloads. The bridge's
// contract is verbatim relay, so Call returns status, content type,
// and body exactly as received; only transport-level failures become
// Go errors.
package pipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/termgate/termgate/lib/clock"
	"github.com/termgate/termgate/lib/netutil"
)

// ErrUnavailable reports that the pipe endpoint failed mid-connection:
// the peer closed or reset before a response arrived. Distinct from an
// HTTP error status, which the terminal side produced deliberately and
// is relayed verbatim, and from connection-refused, which Call absorbs
// by retrying until its deadline.
var ErrUnavailable = errors.New("rpc pipe unreachable")

// JSONContentType is the default media type for pipe calls.
const JSONContentType = "application/json"

// Result is one relayed pipe response.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
}

// Config configures a Client.
type Config struct {
	// BaseURL is the pipe endpoint, for example
	// "http://127.0.0.1:18811". Required.
	BaseURL string

	// CallTimeout bounds a Call whose context carries no deadline of
	// its own. Defaults to 240 seconds: terminal operations like
	// initialize legitimately run for minutes while the terminal
	// synchronizes with its broker.
	CallTimeout time.Duration

	// RetryInterval is the pause between connection attempts while
	// nothing is listening yet. Defaults to 1 second.
	RetryInterval time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Client calls the in-terminal RPC endpoint.
type Client struct {
	baseURL       string
	callTimeout   time.Duration
	retryInterval time.Duration
	httpClient    *http.Client
	clock         clock.Clock
	logger        *slog.Logger
}

// New creates a client from config. Panics if required fields are
// missing or BaseURL does not parse.
func New(config Config) *Client {
	if config.BaseURL == "" {
		panic("pipe: BaseURL is required")
	}
	if config.Logger == nil {
		panic("pipe: Logger is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		panic(fmt.Sprintf("pipe: invalid BaseURL %q: %v", config.BaseURL, err))
	}

	callTimeout := config.CallTimeout
	if callTimeout == 0 {
		callTimeout = 240 * time.Second
	}
	retryInterval := config.RetryInterval
	if retryInterval == 0 {
		retryInterval = time.Second
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		callTimeout:   callTimeout,
		retryInterval: retryInterval,
		httpClient:    &http.Client{},
		clock:         clk,
		logger:        config.Logger,
	}
}

// Call POSTs body to the pipe method and relays the response verbatim.
// contentType defaults to JSON when empty.
//
// While nothing is listening (terminal cold start), Call keeps
// retrying until its deadline, so callers block instead of failing
// fast; the retry is safe because a refused connection never delivered
// the request. A timeout surfaces as context.DeadlineExceeded. Any
// other transport failure wraps ErrUnavailable immediately: the
// request may have reached the terminal, and replaying something like
// order_send is never the bridge's decision.
func (c *Client) Call(ctx context.Context, method string, contentType string, body []byte) (*Result, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	if contentType == "" {
		contentType = JSONContentType
	}

	for attempt := 0; ; attempt++ {
		result, err := c.post(ctx, method, contentType, body)
		if err == nil {
			return result, nil
		}
		if isTimeout(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", method, context.DeadlineExceeded)
		}
		if !errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
		}

		if attempt == 0 {
			c.logger.Debug("pipe not listening yet, retrying until deadline",
				"method", method)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", method, context.DeadlineExceeded)
		case <-c.clock.After(c.retryInterval):
		}
	}
}

// post performs one request attempt. Transport errors come back raw
// for Call to classify.
func (c *Client) post(ctx context.Context, method string, contentType string, body []byte) (*Result, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", contentType)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadBody(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", method, err)
	}

	return &Result{
		Status:      response.StatusCode,
		ContentType: response.Header.Get("Content-Type"),
		Body:        responseBody,
	}, nil
}

// Health checks the pipe's liveness endpoint with a single attempt.
// Returns nil only when the endpoint answers 200. Unlike Call, a
// refused connection fails immediately: the readiness poll supplies
// its own cadence.
func (c *Client) Health(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("health: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("%w: health: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("health: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}
	return nil
}

// Probe implements the supervisor's readiness probe with Health.
func (c *Client) Probe(ctx context.Context) error {
	return c.Health(ctx)
}

// isTimeout reports whether err represents a deadline expiry rather
// than a reachability failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
