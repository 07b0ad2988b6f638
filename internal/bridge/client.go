// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge defines the generation backend contract and its HTTP client.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the bridge API.
const (
	// DefaultBaseURL is the local bridge address.
	DefaultBaseURL = "http://127.0.0.1:8765"

	// DefaultTimeout bounds control calls. Chat calls are bounded by context
	// only, since generations can take minutes.
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerSecond is the sustained request rate across all calls.
	DefaultRequestsPerSecond = 20

	// DefaultBurst is the limiter burst size.
	DefaultBurst = 5

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 32 * 1024 * 1024
)

// Error variables for common bridge errors.
var (
	// ErrNotConfigured indicates the base URL is empty.
	ErrNotConfigured = errors.New("bridge URL not configured")

	// ErrUnauthorized indicates the bridge rejected the token.
	ErrUnauthorized = errors.New("bridge authentication failed")
)

// APIError represents an error returned by the bridge.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bridge error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("bridge error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the error body shape of the bridge.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// ClientConfig holds connection settings for the bridge.
type ClientConfig struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Logger            *log.Logger
}

// Client talks to the bridge over HTTP JSON. It implements Backend.
// The client never retries: retry is a user decision.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *log.Logger
}

var _ Backend = (*Client)(nil)

// NewClient creates a bridge client, filling unset fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  cfg.Logger,
	}
}

// BaseURL returns the bridge address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// BACKEND OPERATIONS
// =============================================================================

// Chat performs one generation request. It is bounded only by ctx.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProgress samples the progress channel.
func (c *Client) GetProgress(ctx context.Context) (*Progress, error) {
	var p Progress
	if err := c.do(ctx, http.MethodGet, "/progress", nil, &p, true); err != nil {
		return nil, err
	}
	return &p, nil
}

// CancelGeneration asks the bridge to abort the in-flight generation.
func (c *Client) CancelGeneration(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/cancel", nil, nil, true)
}

// ClearChat resets the bridge-side conversation.
func (c *Client) ClearChat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clear", nil, nil, true)
}

// RegisterGeneratedImages records produced images in the asset library.
func (c *Client) RegisterGeneratedImages(ctx context.Context, inputs []ImageRegistration) ([]RegisteredImage, error) {
	body := struct {
		Images []ImageRegistration `json:"images"`
	}{Images: inputs}

	var out struct {
		Entries []RegisteredImage `json:"entries"`
	}
	if err := c.do(ctx, http.MethodPost, "/media/register", body, &out, true); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do performs a single JSON request. bounded applies the control-call timeout.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, bounded bool) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	if bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, in != nil)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Printf("BRIDGE_RESPONSE | method=%s path=%s status=%d latency=%dms",
		method, path, resp.StatusCode, time.Since(start).Milliseconds())

	data, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// setHeaders sets auth and content headers. The token is never logged.
func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "genstudio/0.1.0")
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// parseError converts a non-2xx response into an error.
func parseError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}

	var errResp apiErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Code = errResp.Error.Code
		apiErr.Message = errResp.Error.Message
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Error())
	}
	return apiErr
}
