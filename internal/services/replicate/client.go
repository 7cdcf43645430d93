package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dubber/internal/services/remoteop"
)

const (
	defaultBaseURL       = "https://api.replicate.com/v1"
	defaultHTTPTimeout   = 30 * time.Second
	defaultRetryAttempts = 3
	defaultRetryDelay    = 1 * time.Second
)

// Config captures the runtime settings required to talk to Replicate.
type Config struct {
	APIToken string
	BaseURL  string
	// Version selects the model version submitted with each prediction.
	Version string
}

// Client drives Replicate's prediction API. Predictions are asynchronous:
// submission returns a pending operation that must be polled to completion.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryAttempts int
	retryDelay    time.Duration
	sleeper       func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry overrides the submit retry budget.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retryAttempts = attempts
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a Replicate client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIToken: strings.TrimSpace(cfg.APIToken),
			BaseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Version:  strings.TrimSpace(cfg.Version),
		},
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		sleeper:       time.Sleep,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// Name identifies the provider in wrapped errors and logs.
func (c *Client) Name() string { return "replicate" }

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

type predictionRequest struct {
	Version string `json:"version"`
	Input   any    `json:"input"`
}

// Submit creates a prediction for the configured model version. The returned
// operation is almost always pending; Replicate finishes work out of band.
func (c *Client) Submit(ctx context.Context, payload any) (remoteop.Operation, error) {
	if c.cfg.APIToken == "" {
		return remoteop.Operation{}, errors.New("replicate submit: api token required")
	}
	if c.cfg.Version == "" {
		return remoteop.Operation{}, errors.New("replicate submit: model version required")
	}

	body, err := json.Marshal(predictionRequest{Version: c.cfg.Version, Input: payload})
	if err != nil {
		return remoteop.Operation{}, fmt.Errorf("replicate submit: marshal input: %w", err)
	}

	var pred prediction
	if err := c.doWithRetry(ctx, http.MethodPost, c.cfg.BaseURL+"/predictions", body, &pred); err != nil {
		return remoteop.Operation{}, fmt.Errorf("replicate submit: %w", err)
	}
	if pred.ID == "" {
		return remoteop.Operation{}, errors.New("replicate submit: response missing prediction id")
	}
	return toOperation(pred), nil
}

// Poll fetches the current state of a prediction.
func (c *Client) Poll(ctx context.Context, operationID string) (remoteop.Operation, error) {
	if operationID == "" {
		return remoteop.Operation{}, errors.New("replicate poll: operation id required")
	}
	var pred prediction
	if err := c.doWithRetry(ctx, http.MethodGet, c.cfg.BaseURL+"/predictions/"+operationID, nil, &pred); err != nil {
		return remoteop.Operation{}, fmt.Errorf("replicate poll: %w", err)
	}
	return toOperation(pred), nil
}

// HealthCheck verifies the API token is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIToken == "" {
		return errors.New("replicate health: api token required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/account", nil)
	if err != nil {
		return fmt.Errorf("replicate health: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("replicate health: http %d", resp.StatusCode)
	}
	return nil
}

func toOperation(pred prediction) remoteop.Operation {
	op := remoteop.Operation{ID: pred.ID, Output: pred.Output, Error: pred.Error}
	switch pred.Status {
	case "succeeded":
		op.Status = remoteop.StatusSucceeded
	case "failed", "canceled":
		op.Status = remoteop.StatusFailed
	default:
		// starting, processing, and anything unrecognized keep the
		// operation in flight.
		op.Status = remoteop.StatusPending
	}
	return op
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func retryable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return false
}

func (c *Client) doWithRetry(ctx context.Context, method, url string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			c.sleeper(c.retryDelay)
		}
		lastErr = c.do(ctx, method, url, body, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &httpStatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
