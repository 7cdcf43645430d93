// Package remoteop drives submit-then-poll interactions with hosted model
// providers. A provider submits work and reports operation state; the client
// polls until the operation reaches a terminal state or the attempt budget
// runs out. Providers that complete synchronously return an already terminal
// operation from Submit, so Await finishes without issuing a single poll.
package remoteop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dubber/internal/services"
)

// Status describes the remote operation lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Operation is a unit of remote work identified by a provider-scoped ID.
type Operation struct {
	ID     string
	Status Status
	Output json.RawMessage
	Error  string
}

// Terminal reports whether the operation has finished, successfully or not.
func (o Operation) Terminal() bool {
	return o.Status == StatusSucceeded || o.Status == StatusFailed
}

// Provider submits work to a hosted model and reports operation state.
type Provider interface {
	Name() string
	Submit(ctx context.Context, payload any) (Operation, error)
	Poll(ctx context.Context, operationID string) (Operation, error)
}

const (
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollAttempts = 30
)

// Client runs operations against a provider with a bounded polling budget.
type Client struct {
	provider     Provider
	pollInterval time.Duration
	maxAttempts  int
	sleeper      func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithPollInterval overrides the delay between poll attempts.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithMaxPollAttempts overrides the poll attempt budget.
func WithMaxPollAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithSleeper overrides how inter-poll waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a polling client for the supplied provider.
func NewClient(provider Provider, opts ...Option) *Client {
	client := &Client{
		provider:     provider,
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxPollAttempts,
		sleeper: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Provider returns the provider the client polls against.
func (c *Client) Provider() Provider {
	return c.provider
}

// Run submits the payload and waits for the resulting operation to finish.
func (c *Client) Run(ctx context.Context, stage string, payload any) (Operation, error) {
	op, err := c.provider.Submit(ctx, payload)
	if err != nil {
		return Operation{}, services.Wrap(services.ErrProvider, stage, "submit", c.provider.Name()+" submission failed", err)
	}
	return c.Await(ctx, stage, op)
}

// Await polls the operation until it reaches a terminal state. A failed
// operation yields ErrOperationFailed; exhausting the attempt budget yields
// ErrOperationTimeout.
func (c *Client) Await(ctx context.Context, stage string, op Operation) (Operation, error) {
	for attempt := 0; ; attempt++ {
		if op.Terminal() {
			break
		}
		if attempt >= c.maxAttempts {
			return op, services.Wrap(
				services.ErrOperationTimeout,
				stage,
				"poll",
				fmt.Sprintf("%s operation %s still pending after %d attempts", c.provider.Name(), op.ID, c.maxAttempts),
				nil,
			)
		}
		if err := c.sleeper(ctx, c.pollInterval); err != nil {
			return op, services.Wrap(services.ErrCanceled, stage, "poll", "wait interrupted", err)
		}
		next, err := c.provider.Poll(ctx, op.ID)
		if err != nil {
			return op, services.Wrap(services.ErrProvider, stage, "poll", c.provider.Name()+" poll failed", err)
		}
		op = next
	}

	if op.Status == StatusFailed {
		detail := strings.TrimSpace(op.Error)
		if detail == "" {
			detail = "no failure detail reported"
		}
		return op, services.Wrap(
			services.ErrOperationFailed,
			stage,
			"poll",
			fmt.Sprintf("%s operation %s failed: %s", c.provider.Name(), op.ID, detail),
			nil,
		)
	}
	return op, nil
}
