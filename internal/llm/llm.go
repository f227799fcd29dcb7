// Package llm talks to a language-model oracle and turns its replies into
// validated game actions. Providers are thin transports; the adapter owns
// prompt building, parsing, and validation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehrlich-b/tradewarden/internal/logger"
)

// Oracle error kinds. Providers map their transport failures onto these so
// the fallback discipline can tell a dead server from a confused model.
var (
	ErrTimeout         = errors.New("llm: timeout")
	ErrConnection      = errors.New("llm: connection")
	ErrModelNotFound   = errors.New("llm: model not found")
	ErrInvalidResponse = errors.New("llm: invalid response")
)

// Provider is one model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client wraps a provider with a per-call timeout, bounded exponential
// backoff, and a request rate limit.
type Client struct {
	Provider   Provider
	Timeout    time.Duration
	MaxRetries int

	// RetryDelay and BackoffMultiplier tune the retry curve; zero values
	// select 500ms doubling, capped at 8s.
	RetryDelay        time.Duration
	BackoffMultiplier float64

	limiter *rate.Limiter
}

// NewClient builds a retrying client. rps <= 0 disables rate limiting;
// zero timeout and retries select defaults.
func NewClient(p Provider, timeout time.Duration, maxRetries int, rps float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 2
	}
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{Provider: p, Timeout: timeout, MaxRetries: maxRetries, limiter: lim}
}

// Complete runs one oracle call with retries. Timeout and connection errors
// retry with backoff; model_not_found and invalid_response do not, since
// retrying them cannot help.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	backoff := c.RetryDelay
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 2
	}

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("llm retry", "provider", c.Provider.Name(), "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
			backoff = time.Duration(float64(backoff) * mult)
			if backoff > 8*time.Second {
				backoff = 8 * time.Second
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("%w: %v", ErrTimeout, err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		out, err := c.Provider.Complete(callCtx, prompt)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrModelNotFound) || errors.Is(err, ErrInvalidResponse) {
			return "", err
		}
	}
	return "", lastErr
}

// classifyCallErr maps a transport-level error to an oracle error kind.
func classifyCallErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
}
