// Package llm isolates the language model behind a synthesis-only interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"golang.org/x/time/rate"
)

// Model turns a prompt into text. Failures are reported as
// domain.ErrModelTimeout or domain.ErrModelError.
type Model interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Func adapts a plain function to Model.
type Func func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Complete implements Model.
func (f Func) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// Unavailable is the model used when no provider is configured. Every call
// fails, so answers fall back to the deterministic aggregates.
type Unavailable struct{}

// Complete implements Model.
func (Unavailable) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", fmt.Errorf("no model provider configured: %w", domain.ErrModelError)
}

// timeoutModel bounds each call to a fixed duration.
type timeoutModel struct {
	next    Model
	timeout time.Duration
}

// WithTimeout wraps m so that each call is cancelled after d. Hitting the
// bound is reported as domain.ErrModelTimeout.
func WithTimeout(m Model, d time.Duration) Model {
	if d <= 0 {
		return m
	}
	return &timeoutModel{next: m, timeout: d}
}

func (t *timeoutModel) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.Complete(cctx, prompt, maxTokens)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("model call exceeded %s: %w", t.timeout, domain.ErrModelTimeout)
	}
	return out, err
}

// rateLimited throttles calls with a token bucket.
type rateLimited struct {
	next    Model
	limiter *rate.Limiter
}

// WithRateLimit wraps m with a limiter allowing perSecond calls and the given
// burst. A non-positive perSecond disables limiting.
func WithRateLimit(m Model, perSecond float64, burst int) Model {
	if perSecond <= 0 {
		return m
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: m, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *rateLimited) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		// Wait fails early when the deadline would pass before a token frees up
		return "", fmt.Errorf("rate limiter: %v: %w", err, domain.ErrModelTimeout)
	}
	return r.next.Complete(ctx, prompt, maxTokens)
}
