// Package generation runs grounded prompts through the primary hosted model
// with an ordered fallback to the local model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/cloo-solutions/quotedesk/internal/logging"
	"go.uber.org/zap"
)

// Step names a state of the fallback chain.
type Step string

const (
	StepPrimary           Step = "primary"
	StepPrimaryAltVersion Step = "primary_alt_version"
	StepPrimaryRetry      Step = "primary_retry"
	StepSecondary         Step = "secondary"
	StepDone              Step = "done"
	StepFailed            Step = "failed"
)

// Outcome classifies a provider attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeRateLimited
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// Provider completes a prompt with a single model call.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderError is a non-success response from a provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Classify maps a provider error to the outcome that drives the chain.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.StatusCode {
		case http.StatusNotFound:
			return OutcomeNotFound
		case http.StatusTooManyRequests:
			return OutcomeRateLimited
		}
	}
	return OutcomeFailed
}

// Config holds the chain timings.
type Config struct {
	// RateLimitBackoff is the wait before retrying a rate limited primary.
	RateLimitBackoff time.Duration
	// AttemptTimeout bounds each provider call. Zero means no bound.
	AttemptTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RateLimitBackoff: 5 * time.Second,
		AttemptTimeout:   120 * time.Second,
	}
}

// Next is the transition function of the fallback chain. retried reports
// whether the rate limit retry has already been taken.
func Next(step Step, outcome Outcome, retried bool) Step {
	if outcome == OutcomeOK {
		return StepDone
	}
	switch step {
	case StepPrimary:
		switch outcome {
		case OutcomeNotFound:
			return StepPrimaryAltVersion
		case OutcomeRateLimited:
			return StepPrimaryRetry
		}
		return StepSecondary
	case StepPrimaryAltVersion:
		if outcome == OutcomeRateLimited && !retried {
			return StepPrimaryRetry
		}
		return StepSecondary
	case StepPrimaryRetry:
		return StepSecondary
	default:
		return StepFailed
	}
}

// Chain is the primary to secondary fallback state machine.
type Chain struct {
	primary    Provider
	primaryAlt Provider
	secondary  Provider
	cfg        Config
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewChain builds a chain. primary and primaryAlt may be nil, in which case
// the corresponding steps are skipped.
func NewChain(primary, primaryAlt, secondary Provider, cfg Config) *Chain {
	return &Chain{
		primary:    primary,
		primaryAlt: primaryAlt,
		secondary:  secondary,
		cfg:        cfg,
		sleep:      sleepContext,
	}
}

// WithSleep replaces the backoff wait. Used by tests.
func (c *Chain) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Chain {
	c.sleep = fn
	return c
}

// Generate walks the chain until a provider answers or every step failed.
func (c *Chain) Generate(ctx context.Context, prompt string) (*domain.Generation, error) {
	logger := logging.FromContext(ctx)

	step := StepPrimary
	if c.primary == nil {
		step = StepSecondary
	}

	var (
		primaryErr  error
		lastPrimary = c.primary
		retried     bool
		attempts    int
	)

	for {
		provider := c.providerFor(step, lastPrimary)
		if provider == nil {
			// Unconfigured steps behave like a failed attempt.
			next := Next(step, OutcomeFailed, retried)
			if step == StepSecondary {
				return nil, &domain.GenerationError{Primary: primaryErr, Secondary: errors.New("no secondary provider configured")}
			}
			step = next
			continue
		}

		attempts++
		text, err := c.attempt(ctx, provider, prompt)
		outcome := Classify(err)
		if step != StepSecondary && err != nil {
			primaryErr = err
			lastPrimary = provider
		}

		next := Next(step, outcome, retried)
		if next == StepDone {
			logger.Info("generation succeeded",
				zap.String("step", string(step)),
				zap.String("provider", provider.Name()),
				zap.Int("attempts", attempts),
			)
			return &domain.Generation{
				Text:     text,
				Provider: provider.Name(),
				Step:     string(step),
				Attempts: attempts,
			}, nil
		}

		logger.Warn("generation step failed",
			zap.String("step", string(step)),
			zap.String("provider", provider.Name()),
			zap.String("outcome", outcome.String()),
			zap.String("next", string(next)),
			zap.Error(err),
		)

		if next == StepFailed {
			return nil, &domain.GenerationError{Primary: primaryErr, Secondary: err}
		}
		if err := ctx.Err(); err != nil {
			return nil, &domain.GenerationError{Primary: primaryErr, Secondary: err}
		}
		if next == StepPrimaryRetry {
			retried = true
			if err := c.sleep(ctx, c.cfg.RateLimitBackoff); err != nil {
				return nil, &domain.GenerationError{Primary: primaryErr, Secondary: err}
			}
		}
		step = next
	}
}

func (c *Chain) providerFor(step Step, lastPrimary Provider) Provider {
	switch step {
	case StepPrimary:
		return c.primary
	case StepPrimaryAltVersion:
		return c.primaryAlt
	case StepPrimaryRetry:
		return lastPrimary
	case StepSecondary:
		return c.secondary
	}
	return nil
}

func (c *Chain) attempt(ctx context.Context, p Provider, prompt string) (string, error) {
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}
	return p.Complete(ctx, prompt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
