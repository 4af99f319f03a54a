package generation

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	name    string
	results []error
	text    string
	calls   int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(_ context.Context, _ string) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.results) && p.results[i] != nil {
		return "", p.results[i]
	}
	if i >= len(p.results) && len(p.results) > 0 && p.results[len(p.results)-1] != nil {
		return "", p.results[len(p.results)-1]
	}
	return p.text, nil
}

func statusErr(name string, code int) error {
	return &ProviderError{Provider: name, StatusCode: code, Err: errors.New(http.StatusText(code))}
}

func noSleep(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		step    Step
		outcome Outcome
		retried bool
		want    Step
	}{
		{StepPrimary, OutcomeOK, false, StepDone},
		{StepPrimary, OutcomeNotFound, false, StepPrimaryAltVersion},
		{StepPrimary, OutcomeRateLimited, false, StepPrimaryRetry},
		{StepPrimary, OutcomeFailed, false, StepSecondary},
		{StepPrimaryAltVersion, OutcomeOK, false, StepDone},
		{StepPrimaryAltVersion, OutcomeRateLimited, false, StepPrimaryRetry},
		{StepPrimaryAltVersion, OutcomeRateLimited, true, StepSecondary},
		{StepPrimaryAltVersion, OutcomeNotFound, false, StepSecondary},
		{StepPrimaryRetry, OutcomeRateLimited, true, StepSecondary},
		{StepPrimaryRetry, OutcomeFailed, true, StepSecondary},
		{StepSecondary, OutcomeOK, false, StepDone},
		{StepSecondary, OutcomeFailed, false, StepFailed},
		{StepSecondary, OutcomeRateLimited, false, StepFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.step)+"/"+tt.outcome.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.step, tt.outcome, tt.retried))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, Classify(nil))
	assert.Equal(t, OutcomeNotFound, Classify(statusErr("gemini", 404)))
	assert.Equal(t, OutcomeRateLimited, Classify(statusErr("gemini", 429)))
	assert.Equal(t, OutcomeFailed, Classify(statusErr("gemini", 500)))
	assert.Equal(t, OutcomeFailed, Classify(errors.New("boom")))
}

func TestChain_PrimarySucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", text: "Answer: Yes"}
	secondary := &scriptedProvider{name: "ollama", text: "unused"}

	res, err := NewChain(primary, nil, secondary, Config{}).Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "Answer: Yes", res.Text)
	assert.Equal(t, "gemini", res.Provider)
	assert.Equal(t, string(StepPrimary), res.Step)
	assert.Equal(t, 0, secondary.calls)
}

func TestChain_RateLimitedRetriesOnceThenFallsBack(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", results: []error{statusErr("gemini", 429)}}
	secondary := &scriptedProvider{name: "ollama", text: "Answer: No"}
	var waits []time.Duration

	chain := NewChain(primary, nil, secondary, Config{RateLimitBackoff: 5 * time.Second}).WithSleep(noSleep(&waits))
	res, err := chain.Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "Answer: No", res.Text)
	assert.Equal(t, "ollama", res.Provider)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, []time.Duration{5 * time.Second}, waits)
	assert.Equal(t, 3, res.Attempts)
}

func TestChain_RateLimitedRetrySucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", results: []error{statusErr("gemini", 429), nil}, text: "Answer: Yes"}
	secondary := &scriptedProvider{name: "ollama"}
	var waits []time.Duration

	res, err := NewChain(primary, nil, secondary, Config{}).WithSleep(noSleep(&waits)).Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, string(StepPrimaryRetry), res.Step)
	assert.Equal(t, 0, secondary.calls)
	assert.Len(t, waits, 1)
}

func TestChain_NotFoundTriesAltVersion(t *testing.T) {
	primary := &scriptedProvider{name: "gemini-v1", results: []error{statusErr("gemini-v1", 404)}}
	alt := &scriptedProvider{name: "gemini-v1beta", text: "Answer: Refer"}
	secondary := &scriptedProvider{name: "ollama"}

	res, err := NewChain(primary, alt, secondary, Config{}).Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "gemini-v1beta", res.Provider)
	assert.Equal(t, string(StepPrimaryAltVersion), res.Step)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestChain_AltVersionRateLimitedRetriesAlt(t *testing.T) {
	primary := &scriptedProvider{name: "gemini-v1", results: []error{statusErr("gemini-v1", 404)}}
	alt := &scriptedProvider{name: "gemini-v1beta", results: []error{statusErr("gemini-v1beta", 429), nil}, text: "Answer: Yes"}
	var waits []time.Duration

	res, err := NewChain(primary, alt, &scriptedProvider{name: "ollama"}, Config{}).WithSleep(noSleep(&waits)).Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "gemini-v1beta", res.Provider)
	assert.Equal(t, string(StepPrimaryRetry), res.Step)
	assert.Equal(t, 2, alt.calls)
}

func TestChain_NotFoundWithoutAltGoesToSecondary(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", results: []error{statusErr("gemini", 404)}}
	secondary := &scriptedProvider{name: "ollama", text: "ok"}

	res, err := NewChain(primary, nil, secondary, Config{}).Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "ollama", res.Provider)
}

func TestChain_OtherErrorGoesStraightToSecondary(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", results: []error{statusErr("gemini", 500)}}
	secondary := &scriptedProvider{name: "ollama", text: "ok"}
	var waits []time.Duration

	res, err := NewChain(primary, nil, secondary, Config{}).WithSleep(noSleep(&waits)).Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "ollama", res.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Empty(t, waits)
}

func TestChain_NoPrimaryUsesSecondaryOnly(t *testing.T) {
	secondary := &scriptedProvider{name: "ollama", text: "Answer: Yes"}

	res, err := NewChain(nil, nil, secondary, Config{}).Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, string(StepSecondary), res.Step)
	assert.Equal(t, 1, res.Attempts)
}

func TestChain_AllFail(t *testing.T) {
	primaryErr := statusErr("gemini", 500)
	secondaryErr := errors.New("connection refused")
	primary := &scriptedProvider{name: "gemini", results: []error{primaryErr}}
	secondary := &scriptedProvider{name: "ollama", results: []error{secondaryErr}}

	res, err := NewChain(primary, nil, secondary, Config{}).Generate(context.Background(), "p")

	assert.Nil(t, res)
	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, primaryErr)
	assert.ErrorIs(t, err, secondaryErr)
}

func TestChain_NoSecondaryConfigured(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", results: []error{statusErr("gemini", 500)}}

	_, err := NewChain(primary, nil, nil, Config{}).Generate(context.Background(), "p")

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, err.Error(), "no secondary provider configured")
}

func TestChain_BackoffCancelled(t *testing.T) {
	primary := &scriptedProvider{name: "gemini", results: []error{statusErr("gemini", 429)}}
	secondary := &scriptedProvider{name: "ollama", text: "ok"}
	ctx, cancel := context.WithCancel(context.Background())

	chain := NewChain(primary, nil, secondary, Config{RateLimitBackoff: time.Hour}).WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	_, err := chain.Generate(ctx, "p")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, secondary.calls)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
