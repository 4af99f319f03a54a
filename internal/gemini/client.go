// Package gemini is the hosted primary generation provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/quotedesk/internal/generation"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const providerName = "gemini"

// Config configures a Gemini provider for one API version.
type Config struct {
	APIKey      string
	Model       string
	APIVersion  string
	Temperature float32
	// RateLimit is the maximum requests per second. Zero disables the
	// throttle.
	RateLimit float64
	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string
}

// Client calls GenerateContent on a fixed model and API version.
type Client struct {
	models      *genai.Models
	model       string
	version     string
	temperature float32
	limiter     *rate.Limiter
}

// New builds a client. Limiter may be shared between clients for different
// API versions of the same key; nil builds one from cfg.RateLimit.
func New(ctx context.Context, cfg Config, limiter *rate.Limiter) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini: model is required")
	}

	httpOpts := genai.HTTPOptions{APIVersion: cfg.APIVersion}
	if cfg.BaseURL != "" {
		httpOpts.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	if limiter == nil {
		limiter = NewLimiter(cfg.RateLimit)
	}

	return &Client{
		models:      client.Models,
		model:       cfg.Model,
		version:     cfg.APIVersion,
		temperature: cfg.Temperature,
		limiter:     limiter,
	}, nil
}

// NewLimiter returns a limiter allowing perSecond requests, or nil when
// perSecond is not positive.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func (c *Client) Name() string {
	if c.version == "" {
		return providerName
	}
	return providerName + "-" + c.version
}

// Complete implements generation.Provider. API errors are returned as
// *generation.ProviderError carrying the HTTP status.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &generation.ProviderError{Provider: c.Name(), Err: err}
		}
	}

	resp, err := c.models.GenerateContent(
		ctx,
		c.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{Temperature: genai.Ptr(c.temperature)},
	)
	if err != nil {
		return "", &generation.ProviderError{Provider: c.Name(), StatusCode: statusCode(err), Err: err}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &generation.ProviderError{Provider: c.Name(), Err: errors.New("empty response")}
	}
	return text, nil
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
