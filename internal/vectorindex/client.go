// Package vectorindex is a client for the in-memory FAISS vector service.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/quotedesk/internal/domain"
)

const (
	DefaultURL   = "http://localhost:8000"
	maxErrorBody = 4096
)

// Stats describes the service's index.
type Stats struct {
	Total     int `json:"total"`
	Dimension int `json:"dimension"`
}

// AddResult is the service's response to an add batch.
type AddResult struct {
	Count int    `json:"count"`
	Total int    `json:"total"`
	Error string `json:"error,omitempty"`
}

// Client calls the vector service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Vector []float32 `json:"vector"`
	TopK   int       `json:"top_k"`
}

type searchResponse struct {
	Results []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Search returns up to topK candidates ordered by descending score.
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]domain.Candidate, error) {
	if len(vector) == 0 {
		return nil, errors.New("vectorindex: query vector is empty")
	}
	if topK <= 0 {
		return []domain.Candidate{}, nil
	}

	var out searchResponse
	if err := c.do(ctx, http.MethodPost, "/search", searchRequest{Vector: vector, TopK: topK}, &out); err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(out.Results))
	for _, r := range out.Results {
		if r.ID == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{ID: r.ID, Score: r.Score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

type addRequest struct {
	Vectors [][]float32 `json:"vectors"`
	IDs     []string    `json:"ids"`
}

// Add loads vectors under ids. A batch error reported in the body is
// returned as an error.
func (c *Client) Add(ctx context.Context, ids []string, vectors [][]float32) (*AddResult, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("vectorindex: %d ids for %d vectors", len(ids), len(vectors))
	}
	var out AddResult
	if err := c.do(ctx, http.MethodPost, "/add", addRequest{Vectors: vectors, IDs: ids}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return &out, fmt.Errorf("vectorindex: add: %s", out.Error)
	}
	return &out, nil
}

// Reset empties the index.
func (c *Client) Reset(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodPost, "/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("vectorindex: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("vectorindex: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vectorindex: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("vectorindex: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("vectorindex: decode %s response: %w", path, err)
	}
	return nil
}
