package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	// EnvAPIURL names the server address used when --api-url is not set.
	EnvAPIURL = "QUOTEDESK_API_URL"

	defaultAPIURL = "http://localhost:8080"
)

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClientWithCmd creates an APIClient with config cascade: flag → env → default
// If cmd is nil, skips flag checking.
func NewAPIClientWithCmd(cmd *cobra.Command) *APIClient {
	_ = godotenv.Load()

	var baseURL string
	if cmd != nil {
		if flagURL, err := cmd.Flags().GetString("api-url"); err == nil && flagURL != "" {
			baseURL = flagURL
		}
	}
	if baseURL == "" {
		baseURL = os.Getenv(EnvAPIURL)
	}
	if baseURL == "" {
		baseURL = defaultAPIURL
	}

	return NewAPIClientWithConfig(baseURL, 3*time.Minute)
}

// NewAPIClientWithConfig creates an APIClient with explicit config.
func NewAPIClientWithConfig(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// AskRequest is the carrier assistant request body.
type AskRequest struct {
	Carrier  string `json:"carrier"`
	LOB      string `json:"lob"`
	State    string `json:"state"`
	Program  string `json:"program,omitempty"`
	Version  string `json:"version,omitempty"`
	Question string `json:"question"`
}

// AskSource is a citation in an answer.
type AskSource struct {
	Doc     string `json:"doc"`
	Page    string `json:"page"`
	Snippet string `json:"snippet"`
	Tag     string `json:"tag"`
}

// AskRetrieved is a chunk that was used as context.
type AskRetrieved struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Doc   string  `json:"doc"`
	Page  string  `json:"page"`
	Score float64 `json:"score"`
}

// AskResponse is the carrier assistant answer. Error is set when the server
// could not complete the pipeline.
type AskResponse struct {
	Answer     string         `json:"answer"`
	Conditions string         `json:"conditions"`
	Sources    []AskSource    `json:"sources"`
	Retrieved  []AskRetrieved `json:"retrieved"`
	Error      string         `json:"error,omitempty"`
}

// Ask posts a question. When the server answers with a failure Refer body,
// both the body and an *APIError are returned.
func (c *APIClient) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/api/carrier-assistant", req)
	if err != nil {
		return nil, err
	}

	var resp AskResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		if status >= 400 {
			return nil, &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("failed to parse response: %w", jsonErr)
	}

	if status >= 400 {
		apiErr := &APIError{StatusCode: status, Message: resp.Error}
		if resp.Answer == "" {
			return nil, apiErr
		}
		return &resp, apiErr
	}
	return &resp, nil
}

// Health checks that the server is up.
func (c *APIClient) Health(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	return nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
