package gamma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public Gamma generations API root.
const DefaultBaseURL = "https://public-api.gamma.app/v0.2"

// PollOutcome tags a single poll observation.
type PollOutcome int

const (
	// OutcomeInProgress means the generation is still running.
	OutcomeInProgress PollOutcome = iota
	// OutcomeCompleted means the generation finished with an artifact URL.
	OutcomeCompleted
	// OutcomeFailed means the provider reported a terminal failure.
	OutcomeFailed
	// OutcomeTransient means a retriable transport or server error occurred.
	OutcomeTransient
	// OutcomeFatal means the request itself is invalid and retrying is pointless.
	OutcomeFatal
)

// PollResult is one observation of a generation's state. Detail carries the
// provider's status or error text for logging.
type PollResult struct {
	Outcome PollOutcome
	URL     string
	Detail  string
}

// Client talks to the Gamma presentation API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option adjusts client construction.
type Option func(*Client)

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient constructs a Gamma API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitRequest struct {
	InputText   string      `json:"inputText"`
	Format      string      `json:"format"`
	TextMode    string      `json:"textMode"`
	TextOptions textOptions `json:"textOptions"`
}

type textOptions struct {
	Language string `json:"language"`
}

type submitResponse struct {
	GenerationID string `json:"generationId"`
}

type pollResponse struct {
	GenerationID string `json:"generationId"`
	Status       string `json:"status"`
	GammaURL     string `json:"gammaUrl"`
	Error        string `json:"error"`
}

// Submit starts a presentation generation and returns its generation ID.
func (c *Client) Submit(ctx context.Context, inputText, language string) (string, error) {
	body, err := json.Marshal(submitRequest{
		InputText: inputText,
		Format:    "presentation",
		TextMode:  "generate",
		TextOptions: textOptions{
			Language: language,
		},
	})
	if err != nil {
		return "", fmt.Errorf("gamma: encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gamma: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gamma: submit: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gamma: read submit response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gamma: submit returned %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}

	var parsed submitResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("gamma: decode submit response: %w", err)
	}
	if strings.TrimSpace(parsed.GenerationID) == "" {
		return "", fmt.Errorf("gamma: submit response missing generationId")
	}
	return parsed.GenerationID, nil
}

// Poll checks a generation once and classifies the observation. Transport
// errors and 5xx responses are transient; 4xx responses are fatal because the
// request itself will never succeed; completed generations without a URL are
// reported as failed.
func (c *Client) Poll(ctx context.Context, generationID string) PollResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generations/"+generationID, nil)
	if err != nil {
		return PollResult{Outcome: OutcomeFatal, Detail: fmt.Sprintf("build poll request: %v", err)}
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PollResult{Outcome: OutcomeTransient, Detail: fmt.Sprintf("poll request: %v", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PollResult{Outcome: OutcomeTransient, Detail: fmt.Sprintf("read poll response: %v", err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return PollResult{Outcome: OutcomeTransient, Detail: fmt.Sprintf("poll returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return PollResult{Outcome: OutcomeFatal, Detail: fmt.Sprintf("poll returned %d: %s", resp.StatusCode, truncate(string(payload), 200))}
	}

	var parsed pollResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return PollResult{Outcome: OutcomeTransient, Detail: fmt.Sprintf("decode poll response: %v", err)}
	}

	switch strings.ToLower(parsed.Status) {
	case "completed":
		if strings.TrimSpace(parsed.GammaURL) == "" {
			return PollResult{Outcome: OutcomeFailed, Detail: "completed without gammaUrl"}
		}
		return PollResult{Outcome: OutcomeCompleted, URL: parsed.GammaURL}
	case "failed", "error":
		detail := parsed.Error
		if detail == "" {
			detail = "provider reported failure"
		}
		return PollResult{Outcome: OutcomeFailed, Detail: detail}
	default:
		return PollResult{Outcome: OutcomeInProgress, Detail: parsed.Status}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
