// Package replicate talks to a Replicate-style prediction API: submissions
// return a provider-assigned job id, results arrive by polling or webhook.
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

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"genserver/internal/domain"
	"genserver/internal/infra"
)

// ErrMissingToken indicates the client was configured without credentials.
var ErrMissingToken = errors.New("replicate: api token is required")

// Options configures the prediction API client.
type Options struct {
	APIToken       string
	BaseURL        string
	WebhookURL     string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	// PollRate caps status requests against the provider across all jobs.
	PollRate rate.Limit
}

// Client performs HTTP calls against the prediction API.
type Client struct {
	apiToken   string
	baseURL    string
	webhookURL string
	httpClient *http.Client
	logger     *infra.Logger
	limiter    *rate.Limiter
}

// Prediction is the provider's job representation.
type Prediction struct {
	ID      string          `json:"id"`
	Version string          `json:"version"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output"`
	Error   string          `json:"error"`
}

type createPredictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
	Webhook string         `json:"webhook,omitempty"`
}

type modelResponse struct {
	LatestVersion struct {
		ID string `json:"id"`
	} `json:"latest_version"`
}

type apiError struct {
	Detail string `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.APIToken)
	if token == "" {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigMissing, ErrMissingToken)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	pollRate := opts.PollRate
	if pollRate <= 0 {
		pollRate = rate.Limit(10)
	}
	burst := int(pollRate)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		apiToken:   token,
		baseURL:    baseURL,
		webhookURL: strings.TrimSpace(opts.WebhookURL),
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(pollRate, burst),
	}, nil
}

// LatestVersion asks the model-description endpoint for the newest published
// version id. Callers cache the answer; this round-trip happens once per
// model per process.
func (c *Client) LatestVersion(ctx context.Context, model string) (string, error) {
	var resp modelResponse
	if err := c.do(ctx, http.MethodGet, "/models/"+model, nil, &resp); err != nil {
		return "", err
	}
	return resp.LatestVersion.ID, nil
}

// CreatePrediction submits a job and returns the provider's handle for it.
func (c *Client) CreatePrediction(ctx context.Context, version string, input map[string]any) (*Prediction, error) {
	req := createPredictionRequest{Version: version, Input: input, Webhook: c.webhookURL}
	var pred Prediction
	if err := c.do(ctx, http.MethodPost, "/predictions", req, &pred); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderRejected, err)
	}
	if pred.ID == "" {
		return nil, fmt.Errorf("%w: response carried no prediction id", domain.ErrProviderRejected)
	}
	return &pred, nil
}

// GetPrediction fetches the current state of a submitted job. Calls are paced
// by the shared poll limiter so a burst of reconciliations cannot hammer the
// provider.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var pred Prediction
	if err := c.do(ctx, http.MethodGet, "/predictions/"+id, nil, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

// MapStatus translates a provider status string into the domain lifecycle.
// Anything unrecognized is treated as still queued; polling will catch up.
func MapStatus(s string) domain.JobStatus {
	if status, ok := domain.ParseJobStatus(s); ok {
		return status
	}
	return domain.JobStatusQueued
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("replicate: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("replicate: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Detail != "" {
			return fmt.Errorf("replicate: %s (status %d)", apiErr.Detail, resp.StatusCode)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("replicate: request failed")
		return fmt.Errorf("replicate: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("replicate: decode response: %w", err)
	}
	return nil
}
