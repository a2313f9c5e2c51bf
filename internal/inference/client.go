// Package inference is the HTTP client for the remote text, image and audio
// models. It satisfies the classifier's model interfaces.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"triage-service/internal/models"

	"go.uber.org/zap"
)

// Config holds the model server settings.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	BreakerTimeout time.Duration
	MaxFailures    uint32
	Logger         *zap.Logger
}

// Client is a client for the model server API
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    CircuitBreaker
}

// PredictTextRequest is the body of a text prediction request
type PredictTextRequest struct {
	Text string `json:"text"`
}

// PredictResponse is the per-label distribution returned for any modality
type PredictResponse struct {
	Labels        []string  `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
}

// HealthResponse reports which models the server has loaded
type HealthResponse struct {
	Status string `json:"status"`
	Text   bool   `json:"text"`
	Image  bool   `json:"image"`
	Audio  bool   `json:"audio"`
}

// NewClient creates a new model server client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: NewCircuitBreaker("model-server", breakerTimeout, maxFailures, cfg.Logger),
	}
}

// PredictText classifies a text report
func (c *Client) PredictText(ctx context.Context, text string) (models.Distribution, error) {
	jsonData, err := json.Marshal(PredictTextRequest{Text: text})
	if err != nil {
		return models.Distribution{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.predict(ctx, "/predict/text", "application/json", jsonData)
}

// PredictImage classifies the image stored at path
func (c *Client) PredictImage(ctx context.Context, path string) (models.Distribution, error) {
	return c.predictFile(ctx, "/predict/image", path)
}

// PredictAudio classifies the audio clip stored at path
func (c *Client) PredictAudio(ctx context.Context, path string) (models.Distribution, error) {
	return c.predictFile(ctx, "/predict/audio", path)
}

func (c *Client) predictFile(ctx context.Context, endpoint, path string) (models.Distribution, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Distribution{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return models.Distribution{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return models.Distribution{}, fmt.Errorf("failed to copy upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return models.Distribution{}, fmt.Errorf("failed to close multipart body: %w", err)
	}

	return c.predict(ctx, endpoint, w.FormDataContentType(), buf.Bytes())
}

func (c *Client) predict(ctx context.Context, endpoint, contentType string, body []byte) (models.Distribution, error) {
	var result PredictResponse

	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("model server returned status %d: %s", resp.StatusCode, string(respBody))
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Distribution{}, err
	}

	return models.Distribution{Labels: result.Labels, Probabilities: result.Probabilities}, nil
}

// Health checks which models the server has loaded
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, string(body))
	}

	var result HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// Modalities reports which models to route to the server. A server that
// cannot be reached is assumed to serve all three, so the breaker and the
// classifier's fallback tiers cover it until it comes up.
func (c *Client) Modalities(ctx context.Context) (HealthResponse, error) {
	health, err := c.Health(ctx)
	if err != nil {
		return HealthResponse{Status: "unreachable", Text: true, Image: true, Audio: true}, err
	}
	return *health, nil
}
