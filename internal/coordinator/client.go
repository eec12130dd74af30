// Package coordinator implements the HTTP client used to report
// receiver lifecycle events and stored blocks to the coordinator
// service.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/jittakal/kafblockstore/internal/errors"
	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/coordinator"
)

// Ensure implementation satisfies interface at compile time.
var _ coordinator.Client = (*HTTPClient)(nil)

// MetricsCollector defines metrics operations for the coordinator client.
type MetricsCollector interface {
	IncCoordinatorRequests(endpoint string, status string)
	ObserveCoordinatorLatency(endpoint string, duration float64)
}

// Config contains coordinator client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Validate checks the coordinator client configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("coordinator base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid coordinator base URL: %w", err)
	}
	return nil
}

type registerRequest struct {
	Stream int    `json:"stream"`
	Host   string `json:"host"`
}

type deregisterRequest struct {
	Message string `json:"message"`
}

type addBlockRequest struct {
	BlockID     string    `json:"block_id"`
	Stream      int       `json:"stream"`
	RecordCount int       `json:"record_count"`
	SizeBytes   int64     `json:"size_bytes"`
	Host        string    `json:"host"`
	StoredAt    time.Time `json:"stored_at"`
}

type reportErrorRequest struct {
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

type reportSizeRequest struct {
	SizeBytes int64  `json:"size_bytes"`
	Host      string `json:"host"`
}

// HTTPClient reports to the coordinator over JSON HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    MetricsCollector
}

// NewHTTPClient creates a new coordinator client.
func NewHTTPClient(cfg Config, logger *slog.Logger, metrics MetricsCollector) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger.Info("coordinator client created",
		"base_url", cfg.BaseURL,
		"timeout", timeout,
	)

	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// RegisterReceiver announces the receiver for a stream.
func (c *HTTPClient) RegisterReceiver(ctx context.Context, stream int, host string) error {
	return c.post(ctx, "/v1/receivers", registerRequest{Stream: stream, Host: host})
}

// DeregisterReceiver reports the receiver for a stream as stopped.
func (c *HTTPClient) DeregisterReceiver(ctx context.Context, stream int, message string) error {
	endpoint := fmt.Sprintf("/v1/receivers/%d", stream)

	body, err := json.Marshal(deregisterRequest{Message: message})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return c.do(ctx, http.MethodDelete, endpoint, body)
}

// AddBlock reports a stored block.
func (c *HTTPClient) AddBlock(ctx context.Context, info block.Info) error {
	return c.post(ctx, "/v1/blocks", addBlockRequest{
		BlockID:     info.ID.String(),
		Stream:      info.ID.Stream,
		RecordCount: info.RecordCount,
		SizeBytes:   info.SizeBytes,
		Host:        info.Host,
		StoredAt:    info.StoredAt,
	})
}

// ReportError forwards a receiver error to the coordinator.
func (c *HTTPClient) ReportError(ctx context.Context, message string, cause error) error {
	req := reportErrorRequest{Message: message}
	if cause != nil {
		req.Cause = cause.Error()
	}
	return c.post(ctx, "/v1/errors", req)
}

// ReportSize reports the stored size of a block under its final host.
// The report is one way: failures are logged, not returned, so a slow
// coordinator cannot stall the push path.
func (c *HTTPClient) ReportSize(ctx context.Context, sizeBytes int64, host string) {
	err := c.post(ctx, "/v1/sizes", reportSizeRequest{SizeBytes: sizeBytes, Host: host})
	if err != nil {
		c.logger.Warn("failed to report block size",
			"size_bytes", sizeBytes,
			"host", host,
			"error", err,
		)
	}
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, body)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body []byte) error {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncCoordinatorRequests(endpoint, "error")
		}
		return &apperrors.CoordinatorError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	duration := time.Since(startTime)
	if c.metrics != nil {
		c.metrics.ObserveCoordinatorLatency(endpoint, duration.Seconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.metrics != nil {
			c.metrics.IncCoordinatorRequests(endpoint, "error")
		}
		return &apperrors.CoordinatorError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if c.metrics != nil {
		c.metrics.IncCoordinatorRequests(endpoint, "success")
	}

	c.logger.Debug("coordinator request completed",
		"method", method,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}
