package webui

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
	"github.com/yourusername/webui-watchdog/internal/metrics"
)

const (
	configEndpoint   = "/config"
	progressEndpoint = "/internal/progress"
)

// Client talks to the image-generation web UI backend
type Client struct {
	baseURL      string
	progressPath string
	anchorID     string
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewClient creates a new web UI API client. progressPath is the liveness
// endpoint, anchorID the element id whose presence means the UI has rendered.
func NewClient(baseURL, progressPath, anchorID string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		progressPath: progressPath,
		anchorID:     anchorID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "webui-client").Logger(),
	}
}

// StatusError means the server answered, but not with a 2xx status
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status: %d", e.Endpoint, e.StatusCode)
}

// IsStatusError reports whether err is an HTTP answer rather than a transport
// failure
func IsStatusError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

// Ping checks if the liveness endpoint answers with a 2xx status. A server
// that answers with another status yields a *StatusError; one that does not
// answer at all yields the transport error.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.APIRequestDuration.WithLabelValues("GET", c.progressPath).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.progressPath+"?skip_current_image=true", nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIErrorsTotal.WithLabelValues("GET", c.progressPath, "network_error").Inc()
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.APIErrorsTotal.WithLabelValues("GET", c.progressPath, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return &StatusError{Endpoint: c.progressPath, StatusCode: resp.StatusCode}
	}

	return nil
}

// AnchorPresent reports whether the anchor component has been rendered
func (c *Client) AnchorPresent(ctx context.Context) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.APIRequestDuration.WithLabelValues("GET", configEndpoint).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+configEndpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build config request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIErrorsTotal.WithLabelValues("GET", configEndpoint, "network_error").Inc()
		return false, fmt.Errorf("config request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.APIErrorsTotal.WithLabelValues("GET", configEndpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return false, fmt.Errorf("config request failed with status: %d", resp.StatusCode)
	}

	var cfg ConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return false, fmt.Errorf("failed to decode config response: %w", err)
	}

	for _, comp := range cfg.Components {
		if comp.Props.ElemID != c.anchorID {
			continue
		}
		if comp.Props.Visible != nil && !*comp.Props.Visible {
			return false, nil
		}
		return true, nil
	}

	return false, nil
}

// Progress retrieves the progress of a task
func (c *Client) Progress(ctx context.Context, taskID string) (*ProgressResponse, error) {
	start := time.Now()
	defer func() {
		metrics.APIRequestDuration.WithLabelValues("POST", progressEndpoint).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(ProgressRequest{TaskID: taskID, LivePreviewID: -1})
	if err != nil {
		return nil, fmt.Errorf("failed to encode progress request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+progressEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build progress request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIErrorsTotal.WithLabelValues("POST", progressEndpoint, "network_error").Inc()
		return nil, fmt.Errorf("progress request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		metrics.APIErrorsTotal.WithLabelValues("POST", progressEndpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return nil, fmt.Errorf("progress request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var progress ProgressResponse
	if err := json.Unmarshal(respBody, &progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress response: %w", err)
	}

	c.logger.Debug().
		Str("task_id", taskID).
		Bool("active", progress.Active).
		Bool("completed", progress.Completed).
		Float64("progress", progress.Progress).
		Msg("Task progress")

	return &progress, nil
}
