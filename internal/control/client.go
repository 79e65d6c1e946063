// Package control starts and stops search jobs on the backend and turns the
// outcome of those calls into local progress events.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/metrics"
	"github.com/JakeFAU/period-search-monitor/internal/periods"
)

var (
	// ErrRejected means the backend answered but refused the request.
	ErrRejected = errors.New("backend rejected request")
	// ErrInvalidRequest means the start request failed local validation.
	ErrInvalidRequest = errors.New("invalid start request")
)

const (
	defaultStartPath = "/api/search"
	defaultStopPath  = "/api/search/stop"
	defaultTimeout   = 30 * time.Second
	maxErrorBody     = 4 << 10
)

// StartRequest is the body posted to the backend's start endpoint.
type StartRequest struct {
	Query            string           `json:"query"`
	PeriodSelector   periods.Selector `json:"periodSelector"`
	CorrectionMethod string           `json:"correctionMethod,omitempty"`
	MaxArticles      *int             `json:"maxArticles,omitempty"`
	Cantons          []string         `json:"cantons,omitempty"`
	// StartFrom is the 1-based result to resume the first period from.
	StartFrom *int `json:"startFrom,omitempty"`
}

// Validate checks the fields the backend cannot default.
func (r StartRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if r.MaxArticles != nil && *r.MaxArticles < 0 {
		return fmt.Errorf("%w: maxArticles must not be negative", ErrInvalidRequest)
	}
	if r.StartFrom != nil && *r.StartFrom < 0 {
		return fmt.Errorf("%w: startFrom must not be negative", ErrInvalidRequest)
	}
	return nil
}

// StartResponse is the backend's answer to a start request.
type StartResponse struct {
	Accepted   bool     `json:"accepted"`
	TotalTasks *int     `json:"totalTasks,omitempty"`
	TasksCount *int     `json:"tasksCount,omitempty"`
	Periods    []string `json:"periods,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// StopResponse is the backend's answer to a stop request.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message,omitempty"`
}

// wireResponse accepts both current and legacy response shapes.
type wireResponse struct {
	Accepted      *bool    `json:"accepted"`
	Stopped       *bool    `json:"stopped"`
	Status        string   `json:"status"`
	TotalTasks    *int     `json:"totalTasks"`
	TotalTasksOld *int     `json:"total_tasks"`
	TasksCount    *int     `json:"tasksCount"`
	TasksCountOld *int     `json:"tasks_count"`
	Periods       []string `json:"periods"`
	Message       string   `json:"message"`
	Error         string   `json:"error"`
}

// ClientConfig locates the backend's control endpoints.
type ClientConfig struct {
	BaseURL   string
	StartPath string
	StopPath  string
	Timeout   time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client calls the backend's start and stop endpoints.
type Client struct {
	startURL string
	stopURL  string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must use http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("backend url %q has no host", cfg.BaseURL)
	}
	if cfg.StartPath == "" {
		cfg.StartPath = defaultStartPath
	}
	if cfg.StopPath == "" {
		cfg.StopPath = defaultStopPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		startURL: base.JoinPath(cfg.StartPath).String(),
		stopURL:  base.JoinPath(cfg.StopPath).String(),
		http:     httpClient,
		logger:   logger.Named("control_client"),
	}, nil
}

// StartJob asks the backend to start a search. A refusal is reported as an
// error wrapping ErrRejected together with the response.
func (c *Client) StartJob(ctx context.Context, req StartRequest) (resp StartResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveControl("start", err, time.Since(start)) }()

	wire, status, err := c.post(ctx, c.startURL, req)
	if err != nil {
		return StartResponse{}, fmt.Errorf("start job: %w", err)
	}
	resp = StartResponse{
		Accepted:   accepted(wire.Accepted, wire.Status, "started"),
		TotalTasks: firstInt(wire.TotalTasks, wire.TotalTasksOld),
		TasksCount: firstInt(wire.TasksCount, wire.TasksCountOld),
		Periods:    wire.Periods,
		Error:      wire.Error,
	}
	if status >= http.StatusMultipleChoices || !resp.Accepted {
		resp.Accepted = false
		return resp, fmt.Errorf("start job: %w: %s", ErrRejected, reason(status, wire))
	}
	c.logger.Debug("start accepted", zap.Intp("total_tasks", resp.TotalTasks), zap.Int("periods", len(resp.Periods)))
	return resp, nil
}

// StopJob asks the backend to stop the running search.
func (c *Client) StopJob(ctx context.Context) (resp StopResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveControl("stop", err, time.Since(start)) }()

	wire, status, err := c.post(ctx, c.stopURL, struct{}{})
	if err != nil {
		return StopResponse{}, fmt.Errorf("stop job: %w", err)
	}
	resp = StopResponse{
		Stopped: accepted(wire.Stopped, wire.Status, "stopped"),
		Message: wire.Message,
	}
	if status >= http.StatusMultipleChoices || !resp.Stopped {
		resp.Stopped = false
		return resp, fmt.Errorf("stop job: %w: %s", ErrRejected, reason(status, wire))
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (wireResponse, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return wireResponse{}, 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return wireResponse{}, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return wireResponse{}, 0, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return wireResponse{}, res.StatusCode, fmt.Errorf("read response: %w", err)
	}
	var wire wireResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &wire); err != nil {
			if res.StatusCode >= http.StatusMultipleChoices {
				wire.Error = truncate(string(raw))
				return wire, res.StatusCode, nil
			}
			return wireResponse{}, res.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return wire, res.StatusCode, nil
}

func accepted(flag *bool, status, legacy string) bool {
	if flag != nil {
		return *flag
	}
	return strings.EqualFold(status, legacy)
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func reason(status int, wire wireResponse) string {
	switch {
	case wire.Error != "":
		return wire.Error
	case wire.Message != "":
		return wire.Message
	case status >= http.StatusMultipleChoices:
		return fmt.Sprintf("http status %d", status)
	default:
		return "request not accepted"
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
