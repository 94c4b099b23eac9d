// Package panda implements driver.Driver against PanDA's JEDI task REST API,
// grounded on original_source/atlas/lib/idds/atlas/workflow/atlaspandawork.py's
// Client.insertTaskParams/getJediTaskDetails/killTask/retryTask call sites.
// Every RPC is wrapped in the teacher's idderrors.Retry (exponential
// backoff on transient failures) and an idderrors.CircuitBreaker (so a
// wedged PanDA instance doesn't pin every worker-pool slot on doomed
// calls), and throttled by golang.org/x/time/rate so a busy Carrier cycle
// doesn't hammer the external service.
package panda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/iddsorg/idds/internal/driver"
	"github.com/iddsorg/idds/internal/idderrors"
	"github.com/iddsorg/idds/internal/logging"
	"github.com/iddsorg/idds/internal/runtime"
)

// Config configures the PanDA HTTP client.
type Config struct {
	BaseURL      string
	AuthToken    string
	Timeout      time.Duration
	RateLimitRPS float64
	RateBurst    int
}

// Client is a driver.Driver backed by PanDA's HTTP JEDI task API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *idderrors.CircuitBreaker
	retry   idderrors.RetryConfig
	logger  *logging.Logger
}

// New constructs a PanDA driver.Driver. A non-positive RateLimitRPS disables
// throttling (an unlimited limiter).
func New(cfg Config) *Client {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
		burst = cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: idderrors.NewCircuitBreaker("panda", idderrors.DefaultCircuitBreakerConfig()),
		retry:   idderrors.DefaultRetryConfig(),
		logger:  logging.NewComponentLogger("panda-driver"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, span := runtime.StartDriverSpan(ctx, method+" "+path)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return idderrors.Wrap(idderrors.KindConnectionFailure, err, "panda: rate limiter wait")
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return idderrors.Retry(ctx, c.retry, c.logger, func(ctx context.Context) error {
			return c.doOnce(ctx, method, path, body, out)
		})
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return idderrors.Wrap(idderrors.KindValidation, err, "panda: encode request body")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return idderrors.Wrap(idderrors.KindInternal, err, "panda: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return idderrors.Wrap(idderrors.KindConnectionFailure, err, "panda: request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return idderrors.Wrap(idderrors.KindConnectionFailure, err, "panda: read response")
	}
	if resp.StatusCode >= 500 {
		return idderrors.New(idderrors.KindConnectionFailure, fmt.Sprintf("panda: server error %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode >= 400 {
		return idderrors.New(idderrors.KindDriverFailure, fmt.Sprintf("panda: request error %d: %s", resp.StatusCode, respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return idderrors.Wrap(idderrors.KindDriverFailure, err, "panda: decode response")
	}
	return nil
}

type submitResponse struct {
	JediTaskID int64 `json:"jediTaskID"`
}

func (c *Client) SubmitTask(ctx context.Context, param driver.TaskParam) (string, error) {
	var out submitResponse
	if err := c.do(ctx, http.MethodPost, "/tasks", param, &out); err != nil {
		return "", err
	}
	return strconv.FormatInt(out.JediTaskID, 10), nil
}

type taskStatusResponse struct {
	Status string `json:"status"`
}

func (c *Client) GetTaskStatus(ctx context.Context, workloadID string) (string, error) {
	var out taskStatusResponse
	if err := c.do(ctx, http.MethodGet, "/tasks/"+workloadID+"/status", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) GetTaskDetails(ctx context.Context, workloadID string) (driver.TaskDetails, error) {
	var out driver.TaskDetails
	err := c.do(ctx, http.MethodGet, "/tasks/"+workloadID, nil, &out)
	return out, err
}

func (c *Client) GetJobStatus(ctx context.Context, ids []int64) ([]driver.JobInfo, error) {
	var out []driver.JobInfo
	err := c.do(ctx, http.MethodPost, "/jobs/status", map[string]any{"pandaIDs": ids}, &out)
	return out, err
}

func (c *Client) KillTask(ctx context.Context, workloadID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+workloadID+"/kill", nil, nil)
}

func (c *Client) FinishTask(ctx context.Context, workloadID string, soft bool) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+workloadID+"/finish", map[string]any{"soft": soft}, nil)
}

func (c *Client) RetryTask(ctx context.Context, workloadID string, newParams driver.TaskParam) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+workloadID+"/retry", newParams, nil)
}

func (c *Client) GetJobIDsInTimeRange(ctx context.Context, start int64, taskType string) (map[string]driver.TaskDetails, error) {
	var out map[string]driver.TaskDetails
	path := fmt.Sprintf("/tasks/search?start=%d&type=%s", start, taskType)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

var _ driver.Driver = (*Client)(nil)
