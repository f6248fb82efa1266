package client

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

	"github.com/google/uuid"
	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/flowwatch/metrics"
	"github.com/project-flogo/flowwatch/state"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout     = 10 * time.Second
	defaultMaxFailures = 5
	defaultOpenTimeout = 30 * time.Second

	HeaderRequestId = "X-Request-Id"
)

// Option configures a Client
type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit caps outbound calls to rps per second with the given burst, rps <= 0 disables the limit
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker opens the circuit after maxFailures consecutive engine failures
// and probes again after openTimeout
func WithBreaker(maxFailures int, openTimeout time.Duration) Option {
	return func(c *Client) {
		c.maxFailures = maxFailures
		c.openTimeout = openTimeout
	}
}

// Client calls the workflow engine REST API
type Client struct {
	baseURL     string
	token       string
	timeout     time.Duration
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[struct{}]
	maxFailures int
	openTimeout time.Duration
	logger      log.Logger
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		timeout:     DefaultTimeout,
		maxFailures: defaultMaxFailures,
		openTimeout: defaultOpenTimeout,
		logger:      log.ChildLogger(log.RootLogger(), "client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "workflow-engine",
		Timeout: c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return c.maxFailures > 0 && counts.ConsecutiveFailures >= uint32(c.maxFailures)
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.RecordBreakerState(int(to))
			c.logger.Warnf("Circuit breaker '%s' changed from %s to %s", name, from.String(), to.String())
		},
	})

	return c
}

// BaseURL returns the engine base url
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartWorkflow starts a new run of the workflow
func (c *Client) StartWorkflow(ctx context.Context, workflowId string, data map[string]interface{}) (*StartResponse, error) {
	if strings.TrimSpace(workflowId) == "" {
		return nil, errors.New("workflow id is required")
	}

	var resp StartResponse
	path := fmt.Sprintf("/workflow/%s/start", url.PathEscape(workflowId))
	if err := c.doJSON(ctx, "start", http.MethodPost, path, &StartRequest{Data: data}, &resp); err != nil {
		return nil, err
	}

	if resp.InstanceId == "" {
		return nil, fmt.Errorf("engine did not return an instance id for workflow '%s'", workflowId)
	}
	if resp.WorkflowId == "" {
		resp.WorkflowId = workflowId
	}

	c.logger.Debugf("Started instance [%s] of workflow [%s]", resp.InstanceId, resp.WorkflowId)
	return &resp, nil
}

// FetchInstance retrieves the current snapshot of a run
func (c *Client) FetchInstance(ctx context.Context, workflowId, instanceId string) (*state.Snapshot, error) {
	if strings.TrimSpace(workflowId) == "" || strings.TrimSpace(instanceId) == "" {
		return nil, errors.New("workflow id and instance id are required")
	}

	var snapshot state.Snapshot
	path := fmt.Sprintf("/workflow/%s/instances/%s", url.PathEscape(workflowId), url.PathEscape(instanceId))
	if err := c.doJSON(ctx, "fetch", http.MethodGet, path, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// SubmitTask sends the user data of a ready task back to the engine
func (c *Client) SubmitTask(ctx context.Context, workflowId, instanceId, taskId string, data map[string]interface{}) error {
	if strings.TrimSpace(taskId) == "" {
		return errors.New("task id is required")
	}
	if data == nil {
		data = make(map[string]interface{})
	}

	var resp SubmitTaskResponse
	path := fmt.Sprintf("/workflow/%s/instances/%s/submit-task", url.PathEscape(workflowId), url.PathEscape(instanceId))
	if err := c.doJSON(ctx, "submit", http.MethodPost, path, &SubmitTaskRequest{Data: data, TaskId: taskId}, &resp); err != nil {
		return err
	}

	if resp.Success != nil && !*resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "rejected by engine"
		}
		return fmt.Errorf("unable to submit task '%s': %s", taskId, msg)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body interface{}, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.do(ctx, method, path, body, out)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordEngineRequest(op, "rejected")
		return ErrBreakerOpen
	case err != nil:
		metrics.RecordEngineRequest(op, "error")
		return err
	}

	metrics.RecordEngineRequest(op, "success")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestId, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response of '%s', %s", path, err.Error())
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error unmarshalling response of '%s', %s", path, err.Error())
	}
	return nil
}

// client side errors and engine 4xx answers don't count against the engine health
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if apiErr := AsAPIError(err); apiErr != nil {
		return apiErr.StatusCode < 500
	}
	return false
}
