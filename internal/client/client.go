package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/channel"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/shmbridge/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// UserAgent is sent with every request
const UserAgent = "shmbridge-client/1.0"

var (
	// ErrToolNotFound is matched when the bridge answers 404.
	ErrToolNotFound = errors.New("tool not found")
	// ErrBadRequest is matched when the bridge rejects the request body.
	ErrBadRequest = errors.New("bad request")
	// ErrServer is matched by any other 5xx answer.
	ErrServer = errors.New("server error")
)

// StatusError is returned for non-2xx answers. It matches ErrToolNotFound,
// ErrBadRequest, ErrServer and, for a retries_exhausted body,
// resilience.ErrRetriesExhausted.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bridge returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("bridge returned %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrToolNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrServer:
		return e.StatusCode >= http.StatusInternalServerError
	case resilience.ErrRetriesExhausted:
		return e.Code == "retries_exhausted"
	}
	return false
}

// Config configures a Client
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RetryMax bounds transport-level retries on connection errors and 502-504
	RetryMax int
	// RateLimit is requests per second; zero means unlimited
	RateLimit float64
}

// DefaultConfig returns a config for a bridge on localhost:8000
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8000",
		Timeout:  30 * time.Second,
		RetryMax: 3,
	}
}

// Client calls the bridge HTTP API
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	mu      sync.RWMutex
}

// New creates a client for cfg.BaseURL with retries, rate limiting and a
// circuit breaker.
func New(cfg Config) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry

	restyClient := resty.New()
	restyClient.
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", UserAgent).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetJSONUnmarshaler(sonic.ConfigStd.Unmarshal)

	// Retries happen in the transport; resty's own retry stays off
	restyClient.SetTransport(&retryablehttp.RoundTripper{Client: retryClient})

	breaker := resilience.NewBreaker("shmbridge-api", resilience.BreakerSettings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// The bridge answered; only an unreachable or failing server trips
			return errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrBadRequest)
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
	}
}

// checkRetry retries connection errors and gateway failures. A 500 from the
// bridge is a final answer: the mailbox already retried server side.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// BreakerState returns the circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// SetHeader adds a default header
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resty.SetHeader(key, value)
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resty.R().SetContext(ctx), nil
}

// Execute runs a tool on the bridge. A 200 answer returns the Result with a
// nil error whether or not the tool succeeded. 404 and 5xx answers return the
// decoded Result together with a *StatusError.
func (c *Client) Execute(ctx context.Context, toolID string, params map[string]interface{}) (*types.Result, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (*types.Result, error) {
		req, err := c.request(ctx)
		if err != nil {
			return nil, err
		}

		var res types.Result
		resp, err := req.
			SetBody(types.ExecuteRequest{ToolID: toolID, Params: params}).
			SetResult(&res).
			SetError(&res).
			Post("/services/execute")
		if err != nil {
			return nil, fmt.Errorf("execute %s: %w", toolID, err)
		}
		if resp.IsError() {
			return &res, statusError(resp, &res)
		}
		return &res, nil
	})
}

// ServiceList is the body of GET /services
type ServiceList struct {
	Services []types.Service       `json:"services"`
	Stats    map[string]interface{} `json:"stats"`
}

// Services lists the registered services
func (c *Client) Services(ctx context.Context) (*ServiceList, error) {
	var out ServiceList
	if err := c.get(ctx, "/services", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health is the body of GET /health
type Health struct {
	Status          string                 `json:"status"`
	ServiceRegistry map[string]interface{} `json:"service_registry"`
	Segment         channel.Info           `json:"segment"`
	Metrics         *monitoring.Snapshot   `json:"metrics,omitempty"`
}

// Health fetches the bridge health report
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		req, err := c.request(ctx)
		if err != nil {
			return err
		}

		var failed types.Result
		resp, err := req.SetResult(out).SetError(&failed).Get(path)
		if err != nil {
			return fmt.Errorf("get %s: %w", path, err)
		}
		if resp.IsError() {
			return statusError(resp, &failed)
		}
		return nil
	})
}

func statusError(resp *resty.Response, res *types.Result) error {
	e := &StatusError{StatusCode: resp.StatusCode(), Code: res.Code}
	switch {
	case res.Error != nil:
		e.Message = *res.Error
	default:
		e.Message = http.StatusText(resp.StatusCode())
	}
	return e
}
