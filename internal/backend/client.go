package backend

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

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/greenpath/greenpath/internal/provider/resilience"
)

const (
	// ProviderName identifies the backend in the provider registry.
	ProviderName = "greenpath-backend"

	// DefaultBaseURL is the backend address of a local development setup.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultTimeout bounds request/response calls. Progress streams are not bounded.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 * 1024
)

// Transport executes backend requests. *resilience.Client implements it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
	Stream(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// Transport executes requests (optional).
	// If nil, uses a resilient client without retries.
	Transport Transport

	// Timeout is the request timeout (optional, defaults to 30s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Tracer for client spans (optional, defaults to the global provider).
	Tracer trace.Tracer

	Logger zerolog.Logger
}

// Client is a GreenPath backend API client.
type Client struct {
	baseURL   string
	transport Transport
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		// Calls are not idempotent (load starts a job), so failures surface once.
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = 0
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		transport = resilience.NewClient(clientCfg)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/greenpath/greenpath/internal/backend")
	}

	return &Client{
		baseURL:   baseURL,
		transport: transport,
		tracer:    tracer,
		logger:    cfg.Logger,
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetCities lists the cities the backend can analyse.
func (c *Client) GetCities(ctx context.Context) ([]City, error) {
	var resp citiesResponse
	if err := c.call(ctx, "get cities", http.MethodGet, "/cities", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Cities == nil {
		resp.Cities = []City{}
	}
	return resp.Cities, nil
}

// GetCityData fetches the hexagon dataset of a city. It fails with
// ErrDataNotLoaded when the dataset has not been computed yet.
func (c *Client) GetCityData(ctx context.Context, city string) (*CityData, error) {
	var data CityData
	path := "/city/" + url.PathEscape(city) + "/data"
	if err := c.call(ctx, "get city data", http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// StartLoad asks the backend to compute a city dataset and returns the
// operation ID to follow with StreamProgress. It is never retried.
func (c *Client) StartLoad(ctx context.Context, city string) (string, error) {
	var resp startLoadResponse
	path := "/city/" + url.PathEscape(city) + "/load"
	if err := c.call(ctx, "start load", http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.OperationID == "" {
		return "", &Error{Op: "start load", Message: "response has no operation_id", Err: ErrBadResponse}
	}

	c.logger.Debug().Str("city", city).Str("operation_id", resp.OperationID).Msg("city load started")
	return resp.OperationID, nil
}

// StreamProgress opens the progress stream of an operation. The stream
// ends when ctx is cancelled or the stream is closed.
func (c *Client) StreamProgress(ctx context.Context, operationID string) (*Stream, error) {
	const op = "stream progress"

	ctx, span := c.tracer.Start(ctx, "backend.StreamProgress",
		trace.WithAttributes(attribute.String("operation.id", operationID)))
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodGet, "/progress/"+url.PathEscape(operationID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.transport.Stream(req)
	if err != nil {
		return nil, c.transportError(span, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.responseError(span, op, resp)
	}

	return NewStream(resp.Body), nil
}

// CompareRoutes computes the fast and the cool route between two points.
func (c *Client) CompareRoutes(ctx context.Context, req CompareRequest) (*RouteComparison, error) {
	var cmp RouteComparison
	if err := c.call(ctx, "compare routes", http.MethodPost, "/routes/compare", req, &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

// HealthCheck returns nil when the backend reports itself healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.call(ctx, "health check", http.MethodGet, "/health", nil, nil)
}

// WaitHealthy polls HealthCheck with exponential backoff until it succeeds,
// maxWait elapses or ctx is done.
func (c *Client) WaitHealthy(ctx context.Context, maxWait time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = maxWait

	return backoff.RetryNotify(func() error {
		err := c.HealthCheck(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		c.logger.Debug().Err(err).Dur("retry_in", next).Msg("backend not healthy yet")
	})
}

// call performs a JSON request/response round trip. out may be nil.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	ctx, span := c.tracer.Start(ctx, "backend."+strings.ReplaceAll(op, " ", "_"),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", "/api"+path),
		))
	defer span.End()

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("method", method).Str("path", path).Msg("calling backend")

	resp, err := c.transport.Do(req)
	if err != nil {
		return c.transportError(span, op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.responseError(span, op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode response")
		return &Error{Op: op, Status: resp.StatusCode, Message: "invalid response body", Err: ErrBadResponse, Cause: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) transportError(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "transport")

	message := "failed to reach backend"
	if errors.Is(err, resilience.ErrCircuitOpen) {
		message = "backend circuit is open"
	}
	return &Error{Op: op, Message: message, Err: ErrUnavailable, Cause: err}
}

// responseError decodes a non-2xx response into an *Error.
func (c *Client) responseError(span trace.Span, op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorResponse
	_ = json.Unmarshal(raw, &body)

	message := body.Error
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	err := &Error{
		Op:      op,
		Status:  resp.StatusCode,
		Code:    body.Code,
		Message: message,
		Err:     classify(resp.StatusCode, body),
	}
	if !errors.Is(err, ErrDataNotLoaded) {
		span.SetStatus(codes.Error, message)
	}

	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Str("code", body.Code).
		Str("message", message).
		Msg("backend returned error")
	return err
}
