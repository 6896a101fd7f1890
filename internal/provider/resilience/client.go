package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client in the registry and the circuit breaker.
	Name string

	// Timeout bounds individual request/response calls. Streams opened
	// with Stream are not bounded by it.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the first call.
	// Zero disables retries.
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Transport overrides the HTTP transport. If nil, http.DefaultTransport is used.
	Transport http.RoundTripper

	// Registry, if set, tracks this client's health.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns sensible defaults for the resilient client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cbConfig,
		Logger:          zerolog.Nop(),
	}
}

// Client is an HTTP client with a circuit breaker, optional retries and
// health reporting to a Registry.
type Client struct {
	httpClient     *http.Client
	streamClient   *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	registry       *Registry
	logger         zerolog.Logger
	config         ClientConfig
}

// NewClient creates a new resilient HTTP client and registers it with
// cfg.Registry when one is given.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	logger := cfg.Logger.With().Str("provider", cfg.Name).Logger()
	if cbConfig.OnStateChange == nil {
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		}
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
		circuitBreaker: NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		registry:       cfg.Registry,
		logger:         logger,
		config:         cfg,
	}

	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes an HTTP request with circuit breaker protection and retry logic.
// The request is retried on transient failures (5xx, network errors) with exponential backoff.
// Returns immediately with ErrCircuitOpen if the circuit breaker is open.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with the given context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // Unlimited, we control retries via WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var (
		lastResp *http.Response
		attempt  int
	)

	operation := func() error {
		attempt++
		reqClone, err := rewind(ctx, req, attempt)
		if err != nil {
			return backoff.Permanent(err)
		}

		// 5xx responses are returned as errors so they count against the breaker.
		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
			r, err := c.httpClient.Do(reqClone)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		// Only the latest response is handed back.
		if lastResp != nil {
			_ = lastResp.Body.Close()
		}
		lastResp = resp

		if err != nil {
			if rejected(err) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			return err
		}
		return nil
	}

	err := backoff.Retry(operation, policy)
	if err != nil {
		// A 5xx that exhausted retries is handed back for the caller to decode.
		if lastResp != nil {
			c.recordFailure(err)
			return lastResp, nil
		}
		c.recordFailure(err)
		return nil, err
	}

	c.recordSuccess()
	return lastResp, nil
}

// Stream opens a long-lived response such as an event stream. It goes
// through the circuit breaker but is never retried and has no overall
// timeout; cancel req's context to end it.
func (c *Client) Stream(req *http.Request) (*http.Response, error) {
	resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
		r, err := c.streamClient.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= 500 {
			return r, &ServerError{StatusCode: r.StatusCode}
		}
		return r, nil
	})
	if err != nil {
		c.recordFailure(err)
		if rejected(err) {
			return nil, ErrCircuitOpen
		}
		if resp != nil {
			return resp, nil
		}
		return nil, err
	}

	c.recordSuccess()
	return resp, nil
}

// rewind clones req for the given attempt, restoring the body on retries.
func rewind(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	clone := req.Clone(ctx)
	if attempt == 1 || req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("%w: request body cannot be replayed", ErrMaxRetriesExceeded)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replay request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	c.logger.Debug().Err(err).Msg("provider request failed")
	if c.registry != nil {
		c.registry.RecordFailure(c.config.Name, err)
	}
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
