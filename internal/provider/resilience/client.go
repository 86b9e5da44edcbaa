package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without calling the upstream while its breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Config holds the settings of a resilient upstream client.
type Config struct {
	// Name identifies the upstream in logs, metrics and the health registry.
	Name string

	// Timeout bounds a single HTTP attempt. Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt. Default: 2
	MaxRetries uint64

	// MinBackoff and MaxBackoff bound the exponential retry delay.
	// Defaults: 200ms and 3 seconds
	MinBackoff time.Duration
	MaxBackoff time.Duration

	Breaker BreakerConfig

	// Registry, if set, receives the outcome of every call.
	Registry *Registry

	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// DefaultConfig returns the settings used for the MÁV upstreams.
func DefaultConfig(name string) Config {
	return Config{
		Name:       name,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		MinBackoff: 200 * time.Millisecond,
		MaxBackoff: 3 * time.Second,
	}
}

// Client executes HTTP requests through a circuit breaker with retries.
// Transport errors and 5xx responses are retried; 4xx responses are not.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient creates a resilient client and registers it when a registry is configured.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 3 * time.Second
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		breaker: newBreaker[*http.Response](cfg.Name, cfg.Breaker), //nolint:bodyclose // type param, not response
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(c)
	}
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// State returns the current circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the circuit breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do executes req. A request with a body is only retried when its body can be
// replayed through req.GetBody, which http.NewRequest sets for in-memory readers.
// After the last failed attempt on a 5xx, that response is returned with a nil error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	hasBody := req.Body != nil && req.Body != http.NoBody

	retries := c.cfg.MaxRetries
	if hasBody && req.GetBody == nil {
		retries = 0
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.MinBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)

	var last *http.Response
	first := true

	attempt := func() error {
		if last != nil {
			_ = last.Body.Close()
			last = nil
		}

		try := req.Clone(ctx)
		if hasBody && !first {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(fmt.Errorf("rewinding request body: %w", err))
			}
			try.Body = body
		}
		first = false

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.http.Do(try)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		last = resp
		return err
	}

	err := backoff.Retry(attempt, policy)
	if err != nil && last == nil {
		c.record(err)
		return nil, err
	}
	if last.StatusCode >= http.StatusInternalServerError {
		c.record(&StatusError{StatusCode: last.StatusCode})
	} else {
		c.record(nil)
	}
	return last, nil
}

// PostJSON posts in as JSON to url and decodes a 2xx response into out.
// out may be nil when the response body is not needed.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) record(err error) {
	if c.cfg.Registry == nil {
		return
	}
	if err != nil {
		c.cfg.Registry.RecordFailure(c.cfg.Name, err)
		return
	}
	c.cfg.Registry.RecordSuccess(c.cfg.Name)
}

// StatusError is an unexpected HTTP status from an upstream.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the status is worth retrying later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}
