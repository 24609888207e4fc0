package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/lox/openkmi/internal/metrics"
)

// maxErrorBody caps how much of a failed response is kept in a StatusError.
const maxErrorBody = 2048

// Config controls how a Requester talks to one remote service.
type Config struct {
	Client    *http.Client
	UserAgent string
	// Service labels metrics and log lines, e.g. "synop" or "alaro".
	Service string
	// MaxRetries is the number of retries after the first attempt.
	// Zero means a single attempt.
	MaxRetries uint64
	// MaxElapsed bounds the total time spent retrying.
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	// Breaker enables a circuit breaker named after Service.
	Breaker bool
	Logger  *log.Logger
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Requester issues GET requests with the configured resilience settings.
type Requester struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

// New creates a Requester, filling in defaults for unset fields.
func New(cfg Config) *Requester {
	if cfg.Client == nil {
		cfg.Client = NewClient(0)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Service == "" {
		cfg.Service = "ows"
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	r := &Requester{cfg: cfg}
	if cfg.Breaker {
		r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Service,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		})
	}
	return r
}

// Service returns the metrics label of this requester.
func (r *Requester) Service() string {
	return r.cfg.Service
}

// Logger returns the configured logger.
func (r *Requester) Logger() *log.Logger {
	return r.cfg.Logger
}

// Get fetches endpoint with params as the query string and returns the body.
func (r *Requester) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	query := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	u.RawQuery = query.Encode()
	requestURL := u.String()
	request := requestName(params)

	var body []byte
	operation := func() error {
		b, err := r.attempt(ctx, requestURL, request)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = r.cfg.MaxElapsed
	if r.cfg.InitialInterval > 0 {
		exp.InitialInterval = r.cfg.InitialInterval
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, r.cfg.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		metrics.OWSRetriesTotal.WithLabelValues(r.cfg.Service, request).Inc()
		r.cfg.Logger.Printf("%s: %s failed, retrying in %s: %v", r.cfg.Service, request, wait.Round(time.Millisecond), err)
	}

	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		r.cfg.Logger.Printf("%s: %s failed: %v", r.cfg.Service, request, err)
		return nil, err
	}
	return body, nil
}

func (r *Requester) attempt(ctx context.Context, requestURL, request string) ([]byte, error) {
	if r.breaker == nil {
		return r.do(ctx, requestURL, request)
	}
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.do(ctx, requestURL, request)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, backoff.Permanent(fmt.Errorf("circuit breaker %s: %w", r.cfg.Service, err))
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (r *Requester) do(ctx context.Context, requestURL, request string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	start := time.Now()
	resp, err := r.cfg.Client.Do(req)
	metrics.OWSRequestLatency.WithLabelValues(r.cfg.Service, request).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OWSRequestsTotal.WithLabelValues(r.cfg.Service, request, "error").Inc()
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", request, err))
		}
		return nil, fmt.Errorf("%s: %w", request, err)
	}
	defer resp.Body.Close()

	metrics.OWSRequestsTotal.WithLabelValues(r.cfg.Service, request, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		if statusErr.Retryable() {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func requestName(params url.Values) string {
	for k, vs := range params {
		if strings.EqualFold(k, "request") && len(vs) > 0 {
			return vs[0]
		}
	}
	return "GET"
}
