package kmi

import (
	"log"
	"net/http"
	"time"

	"github.com/lox/openkmi/internal/httputil"
)

// BaseURL is the root of the RMI open data services.
const BaseURL = "https://opendata.meteo.be"

// Option tunes the HTTP transport shared by every client in this module.
type Option func(*httputil.Config)

// WithHTTPClient replaces the default client, which has a 30 second timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *httputil.Config) {
		cfg.Client = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(cfg *httputil.Config) {
		cfg.UserAgent = ua
	}
}

// WithRetries retries transport failures, 429 and 5xx responses up to n
// times with exponential backoff. Requests are not retried by default.
func WithRetries(n uint64, maxElapsed time.Duration) Option {
	return func(cfg *httputil.Config) {
		cfg.MaxRetries = n
		cfg.MaxElapsed = maxElapsed
	}
}

// WithCircuitBreaker guards the service with a circuit breaker.
func WithCircuitBreaker() Option {
	return func(cfg *httputil.Config) {
		cfg.Breaker = true
	}
}

// WithLogger sets the logger used for retries and request failures.
func WithLogger(l *log.Logger) Option {
	return func(cfg *httputil.Config) {
		cfg.Logger = l
	}
}

// NewRequester builds the transport for one service.
func NewRequester(service string, opts ...Option) *httputil.Requester {
	cfg := httputil.Config{Service: service}
	for _, opt := range opts {
		opt(&cfg)
	}
	return httputil.New(cfg)
}
