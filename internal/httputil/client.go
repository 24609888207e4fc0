package httputil

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "openkmi/1.0 (+https://opendata.meteo.be)"

	maxIdleConnsPerHost = 8
)

// NewClient returns an HTTP client for the open data services. A timeout of
// zero or less uses DefaultTimeout. Up to maxIdleConnsPerHost idle
// connections are kept per host, since a forecast fetch issues one request
// per time step against the same endpoint.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = maxIdleConnsPerHost
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
