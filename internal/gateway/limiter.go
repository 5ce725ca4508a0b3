package gateway

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// limitedTransport wraps a RoundTripper and allows requests with a maximum rate.
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// NewLimitedTransport creates a rate limited RoundTripper.
// maxRate - maximum number of requests per second; <= 0 means unlimited.
// A nil base uses http.DefaultTransport.
func NewLimitedTransport(base http.RoundTripper, maxRate float64) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	limit := rate.Inf
	if maxRate > 0 {
		limit = rate.Limit(maxRate)
	}
	return &limitedTransport{
		base:    base,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// RoundTrip executes the request. If the limit is exceeded, blocks until the call rate is within limit
// or the request context is done.
func (t *limitedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(r.Context()); err != nil {
		return nil, fmt.Errorf("waiting for request limiter: %w", err)
	}
	return t.base.RoundTrip(r)
}
