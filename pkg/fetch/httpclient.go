package fetch

import (
	"net/http"
	"sync"
	"time"
)

// HTTPClient matches the Do method of *http.Client so tests and callers
// can inject stub transports.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultRequestInterval is the default minimum spacing between HTTP
// requests, chosen to stay polite to uscode.house.gov.
const DefaultRequestInterval = 1 * time.Second

// RateLimitedHTTPClient spaces requests at least one interval apart. The
// first request is sent immediately; later requests wait for their slot.
// Waiting respects the request's context.
type RateLimitedHTTPClient struct {
	underlying HTTPClient
	interval   time.Duration

	mu       sync.Mutex
	nextSlot time.Time
	closed   bool
}

// NewRateLimitedHTTPClient wraps underlying so that successive requests
// are separated by at least interval.
func NewRateLimitedHTTPClient(underlying HTTPClient, interval time.Duration) *RateLimitedHTTPClient {
	return &RateLimitedHTTPClient{underlying: underlying, interval: interval}
}

// Do claims the next send slot, sleeps until it arrives, and forwards the
// request. A request whose context expires while waiting returns the
// context's error without hitting the network.
func (client *RateLimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	wait := client.claimSlot()
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return client.underlying.Do(req)
}

// claimSlot reserves the next send time and returns how long the caller
// must wait for it. A closed client stops pacing.
func (client *RateLimitedHTTPClient) claimSlot() time.Duration {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.closed {
		return 0
	}
	now := time.Now()
	wait := client.nextSlot.Sub(now)
	if wait < 0 {
		wait = 0
	}
	client.nextSlot = now.Add(wait + client.interval)
	return wait
}

// Close disables pacing for any requests still in flight.
func (client *RateLimitedHTTPClient) Close() {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.closed = true
}
