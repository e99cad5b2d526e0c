package fetch

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRateLimitSpacesRequests(t *testing.T) {
	stub := &stubHTTPClient{body: []byte("ok")}
	client := NewRateLimitedHTTPClient(stub, 20*time.Millisecond)
	defer client.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, "https://example.gov/a", nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Do %d: %v", i, err)
		}
		resp.Body.Close()
	}

	// Second and third requests each wait one interval.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("three requests took %v, want at least 40ms", elapsed)
	}
	if stub.calls != 3 {
		t.Errorf("got %d upstream calls, want 3", stub.calls)
	}
}

func TestRateLimitHonorsContext(t *testing.T) {
	stub := &stubHTTPClient{body: []byte("ok")}
	client := NewRateLimitedHTTPClient(stub, time.Hour)
	defer client.Close()

	first, err := http.NewRequest(http.MethodGet, "https://example.gov/a", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(first)
	if err != nil {
		t.Fatalf("first Do: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	second, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://example.gov/b", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := client.Do(second); err != context.DeadlineExceeded {
		t.Errorf("second Do err = %v, want context.DeadlineExceeded", err)
	}
	if stub.calls != 1 {
		t.Errorf("cancelled request reached upstream, calls = %d", stub.calls)
	}
}

func TestRateLimitClosedClientSkipsPacing(t *testing.T) {
	stub := &stubHTTPClient{body: []byte("ok")}
	client := NewRateLimitedHTTPClient(stub, time.Hour)
	client.Close()

	req, err := http.NewRequest(http.MethodGet, "https://example.gov/a", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := client.Do(req)
		if err != nil {
			t.Errorf("Do: %v", err)
			return
		}
		resp.Body.Close()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("request on a closed client blocked")
	}
}
