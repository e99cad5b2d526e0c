package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// stubHTTPClient serves canned responses and records how often it was hit.
type stubHTTPClient struct {
	status int
	body   []byte
	calls  int
}

func (stub *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	stub.calls++
	status := stub.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(stub.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func newTestClient(t *testing.T, stub *stubHTTPClient, cacheDir string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		CacheDir:   cacheDir,
		CacheTTL:   time.Hour,
		RateLimit:  time.Millisecond,
		HTTPClient: stub,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestFetchReturnsBody(t *testing.T) {
	stub := &stubHTTPClient{body: []byte("<title/>")}
	client := newTestClient(t, stub, "")

	got, err := client.Fetch(context.Background(), "https://example.gov/usc01.xml")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "<title/>" {
		t.Errorf("body = %q, want %q", got, "<title/>")
	}
}

func TestFetchUsesCache(t *testing.T) {
	stub := &stubHTTPClient{body: []byte("<title/>")}
	client := newTestClient(t, stub, t.TempDir())
	ctx := context.Background()

	url := "https://example.gov/usc01.xml"
	for i := 0; i < 3; i++ {
		body, err := client.Fetch(ctx, url)
		if err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
		if string(body) != "<title/>" {
			t.Errorf("Fetch %d: body = %q", i, body)
		}
	}
	if stub.calls != 1 {
		t.Errorf("got %d upstream requests, want 1", stub.calls)
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	stub := &stubHTTPClient{status: http.StatusNotFound}
	client := newTestClient(t, stub, "")

	_, err := client.Fetch(context.Background(), "https://example.gov/missing.xml")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q should mention the status code", err)
	}
}

func TestFetchUnwrapsZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("usc42.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := f.Write([]byte("<uscDoc/>")); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	stub := &stubHTTPClient{body: buf.Bytes()}
	client := newTestClient(t, stub, "")

	got, err := client.Fetch(context.Background(), "https://example.gov/xml_usc42.zip")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "<uscDoc/>" {
		t.Errorf("body = %q, want unwrapped XML", got)
	}
}

func TestUnwrapZipPassthrough(t *testing.T) {
	plain := []byte("<uscDoc>not a zip</uscDoc>")
	got, err := unwrapZip(plain)
	if err != nil {
		t.Fatalf("unwrapZip: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("non-zip payload was modified: %q", got)
	}
}

func TestDiskCacheExpiry(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}

	url := "https://example.gov/usc05.xml"
	doc := Document{URL: url, Body: []byte("<title/>"), RetrievedAt: time.Now()}
	if err := cache.Set(url, doc); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got, ok := cache.Get(url); !ok || string(got.Body) != "<title/>" {
		t.Fatalf("Get before expiry = %v, %v", got, ok)
	}

	time.Sleep(25 * time.Millisecond)
	if _, ok := cache.Get(url); ok {
		t.Error("expired entry still served")
	}
}

func TestDiskCacheMiss(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	if _, ok := cache.Get("https://example.gov/never-stored"); ok {
		t.Error("cache hit for URL that was never stored")
	}
}
