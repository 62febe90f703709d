package httpds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient_Defaults verifies that zero values get defaults and that
// retries are off unless requested.
func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	if c.httpClient.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v; want 30s", c.httpClient.Timeout)
	}
	if c.maxRetries != 0 {
		t.Fatalf("maxRetries = %d; want 0", c.maxRetries)
	}
	if c.initialBackoff <= 0 || c.maxBackoff <= 0 {
		t.Fatalf("backoff defaults not applied: %v / %v", c.initialBackoff, c.maxBackoff)
	}
	if c.httpClient.Transport != http.DefaultTransport {
		t.Fatalf("transport = %T; want http.DefaultTransport", c.httpClient.Transport)
	}
}

func TestDo_NoRetryByDefault(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "quota", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{})
	_, err := c.Get(context.Background(), srv.URL, nil)

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("err = %v; want StatusError 503", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("hits = %d; want 1", got)
	}
}

// TestDo_RetryOn5xxThenSuccess verifies retries and the backoff sequence.
func TestDo_RetryOn5xxThenSuccess(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     15 * time.Millisecond,
	})
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("hits = %d; want 3", got)
	}
	want := []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}
	if !reflect.DeepEqual(sleeps, want) {
		t.Fatalf("sleeps = %v; want %v", sleeps, want)
	}
}

func TestDo_NonRetryableStatusReturnsResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 2})
	c.sleep = func(context.Context, time.Duration) error { t.Fatal("unexpected retry"); return nil }

	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", resp.StatusCode)
	}
}

func TestDo_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(Config{})
	if _, err := c.Get(ctx, "http://127.0.0.1:1", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
}

func TestDo_Validation(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	if _, err := c.Do(context.Background(), "", "http://x", nil); err == nil {
		t.Fatal("empty method: want error")
	}
	if _, err := c.Do(context.Background(), http.MethodGet, "", nil); err == nil {
		t.Fatal("empty url: want error")
	}
}

func TestGetBytes_QueryHeadersAndRedaction(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotHeader = r.Header.Get("X-Test")
		if r.URL.Query().Get("fail") == "1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseHeaders: http.Header{"X-Test": []string{"base"}}})

	body, err := c.GetBytes(context.Background(), srv.URL+"/videos", url.Values{"id": {"a,b"}}, nil)
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("body = %q", body)
	}
	if gotQuery.Get("id") != "a,b" || gotHeader != "base" {
		t.Fatalf("query = %v header = %q", gotQuery, gotHeader)
	}

	_, err = c.GetBytes(context.Background(), srv.URL, url.Values{"fail": {"1"}, "key": {"secret"}}, http.Header{"X-Test": []string{"override"}})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("err = %v; want StatusError 403", err)
	}
	if strings.Contains(se.Error(), "secret") {
		t.Fatalf("api key leaked into error: %v", se)
	}
	if gotHeader != "override" {
		t.Fatalf("per-request header did not override: %q", gotHeader)
	}
}

// TestGetBytes_TransportErrorRedactsKey verifies that a failed dial does not
// echo the api key back through the *url.Error.
func TestGetBytes_TransportErrorRedactsKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(Config{Timeout: 2 * time.Second})
	_, err := c.GetBytes(context.Background(), base+"/videos", url.Values{"key": {"SECRET123"}, "id": {"v1"}}, nil)
	if err == nil {
		t.Fatal("expected a transport error from a closed server")
	}
	var ue *url.Error
	if !errors.As(err, &ue) {
		t.Fatalf("err = %T %v; want *url.Error", err, err)
	}
	if strings.Contains(err.Error(), "SECRET123") {
		t.Fatalf("api key leaked into error: %v", err)
	}
	if !strings.Contains(ue.URL, "key=REDACTED") {
		t.Fatalf("url = %q; want redacted key", ue.URL)
	}
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		if got := backoffDuration(100*time.Millisecond, tt.attempt, time.Second); got != tt.want {
			t.Fatalf("backoffDuration(attempt=%d) = %v; want %v", tt.attempt, got, tt.want)
		}
	}
}
