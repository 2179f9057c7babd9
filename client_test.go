package discourse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheableFetchAvoidsSecondCall(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"value":42}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	defer client.Close()

	for i := 0; i < 3; i++ {
		body, err := client.Fetch(context.Background(), "/cached", FetchOptions{Cacheable: true})
		if err != nil {
			t.Fatalf("Fetch() #%d error: %v", i, err)
		}
		if string(body) != `{"value":42}` {
			t.Errorf("Fetch() #%d body = %s", i, body)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hit %d times, want 1 (cache serves repeats)", got)
	}
}

func TestNonCacheableFetchAlwaysCalls(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), "/live", FetchOptions{}); err != nil {
			t.Fatalf("Fetch() error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestEmptyBodyYieldsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	defer client.Close()

	body, err := client.Fetch(context.Background(), "/empty", FetchOptions{Method: http.MethodDelete})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if body != nil {
		t.Errorf("body = %q, want nil for empty response", body)
	}
}

func TestInvalidJSONBodyIsValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	defer client.Close()

	_, err := client.Fetch(context.Background(), "/html", FetchOptions{})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeValidation {
		t.Fatalf("error = %v, want Validation error for non-JSON body", err)
	}
}

func TestAuthHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL, WithAPIKey("admin-key", "system"))
	defer client.Close()

	if _, err := client.Fetch(context.Background(), "/a", FetchOptions{}); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	h := <-headers
	if h.Get("Api-Key") != "admin-key" || h.Get("Api-Username") != "system" {
		t.Errorf("default headers = Api-Key=%q Api-Username=%q", h.Get("Api-Key"), h.Get("Api-Username"))
	}

	if _, err := client.Fetch(context.Background(), "/b", FetchOptions{AsUser: "alice"}); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	h = <-headers
	if h.Get("Api-Username") != "alice" {
		t.Errorf("AsUser header = %q, want alice", h.Get("Api-Username"))
	}

	if _, err := client.Fetch(context.Background(), "/c", FetchOptions{UserAPIKey: "user-key"}); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	h = <-headers
	if h.Get("User-Api-Key") != "user-key" {
		t.Errorf("User-Api-Key header = %q, want user-key", h.Get("User-Api-Key"))
	}
	if h.Get("Api-Key") != "" {
		t.Errorf("Api-Key = %q, want unset when a user key overrides", h.Get("Api-Key"))
	}
}

func TestRateLimitTimeoutDuringAdmission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// 1 request per 10s with burst 1: the second call cannot be admitted
	// before the context deadline.
	client, _ := newTestClient(server.URL, WithRateLimit(0.1, 1))
	defer client.Close()

	if _, err := client.Fetch(context.Background(), "/first", FetchOptions{}); err != nil {
		t.Fatalf("first Fetch() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Fetch(ctx, "/second", FetchOptions{})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeRateLimitTimeout {
		t.Fatalf("error = %v, want RateLimitTimeout", err)
	}
}

func TestInvalidConfigurationFailsFast(t *testing.T) {
	client := New("", WithMaxRetries(-1))
	defer client.Close()

	if client.IsValid() {
		t.Fatal("IsValid() = true for empty baseURL and negative retries")
	}
	_, err := client.Fetch(context.Background(), "/x", FetchOptions{})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeValidation {
		t.Fatalf("Fetch() error = %v, want Validation", err)
	}
	if client.ValidationError() == nil {
		t.Error("ValidationError() = nil, want the construction error")
	}
}

func TestConcurrentCacheableReadsCoalesce(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte(`{"shared":true}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	defer client.Close()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Fetch(context.Background(), "/shared", FetchOptions{Cacheable: true})
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d error: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hit %d times, want 1 (coalesced)", got)
	}
}

func TestCoalescedWaiterHonorsOwnDeadline(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte(`{"slow":true}`))
	}))
	defer server.Close()
	defer close(release)

	client, _ := newTestClient(server.URL)
	defer client.Close()

	ownerDone := make(chan error, 1)
	go func() {
		_, err := client.Fetch(context.Background(), "/slow", FetchOptions{Cacheable: true})
		ownerDone <- err
	}()
	for atomic.LoadInt32(&hits) == 0 {
		time.Sleep(5 * time.Millisecond) // owner reaches upstream
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := client.Fetch(ctx, "/slow", FetchOptions{Cacheable: true})
	waited := time.Since(start)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeRateLimitTimeout {
		t.Fatalf("waiter error = %v, want RateLimitTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is(err, context.DeadlineExceeded) = false")
	}
	if waited > 2*time.Second {
		t.Errorf("waiter suspended %v past its 50ms deadline", waited)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hit %d times, want 1 (still coalesced)", got)
	}
}

func TestCacheHitNotCountedAsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":1}`))
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)
	client, _ := newTestClient(server.URL, WithMetricsCollector(mc))
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), "/counted", FetchOptions{Cacheable: true}); err != nil {
			t.Fatalf("Fetch() #%d error: %v", i, err)
		}
	}

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "/counted")); got != 1 {
		t.Errorf("requestsTotal = %v, want 1 (cache hits are not upstream requests)", got)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("GET", "/counted")); got != 2 {
		t.Errorf("cacheHits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("GET", "/counted")); got != 1 {
		t.Errorf("cacheMisses = %v, want 1", got)
	}
}

func TestFetchAsDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"id":7,"username":"alice","trust_level":2}}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	defer client.Close()

	resp, err := FetchAs[userResponse](context.Background(), client, "/decode", FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAs() error: %v", err)
	}
	if resp.User.ID != 7 || resp.User.Username != "alice" || resp.User.TrustLevel != 2 {
		t.Errorf("decoded user = %+v", resp.User)
	}
}

func TestCircuitBreakerOpensAndRefuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rc := &recordCollector{}
	client := New(server.URL,
		WithRateLimit(1000, 1000),
		WithInitialBackoff(time.Millisecond),
		WithMaxBackoff(2*time.Millisecond),
		WithJitter(0),
		WithMaxRetries(0),
		WithNonceSweepInterval(time.Hour),
		WithRecordSink(rc.sink()),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 2,
			RecoveryTimeout:  time.Hour,
			SuccessThreshold: 1,
		}),
	)
	defer client.Close()

	// Two failures trip the breaker.
	for i := 0; i < 2; i++ {
		if _, err := client.Fetch(context.Background(), "/down", FetchOptions{}); err == nil {
			t.Fatalf("Fetch() #%d succeeded, want 500 failure", i)
		}
	}

	_, err := client.Fetch(context.Background(), "/down", FetchOptions{})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeCircuitOpen {
		t.Fatalf("error = %v, want CircuitOpen once tripped", err)
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Error("errors.Is(err, ErrCircuitOpen) = false")
	}
}
