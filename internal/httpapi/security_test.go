package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"posdash/internal/domain"
	"posdash/internal/loyverse"
	"posdash/internal/service"
	"posdash/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t, nil)
	body, _ := json.Marshal(domain.LoginRequest{Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}

	// another client is not affected
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.2:5000"
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a different client, got %d", res.Code)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t, nil)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"password":"%s"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	svcAPI := newTestAPI(t, nil)
	api := New(svcAPI.service, svcAPI.auth, "https://dash.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stats", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/stats", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	res = httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS grant for foreign origin, got %q", got)
	}
}

func TestStatusForMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("%w: bad range", service.ErrInvalidInput), want: http.StatusBadRequest},
		{err: store.ErrInvalidRecord, want: http.StatusBadRequest},
		{err: store.ErrNotFound, want: http.StatusNotFound},
		{err: service.ErrSyncInProgress, want: http.StatusConflict},
		{err: service.ErrUpstreamNotConfigured, want: http.StatusServiceUnavailable},
		{err: fmt.Errorf("sync: %w", &loyverse.StatusError{StatusCode: 500}), want: http.StatusBadGateway},
		{err: errors.New("disk full"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}

	if got := syncStatusFor(errors.New("connection reset")); got != http.StatusBadGateway {
		t.Fatalf("expected unclassified sync failure to map to 502, got %d", got)
	}
}

func TestLoginLimiterRefills(t *testing.T) {
	limiter := newLoginLimiter(2, 20*time.Millisecond)

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if limiter.Allow("a") {
		t.Fatal("expected third attempt to be limited")
	}
	time.Sleep(30 * time.Millisecond)
	if !limiter.Allow("a") {
		t.Fatal("expected an attempt after refill")
	}
}
