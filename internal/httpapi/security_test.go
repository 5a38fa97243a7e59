package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tirepos/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
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
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{UserID: "admin", Password: "wrong-pass"})

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
}

func TestUnlockRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	token := ownerToken(t, api, "250001", "250001-01", false)

	for i := 0; i < 6; i++ {
		res := call(t, api, http.MethodPost, "/api/v1/session/unlock", token, domain.UnlockRequest{Password: "0000"})
		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"user_id":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestMutationWithoutCSRFTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	token := ownerToken(t, api, "250001", "250001-01", false)

	body, _ := json.Marshal(domain.SaleCreateRequest{
		Items: []domain.SaleItem{{ProductID: "P-1001", Quantity: 1}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", res.Code)
	}
}

func TestMissingBearerTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	res := call(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	res = call(t, api, http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", res.Code)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	api := newTestAPI(t)
	call(t, api, http.MethodGet, "/healthz", "", nil)

	res := call(t, api, http.MethodGet, "/metrics", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", res.Code)
	}
	raw, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(raw), `tirepos_http_requests_total{code="200",method="GET"}`) {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestAttemptLimiterEvictsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	limiter := newAttemptLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		limiter.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	if !limiter.Allow("10.0.0.1") || limiter.Allow("10.0.0.1") {
		t.Fatalf("expected the third attempt in the window to be limited")
	}

	now = now.Add(2 * time.Minute)
	if !limiter.Allow("198.51.100.7") {
		t.Fatalf("expected a fresh key to be allowed")
	}
	if got := len(limiter.entries); got != 1 {
		t.Fatalf("expected idle keys to be evicted, %d keys left", got)
	}
	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected an evicted key to start over")
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

// fetchCSRFToken calls the CSRF token endpoint and returns the token string.
func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("csrf-token endpoint returned status %d", res.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode csrf-token response failed: %v", err)
	}
	tok := payload["csrf_token"]
	if strings.TrimSpace(tok) == "" {
		t.Fatalf("expected non-empty csrf_token in response")
	}
	return tok
}
