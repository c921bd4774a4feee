package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	apiContext "mosaic/internal/api/context"
	"mosaic/internal/platform/auth"
	"mosaic/internal/platform/config"
)

func TestTenantMiddleware(t *testing.T) {
	mid := NewTenantMiddleware()

	var gotTenant *TenantContext
	handler := mid.Handle(func(w http.ResponseWriter, r *http.Request) {
		gotTenant, _ = r.Context().Value(apiContext.Tenant).(*TenantContext)
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name         string
		claims       *auth.Claims
		tenantHeader string
		status       int
	}{
		{"Bound Tenant", &auth.Claims{UserID: "user-1", TenantID: "tenant-a", Role: "admin"}, "", http.StatusOK},
		{"Matching Header", &auth.Claims{UserID: "user-1", TenantID: "tenant-a", Role: "admin"}, "tenant-a", http.StatusOK},
		{"Mismatched Header", &auth.Claims{UserID: "user-1", TenantID: "tenant-a", Role: "admin"}, "tenant-b", http.StatusForbidden},
		{"No Tenant Binding", &auth.Claims{UserID: "user-1"}, "", http.StatusForbidden},
		{"No Claims", nil, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotTenant = nil
			req := httptest.NewRequest("GET", "/api/v1/webhooks/events", nil)
			if tt.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), apiContext.Claims, tt.claims))
			}
			if tt.tenantHeader != "" {
				req.Header.Set("X-Tenant-ID", tt.tenantHeader)
			}
			rec := httptest.NewRecorder()

			handler(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK {
				if gotTenant == nil || gotTenant.TenantID != tt.claims.TenantID || gotTenant.UserID != tt.claims.UserID {
					t.Errorf("Unexpected tenant context: %+v", gotTenant)
				}
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &RateLimiter{}

	for i := 0; i < 3; i++ {
		if !rl.Allow("tenant-a:api_write", 3) {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}
	if rl.Allow("tenant-a:api_write", 3) {
		t.Error("Expected request over the limit to be denied")
	}

	// Other keys have their own bucket.
	if !rl.Allow("tenant-b:api_write", 3) {
		t.Error("Expected other tenant to be unaffected")
	}
}

func TestRateLimiter_IngestKeyedByTenantParam(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{IngestPerMinute: 1})
	handler := rl.Limit("ingest")(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	// Every request arrives from the same reverse-proxy address.
	do := func(tenantID string) int {
		req := httptest.NewRequest("POST", "/hooks/"+tenantID+"/hr-events", nil)
		req.RemoteAddr = "10.0.0.1:4321"
		params := httprouter.Params{{Key: "tenant_id", Value: tenantID}}
		req = req.WithContext(context.WithValue(req.Context(), apiContext.Params, params))
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec.Code
	}

	if code := do("tenant-a"); code != http.StatusAccepted {
		t.Fatalf("Expected first delivery to pass, got %d", code)
	}
	if code := do("tenant-a"); code != http.StatusTooManyRequests {
		t.Errorf("Expected tenant-a to be limited, got %d", code)
	}
	if code := do("tenant-b"); code != http.StatusAccepted {
		t.Errorf("Expected tenant-b to have its own bucket, got %d", code)
	}
}
