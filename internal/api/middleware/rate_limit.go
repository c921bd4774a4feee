package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	apiContext "mosaic/internal/api/context"
	"mosaic/internal/pkg/errors"
	"mosaic/internal/platform/config"
)

// RateLimiter is a per-key token bucket. It is constructed and injected
// explicitly so tests can build their own instance.
type RateLimiter struct {
	store  sync.Map // map[string]*bucket
	limits config.RateLimitConfig
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
	mu         sync.Mutex
}

func NewRateLimiter(limits config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{limits: limits}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.store.Range(func(key, value interface{}) bool {
			b := value.(*bucket)
			b.mu.Lock()
			if now.Sub(b.lastAccess) > 10*time.Minute {
				rl.store.Delete(key)
			}
			b.mu.Unlock()
			return true
		})
	}
}

// Allow consumes one token from the bucket for key, refilling at
// limit-per-minute.
func (rl *RateLimiter) Allow(key string, limit int) bool {
	now := time.Now()

	val, _ := rl.store.LoadOrStore(key, &bucket{
		tokens:     limit,
		lastRefill: now,
		lastAccess: now,
	})

	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastAccess = now

	elapsed := now.Sub(b.lastRefill)
	refillRate := float64(limit) / 60.0
	refillTokens := int(elapsed.Seconds() * refillRate)

	if refillTokens > 0 {
		if b.tokens+refillTokens > limit {
			b.tokens = limit
		} else {
			b.tokens += refillTokens
		}
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) limitFor(limitType string) int {
	switch limitType {
	case "ingest":
		if rl.limits.IngestPerMinute > 0 {
			return rl.limits.IngestPerMinute
		}
		return 1000
	case "api_write":
		if rl.limits.APIWritePerMinute > 0 {
			return rl.limits.APIWritePerMinute
		}
		return 100
	default:
		if rl.limits.APIReadPerMinute > 0 {
			return rl.limits.APIReadPerMinute
		}
		return 1000
	}
}

// Limit keys buckets by tenant when one can be identified, otherwise by
// remote address. The ingestion route has no token-derived tenant binding,
// so its tenant comes from the route parameter.
func (rl *RateLimiter) Limit(limitType string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:%s", rl.bucketOwner(r), limitType)

			if !rl.Allow(key, rl.limitFor(limitType)) {
				w.Header().Set("Retry-After", "60")
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}

func (rl *RateLimiter) bucketOwner(r *http.Request) string {
	if tenant, ok := r.Context().Value(apiContext.Tenant).(*TenantContext); ok && tenant != nil {
		return tenant.TenantID
	}
	if params, ok := r.Context().Value(apiContext.Params).(httprouter.Params); ok {
		if tenantID := params.ByName("tenant_id"); tenantID != "" {
			return tenantID
		}
	}
	return r.RemoteAddr
}
