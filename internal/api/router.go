package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "mosaic/internal/api/context"
	"mosaic/internal/api/handlers"
	"mosaic/internal/api/middleware"
	"mosaic/internal/pkg/errors"
)

type Dependencies struct {
	IngestHandler    *handlers.IngestHandler
	ConfigHandler    *handlers.ConfigHandler
	EventHandler     *handlers.EventHandler
	HealthHandler    *handlers.HealthHandler
	AuthMiddleware   *middleware.AuthMiddleware
	TenantMiddleware *middleware.TenantMiddleware
	RateLimiter      *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware
	limiter := deps.RateLimiter

	// Ingestion entry point. Authentication happens per endpoint
	// configuration inside the service, not here.
	router.POST("/hooks/:tenant_id/*endpoint",
		chain(deps.IngestHandler.Handle, limiter.Limit("ingest")))
	router.OPTIONS("/hooks/:tenant_id/*endpoint", wrap(deps.IngestHandler.Preflight))

	// Configuration management
	router.POST("/api/v1/webhooks/configurations",
		chain(deps.ConfigHandler.Create, authMid.Handle, tenantMid.Handle, requireRole("admin", "owner"), limiter.Limit("api_write")))
	router.GET("/api/v1/webhooks/configurations",
		chain(deps.ConfigHandler.List, authMid.Handle, tenantMid.Handle, limiter.Limit("api_read")))
	router.PATCH("/api/v1/webhooks/configurations/:config_id",
		chain(deps.ConfigHandler.Update, authMid.Handle, tenantMid.Handle, requireRole("admin", "owner"), limiter.Limit("api_write")))

	// Event inspection and retry
	router.GET("/api/v1/webhooks/events",
		chain(deps.EventHandler.List, authMid.Handle, tenantMid.Handle, limiter.Limit("api_read")))
	router.GET("/api/v1/webhooks/events/:event_id",
		chain(deps.EventHandler.Get, authMid.Handle, tenantMid.Handle, limiter.Limit("api_read")))
	router.POST("/api/v1/webhooks/events/:event_id/retry",
		chain(deps.EventHandler.Retry, authMid.Handle, tenantMid.Handle, limiter.Limit("api_write")))
	router.GET("/api/v1/webhooks/stats",
		chain(deps.EventHandler.Stats, authMid.Handle, tenantMid.Handle, limiter.Limit("api_read")))

	router.GET("/health", wrap(deps.HealthHandler.Check))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tenant, ok := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
			if !ok {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			for _, role := range roles {
				if tenant.Role == role {
					next(w, r)
					return
				}
			}
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
		}
	}
}
