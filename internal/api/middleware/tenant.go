package middleware

import (
	"context"
	"net/http"

	apiContext "mosaic/internal/api/context"
	"mosaic/internal/pkg/errors"
	"mosaic/internal/platform/auth"
)

// TenantContext is the tenant binding for one management request. Every
// downstream repository call is scoped by this id.
type TenantContext struct {
	TenantID string
	UserID   string
	Role     string
}

type TenantMiddleware struct{}

func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		if claims.TenantID == "" {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Token carries no tenant binding", nil)
			return
		}

		// A mismatched X-Tenant-ID header is rejected rather than trusted;
		// the token is the authority on tenant identity.
		if header := r.Header.Get("X-Tenant-ID"); header != "" && header != claims.TenantID {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Tenant header does not match token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, &TenantContext{
			TenantID: claims.TenantID,
			UserID:   claims.UserID,
			Role:     claims.Role,
		})

		next(w, r.WithContext(ctx))
	}
}
