package handlers

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	apiContext "mosaic/internal/api/context"
	"mosaic/internal/engine/webhooks"
	"mosaic/internal/pkg/errors"
	"mosaic/internal/platform/config"
)

// maxBodyBytes caps inbound webhook payloads at 1 MiB.
const maxBodyBytes = 1 << 20

// IngestHandler is the only externally reachable webhook entry point.
type IngestHandler struct {
	service *webhooks.Service
	cors    config.CORSConfig
}

func NewIngestHandler(service *webhooks.Service, cors config.CORSConfig) *IngestHandler {
	return &IngestHandler{service: service, cors: cors}
}

func (h *IngestHandler) Handle(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	tenantID := params.ByName("tenant_id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unable to read request body", nil)
		return
	}

	result, err := h.service.Ingest(&webhooks.IngestRequest{
		TenantID:  tenantID,
		Path:      params.ByName("endpoint"),
		Body:      body,
		Headers:   r.Header,
		SourceIP:  sourceIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(result)
}

// Preflight answers OPTIONS without authentication and without creating an
// event.
func (h *IngestHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	origin := "*"
	if len(h.cors.AllowedOrigins) > 0 {
		origin = strings.Join(h.cors.AllowedOrigins, ", ")
	}
	headers := "Authorization, Content-Type, X-Tenant-ID"
	if len(h.cors.AllowedHeaders) > 0 {
		headers = strings.Join(h.cors.AllowedHeaders, ", ")
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", headers)
	w.Header().Set("Allow", "POST, OPTIONS")
	w.WriteHeader(http.StatusNoContent)
}

func sourceIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
