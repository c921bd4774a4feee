package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	apiContext "mosaic/internal/api/context"
	"mosaic/internal/api/middleware"
	"mosaic/internal/engine/webhooks"
	"mosaic/internal/pkg/errors"
	"mosaic/internal/platform/audit"
	"mosaic/internal/platform/models"
	"mosaic/internal/platform/repositories"
)

type EventHandler struct {
	events    *repositories.EventRepository
	processor *webhooks.Processor
	audit     *audit.Logger
}

func NewEventHandler(events *repositories.EventRepository, processor *webhooks.Processor, auditLogger *audit.Logger) *EventHandler {
	return &EventHandler{events: events, processor: processor, audit: auditLogger}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	q := r.URL.Query()

	filter := repositories.EventFilter{
		ConfigurationID: q.Get("configuration_id"),
		EventType:       q.Get("event_type"),
		Status:          models.ProcessingStatus(q.Get("status")),
	}
	if raw := q.Get("auth_valid"); raw != "" {
		if valid, err := strconv.ParseBool(raw); err == nil {
			filter.AuthValid = &valid
		}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	events, total, err := h.events.List(tenant.TenantID, filter, limit, offset)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	if events == nil {
		events = []*models.WebhookEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Events []*models.WebhookEvent `json:"events"`
		Total  int                    `json:"total"`
		Page   int                    `json:"page"`
		Limit  int                    `json:"limit"`
	}{events, total, page, limit})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	eventID, ok := eventIDParam(r)
	if !ok {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Resource not found", nil)
		return
	}

	event, err := h.events.Get(tenant.TenantID, eventID)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(event)
}

// Retry resets a failed event to pending and hands it straight back to the
// processing pool.
func (h *EventHandler) Retry(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	eventID, ok := eventIDParam(r)
	if !ok {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Resource not found", nil)
		return
	}

	if err := h.events.Retry(tenant.TenantID, eventID); err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	h.processor.Enqueue(tenant.TenantID, eventID)

	h.audit.Log(audit.Entry{
		TenantID:     tenant.TenantID,
		UserID:       tenant.UserID,
		Action:       "webhook_event.retry",
		ResourceType: "webhook_event",
		ResourceID:   strconv.FormatInt(eventID, 10),
		IPAddress:    sourceIP(r),
		UserAgent:    r.UserAgent(),
	})

	event, err := h.events.Get(tenant.TenantID, eventID)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(event)
}

func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	stats, err := h.events.Stats(tenant.TenantID, r.URL.Query().Get("configuration_id"))
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func eventIDParam(r *http.Request) (int64, bool) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id, err := strconv.ParseInt(params.ByName("event_id"), 10, 64)
	return id, err == nil
}
