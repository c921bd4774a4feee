package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "mosaic/internal/api/context"
	"mosaic/internal/api/middleware"
	"mosaic/internal/engine/webhooks"
	"mosaic/internal/pkg/errors"
	"mosaic/internal/platform/audit"
	"mosaic/internal/platform/models"
	"mosaic/internal/platform/repositories"
)

type ConfigHandler struct {
	configs *repositories.ConfigurationRepository
	service *webhooks.Service
	audit   *audit.Logger
}

func NewConfigHandler(configs *repositories.ConfigurationRepository, service *webhooks.Service, auditLogger *audit.Logger) *ConfigHandler {
	return &ConfigHandler{configs: configs, service: service, audit: auditLogger}
}

func (h *ConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	var req struct {
		Name         string            `json:"name"`
		Description  string            `json:"description"`
		EndpointPath string            `json:"endpoint_path"`
		EventTypes   []string          `json:"event_types"`
		Auth         models.AuthConfig `json:"auth"`
		Fields       []string          `json:"fields"`
		Active       *bool             `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	cfg := &models.WebhookConfiguration{
		TenantID:     tenant.TenantID,
		Name:         req.Name,
		Description:  req.Description,
		EndpointPath: req.EndpointPath,
		EventTypes:   req.EventTypes,
		Auth:         req.Auth,
		Fields:       req.Fields,
		Active:       true,
	}
	if req.Active != nil {
		cfg.Active = *req.Active
	}

	if err := h.configs.Create(cfg); err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	h.service.InvalidateConfigCache(tenant.TenantID)
	h.audit.Log(audit.Entry{
		TenantID:     tenant.TenantID,
		UserID:       tenant.UserID,
		Action:       "webhook_configuration.create",
		ResourceType: "webhook_configuration",
		ResourceID:   cfg.ID,
		IPAddress:    sourceIP(r),
		UserAgent:    r.UserAgent(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(cfg)
}

func (h *ConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	configs, err := h.configs.ListByTenant(tenant.TenantID)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}
	if configs == nil {
		configs = []*models.WebhookConfiguration{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}

func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	configID := params.ByName("config_id")

	var upd repositories.ConfigurationUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	cfg, err := h.configs.Update(tenant.TenantID, configID, &upd)
	if err != nil {
		errors.WriteDomainError(w, err)
		return
	}

	h.service.InvalidateConfigCache(tenant.TenantID)
	h.audit.Log(audit.Entry{
		TenantID:     tenant.TenantID,
		UserID:       tenant.UserID,
		Action:       "webhook_configuration.update",
		ResourceType: "webhook_configuration",
		ResourceID:   cfg.ID,
		IPAddress:    sourceIP(r),
		UserAgent:    r.UserAgent(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}
