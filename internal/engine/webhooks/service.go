package webhooks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"mosaic/internal/pkg/errors"
	"mosaic/internal/platform/models"
	"mosaic/internal/platform/repositories"
)

// IngestRequest carries everything the ingestion path needs from the
// transport layer.
type IngestRequest struct {
	TenantID  string
	Path      string
	Body      []byte
	Headers   http.Header
	SourceIP  string
	UserAgent string
}

type IngestResult struct {
	EventID         int64  `json:"event_id"`
	EventType       string `json:"event_type"`
	CompanyID       string `json:"company_id,omitempty"`
	AuthValid       bool   `json:"auth_valid"`
	FieldsProcessed int    `json:"fields_processed"`
}

// Service is the ingestion pipeline: resolve configuration, authenticate,
// extract, persist, schedule processing.
type Service struct {
	configs   *repositories.ConfigurationRepository
	events    *repositories.EventRepository
	cache     *ConfigCache
	processor *Processor
}

func NewService(configs *repositories.ConfigurationRepository, events *repositories.EventRepository, cache *ConfigCache, processor *Processor) *Service {
	return &Service{
		configs:   configs,
		events:    events,
		cache:     cache,
		processor: processor,
	}
}

// ResolveConfiguration looks up the endpoint for tenant+path, serving from
// cache when possible.
func (s *Service) ResolveConfiguration(tenantID, path string) (*models.WebhookConfiguration, error) {
	if cfg, ok := s.cache.Get(tenantID, path); ok {
		return cfg, nil
	}

	cfg, err := s.configs.FindByTenantAndPath(tenantID, path)
	if err != nil {
		return nil, err
	}
	s.cache.Set(tenantID, path, cfg)
	return cfg, nil
}

// InvalidateConfigCache is called by the management surface after every
// configuration create or update.
func (s *Service) InvalidateConfigCache(tenantID string) {
	s.cache.InvalidateTenant(tenantID)
}

// Ingest runs one inbound delivery through the pipeline. Errors occurring
// before the event row is durably stored are the caller's to redeliver; no
// event row exists for rejected requests.
func (s *Service) Ingest(req *IngestRequest) (*IngestResult, error) {
	cfg, err := s.ResolveConfiguration(req.TenantID, req.Path)
	if err != nil {
		return nil, err
	}
	if !cfg.Active {
		return nil, fmt.Errorf("%w: endpoint %q", errors.ErrInactive, cfg.EndpointPath)
	}

	authResult := Authenticate(cfg.Auth, req.Headers)
	if cfg.Auth.Method != models.AuthMethodNone && !authResult.Valid {
		return nil, fmt.Errorf("%w: %s", errors.ErrAuthentication, authResult.Reason)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(req.Body, &payload); err != nil || payload == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", errors.ErrMalformedPayload)
	}

	eventType := DetectEventType(payload)
	extracted := ExtractFields(payload, cfg.Fields)

	event := &models.WebhookEvent{
		ConfigurationID:  cfg.ID,
		TenantID:         cfg.TenantID,
		EventType:        eventType,
		ExternalEventID:  DetectExternalEventID(payload),
		CompanyID:        DetectCompanyID(payload),
		SourceIP:         req.SourceIP,
		UserAgent:        req.UserAgent,
		AuthMethod:       cfg.Auth.Method,
		AuthValid:        authResult.Valid,
		Headers:          flattenHeaders(req.Headers),
		Payload:          payload,
		ExtractedFields:  extracted,
		ProcessingStatus: models.StatusPending,
	}

	if err := s.events.Insert(event); err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant_id", event.TenantID).
		Str("configuration_id", cfg.ID).
		Int64("event_id", event.ID).
		Str("event_type", eventType).
		Bool("auth_valid", authResult.Valid).
		Msg("webhook event received")

	if !s.processor.Enqueue(event.TenantID, event.ID) {
		// Left pending; the sweeper re-enqueues it later.
		log.Warn().Int64("event_id", event.ID).Msg("processing queue full, event left pending")
	}

	return &IngestResult{
		EventID:         event.ID,
		EventType:       eventType,
		CompanyID:       event.CompanyID,
		AuthValid:       authResult.Valid,
		FieldsProcessed: len(extracted),
	}, nil
}

func flattenHeaders(h http.Header) map[string]string {
	if h == nil {
		return nil
	}
	flat := make(map[string]string, len(h))
	for key, values := range h {
		flat[key] = strings.Join(values, ", ")
	}
	return flat
}
