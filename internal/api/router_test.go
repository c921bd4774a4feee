package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	_ "github.com/mattn/go-sqlite3"
	"mosaic/internal/api/handlers"
	"mosaic/internal/api/middleware"
	"mosaic/internal/engine/webhooks"
	"mosaic/internal/platform/audit"
	"mosaic/internal/platform/auth"
	"mosaic/internal/platform/config"
	"mosaic/internal/platform/models"
	"mosaic/internal/platform/repositories"
)

const apiTestSchema = `
CREATE TABLE webhook_configurations (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	endpoint_path TEXT NOT NULL,
	event_types TEXT,
	auth_config TEXT NOT NULL,
	field_list TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(tenant_id, endpoint_path)
);
CREATE TABLE webhook_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	configuration_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	event_type TEXT,
	external_event_id TEXT,
	company_id TEXT,
	source_ip TEXT,
	user_agent TEXT,
	auth_method TEXT,
	auth_valid INTEGER NOT NULL DEFAULT 0,
	headers TEXT,
	payload TEXT,
	extracted_fields TEXT,
	processing_status TEXT NOT NULL DEFAULT 'pending',
	processing_attempts INTEGER NOT NULL DEFAULT 0,
	processing_started_at INTEGER,
	processing_completed_at INTEGER,
	processing_error TEXT,
	received_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE audit_logs (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT,
	action TEXT NOT NULL,
	resource_type TEXT,
	resource_id TEXT,
	metadata TEXT,
	ip_address TEXT,
	user_agent TEXT,
	created_at INTEGER NOT NULL
);
`

type apiTestServer struct {
	router *httprouter.Router
	events *repositories.EventRepository
	token  string
}

// setupAPITest assembles the router the same way cmd/server does, against an
// in-memory database. The processor is not started so events stay pending.
func setupAPITest(t *testing.T) *apiTestServer {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(apiTestSchema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	configs := repositories.NewConfigurationRepository(db)
	events := repositories.NewEventRepository(db)
	cache := webhooks.NewConfigCache(time.Minute)
	processor := webhooks.NewProcessor(events, configs, nil, config.WebhooksConfig{QueueSize: 8})
	service := webhooks.NewService(configs, events, cache, processor)
	tokenSvc := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour})
	auditLogger := audit.NewLogger(db)

	router := NewRouter(&Dependencies{
		IngestHandler:    handlers.NewIngestHandler(service, config.CORSConfig{}),
		ConfigHandler:    handlers.NewConfigHandler(configs, service, auditLogger),
		EventHandler:     handlers.NewEventHandler(events, processor, auditLogger),
		HealthHandler:    handlers.NewHealthHandler(db),
		AuthMiddleware:   middleware.NewAuthMiddleware(tokenSvc),
		TenantMiddleware: middleware.NewTenantMiddleware(),
		RateLimiter:      middleware.NewRateLimiter(config.RateLimitConfig{}),
	})

	token, err := tokenSvc.GenerateAccessToken("user-1", "tenant-a", "admin")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	return &apiTestServer{router: router, events: events, token: token}
}

func (s *apiTestServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *apiTestServer) createConfiguration(t *testing.T, body string) *models.WebhookConfiguration {
	t.Helper()
	rec := s.do("POST", "/api/v1/webhooks/configurations", s.token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var cfg models.WebhookConfiguration
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("Failed to decode configuration: %v", err)
	}
	return &cfg
}

func TestRouter_IngestFlow(t *testing.T) {
	s := setupAPITest(t)
	s.createConfiguration(t, `{
		"name": "HR Events",
		"endpoint_path": "/hr-events",
		"auth": {"method": "bearer", "token": "abc123"},
		"fields": ["EventType", "CompanyId"]
	}`)

	rec := s.do("POST", "/hooks/tenant-a/hr-events", "abc123",
		`{"EventType": "EmployeeHired", "CompanyId": "42", "Extra": "x"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var result webhooks.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.EventType != "EmployeeHired" || result.CompanyID != "42" || result.FieldsProcessed != 2 {
		t.Errorf("Unexpected result: %+v", result)
	}

	ev, err := s.events.Get("tenant-a", result.EventID)
	if err != nil {
		t.Fatalf("Failed to load stored event: %v", err)
	}
	if ev.ProcessingStatus != models.StatusPending || !ev.AuthValid {
		t.Errorf("Unexpected stored event: %+v", ev)
	}

	// Rejected deliveries store nothing.
	rec = s.do("POST", "/hooks/tenant-a/hr-events", "wrong", `{"EventType": "x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for wrong token, got %d", rec.Code)
	}
	rec = s.do("POST", "/hooks/tenant-a/unknown-path", "abc123", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown path, got %d", rec.Code)
	}
	if _, total, _ := s.events.List("tenant-a", repositories.EventFilter{}, 0, 0); total != 1 {
		t.Errorf("Expected exactly 1 stored event, got %d", total)
	}
}

func TestRouter_IngestPreflight(t *testing.T) {
	s := setupAPITest(t)

	rec := s.do("OPTIONS", "/hooks/tenant-a/hr-events", "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "POST, OPTIONS" {
		t.Errorf("Unexpected Allow header: %q", allow)
	}

	// Preflight never stores an event.
	if _, total, err := s.events.List("tenant-a", repositories.EventFilter{}, 0, 0); err != nil || total != 0 {
		t.Errorf("Expected no stored events after preflight, got total=%d err=%v", total, err)
	}
}

func TestRouter_ManagementAuth(t *testing.T) {
	s := setupAPITest(t)

	// No token.
	rec := s.do("GET", "/api/v1/webhooks/events", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}

	// Mismatched tenant header.
	req := httptest.NewRequest("GET", "/api/v1/webhooks/events", nil)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-Tenant-ID", "tenant-b")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for mismatched tenant header, got %d", rec.Code)
	}
}

func TestRouter_ConfigWriteRequiresRole(t *testing.T) {
	s := setupAPITest(t)
	viewerToken, err := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour}).
		GenerateAccessToken("user-2", "tenant-a", "viewer")
	if err != nil {
		t.Fatal(err)
	}

	body := `{"name": "x", "endpoint_path": "p", "auth": {"method": "none"}}`
	rec := s.do("POST", "/api/v1/webhooks/configurations", viewerToken, body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for viewer, got %d", rec.Code)
	}

	// Reads stay open to any tenant member.
	rec = s.do("GET", "/api/v1/webhooks/configurations", viewerToken, "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for viewer read, got %d", rec.Code)
	}
}

func TestRouter_EventLifecycle(t *testing.T) {
	s := setupAPITest(t)
	s.createConfiguration(t, `{
		"name": "Open",
		"endpoint_path": "open",
		"auth": {"method": "none"}
	}`)

	rec := s.do("POST", "/hooks/tenant-a/open", "", `{"EventType": "PayUpdated"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var result webhooks.IngestResult
	json.Unmarshal(rec.Body.Bytes(), &result)

	rec = s.do("GET", "/api/v1/webhooks/events?event_type=PayUpdated", s.token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var listResp struct {
		Events []*models.WebhookEvent `json:"events"`
		Total  int                    `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listResp)
	if listResp.Total != 1 || len(listResp.Events) != 1 {
		t.Fatalf("Unexpected list response: %+v", listResp)
	}

	eventPath := "/api/v1/webhooks/events/" + strconv.FormatInt(result.EventID, 10)
	rec = s.do("GET", eventPath, s.token, "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for get, got %d", rec.Code)
	}

	// Fail the event, then retry it through the API.
	if claimed, err := s.events.MarkProcessing("tenant-a", result.EventID); err != nil || !claimed {
		t.Fatalf("Failed to claim event: claimed=%v err=%v", claimed, err)
	}
	if err := s.events.MarkFailed("tenant-a", result.EventID, "boom"); err != nil {
		t.Fatal(err)
	}

	rec = s.do("POST", eventPath+"/retry", s.token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for retry, got %d: %s", rec.Code, rec.Body.String())
	}
	var retried models.WebhookEvent
	json.Unmarshal(rec.Body.Bytes(), &retried)
	if retried.ProcessingError != "" {
		t.Errorf("Expected cleared error after retry, got %q", retried.ProcessingError)
	}

	rec = s.do("GET", "/api/v1/webhooks/stats", s.token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for stats, got %d", rec.Code)
	}
	var stats repositories.EventStats
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.Overview.Total != 1 {
		t.Errorf("Unexpected stats overview: %+v", stats.Overview)
	}
}

func TestRouter_Health(t *testing.T) {
	s := setupAPITest(t)

	rec := s.do("GET", "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}
