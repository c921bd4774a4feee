package models

import (
	"fmt"

	"mosaic/internal/pkg/errors"
)

type AuthMethod string

const (
	AuthMethodNone   AuthMethod = "none"
	AuthMethodBasic  AuthMethod = "basic"
	AuthMethodBearer AuthMethod = "bearer"
	AuthMethodOAuth  AuthMethod = "oauth"
)

// AuthConfigVersion is bumped whenever the serialized shape of AuthConfig
// changes, so stored blobs can be migrated.
const AuthConfigVersion = 1

// AuthConfig is the typed authentication record for an endpoint. It is
// serialized to a JSON column only at the repository boundary.
type AuthConfig struct {
	Version      int        `json:"version"`
	Method       AuthMethod `json:"method"`
	Username     string     `json:"username,omitempty"`
	Password     string     `json:"password,omitempty"`
	Token        string     `json:"token,omitempty"`
	AuthorizeURL string     `json:"authorize_url,omitempty"`
	ClientID     string     `json:"client_id,omitempty"`
	ClientSecret string     `json:"client_secret,omitempty"`
}

// Validate checks the method-specific required parameters.
func (a *AuthConfig) Validate() error {
	switch a.Method {
	case AuthMethodNone:
		return nil
	case AuthMethodBasic:
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("%w: basic auth requires username and password", errors.ErrValidation)
		}
	case AuthMethodBearer:
		if a.Token == "" {
			return fmt.Errorf("%w: bearer auth requires a token", errors.ErrValidation)
		}
	case AuthMethodOAuth:
		if a.AuthorizeURL == "" || a.ClientID == "" || a.ClientSecret == "" {
			return fmt.Errorf("%w: oauth requires authorize_url, client_id and client_secret", errors.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown auth method %q", errors.ErrValidation, a.Method)
	}
	return nil
}

type WebhookConfiguration struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	EndpointPath string     `json:"endpoint_path"`
	EventTypes   []string   `json:"event_types"` // JSON array in DB
	Auth         AuthConfig `json:"auth"`        // JSON blob in DB
	Fields       []string   `json:"fields"`      // JSON array in DB
	Active       bool       `json:"active"`
	CreatedAt    int64      `json:"created_at"`
	UpdatedAt    int64      `json:"updated_at"`
}

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

type WebhookEvent struct {
	ID                    int64                  `json:"id"`
	ConfigurationID       string                 `json:"configuration_id"`
	TenantID              string                 `json:"tenant_id"`
	EventType             string                 `json:"event_type"`
	ExternalEventID       string                 `json:"external_event_id,omitempty"`
	CompanyID             string                 `json:"company_id,omitempty"`
	SourceIP              string                 `json:"source_ip,omitempty"`
	UserAgent             string                 `json:"user_agent,omitempty"`
	AuthMethod            AuthMethod             `json:"auth_method"`
	AuthValid             bool                   `json:"auth_valid"`
	Headers               map[string]string      `json:"headers,omitempty"`          // JSON blob in DB
	Payload               map[string]interface{} `json:"payload,omitempty"`          // JSON blob in DB
	ExtractedFields       map[string]interface{} `json:"extracted_fields,omitempty"` // JSON blob in DB
	ProcessingStatus      ProcessingStatus       `json:"processing_status"`
	ProcessingAttempts    int                    `json:"processing_attempts"`
	ProcessingStartedAt   *int64                 `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *int64                 `json:"processing_completed_at,omitempty"`
	ProcessingError       string                 `json:"processing_error,omitempty"`
	ReceivedAt            int64                  `json:"received_at"`
	CreatedAt             int64                  `json:"created_at"`
	UpdatedAt             int64                  `json:"updated_at"`
}
