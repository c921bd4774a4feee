package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"mosaic/internal/pkg/errors"
	"mosaic/internal/platform/models"
)

type ConfigurationRepository struct {
	db *sql.DB
}

func NewConfigurationRepository(db *sql.DB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

const configColumns = `id, tenant_id, name, description, endpoint_path, event_types, auth_config, field_list, active, created_at, updated_at`

// ConfigurationUpdate carries a partial update. Nil pointers leave the
// existing value untouched.
type ConfigurationUpdate struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	EventTypes  []string           `json:"event_types,omitempty"`
	Auth        *models.AuthConfig `json:"auth,omitempty"`
	Fields      []string           `json:"fields,omitempty"`
	Active      *bool              `json:"active,omitempty"`
}

func (r *ConfigurationRepository) Create(cfg *models.WebhookConfiguration) error {
	if cfg.TenantID == "" {
		return fmt.Errorf("%w: tenant id is required", errors.ErrValidation)
	}
	if strings.Trim(cfg.EndpointPath, "/") == "" {
		return fmt.Errorf("%w: endpoint path is required", errors.ErrValidation)
	}
	if cfg.Name == "" {
		return fmt.Errorf("%w: name is required", errors.ErrValidation)
	}

	cfg.EndpointPath = normalizePath(cfg.EndpointPath)
	if cfg.Auth.Version == 0 {
		cfg.Auth.Version = models.AuthConfigVersion
	}
	if err := cfg.Auth.Validate(); err != nil {
		return err
	}

	existing, err := r.FindByTenantAndPath(cfg.TenantID, cfg.EndpointPath)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: endpoint path %q already exists for tenant", errors.ErrConflict, cfg.EndpointPath)
	}

	cfg.ID = "whc_" + uuid.New().String()
	cfg.CreatedAt = time.Now().Unix()
	cfg.UpdatedAt = cfg.CreatedAt

	eventTypesJSON, _ := json.Marshal(cfg.EventTypes)
	authJSON, err := json.Marshal(cfg.Auth)
	if err != nil {
		return err
	}
	fieldsJSON, _ := json.Marshal(cfg.Fields)

	query := `
		INSERT INTO webhook_configurations (` + configColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		cfg.ID, cfg.TenantID, cfg.Name, cfg.Description, cfg.EndpointPath,
		string(eventTypesJSON), string(authJSON), string(fieldsJSON),
		cfg.Active, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		// Racing creates land on the UNIQUE(tenant_id, endpoint_path) index.
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: endpoint path %q already exists for tenant", errors.ErrConflict, cfg.EndpointPath)
		}
		return fmt.Errorf("%w: %v", errors.ErrStorage, err)
	}
	return nil
}

func (r *ConfigurationRepository) GetByID(tenantID, id string) (*models.WebhookConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM webhook_configurations WHERE id = ? AND tenant_id = ?`
	cfg, err := scanConfiguration(r.db.QueryRow(query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: configuration %s", errors.ErrNotFound, id)
	}
	return cfg, err
}

// FindByTenantAndPath matches the configured path with and without a
// leading separator, so callers may address the endpoint either way.
func (r *ConfigurationRepository) FindByTenantAndPath(tenantID, path string) (*models.WebhookConfiguration, error) {
	trimmed := normalizePath(path)
	query := `SELECT ` + configColumns + ` FROM webhook_configurations WHERE tenant_id = ? AND endpoint_path IN (?, ?)`
	cfg, err := scanConfiguration(r.db.QueryRow(query, tenantID, trimmed, "/"+trimmed))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no configuration for path %q", errors.ErrNotFound, path)
	}
	return cfg, err
}

func (r *ConfigurationRepository) ListByTenant(tenantID string) ([]*models.WebhookConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM webhook_configurations WHERE tenant_id = ? ORDER BY created_at DESC`
	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.WebhookConfiguration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (r *ConfigurationRepository) Update(tenantID, id string, upd *ConfigurationUpdate) (*models.WebhookConfiguration, error) {
	cfg, err := r.GetByID(tenantID, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		cfg.Name = *upd.Name
	}
	if upd.Description != nil {
		cfg.Description = *upd.Description
	}
	if upd.EventTypes != nil {
		cfg.EventTypes = upd.EventTypes
	}
	if upd.Auth != nil {
		cfg.Auth = *upd.Auth
		if cfg.Auth.Version == 0 {
			cfg.Auth.Version = models.AuthConfigVersion
		}
	}
	if upd.Fields != nil {
		cfg.Fields = upd.Fields
	}
	if upd.Active != nil {
		cfg.Active = *upd.Active
	}

	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = time.Now().Unix()

	eventTypesJSON, _ := json.Marshal(cfg.EventTypes)
	authJSON, err := json.Marshal(cfg.Auth)
	if err != nil {
		return nil, err
	}
	fieldsJSON, _ := json.Marshal(cfg.Fields)

	query := `
		UPDATE webhook_configurations
		SET name = ?, description = ?, event_types = ?, auth_config = ?, field_list = ?, active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`
	res, err := r.db.Exec(query,
		cfg.Name, cfg.Description, string(eventTypesJSON), string(authJSON),
		string(fieldsJSON), cfg.Active, cfg.UpdatedAt, id, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: configuration %s", errors.ErrNotFound, id)
	}
	return cfg, nil
}

func normalizePath(path string) string {
	return strings.TrimPrefix(strings.TrimSpace(path), "/")
}

func scanConfiguration(s interface {
	Scan(dest ...interface{}) error
}) (*models.WebhookConfiguration, error) {
	var cfg models.WebhookConfiguration
	var description sql.NullString
	var eventTypesRaw, authRaw, fieldsRaw []byte

	err := s.Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.Name,
		&description,
		&cfg.EndpointPath,
		&eventTypesRaw,
		&authRaw,
		&fieldsRaw,
		&cfg.Active,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cfg.Description = description.String
	if len(eventTypesRaw) > 0 {
		json.Unmarshal(eventTypesRaw, &cfg.EventTypes)
	}
	if len(authRaw) > 0 {
		if err := json.Unmarshal(authRaw, &cfg.Auth); err != nil {
			return nil, fmt.Errorf("%w: corrupt auth config for %s: %v", errors.ErrStorage, cfg.ID, err)
		}
	}
	if len(fieldsRaw) > 0 {
		json.Unmarshal(fieldsRaw, &cfg.Fields)
	}

	return &cfg, nil
}
