package audit

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Entry is one administrator action on the webhook subsystem: configuration
// create/update, event retry.
type Entry struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	UserID       string                 `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Log records the entry asynchronously; audit writes never block or fail
// the management request.
func (l *Logger) Log(entry Entry) {
	entry.ID = "audit_" + uuid.New().String()
	entry.CreatedAt = time.Now().Unix()

	metaJSON, _ := json.Marshal(entry.Metadata)

	go func() {
		query := `
			INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := l.db.Exec(query,
			entry.ID, entry.TenantID, entry.UserID, entry.Action, entry.ResourceType,
			entry.ResourceID, string(metaJSON), entry.IPAddress, entry.UserAgent, entry.CreatedAt,
		); err != nil {
			log.Error().Err(err).Str("action", entry.Action).Msg("audit write failed")
		}
	}()
}
