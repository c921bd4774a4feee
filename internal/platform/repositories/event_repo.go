package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mosaic/internal/pkg/errors"
	"mosaic/internal/platform/models"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// MaxListLimit caps page sizes regardless of what the caller asks for.
const MaxListLimit = 1000

const eventColumns = `id, configuration_id, tenant_id, event_type, external_event_id, company_id,
	source_ip, user_agent, auth_method, auth_valid, headers, payload, extracted_fields,
	processing_status, processing_attempts, processing_started_at, processing_completed_at,
	processing_error, received_at, created_at, updated_at`

type EventFilter struct {
	ConfigurationID string
	EventType       string
	Status          models.ProcessingStatus
	AuthValid       *bool
}

type StatusCounts struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Processing  int     `json:"processing"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	AuthValid   int     `json:"auth_valid"`
	AuthInvalid int     `json:"auth_invalid"`
	AvgAttempts float64 `json:"avg_attempts"`
}

type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int    `json:"count"`
}

type HourlyCount struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

type EventStats struct {
	Overview    StatusCounts  `json:"overview"`
	ByEventType []TypeCount   `json:"by_event_type"`
	Hourly      []HourlyCount `json:"hourly"`
}

func (r *EventRepository) Insert(ev *models.WebhookEvent) error {
	now := time.Now().Unix()
	if ev.ReceivedAt == 0 {
		ev.ReceivedAt = now
	}
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if ev.ProcessingStatus == "" {
		ev.ProcessingStatus = models.StatusPending
	}

	headersJSON, _ := json.Marshal(ev.Headers)
	payloadJSON, _ := json.Marshal(ev.Payload)
	fieldsJSON, _ := json.Marshal(ev.ExtractedFields)

	query := `
		INSERT INTO webhook_events (
			configuration_id, tenant_id, event_type, external_event_id, company_id,
			source_ip, user_agent, auth_method, auth_valid, headers, payload, extracted_fields,
			processing_status, processing_attempts, received_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.Exec(query,
		ev.ConfigurationID, ev.TenantID, ev.EventType, ev.ExternalEventID, ev.CompanyID,
		ev.SourceIP, ev.UserAgent, string(ev.AuthMethod), ev.AuthValid,
		string(headersJSON), string(payloadJSON), string(fieldsJSON),
		string(ev.ProcessingStatus), ev.ProcessingAttempts, ev.ReceivedAt, ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStorage, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStorage, err)
	}
	ev.ID = id
	return nil
}

func (r *EventRepository) Get(tenantID string, id int64) (*models.WebhookEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM webhook_events WHERE id = ? AND tenant_id = ?`
	ev, err := scanEvent(r.db.QueryRow(query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: event %d", errors.ErrNotFound, id)
	}
	return ev, err
}

func (r *EventRepository) List(tenantID string, f EventFilter, limit, offset int) ([]*models.WebhookEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	where := "tenant_id = ?"
	args := []interface{}{tenantID}
	if f.ConfigurationID != "" {
		where += " AND configuration_id = ?"
		args = append(args, f.ConfigurationID)
	}
	if f.EventType != "" {
		where += " AND event_type = ?"
		args = append(args, f.EventType)
	}
	if f.Status != "" {
		where += " AND processing_status = ?"
		args = append(args, string(f.Status))
	}
	if f.AuthValid != nil {
		where += " AND auth_valid = ?"
		args = append(args, *f.AuthValid)
	}

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM webhook_events WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + eventColumns + ` FROM webhook_events WHERE ` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.WebhookEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// MarkProcessing claims an event for a worker. The status predicate makes
// the pending->processing transition a compare-and-set, so two workers can
// never process the same event.
func (r *EventRepository) MarkProcessing(tenantID string, id int64) (bool, error) {
	now := time.Now().Unix()
	res, err := r.db.Exec(`
		UPDATE webhook_events
		SET processing_status = ?, processing_attempts = processing_attempts + 1,
		    processing_started_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND processing_status = ?
	`, string(models.StatusProcessing), now, now, id, tenantID, string(models.StatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *EventRepository) MarkCompleted(tenantID string, id int64) error {
	now := time.Now().Unix()
	res, err := r.db.Exec(`
		UPDATE webhook_events
		SET processing_status = ?, processing_completed_at = ?, processing_error = NULL, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND processing_status = ?
	`, string(models.StatusCompleted), now, now, id, tenantID, string(models.StatusProcessing))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: event %d is not processing", errors.ErrNotFound, id)
	}
	return nil
}

func (r *EventRepository) MarkFailed(tenantID string, id int64, message string) error {
	now := time.Now().Unix()
	res, err := r.db.Exec(`
		UPDATE webhook_events
		SET processing_status = ?, processing_error = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND processing_status = ?
	`, string(models.StatusFailed), message, now, id, tenantID, string(models.StatusProcessing))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: event %d is not processing", errors.ErrNotFound, id)
	}
	return nil
}

// Retry resets an event to pending for another processing attempt. The
// attempt count is preserved as history. Events currently being processed
// cannot be retried.
func (r *EventRepository) Retry(tenantID string, id int64) error {
	res, err := r.db.Exec(`
		UPDATE webhook_events
		SET processing_status = ?, processing_started_at = NULL,
		    processing_completed_at = NULL, processing_error = NULL, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND processing_status != ?
	`, string(models.StatusPending), time.Now().Unix(), id, tenantID, string(models.StatusProcessing))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: event %d", errors.ErrNotFound, id)
	}
	return nil
}

// FailStuck fails events that have sat in processing longer than maxAge,
// e.g. after a worker crash. Runs across tenants; used by the worker binary.
func (r *EventRepository) FailStuck(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := r.db.Exec(`
		UPDATE webhook_events
		SET processing_status = ?, processing_error = ?, updated_at = ?
		WHERE processing_status = ? AND processing_started_at < ?
	`, string(models.StatusFailed),
		fmt.Sprintf("processing exceeded %s and was abandoned", maxAge),
		time.Now().Unix(), string(models.StatusProcessing), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type PendingRef struct {
	TenantID string
	EventID  int64
}

// ListStalePending returns pending events that have waited longer than
// minAge, so a sweeper can re-enqueue deliveries dropped on a full queue.
func (r *EventRepository) ListStalePending(minAge time.Duration, limit int) ([]PendingRef, error) {
	cutoff := time.Now().Add(-minAge).Unix()
	rows, err := r.db.Query(`
		SELECT tenant_id, id FROM webhook_events
		WHERE processing_status = ? AND received_at < ?
		ORDER BY id ASC LIMIT ?
	`, string(models.StatusPending), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []PendingRef
	for rows.Next() {
		var ref PendingRef
		if err := rows.Scan(&ref.TenantID, &ref.EventID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *EventRepository) Stats(tenantID, configurationID string) (*EventStats, error) {
	where := "tenant_id = ?"
	args := []interface{}{tenantID}
	if configurationID != "" {
		where += " AND configuration_id = ?"
		args = append(args, configurationID)
	}

	stats := &EventStats{}

	err := r.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN processing_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processing_status = 'processing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processing_status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processing_status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN auth_valid THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN NOT auth_valid THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(processing_attempts), 0)
		FROM webhook_events WHERE `+where, args...).Scan(
		&stats.Overview.Total,
		&stats.Overview.Pending,
		&stats.Overview.Processing,
		&stats.Overview.Completed,
		&stats.Overview.Failed,
		&stats.Overview.AuthValid,
		&stats.Overview.AuthInvalid,
		&stats.Overview.AvgAttempts,
	)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT event_type, COUNT(*) FROM webhook_events
		WHERE `+where+` GROUP BY event_type ORDER BY COUNT(*) DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Count); err != nil {
			return nil, err
		}
		stats.ByEventType = append(stats.ByEventType, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	since := time.Now().Add(-24 * time.Hour).Unix()
	hourly, err := r.db.Query(`
		SELECT (received_at / 3600) * 3600 AS bucket, COUNT(*)
		FROM webhook_events
		WHERE `+where+` AND received_at >= ?
		GROUP BY bucket ORDER BY bucket ASC
	`, append(args, since)...)
	if err != nil {
		return nil, err
	}
	defer hourly.Close()
	for hourly.Next() {
		var bucket int64
		var count int
		if err := hourly.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		stats.Hourly = append(stats.Hourly, HourlyCount{
			Hour:  time.Unix(bucket, 0).UTC().Format("2006-01-02T15:00Z"),
			Count: count,
		})
	}
	return stats, hourly.Err()
}

func scanEvent(s interface {
	Scan(dest ...interface{}) error
}) (*models.WebhookEvent, error) {
	var ev models.WebhookEvent
	var externalEventID, companyID, sourceIP, userAgent, processingError sql.NullString
	var headersRaw, payloadRaw, fieldsRaw []byte
	var startedAt, completedAt sql.NullInt64

	err := s.Scan(
		&ev.ID,
		&ev.ConfigurationID,
		&ev.TenantID,
		&ev.EventType,
		&externalEventID,
		&companyID,
		&sourceIP,
		&userAgent,
		&ev.AuthMethod,
		&ev.AuthValid,
		&headersRaw,
		&payloadRaw,
		&fieldsRaw,
		&ev.ProcessingStatus,
		&ev.ProcessingAttempts,
		&startedAt,
		&completedAt,
		&processingError,
		&ev.ReceivedAt,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.ExternalEventID = externalEventID.String
	ev.CompanyID = companyID.String
	ev.SourceIP = sourceIP.String
	ev.UserAgent = userAgent.String
	ev.ProcessingError = processingError.String
	if startedAt.Valid {
		val := startedAt.Int64
		ev.ProcessingStartedAt = &val
	}
	if completedAt.Valid {
		val := completedAt.Int64
		ev.ProcessingCompletedAt = &val
	}

	if len(headersRaw) > 0 {
		json.Unmarshal(headersRaw, &ev.Headers)
	}
	if len(payloadRaw) > 0 {
		json.Unmarshal(payloadRaw, &ev.Payload)
	}
	if len(fieldsRaw) > 0 {
		json.Unmarshal(fieldsRaw, &ev.ExtractedFields)
	}

	return &ev, nil
}
