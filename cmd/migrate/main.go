package main

import (
	"database/sql"
	"flag"
	"log"

	"mosaic/internal/platform/config"
	"mosaic/internal/platform/database"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch *direction {
	case "up":
		err = migrateUp(db)
	case "down":
		err = migrateDown(db)
	default:
		log.Fatalf("Unknown direction %q", *direction)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Printf("Migration %s complete", *direction)
}

func migrateUp(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS webhook_configurations (
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
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
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
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tenant_status ON webhook_events(tenant_id, processing_status)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tenant_config ON webhook_events(tenant_id, configuration_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tenant_received ON webhook_events(tenant_id, received_at)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
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
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_logs(tenant_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateDown(db *sql.DB) error {
	statements := []string{
		`DROP TABLE IF EXISTS audit_logs`,
		`DROP TABLE IF EXISTS webhook_events`,
		`DROP TABLE IF EXISTS webhook_configurations`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
