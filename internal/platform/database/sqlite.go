package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"mosaic/internal/platform/config"
)

// New opens the shared relational store. All tenants share one database;
// isolation is enforced by tenant_id predicates in every repository query.
func New(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?cache=shared&mode=rwc&_busy_timeout=5000", cfg.Path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
