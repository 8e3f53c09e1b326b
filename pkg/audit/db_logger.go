package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DBLogger persists audit events to the service database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// Migrate creates the audit_events table
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id VARCHAR(255) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			actor VARCHAR(255),
			entity_id VARCHAR(255),
			permission VARCHAR(255),
			principals TEXT,
			message TEXT,
			created_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create audit_events table: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_tenant ON audit_events(tenant_id, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to index audit_events table: %w", err)
	}
	return nil
}

// Log implements Logger
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, tenant_id, event_type, status, actor, entity_id, permission, principals, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID,
		event.TenantID,
		string(event.Type),
		string(event.Status),
		event.Actor,
		event.EntityID,
		event.Permission,
		event.Principals,
		event.Message,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Close implements Logger
func (l *DBLogger) Close() error { return nil }

// ListEvents returns a tenant's audit events, newest first
func (l *DBLogger) ListEvents(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, tenant_id, event_type, status, actor, entity_id, permission, principals, message, created_at
		FROM audit_events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var actor, entityID, permission, principals, message sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Type, &e.Status, &actor, &entityID, &permission, &principals, &message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Actor = actor.String
		e.EntityID = entityID.String
		e.Permission = permission.String
		e.Principals = principals.String
		e.Message = message.String
		events = append(events, e)
	}
	return events, rows.Err()
}
