package sharing

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all sharing migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create entity_types table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entity_types (
					id VARCHAR(512) PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL,
					tenant_id VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_entity_types_tenant_id ON entity_types(tenant_id);
			`,
		},
		{
			Version:     2,
			Description: "Create permission_types table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_types (
					id VARCHAR(512) PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL,
					tenant_id VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_permission_types_tenant_id ON permission_types(tenant_id);
			`,
		},
		{
			Version:     3,
			Description: "Create entities table",
			SQL: `
				CREATE TABLE IF NOT EXISTS entities (
					id VARCHAR(512) PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL,
					tenant_id VARCHAR(255) NOT NULL,
					type_id VARCHAR(255) NOT NULL,
					owner_id VARCHAR(255) NOT NULL,
					external_parent_id VARCHAR(255) NOT NULL DEFAULT '',
					name VARCHAR(255) NOT NULL DEFAULT '',
					description TEXT,
					full_text TEXT,
					shared_count BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_entities_tenant_id ON entities(tenant_id);
				CREATE INDEX idx_entities_tenant_parent ON entities(tenant_id, external_parent_id);
				CREATE INDEX idx_entities_tenant_owner ON entities(tenant_id, owner_id);
			`,
		},
		{
			Version:     4,
			Description: "Create sharings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sharings (
					id VARCHAR(64) PRIMARY KEY,
					entity_id VARCHAR(255) NOT NULL,
					permission_type_id VARCHAR(255) NOT NULL,
					tenant_id VARCHAR(255) NOT NULL,
					associating_id VARCHAR(255) NOT NULL,
					owner_type VARCHAR(16) NOT NULL,
					sharing_type VARCHAR(32) NOT NULL,
					inherited_parent_id VARCHAR(255) NOT NULL,
					shared_by VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_sharings_tenant_entity ON sharings(tenant_id, entity_id);
				CREATE INDEX idx_sharings_tenant_inherited_parent ON sharings(tenant_id, inherited_parent_id);
				CREATE INDEX idx_sharings_tenant_associating ON sharings(tenant_id, associating_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sharing_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM sharing_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sharing_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
