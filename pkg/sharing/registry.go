package sharing

import (
	"context"
	"database/sql"
	"time"
)

// CreateEntityType registers a new entity type in a tenant
func (s *Store) CreateEntityType(ctx context.Context, tenantID string, et *EntityType) error {
	if tenantID == "" || et == nil || et.ID == "" {
		return invalidArgumentf("entity type id and tenant id are required")
	}

	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.entityTypeExists(ctx, tx, tenantID, et.ID)
		if err != nil {
			return err
		}
		if exists {
			return alreadyExistsf("entity type %s in tenant %s", et.ID, tenantID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_types (id, external_id, tenant_id, name, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			scopedKey(et.ID, tenantID), et.ID, tenantID, et.Name, et.Description, now, now,
		)
		if err != nil {
			return internalf("failed to create entity type %s in tenant %s: %v", et.ID, tenantID, err)
		}

		et.TenantID = tenantID
		et.CreatedAt = now
		et.UpdatedAt = now
		return nil
	})
}

// UpdateEntityType updates the name and description of an entity type,
// preserving its original creation time
func (s *Store) UpdateEntityType(ctx context.Context, tenantID string, et *EntityType) error {
	if tenantID == "" || et == nil || et.ID == "" {
		return invalidArgumentf("entity type id and tenant id are required")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE entity_types SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		et.Name, et.Description, now, scopedKey(et.ID, tenantID),
	)
	if err != nil {
		return internalf("failed to update entity type %s in tenant %s: %v", et.ID, tenantID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFoundf("entity type %s in tenant %s", et.ID, tenantID)
	}
	et.TenantID = tenantID
	et.UpdatedAt = now
	return nil
}

// DeleteEntityType removes an entity type. Deletion is rejected while
// entities of the type still exist.
func (s *Store) DeleteEntityType(ctx context.Context, tenantID, typeID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var inUse int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM entities WHERE tenant_id = $1 AND type_id = $2 LIMIT 1`,
			tenantID, typeID,
		).Scan(&inUse)
		if err == nil {
			return invalidArgumentf("entity type %s in tenant %s is referenced by existing entities", typeID, tenantID)
		}
		if err != sql.ErrNoRows {
			return internalf("failed to check entity type %s usage in tenant %s: %v", typeID, tenantID, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM entity_types WHERE id = $1`, scopedKey(typeID, tenantID))
		if err != nil {
			return internalf("failed to delete entity type %s in tenant %s: %v", typeID, tenantID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return notFoundf("entity type %s in tenant %s", typeID, tenantID)
		}

		s.typeMemo.Remove("et:" + scopedKey(typeID, tenantID))
		return nil
	})
}

// GetEntityType retrieves an entity type
func (s *Store) GetEntityType(ctx context.Context, tenantID, typeID string) (*EntityType, error) {
	var et EntityType
	err := s.db.QueryRowContext(ctx, `
		SELECT external_id, tenant_id, name, description, created_at, updated_at
		FROM entity_types WHERE id = $1`,
		scopedKey(typeID, tenantID),
	).Scan(&et.ID, &et.TenantID, &et.Name, &et.Description, &et.CreatedAt, &et.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, notFoundf("entity type %s in tenant %s", typeID, tenantID)
	}
	if err != nil {
		return nil, internalf("failed to get entity type %s in tenant %s: %v", typeID, tenantID, err)
	}
	return &et, nil
}

// ListEntityTypes lists all entity types registered in a tenant
func (s *Store) ListEntityTypes(ctx context.Context, tenantID string) ([]EntityType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, tenant_id, name, description, created_at, updated_at
		FROM entity_types WHERE tenant_id = $1 ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, internalf("failed to list entity types in tenant %s: %v", tenantID, err)
	}
	defer rows.Close()

	var types []EntityType
	for rows.Next() {
		var et EntityType
		if err := rows.Scan(&et.ID, &et.TenantID, &et.Name, &et.Description, &et.CreatedAt, &et.UpdatedAt); err != nil {
			return nil, internalf("failed to scan entity type in tenant %s: %v", tenantID, err)
		}
		types = append(types, et)
	}
	return types, rows.Err()
}

// ownerPermissionType is the implicit, per-tenant owner permission. It is
// never persisted and never mutable.
func ownerPermissionType(tenantID string) *PermissionType {
	return &PermissionType{
		ID:          OwnerPermissionTypeID,
		TenantID:    tenantID,
		Name:        "Owner",
		Description: "implicit permission held by an entity's owner",
	}
}

// CreatePermissionType registers a new permission type in a tenant
func (s *Store) CreatePermissionType(ctx context.Context, tenantID string, pt *PermissionType) error {
	if tenantID == "" || pt == nil || pt.ID == "" {
		return invalidArgumentf("permission type id and tenant id are required")
	}
	if pt.ID == OwnerPermissionTypeID {
		return invalidArgumentf("permission type %s is reserved in tenant %s", OwnerPermissionTypeID, tenantID)
	}

	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.permissionTypeExists(ctx, tx, tenantID, pt.ID)
		if err != nil {
			return err
		}
		if exists {
			return alreadyExistsf("permission type %s in tenant %s", pt.ID, tenantID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO permission_types (id, external_id, tenant_id, name, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			scopedKey(pt.ID, tenantID), pt.ID, tenantID, pt.Name, pt.Description, now, now,
		)
		if err != nil {
			return internalf("failed to create permission type %s in tenant %s: %v", pt.ID, tenantID, err)
		}

		pt.TenantID = tenantID
		pt.CreatedAt = now
		pt.UpdatedAt = now
		return nil
	})
}

// UpdatePermissionType updates the name and description of a permission
// type, preserving its original creation time
func (s *Store) UpdatePermissionType(ctx context.Context, tenantID string, pt *PermissionType) error {
	if tenantID == "" || pt == nil || pt.ID == "" {
		return invalidArgumentf("permission type id and tenant id are required")
	}
	if pt.ID == OwnerPermissionTypeID {
		return invalidArgumentf("permission type %s is reserved in tenant %s", OwnerPermissionTypeID, tenantID)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE permission_types SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		pt.Name, pt.Description, now, scopedKey(pt.ID, tenantID),
	)
	if err != nil {
		return internalf("failed to update permission type %s in tenant %s: %v", pt.ID, tenantID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFoundf("permission type %s in tenant %s", pt.ID, tenantID)
	}
	pt.TenantID = tenantID
	pt.UpdatedAt = now
	return nil
}

// DeletePermissionType removes a permission type. Deletion is rejected while
// sharing rows still reference the type.
func (s *Store) DeletePermissionType(ctx context.Context, tenantID, permissionTypeID string) error {
	if permissionTypeID == OwnerPermissionTypeID {
		return invalidArgumentf("permission type %s is reserved in tenant %s", OwnerPermissionTypeID, tenantID)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var inUse int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM sharings WHERE tenant_id = $1 AND permission_type_id = $2 LIMIT 1`,
			tenantID, permissionTypeID,
		).Scan(&inUse)
		if err == nil {
			return invalidArgumentf("permission type %s in tenant %s is referenced by active sharings", permissionTypeID, tenantID)
		}
		if err != sql.ErrNoRows {
			return internalf("failed to check permission type %s usage in tenant %s: %v", permissionTypeID, tenantID, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM permission_types WHERE id = $1`, scopedKey(permissionTypeID, tenantID))
		if err != nil {
			return internalf("failed to delete permission type %s in tenant %s: %v", permissionTypeID, tenantID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return notFoundf("permission type %s in tenant %s", permissionTypeID, tenantID)
		}

		s.typeMemo.Remove("pt:" + scopedKey(permissionTypeID, tenantID))
		return nil
	})
}

// GetPermissionType retrieves a permission type. The reserved OWNER type is
// synthesized for every tenant.
func (s *Store) GetPermissionType(ctx context.Context, tenantID, permissionTypeID string) (*PermissionType, error) {
	if permissionTypeID == OwnerPermissionTypeID {
		return ownerPermissionType(tenantID), nil
	}

	var pt PermissionType
	err := s.db.QueryRowContext(ctx, `
		SELECT external_id, tenant_id, name, description, created_at, updated_at
		FROM permission_types WHERE id = $1`,
		scopedKey(permissionTypeID, tenantID),
	).Scan(&pt.ID, &pt.TenantID, &pt.Name, &pt.Description, &pt.CreatedAt, &pt.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, notFoundf("permission type %s in tenant %s", permissionTypeID, tenantID)
	}
	if err != nil {
		return nil, internalf("failed to get permission type %s in tenant %s: %v", permissionTypeID, tenantID, err)
	}
	return &pt, nil
}

// ListPermissionTypes lists all permission types of a tenant, the implicit
// OWNER type first
func (s *Store) ListPermissionTypes(ctx context.Context, tenantID string) ([]PermissionType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, tenant_id, name, description, created_at, updated_at
		FROM permission_types WHERE tenant_id = $1 ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, internalf("failed to list permission types in tenant %s: %v", tenantID, err)
	}
	defer rows.Close()

	types := []PermissionType{*ownerPermissionType(tenantID)}
	for rows.Next() {
		var pt PermissionType
		if err := rows.Scan(&pt.ID, &pt.TenantID, &pt.Name, &pt.Description, &pt.CreatedAt, &pt.UpdatedAt); err != nil {
			return nil, internalf("failed to scan permission type in tenant %s: %v", tenantID, err)
		}
		types = append(types, pt)
	}
	return types, rows.Err()
}
