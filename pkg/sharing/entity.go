package sharing

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateEntity persists a new entity, creates its OWNER sharing row and
// copies the parent's active cascading grants onto it
func (s *Store) CreateEntity(ctx context.Context, tenantID string, e *Entity) error {
	if tenantID == "" || e == nil || e.ID == "" || e.OwnerID == "" || e.TypeID == "" {
		return invalidArgumentf("entity id, type id, owner id and tenant id are required")
	}

	unlock := s.locks.Lock(tenantID, e.ID)
	defer unlock()

	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if e.ParentID != "" {
			parentExists, err := s.entityExists(ctx, tx, tenantID, e.ParentID)
			if err != nil {
				return err
			}
			if !parentExists {
				return notFoundf("parent entity %s in tenant %s", e.ParentID, tenantID)
			}
		}

		typeExists, err := s.entityTypeExists(ctx, tx, tenantID, e.TypeID)
		if err != nil {
			return err
		}
		if !typeExists {
			return notFoundf("entity type %s in tenant %s", e.TypeID, tenantID)
		}

		exists, err := s.entityExists(ctx, tx, tenantID, e.ID)
		if err != nil {
			return err
		}
		if exists {
			return alreadyExistsf("entity %s in tenant %s", e.ID, tenantID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entities (id, external_id, tenant_id, type_id, owner_id, external_parent_id, name, description, full_text, shared_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)`,
			scopedKey(e.ID, tenantID), e.ID, tenantID, e.TypeID, e.OwnerID, e.ParentID,
			e.Name, e.Description, e.FullText, now, now,
		)
		if err != nil {
			return internalf("failed to create entity %s in tenant %s: %v", e.ID, tenantID, err)
		}

		// The owner row is created atomically with the entity and is never
		// revocable through the sharing API.
		if _, err := s.insertSharing(ctx, tx, &Sharing{
			EntityID:          e.ID,
			PermissionTypeID:  OwnerPermissionTypeID,
			TenantID:          tenantID,
			AssociatingID:     e.OwnerID,
			OwnerType:         OwnerTypeUser,
			SharingType:       SharingTypeDirectNonCascading,
			InheritedParentID: e.ID,
			SharedBy:          e.OwnerID,
		}); err != nil {
			return err
		}

		if e.ParentID != "" {
			if err := s.propagateFromAncestor(ctx, tx, tenantID, e.ID, e.ParentID); err != nil {
				return err
			}
		}

		if err := s.recountEntities(ctx, tx, tenantID, []string{e.ID}); err != nil {
			return err
		}

		e.TenantID = tenantID
		e.CreatedAt = now
		e.UpdatedAt = now
		return nil
	})
}

// UpdateEntity updates an entity's mutable fields. Ownership never changes
// through update. Changing the parent detaches the whole moved subtree from
// the old parent chain's grants and re-propagates from the new one; grants
// that originated inside the subtree survive the move.
func (s *Store) UpdateEntity(ctx context.Context, tenantID string, e *Entity) error {
	if tenantID == "" || e == nil || e.ID == "" {
		return invalidArgumentf("entity id and tenant id are required")
	}

	unlock := s.locks.Lock(tenantID, e.ID)
	defer unlock()

	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := s.getEntity(ctx, tx, tenantID, e.ID)
		if err != nil {
			return err
		}

		if e.TypeID == "" {
			e.TypeID = current.TypeID
		}
		typeExists, err := s.entityTypeExists(ctx, tx, tenantID, e.TypeID)
		if err != nil {
			return err
		}
		if !typeExists {
			return notFoundf("entity type %s in tenant %s", e.TypeID, tenantID)
		}

		if e.OwnerID != "" && e.OwnerID != current.OwnerID {
			return invalidArgumentf("owner of entity %s in tenant %s cannot change", e.ID, tenantID)
		}

		if e.ParentID != current.ParentID {
			if e.ParentID != "" {
				parentExists, err := s.entityExists(ctx, tx, tenantID, e.ParentID)
				if err != nil {
					return err
				}
				if !parentExists {
					return notFoundf("parent entity %s in tenant %s", e.ParentID, tenantID)
				}
			}

			descendants, err := s.descendantIDs(ctx, tx, tenantID, e.ID)
			if err != nil {
				return err
			}
			subtree := append([]string{e.ID}, descendants...)

			// The move detaches the whole subtree from the old chain, so
			// every inherited row whose origin sits outside the subtree has
			// to go, on this entity and on each descendant alike. Cascading
			// grants issued inside the subtree keep their ancestry.
			args := make([]interface{}, 0, len(subtree)+2)
			args = append(args, tenantID, string(SharingTypeIndirectCascading))
			for _, id := range subtree {
				args = append(args, id)
			}
			in := inPlaceholders(3, len(subtree))
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
				DELETE FROM sharings
				WHERE tenant_id = $1 AND sharing_type = $2
				  AND entity_id IN (%s) AND inherited_parent_id NOT IN (%s)`, in, in),
				args...,
			); err != nil {
				return internalf("failed to remove inherited sharings of entity %s in tenant %s: %v", e.ID, tenantID, err)
			}

			// Every subtree member inherits exactly the cascading grants
			// visible on the new parent, origins preserved.
			if e.ParentID != "" {
				for _, id := range subtree {
					if err := s.propagateFromAncestor(ctx, tx, tenantID, id, e.ParentID); err != nil {
						return err
					}
				}
			}

			if err := s.recountEntities(ctx, tx, tenantID, subtree); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE entities
			SET type_id = $1, external_parent_id = $2, name = $3, description = $4, full_text = $5, updated_at = $6
			WHERE id = $7`,
			e.TypeID, e.ParentID, e.Name, e.Description, e.FullText, now, scopedKey(e.ID, tenantID),
		)
		if err != nil {
			return internalf("failed to update entity %s in tenant %s: %v", e.ID, tenantID, err)
		}

		if err := s.recountEntities(ctx, tx, tenantID, []string{e.ID}); err != nil {
			return err
		}

		e.TenantID = tenantID
		e.OwnerID = current.OwnerID
		e.CreatedAt = current.CreatedAt
		e.UpdatedAt = now
		return nil
	})
}

// DeleteEntity removes an entity together with the sharing rows held on it.
// Inherited rows on descendants that originated here are left to the
// reconciler sweep.
func (s *Store) DeleteEntity(ctx context.Context, tenantID, entityID string) error {
	unlock := s.locks.Lock(tenantID, entityID)
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = $1`, scopedKey(entityID, tenantID))
		if err != nil {
			return internalf("failed to delete entity %s in tenant %s: %v", entityID, tenantID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return notFoundf("entity %s in tenant %s", entityID, tenantID)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sharings WHERE tenant_id = $1 AND entity_id = $2`,
			tenantID, entityID,
		); err != nil {
			return internalf("failed to delete sharings of entity %s in tenant %s: %v", entityID, tenantID, err)
		}
		return nil
	})
}

// GetEntity retrieves an entity
func (s *Store) GetEntity(ctx context.Context, tenantID, entityID string) (*Entity, error) {
	return s.getEntity(ctx, s.db, tenantID, entityID)
}

func (s *Store) getEntity(ctx context.Context, q queryer, tenantID, entityID string) (*Entity, error) {
	var e Entity
	err := q.QueryRowContext(ctx, `
		SELECT external_id, tenant_id, type_id, owner_id, external_parent_id, name, description, full_text, shared_count, created_at, updated_at
		FROM entities WHERE id = $1`,
		scopedKey(entityID, tenantID),
	).Scan(&e.ID, &e.TenantID, &e.TypeID, &e.OwnerID, &e.ParentID, &e.Name, &e.Description, &e.FullText, &e.SharedCount, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, notFoundf("entity %s in tenant %s", entityID, tenantID)
	}
	if err != nil {
		return nil, internalf("failed to get entity %s in tenant %s: %v", entityID, tenantID, err)
	}
	return &e, nil
}

// EntityExists reports whether an entity exists in a tenant
func (s *Store) EntityExists(ctx context.Context, tenantID, entityID string) (bool, error) {
	return s.entityExists(ctx, s.db, tenantID, entityID)
}
