package sharing

import (
	"context"
	"database/sql"
	"fmt"
)

// propagateFromAncestor copies every active cascading grant held on
// ancestorID onto entityID as INDIRECT_CASCADING rows. The copied rows keep
// the original row's inherited parent, so the chain always points back to
// the entity where the cascading grant was first issued regardless of tree
// depth; removal by origin stays correct.
func (s *Store) propagateFromAncestor(ctx context.Context, q queryer, tenantID, entityID, ancestorID string) error {
	rows, err := q.QueryContext(ctx, `
		SELECT permission_type_id, associating_id, owner_type, shared_by, inherited_parent_id
		FROM sharings
		WHERE tenant_id = $1 AND entity_id = $2 AND sharing_type IN ($3, $4)`,
		tenantID, ancestorID, string(SharingTypeDirectCascading), string(SharingTypeIndirectCascading),
	)
	if err != nil {
		return internalf("failed to read cascading grants on entity %s in tenant %s: %v", ancestorID, tenantID, err)
	}

	var inherited []Sharing
	for rows.Next() {
		var sh Sharing
		if err := rows.Scan(&sh.PermissionTypeID, &sh.AssociatingID, &sh.OwnerType, &sh.SharedBy, &sh.InheritedParentID); err != nil {
			rows.Close()
			return internalf("failed to scan cascading grant on entity %s: %v", ancestorID, err)
		}
		inherited = append(inherited, sh)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return internalf("failed to read cascading grants on entity %s: %v", ancestorID, err)
	}
	rows.Close()

	for _, sh := range inherited {
		sh.EntityID = entityID
		sh.TenantID = tenantID
		sh.SharingType = SharingTypeIndirectCascading
		if _, err := s.insertSharing(ctx, q, &sh); err != nil {
			return err
		}
	}
	return nil
}

// ShareEntity grants a permission on an entity to one or more principals,
// optionally cascading the grant over every current descendant. Granting a
// tuple that already exists is a no-op. Each principal keeps at most one
// active non-owner permission per entity: the grant sweeps away every other
// non-owner row the principal holds on the entity, direct or inherited, and
// the inherited rows on descendants that originated here.
func (s *Store) ShareEntity(ctx context.Context, tenantID, entityID, permissionTypeID string, userIDs []string, cascade bool, ownerType OwnerType, sharedBy string) error {
	if len(userIDs) == 0 {
		return invalidArgumentf("at least one principal id is required to share entity %s in tenant %s", entityID, tenantID)
	}
	if !ownerType.Valid() {
		return invalidArgumentf("unknown owner type %q for entity %s in tenant %s", ownerType, entityID, tenantID)
	}
	if permissionTypeID == OwnerPermissionTypeID {
		return invalidArgumentf("permission type %s cannot be granted on entity %s in tenant %s", OwnerPermissionTypeID, entityID, tenantID)
	}

	unlock := s.locks.Lock(tenantID, entityID)
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		permExists, err := s.permissionTypeExists(ctx, tx, tenantID, permissionTypeID)
		if err != nil {
			return err
		}
		if !permExists {
			return notFoundf("permission type %s in tenant %s", permissionTypeID, tenantID)
		}

		entExists, err := s.entityExists(ctx, tx, tenantID, entityID)
		if err != nil {
			return err
		}
		if !entExists {
			return notFoundf("entity %s in tenant %s", entityID, tenantID)
		}

		sharingType := SharingTypeDirectNonCascading
		if cascade {
			sharingType = SharingTypeDirectCascading
		}

		affected := map[string]bool{entityID: true}

		var descendants []string
		if cascade {
			descendants, err = s.descendantIDs(ctx, tx, tenantID, entityID)
			if err != nil {
				return err
			}
		}

		for _, userID := range userIDs {
			if _, err := s.insertSharing(ctx, tx, &Sharing{
				EntityID:          entityID,
				PermissionTypeID:  permissionTypeID,
				TenantID:          tenantID,
				AssociatingID:     userID,
				OwnerType:         ownerType,
				SharingType:       sharingType,
				InheritedParentID: entityID,
				SharedBy:          sharedBy,
			}); err != nil {
				return err
			}

			for _, descendant := range descendants {
				if _, err := s.insertSharing(ctx, tx, &Sharing{
					EntityID:          descendant,
					PermissionTypeID:  permissionTypeID,
					TenantID:          tenantID,
					AssociatingID:     userID,
					OwnerType:         ownerType,
					SharingType:       SharingTypeIndirectCascading,
					InheritedParentID: entityID,
					SharedBy:          sharedBy,
				}); err != nil {
					return err
				}
				affected[descendant] = true
			}

			swept, err := s.sweepOtherPermissions(ctx, tx, tenantID, entityID, permissionTypeID, userID)
			if err != nil {
				return err
			}
			for _, id := range swept {
				affected[id] = true
			}
		}

		ids := make([]string, 0, len(affected))
		for id := range affected {
			ids = append(ids, id)
		}
		return s.recountEntities(ctx, tx, tenantID, ids)
	})
}

// sweepOtherPermissions deletes every non-owner sharing row the principal
// holds on the entity under a different permission type, plus the inherited
// rows on descendants that originated at this entity. Returns the ids of the
// entities that lost rows.
func (s *Store) sweepOtherPermissions(ctx context.Context, q queryer, tenantID, entityID, keepPermissionTypeID, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT entity_id FROM sharings
		WHERE tenant_id = $1 AND associating_id = $2
		  AND permission_type_id <> $3 AND permission_type_id <> $4
		  AND (entity_id = $5 OR inherited_parent_id = $5)`,
		tenantID, userID, keepPermissionTypeID, OwnerPermissionTypeID, entityID,
	)
	if err != nil {
		return nil, internalf("failed to find competing grants of %s on entity %s in tenant %s: %v", userID, entityID, tenantID, err)
	}

	var swept []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, internalf("failed to scan competing grant of %s on entity %s: %v", userID, entityID, err)
		}
		swept = append(swept, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, internalf("failed to find competing grants of %s on entity %s: %v", userID, entityID, err)
	}
	rows.Close()

	if len(swept) == 0 {
		return nil, nil
	}

	if _, err := q.ExecContext(ctx, `
		DELETE FROM sharings
		WHERE tenant_id = $1 AND associating_id = $2
		  AND permission_type_id <> $3 AND permission_type_id <> $4
		  AND (entity_id = $5 OR inherited_parent_id = $5)`,
		tenantID, userID, keepPermissionTypeID, OwnerPermissionTypeID, entityID,
	); err != nil {
		return nil, internalf("failed to sweep competing grants of %s on entity %s in tenant %s: %v", userID, entityID, tenantID, err)
	}
	return swept, nil
}

// RevokePermission removes a permission previously granted on an entity,
// including the inherited rows on descendants created by a cascading grant
// issued here. Inherited rows originating at an ancestor are untouched.
func (s *Store) RevokePermission(ctx context.Context, tenantID, entityID, permissionTypeID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return invalidArgumentf("at least one principal id is required to revoke on entity %s in tenant %s", entityID, tenantID)
	}
	if permissionTypeID == OwnerPermissionTypeID {
		return invalidArgumentf("permission type %s cannot be revoked on entity %s in tenant %s", OwnerPermissionTypeID, entityID, tenantID)
	}

	unlock := s.locks.Lock(tenantID, entityID)
	defer unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		permExists, err := s.permissionTypeExists(ctx, tx, tenantID, permissionTypeID)
		if err != nil {
			return err
		}
		if !permExists {
			return notFoundf("permission type %s in tenant %s", permissionTypeID, tenantID)
		}

		entExists, err := s.entityExists(ctx, tx, tenantID, entityID)
		if err != nil {
			return err
		}
		if !entExists {
			return notFoundf("entity %s in tenant %s", entityID, tenantID)
		}

		affected := map[string]bool{entityID: true}

		args := make([]interface{}, 0, len(userIDs)+3)
		args = append(args, tenantID, entityID, permissionTypeID)
		for _, id := range userIDs {
			args = append(args, id)
		}
		in := inPlaceholders(4, len(userIDs))

		// Direct rows carry inherited_parent_id equal to their own entity,
		// so one origin-keyed predicate removes both the direct grant and
		// every inherited copy of it.
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT DISTINCT entity_id FROM sharings
			WHERE tenant_id = $1 AND inherited_parent_id = $2 AND permission_type_id = $3
			  AND associating_id IN (%s)`, in),
			args...,
		)
		if err != nil {
			return internalf("failed to find grants to revoke on entity %s in tenant %s: %v", entityID, tenantID, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return internalf("failed to scan grant to revoke on entity %s: %v", entityID, err)
			}
			affected[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return internalf("failed to find grants to revoke on entity %s: %v", entityID, err)
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM sharings
			WHERE tenant_id = $1 AND inherited_parent_id = $2 AND permission_type_id = $3
			  AND associating_id IN (%s)`, in),
			args...,
		); err != nil {
			return internalf("failed to revoke permission %s on entity %s in tenant %s: %v", permissionTypeID, entityID, tenantID, err)
		}

		ids := make([]string, 0, len(affected))
		for id := range affected {
			ids = append(ids, id)
		}
		return s.recountEntities(ctx, tx, tenantID, ids)
	})
}

// UserHasAccess reports whether a principal holds either the requested
// permission or ownership on an entity. Ownership implicitly satisfies every
// permission.
func (s *Store) UserHasAccess(ctx context.Context, tenantID, entityID, permissionTypeID, username string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sharings
		WHERE tenant_id = $1 AND entity_id = $2 AND associating_id = $3
		  AND permission_type_id IN ($4, $5)`,
		tenantID, entityID, username, permissionTypeID, OwnerPermissionTypeID,
	).Scan(&count)
	if err != nil {
		return false, internalf("failed to check access of %s to entity %s in tenant %s: %v", username, entityID, tenantID, err)
	}
	return count > 0, nil
}
