package sharing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// listSharedPrincipals returns the distinct principals of the given kind
// holding a permission on an entity, optionally restricted to direct grants.
func (s *Store) listSharedPrincipals(ctx context.Context, tenantID, entityID, permissionTypeID string, ownerType OwnerType, directOnly bool) ([]string, error) {
	permExists, err := s.permissionTypeExists(ctx, s.db, tenantID, permissionTypeID)
	if err != nil {
		return nil, err
	}
	if !permExists {
		return nil, notFoundf("permission type %s in tenant %s", permissionTypeID, tenantID)
	}

	entExists, err := s.entityExists(ctx, s.db, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	if !entExists {
		return nil, notFoundf("entity %s in tenant %s", entityID, tenantID)
	}

	query := `
		SELECT DISTINCT associating_id FROM sharings
		WHERE tenant_id = $1 AND entity_id = $2 AND permission_type_id = $3 AND owner_type = $4`
	args := []interface{}{tenantID, entityID, permissionTypeID, string(ownerType)}

	if directOnly {
		query += ` AND sharing_type IN ($5, $6)`
		args = append(args, string(SharingTypeDirectCascading), string(SharingTypeDirectNonCascading))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internalf("failed to list shared principals of entity %s in tenant %s: %v", entityID, tenantID, err)
	}
	defer rows.Close()

	var principals []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, internalf("failed to scan shared principal of entity %s: %v", entityID, err)
		}
		principals = append(principals, id)
	}
	return principals, rows.Err()
}

// GetListOfSharedUsers returns every user holding the permission on the
// entity, whether granted directly or inherited
func (s *Store) GetListOfSharedUsers(ctx context.Context, tenantID, entityID, permissionTypeID string) ([]string, error) {
	return s.listSharedPrincipals(ctx, tenantID, entityID, permissionTypeID, OwnerTypeUser, false)
}

// GetListOfDirectlySharedUsers returns users holding the permission through
// a direct grant on the entity, excluding inherited rows
func (s *Store) GetListOfDirectlySharedUsers(ctx context.Context, tenantID, entityID, permissionTypeID string) ([]string, error) {
	return s.listSharedPrincipals(ctx, tenantID, entityID, permissionTypeID, OwnerTypeUser, true)
}

// GetListOfSharedGroups returns every group holding the permission on the
// entity, whether granted directly or inherited
func (s *Store) GetListOfSharedGroups(ctx context.Context, tenantID, entityID, permissionTypeID string) ([]string, error) {
	return s.listSharedPrincipals(ctx, tenantID, entityID, permissionTypeID, OwnerTypeGroup, false)
}

// GetListOfDirectlySharedGroups returns groups holding the permission
// through a direct grant on the entity, excluding inherited rows
func (s *Store) GetListOfDirectlySharedGroups(ctx context.Context, tenantID, entityID, permissionTypeID string) ([]string, error) {
	return s.listSharedPrincipals(ctx, tenantID, entityID, permissionTypeID, OwnerTypeGroup, true)
}

func scanSharings(rows *sql.Rows) ([]Sharing, error) {
	var sharings []Sharing
	for rows.Next() {
		var sh Sharing
		if err := rows.Scan(
			&sh.ID, &sh.EntityID, &sh.PermissionTypeID, &sh.TenantID, &sh.AssociatingID,
			&sh.OwnerType, &sh.SharingType, &sh.InheritedParentID, &sh.SharedBy, &sh.CreatedAt,
		); err != nil {
			return nil, internalf("failed to scan sharing row: %v", err)
		}
		sharings = append(sharings, sh)
	}
	return sharings, rows.Err()
}

// dedupeSharings keeps the first row per (entity, principal), relying on the
// caller's created_at ordering so the earliest grant wins.
func dedupeSharings(all []Sharing) []Sharing {
	seen := make(map[string]bool, len(all))
	deduped := make([]Sharing, 0, len(all))
	for _, sh := range all {
		key := sh.EntityID + "|" + sh.AssociatingID
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, sh)
	}
	return deduped
}

// GetAllSharings enumerates ledger state for a tenant, optionally restricted
// to a single entity, de-duplicated per (entity, principal) keeping the first
// granted permission
func (s *Store) GetAllSharings(ctx context.Context, tenantID, entityID string) ([]Sharing, error) {
	query := `
		SELECT id, entity_id, permission_type_id, tenant_id, associating_id, owner_type, sharing_type, inherited_parent_id, shared_by, created_at
		FROM sharings WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if entityID != "" {
		query += ` AND entity_id = $2`
		args = append(args, entityID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internalf("failed to list sharings in tenant %s: %v", tenantID, err)
	}
	defer rows.Close()

	all, err := scanSharings(rows)
	if err != nil {
		return nil, err
	}
	return dedupeSharings(all), nil
}

// GetAllDirectSharings enumerates the directly granted sharings of a tenant,
// de-duplicated per (entity, principal) keeping the first granted permission
func (s *Store) GetAllDirectSharings(ctx context.Context, tenantID string) ([]Sharing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, permission_type_id, tenant_id, associating_id, owner_type, sharing_type, inherited_parent_id, shared_by, created_at
		FROM sharings
		WHERE tenant_id = $1 AND sharing_type IN ($2, $3)
		ORDER BY created_at ASC`,
		tenantID, string(SharingTypeDirectCascading), string(SharingTypeDirectNonCascading),
	)
	if err != nil {
		return nil, internalf("failed to list direct sharings in tenant %s: %v", tenantID, err)
	}
	defer rows.Close()

	all, err := scanSharings(rows)
	if err != nil {
		return nil, err
	}
	return dedupeSharings(all), nil
}

// SearchEntities searches a tenant's entities. The default mode filters the
// entity store directly. Bottom-up mode answers "what can these principals
// see, including inherited visibility" by joining through sharing rows; the
// ledger already materializes inheritance per descendant, so no tree walk
// happens at query time.
func (s *Store) SearchEntities(ctx context.Context, tenantID string, c SearchCriteria) ([]Entity, error) {
	if c.BottomUp && len(c.AssociatingIDs) == 0 {
		return nil, invalidArgumentf("bottom-up search in tenant %s requires associating ids", tenantID)
	}

	var (
		sb   strings.Builder
		args []interface{}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString(`SELECT DISTINCT e.external_id, e.tenant_id, e.type_id, e.owner_id, e.external_parent_id, e.name, e.description, e.full_text, e.shared_count, e.created_at, e.updated_at
		FROM entities e`)
	if c.BottomUp {
		sb.WriteString(` JOIN sharings sh ON sh.tenant_id = e.tenant_id AND sh.entity_id = e.external_id`)
	}
	sb.WriteString(` WHERE e.tenant_id = ` + next(tenantID))

	if c.BottomUp {
		placeholders := make([]string, len(c.AssociatingIDs))
		for i, id := range c.AssociatingIDs {
			placeholders[i] = next(id)
		}
		sb.WriteString(` AND sh.associating_id IN (` + strings.Join(placeholders, ", ") + `)`)
		if c.PermissionTypeID != "" {
			sb.WriteString(` AND sh.permission_type_id IN (` + next(c.PermissionTypeID) + `, ` + next(OwnerPermissionTypeID) + `)`)
		}
	}

	if c.TypeID != "" {
		sb.WriteString(` AND e.type_id = ` + next(c.TypeID))
	}
	if c.OwnerID != "" {
		sb.WriteString(` AND e.owner_id = ` + next(c.OwnerID))
	}
	if c.ParentID != "" {
		sb.WriteString(` AND e.external_parent_id = ` + next(c.ParentID))
	}
	if c.Name != "" {
		sb.WriteString(` AND e.name LIKE ` + next("%"+c.Name+"%"))
	}
	if c.FullText != "" {
		sb.WriteString(` AND e.full_text LIKE ` + next("%"+c.FullText+"%"))
	}

	sb.WriteString(` ORDER BY e.created_at ASC`)
	if c.Limit > 0 {
		sb.WriteString(` LIMIT ` + next(c.Limit))
	}
	if c.Offset > 0 {
		sb.WriteString(` OFFSET ` + next(c.Offset))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, internalf("failed to search entities in tenant %s: %v", tenantID, err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TypeID, &e.OwnerID, &e.ParentID, &e.Name, &e.Description, &e.FullText, &e.SharedCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, internalf("failed to scan entity in tenant %s: %v", tenantID, err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
