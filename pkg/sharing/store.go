package sharing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxCascadeDepth bounds cascade walks so an adversarial hierarchy cannot
// drive unbounded recursion.
const maxCascadeDepth = 32

// typeMemoSize is the capacity of the in-process type-existence memo.
const typeMemoSize = 4096

// Store handles sharing data persistence: the type registries, the entity
// store and the sharing ledger all operate over the same database handle so
// that each mutating operation runs in a single transaction.
type Store struct {
	db       *sql.DB
	locks    *entityLocks
	typeMemo *lru.Cache[string, bool]
}

// NewStore creates a new sharing store
func NewStore(db *sql.DB) *Store {
	memo, _ := lru.New[string, bool](typeMemoSize)
	return &Store{
		db:       db,
		locks:    newEntityLocks(),
		typeMemo: memo,
	}
}

// queryer abstracts *sql.DB and *sql.Tx for helpers shared between
// transactional and read-only paths.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internalf("failed to start transaction: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return internalf("failed to commit transaction: %v", err)
	}
	return nil
}

// inPlaceholders builds a "$n, $n+1, ..." list for IN clauses.
func inPlaceholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// entityExists checks entity existence within the given queryer.
func (s *Store) entityExists(ctx context.Context, q queryer, tenantID, entityID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM entities WHERE id = $1`,
		scopedKey(entityID, tenantID),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, internalf("failed to check entity %s in tenant %s: %v", entityID, tenantID, err)
	}
	return true, nil
}

// entityTypeExists checks entity type existence, memoizing positive results.
func (s *Store) entityTypeExists(ctx context.Context, q queryer, tenantID, typeID string) (bool, error) {
	key := "et:" + scopedKey(typeID, tenantID)
	if ok, found := s.typeMemo.Get(key); found && ok {
		return true, nil
	}
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM entity_types WHERE id = $1`,
		scopedKey(typeID, tenantID),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, internalf("failed to check entity type %s in tenant %s: %v", typeID, tenantID, err)
	}
	s.typeMemo.Add(key, true)
	return true, nil
}

// permissionTypeExists checks permission type existence. The reserved OWNER
// permission exists implicitly in every tenant.
func (s *Store) permissionTypeExists(ctx context.Context, q queryer, tenantID, permissionTypeID string) (bool, error) {
	if permissionTypeID == OwnerPermissionTypeID {
		return true, nil
	}
	key := "pt:" + scopedKey(permissionTypeID, tenantID)
	if ok, found := s.typeMemo.Get(key); found && ok {
		return true, nil
	}
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM permission_types WHERE id = $1`,
		scopedKey(permissionTypeID, tenantID),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, internalf("failed to check permission type %s in tenant %s: %v", permissionTypeID, tenantID, err)
	}
	s.typeMemo.Add(key, true)
	return true, nil
}

// descendantIDs walks the entity forest downward from entityID, breadth
// first, bounded by maxCascadeDepth. The starting entity is not included.
func (s *Store) descendantIDs(ctx context.Context, q queryer, tenantID, entityID string) ([]string, error) {
	var out []string
	frontier := []string{entityID}

	for depth := 0; depth < maxCascadeDepth && len(frontier) > 0; depth++ {
		args := make([]interface{}, 0, len(frontier)+1)
		args = append(args, tenantID)
		for _, id := range frontier {
			args = append(args, id)
		}

		query := fmt.Sprintf(
			`SELECT external_id FROM entities WHERE tenant_id = $1 AND external_parent_id IN (%s)`,
			inPlaceholders(2, len(frontier)),
		)
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, internalf("failed to walk descendants of %s in tenant %s: %v", entityID, tenantID, err)
		}

		var children []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, internalf("failed to scan descendant of %s: %v", entityID, err)
			}
			children = append(children, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, internalf("failed to walk descendants of %s: %v", entityID, err)
		}
		rows.Close()

		out = append(out, children...)
		frontier = children
	}

	return out, nil
}

// insertSharing inserts a sharing row, deriving its deterministic id.
// Returns false without error when an identical row already exists.
func (s *Store) insertSharing(ctx context.Context, q queryer, sh *Sharing) (bool, error) {
	sh.ID = deriveSharingID(sh.EntityID, sh.PermissionTypeID, sh.AssociatingID, sh.TenantID, sh.InheritedParentID)
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = time.Now().UTC()
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO sharings (id, entity_id, permission_type_id, tenant_id, associating_id, owner_type, sharing_type, inherited_parent_id, shared_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING`,
		sh.ID,
		sh.EntityID,
		sh.PermissionTypeID,
		sh.TenantID,
		sh.AssociatingID,
		string(sh.OwnerType),
		string(sh.SharingType),
		sh.InheritedParentID,
		sh.SharedBy,
		sh.CreatedAt,
	)
	if err != nil {
		return false, internalf("failed to insert sharing for entity %s in tenant %s: %v", sh.EntityID, sh.TenantID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, internalf("failed to read insert result for entity %s: %v", sh.EntityID, err)
	}
	return n > 0, nil
}

// recountEntities recomputes shared_count for the given entities from the
// live non-owner row set. The counter is a cache, never a source of truth.
func (s *Store) recountEntities(ctx context.Context, q queryer, tenantID string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(entityIDs)+2)
	args = append(args, OwnerPermissionTypeID, tenantID)
	for _, id := range entityIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE entities SET shared_count = (
			SELECT COUNT(*) FROM sharings s
			WHERE s.tenant_id = entities.tenant_id
			  AND s.entity_id = entities.external_id
			  AND s.permission_type_id <> $1
		)
		WHERE tenant_id = $2 AND external_id IN (%s)`,
		inPlaceholders(3, len(entityIDs)),
	)

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return internalf("failed to recount shared entities in tenant %s: %v", tenantID, err)
	}
	return nil
}

// RebuildSharedCounts recomputes every entity's shared_count from the
// ledger. Used by the reconciler; safe to run at any time.
func (s *Store) RebuildSharedCounts(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE entities SET shared_count = (
			SELECT COUNT(*) FROM sharings s
			WHERE s.tenant_id = entities.tenant_id
			  AND s.entity_id = entities.external_id
			  AND s.permission_type_id <> $1
		)`,
		OwnerPermissionTypeID,
	)
	if err != nil {
		return internalf("failed to rebuild shared counts: %v", err)
	}
	return nil
}

// SweepOrphanedSharings removes sharing rows whose entity, or whose cascade
// origin entity, no longer exists. Entity deletion is best effort per
// operation; this sweep makes it eventually consistent.
func (s *Store) SweepOrphanedSharings(ctx context.Context) (int64, error) {
	var removed int64

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sharings WHERE NOT EXISTS (
			SELECT 1 FROM entities e
			WHERE e.tenant_id = sharings.tenant_id
			  AND e.external_id = sharings.entity_id
		)`)
	if err != nil {
		return 0, internalf("failed to sweep sharings of deleted entities: %v", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM sharings WHERE sharing_type = $1 AND NOT EXISTS (
			SELECT 1 FROM entities e
			WHERE e.tenant_id = sharings.tenant_id
			  AND e.external_id = sharings.inherited_parent_id
		)`,
		string(SharingTypeIndirectCascading),
	)
	if err != nil {
		return removed, internalf("failed to sweep sharings of deleted origins: %v", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	return removed, nil
}
