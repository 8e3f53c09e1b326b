package sharing

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// An in-memory sqlite database exists per connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE entity_types (
			id VARCHAR(512) PRIMARY KEY,
			external_id VARCHAR(255) NOT NULL,
			tenant_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE permission_types (
			id VARCHAR(512) PRIMARY KEY,
			external_id VARCHAR(255) NOT NULL,
			tenant_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE entities (
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
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE sharings (
			id VARCHAR(64) PRIMARY KEY,
			entity_id VARCHAR(255) NOT NULL,
			permission_type_id VARCHAR(255) NOT NULL,
			tenant_id VARCHAR(255) NOT NULL,
			associating_id VARCHAR(255) NOT NULL,
			owner_type VARCHAR(16) NOT NULL,
			sharing_type VARCHAR(32) NOT NULL,
			inherited_parent_id VARCHAR(255) NOT NULL,
			shared_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func setupTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), db
}

// seedTenant registers the PROJECT type plus READ and WRITE permissions
func seedTenant(t *testing.T, store *Store, tenantID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateEntityType(ctx, tenantID, &EntityType{ID: "PROJECT", Name: "Project"}))
	require.NoError(t, store.CreatePermissionType(ctx, tenantID, &PermissionType{ID: "READ", Name: "Read"}))
	require.NoError(t, store.CreatePermissionType(ctx, tenantID, &PermissionType{ID: "WRITE", Name: "Write"}))
}

// mustCreateEntity creates an entity owned by ownerID, optionally parented
func mustCreateEntity(t *testing.T, store *Store, tenantID, id, parentID, ownerID string) {
	t.Helper()
	err := store.CreateEntity(context.Background(), tenantID, &Entity{
		ID:       id,
		TypeID:   "PROJECT",
		OwnerID:  ownerID,
		ParentID: parentID,
		Name:     id,
	})
	require.NoError(t, err)
}

func sharedCount(t *testing.T, store *Store, tenantID, entityID string) int64 {
	t.Helper()
	e, err := store.GetEntity(context.Background(), tenantID, entityID)
	require.NoError(t, err)
	return e.SharedCount
}

func TestDeriveSharingID_Deterministic(t *testing.T) {
	a := deriveSharingID("e1", "READ", "alice", "tenant-a", "e1")
	b := deriveSharingID("e1", "READ", "alice", "tenant-a", "e1")
	assert.Equal(t, a, b)

	c := deriveSharingID("e1", "READ", "alice", "tenant-b", "e1")
	assert.NotEqual(t, a, c)

	d := deriveSharingID("e1", "READ", "alice", "tenant-a", "e0")
	assert.NotEqual(t, a, d)
}

func TestScopedKey_TenantIsolation(t *testing.T) {
	assert.NotEqual(t, scopedKey("p1", "tenant-a"), scopedKey("p1", "tenant-b"))
	assert.Equal(t, "p1@tenant-a", scopedKey("p1", "tenant-a"))
}

func TestInPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", inPlaceholders(1, 1))
	assert.Equal(t, "$4, $5, $6", inPlaceholders(4, 3))
}

func TestInsertSharing_Idempotent(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")
	mustCreateEntity(t, store, "tenant-a", "p1", "", "alice")

	sh := &Sharing{
		EntityID:          "p1",
		PermissionTypeID:  "READ",
		TenantID:          "tenant-a",
		AssociatingID:     "bob",
		OwnerType:         OwnerTypeUser,
		SharingType:       SharingTypeDirectNonCascading,
		InheritedParentID: "p1",
		SharedBy:          "alice",
	}

	inserted, err := store.insertSharing(ctx, store.db, sh)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.insertSharing(ctx, store.db, &Sharing{
		EntityID:          "p1",
		PermissionTypeID:  "READ",
		TenantID:          "tenant-a",
		AssociatingID:     "bob",
		OwnerType:         OwnerTypeUser,
		SharingType:       SharingTypeDirectNonCascading,
		InheritedParentID: "p1",
		SharedBy:          "alice",
	})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestDescendantIDs(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")

	mustCreateEntity(t, store, "tenant-a", "root", "", "alice")
	mustCreateEntity(t, store, "tenant-a", "child1", "root", "alice")
	mustCreateEntity(t, store, "tenant-a", "child2", "root", "alice")
	mustCreateEntity(t, store, "tenant-a", "grandchild", "child1", "alice")

	ids, err := store.descendantIDs(ctx, store.db, "tenant-a", "root")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"child1", "child2", "grandchild"}, ids)

	ids, err = store.descendantIDs(ctx, store.db, "tenant-a", "grandchild")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRebuildSharedCounts(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")
	mustCreateEntity(t, store, "tenant-a", "p1", "", "alice")

	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "p1", "READ", []string{"bob"}, false, OwnerTypeUser, "alice"))
	require.Equal(t, int64(1), sharedCount(t, store, "tenant-a", "p1"))

	// Corrupt the cached counter, then rebuild
	_, err := db.Exec(`UPDATE entities SET shared_count = 99`)
	require.NoError(t, err)

	require.NoError(t, store.RebuildSharedCounts(ctx))
	assert.Equal(t, int64(1), sharedCount(t, store, "tenant-a", "p1"))
}

func TestSweepOrphanedSharings(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")

	mustCreateEntity(t, store, "tenant-a", "root", "", "alice")
	mustCreateEntity(t, store, "tenant-a", "child", "root", "alice")
	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "root", "READ", []string{"bob"}, true, OwnerTypeUser, "alice"))

	// Deleting the root leaves the inherited row on the child behind
	require.NoError(t, store.DeleteEntity(ctx, "tenant-a", "root"))

	var before int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sharings WHERE entity_id = 'child' AND permission_type_id = 'READ'`).Scan(&before))
	require.Equal(t, 1, before)

	removed, err := store.SweepOrphanedSharings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var after int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sharings WHERE entity_id = 'child' AND permission_type_id = 'READ'`).Scan(&after))
	assert.Zero(t, after)
}
