package sharing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEntity_CreatesOwnerRow(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")

	mustCreateEntity(t, store, "tenant-a", "p1", "", "alice")

	sharings, err := store.GetAllSharings(ctx, "tenant-a", "p1")
	require.NoError(t, err)
	require.Len(t, sharings, 1)
	assert.Equal(t, OwnerPermissionTypeID, sharings[0].PermissionTypeID)
	assert.Equal(t, "alice", sharings[0].AssociatingID)
	assert.Equal(t, SharingTypeDirectNonCascading, sharings[0].SharingType)
	assert.Equal(t, "p1", sharings[0].InheritedParentID)

	// The owner row does not count toward shared_count
	assert.Zero(t, sharedCount(t, store, "tenant-a", "p1"))
}

func TestCreateEntity_Validation(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")

	err := store.CreateEntity(ctx, "tenant-a", &Entity{ID: "p1", TypeID: "PROJECT"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = store.CreateEntity(ctx, "tenant-a", &Entity{ID: "p1", TypeID: "UNKNOWN", OwnerID: "alice"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.CreateEntity(ctx, "tenant-a", &Entity{ID: "p1", TypeID: "PROJECT", OwnerID: "alice", ParentID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateEntity_DuplicateRejected(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")
	seedTenant(t, store, "tenant-b")
	mustCreateEntity(t, store, "tenant-a", "p1", "", "alice")

	err := store.CreateEntity(ctx, "tenant-a", &Entity{ID: "p1", TypeID: "PROJECT", OwnerID: "bob"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Same external id in another tenant is a different entity
	mustCreateEntity(t, store, "tenant-b", "p1", "", "bob")
}

func TestCreateEntity_InheritsParentCascades(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")

	mustCreateEntity(t, store, "tenant-a", "root", "", "alice")
	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "root", "READ", []string{"bob"}, true, OwnerTypeUser, "alice"))

	// A child created after the grant still inherits it
	mustCreateEntity(t, store, "tenant-a", "child", "root", "alice")

	allowed, err := store.UserHasAccess(ctx, "tenant-a", "child", "READ", "bob")
	require.NoError(t, err)
	assert.True(t, allowed)

	sharings, err := store.GetAllSharings(ctx, "tenant-a", "child")
	require.NoError(t, err)
	for _, sh := range sharings {
		if sh.AssociatingID == "bob" {
			assert.Equal(t, SharingTypeIndirectCascading, sh.SharingType)
			assert.Equal(t, "root", sh.InheritedParentID)
		}
	}
}

func TestCreateEntity_DeepChainKeepsOrigin(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")

	mustCreateEntity(t, store, "tenant-a", "root", "", "alice")
	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "root", "READ", []string{"bob"}, true, OwnerTypeUser, "alice"))

	mustCreateEntity(t, store, "tenant-a", "child", "root", "alice")
	mustCreateEntity(t, store, "tenant-a", "grandchild", "child", "alice")

	// The grandchild's inherited row points at the grant origin, not the
	// immediate parent
	sharings, err := store.GetAllSharings(ctx, "tenant-a", "grandchild")
	require.NoError(t, err)
	var found bool
	for _, sh := range sharings {
		if sh.AssociatingID == "bob" && sh.PermissionTypeID == "READ" {
			found = true
			assert.Equal(t, "root", sh.InheritedParentID)
		}
	}
	assert.True(t, found)
}

func TestUpdateEntity_OwnerImmutable(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")
	mustCreateEntity(t, store, "tenant-a", "p1", "", "alice")

	err := store.UpdateEntity(ctx, "tenant-a", &Entity{ID: "p1", OwnerID: "mallory", Name: "renamed"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateEntity_FieldsAndTimestamps(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")
	mustCreateEntity(t, store, "tenant-a", "p1", "", "alice")

	before, err := store.GetEntity(ctx, "tenant-a", "p1")
	require.NoError(t, err)

	e := &Entity{ID: "p1", Name: "renamed", Description: "updated", FullText: "searchable text"}
	require.NoError(t, store.UpdateEntity(ctx, "tenant-a", e))
	assert.Equal(t, "alice", e.OwnerID)

	after, err := store.GetEntity(ctx, "tenant-a", "p1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", after.Name)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestUpdateEntity_ReparentReplacesInheritedRows(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")

	mustCreateEntity(t, store, "tenant-a", "oldparent", "", "alice")
	mustCreateEntity(t, store, "tenant-a", "newparent", "", "alice")
	mustCreateEntity(t, store, "tenant-a", "child", "oldparent", "alice")

	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "oldparent", "READ", []string{"bob"}, true, OwnerTypeUser, "alice"))
	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "newparent", "WRITE", []string{"carol"}, true, OwnerTypeUser, "alice"))

	allowed, err := store.UserHasAccess(ctx, "tenant-a", "child", "READ", "bob")
	require.NoError(t, err)
	require.True(t, allowed)

	// Move the child under the new parent
	require.NoError(t, store.UpdateEntity(ctx, "tenant-a", &Entity{ID: "child", ParentID: "newparent", Name: "child"}))

	allowed, err = store.UserHasAccess(ctx, "tenant-a", "child", "READ", "bob")
	require.NoError(t, err)
	assert.False(t, allowed, "grants from the old parent chain must not survive reparenting")

	allowed, err = store.UserHasAccess(ctx, "tenant-a", "child", "WRITE", "carol")
	require.NoError(t, err)
	assert.True(t, allowed, "grants from the new parent chain must apply")
}

func TestUpdateEntity_ReparentDetachesSubtree(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")

	mustCreateEntity(t, store, "tenant-a", "oldparent", "", "alice")
	mustCreateEntity(t, store, "tenant-a", "newparent", "", "alice")
	mustCreateEntity(t, store, "tenant-a", "child", "oldparent", "alice")
	mustCreateEntity(t, store, "tenant-a", "grandchild", "child", "alice")

	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "oldparent", "READ", []string{"bob"}, true, OwnerTypeUser, "alice"))
	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "newparent", "WRITE", []string{"carol"}, true, OwnerTypeUser, "alice"))
	// A grant issued inside the moved subtree
	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "child", "READ", []string{"dave"}, true, OwnerTypeUser, "alice"))

	// Move the child, taking the grandchild along
	require.NoError(t, store.UpdateEntity(ctx, "tenant-a", &Entity{ID: "child", ParentID: "newparent", Name: "child"}))

	for _, id := range []string{"child", "grandchild"} {
		allowed, err := store.UserHasAccess(ctx, "tenant-a", id, "READ", "bob")
		require.NoError(t, err)
		assert.False(t, allowed, "old-chain grant must not survive on %s", id)

		allowed, err = store.UserHasAccess(ctx, "tenant-a", id, "WRITE", "carol")
		require.NoError(t, err)
		assert.True(t, allowed, "new-chain grant must reach %s", id)
	}

	// Inherited copies from the new chain point at the grant origin
	sharings, err := store.GetAllSharings(ctx, "tenant-a", "grandchild")
	require.NoError(t, err)
	for _, sh := range sharings {
		if sh.AssociatingID == "carol" {
			assert.Equal(t, "newparent", sh.InheritedParentID)
		}
	}

	// The grant issued on the moved entity itself survives the move
	allowed, err := store.UserHasAccess(ctx, "tenant-a", "grandchild", "READ", "dave")
	require.NoError(t, err)
	assert.True(t, allowed)

	assert.Equal(t, int64(2), sharedCount(t, store, "tenant-a", "grandchild"))
}

func TestUpdateEntity_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)
	seedTenant(t, store, "tenant-a")

	err := store.UpdateEntity(context.Background(), "tenant-a", &Entity{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEntity(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")
	mustCreateEntity(t, store, "tenant-a", "p1", "", "alice")
	require.NoError(t, store.ShareEntity(ctx, "tenant-a", "p1", "READ", []string{"bob"}, false, OwnerTypeUser, "alice"))

	require.NoError(t, store.DeleteEntity(ctx, "tenant-a", "p1"))

	_, err := store.GetEntity(ctx, "tenant-a", "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	sharings, err := store.GetAllSharings(ctx, "tenant-a", "p1")
	require.NoError(t, err)
	assert.Empty(t, sharings)

	err = store.DeleteEntity(ctx, "tenant-a", "p1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntityExists(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	seedTenant(t, store, "tenant-a")
	mustCreateEntity(t, store, "tenant-a", "p1", "", "alice")

	exists, err := store.EntityExists(ctx, "tenant-a", "p1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.EntityExists(ctx, "tenant-b", "p1")
	require.NoError(t, err)
	assert.False(t, exists)
}
