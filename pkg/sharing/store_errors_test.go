package sharing

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db), mock
}

func TestUserHasAccess_DatabaseError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM sharings").
		WillReturnError(errors.New("connection reset"))

	_, err := store.UserHasAccess(context.Background(), "tenant-a", "p1", "READ", "bob")
	assert.ErrorIs(t, err, ErrInternal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntity_DatabaseError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM entities").
		WillReturnError(errors.New("connection reset"))

	_, err := store.GetEntity(context.Background(), "tenant-a", "p1")
	assert.ErrorIs(t, err, ErrInternal)
}

func TestCreateEntityType_BeginError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := store.CreateEntityType(context.Background(), "tenant-a", &EntityType{ID: "PROJECT", Name: "Project"})
	assert.ErrorIs(t, err, ErrInternal)
}

func TestRebuildSharedCounts_DatabaseError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("UPDATE entities SET shared_count").
		WillReturnError(errors.New("deadlock detected"))

	err := store.RebuildSharedCounts(context.Background())
	assert.ErrorIs(t, err, ErrInternal)
}

func TestShareEntity_RollsBackOnFailure(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM permission_types").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.ShareEntity(context.Background(), "tenant-a", "p1", "READ", []string{"bob"}, false, OwnerTypeUser, "alice")
	assert.ErrorIs(t, err, ErrInternal)
	assert.NoError(t, mock.ExpectationsWereMet())
}
