package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger(t *testing.T) *DBLogger {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return NewDBLogger(db)
}

func TestDBLogger_LogAndList(t *testing.T) {
	logger := setupTestLogger(t)
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, &Event{
		TenantID:   "tenant-a",
		Type:       EventTypeSharingGrant,
		Status:     EventStatusSuccess,
		Actor:      "alice",
		EntityID:   "p1",
		Permission: "READ",
		Principals: "bob,carol",
	}))

	events, err := logger.ListEvents(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventTypeSharingGrant, e.Type)
	assert.Equal(t, "alice", e.Actor)
	assert.Equal(t, "bob,carol", e.Principals)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestDBLogger_ListNewestFirst(t *testing.T) {
	logger := setupTestLogger(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, eventType := range []EventType{EventTypeEntityCreate, EventTypeSharingGrant, EventTypeSharingRevoke} {
		require.NoError(t, logger.Log(ctx, &Event{
			TenantID:  "tenant-a",
			Type:      eventType,
			Status:    EventStatusSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := logger.ListEvents(ctx, "tenant-a", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeSharingRevoke, events[0].Type)
	assert.Equal(t, EventTypeSharingGrant, events[1].Type)
}

func TestDBLogger_TenantScoped(t *testing.T) {
	logger := setupTestLogger(t)
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, &Event{TenantID: "tenant-a", Type: EventTypeEntityCreate, Status: EventStatusSuccess}))
	require.NoError(t, logger.Log(ctx, &Event{TenantID: "tenant-b", Type: EventTypeEntityDelete, Status: EventStatusFailure}))

	events, err := logger.ListEvents(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "tenant-a", events[0].TenantID)
}

func TestNopLogger(t *testing.T) {
	var logger Logger = NopLogger{}
	assert.NoError(t, logger.Log(context.Background(), &Event{}))
	assert.NoError(t, logger.Close())
}
