package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointManager_CreateListDelete(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	createTestAccount(t, store, "Checking", "10")
	createTestAccount(t, store, "Savings", "20")

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-merge", "manual snapshot")
	require.NoError(t, err)
	assert.Equal(t, "before-merge", info.ID)
	assert.Equal(t, 2, info.Accounts)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)
	assert.False(t, info.IsAuto)

	_, err = cm.Create(ctx, "before-merge", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	_, err = cm.Create(ctx, "../escape", "")
	assert.ErrorIs(t, err, ErrInvalidCheckpointID)

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := cm.Get(ctx, "before-merge")
	require.NoError(t, err)
	assert.Equal(t, "manual snapshot", got.Description)

	require.NoError(t, cm.Delete(ctx, "before-merge"))
	assert.ErrorIs(t, cm.Delete(ctx, "before-merge"), ErrCheckpointNotFound)
	_, err = cm.Get(ctx, "before-merge")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestCheckpointManager_AutoCheckpointPrunes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < maxAutoCheckpoints+2; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		cm.now = func() time.Time { return at }
		info, err := cm.AutoCheckpoint(ctx, "merge")
		require.NoError(t, err)
		assert.True(t, info.IsAuto)
	}

	list, err := cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, maxAutoCheckpoints)
	assert.True(t, list[0].CreatedAt.After(list[len(list)-1].CreatedAt), "newest first")
}

func TestCheckpointManager_Restore(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()
	path := store.Path()

	account := createTestAccount(t, store, "Checking", "10")

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	_, err = cm.Create(ctx, "snap", "")
	require.NoError(t, err)

	createTestAccount(t, store, "Later", "0")
	require.NoError(t, cm.Restore(ctx, "snap"))

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	accounts, err := reopened.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, account.ID, accounts[0].ID)
}

func TestNewCheckpointManager_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.NewCheckpointManager()
	assert.ErrorIs(t, err, ErrInMemoryDatabase)
}
