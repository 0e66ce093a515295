package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	handle, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })
	return handle
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "state.db")
	handle, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, handle.Close())
}

func TestSessionSaveLoadClear(t *testing.T) {
	handle := openTestDB(t)
	repo := NewSessionRepository(handle)
	ctx := context.Background()

	_, err := repo.Load(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, repo.Save(ctx, "ana", "tok-1"))
	stored, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "ana", stored.Username)
	require.Equal(t, "tok-1", stored.Token)
	require.NotEmpty(t, stored.DeviceID)
	require.False(t, stored.UpdatedAt.IsZero())

	require.NoError(t, repo.Clear(ctx))
	_, err = repo.Load(ctx)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSessionDeviceIDSurvivesTokenRotation(t *testing.T) {
	handle := openTestDB(t)
	repo := NewSessionRepository(handle)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "ana", "tok-1"))
	first, err := repo.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, "ana", "tok-2"))
	second, err := repo.Load(ctx)
	require.NoError(t, err)

	require.Equal(t, "tok-2", second.Token)
	require.Equal(t, first.DeviceID, second.DeviceID)
}

func TestDraftSaveLoadDelete(t *testing.T) {
	handle := openTestDB(t)
	repo := NewDraftRepository(handle)
	ctx := context.Background()

	draft, err := repo.Load(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, draft)

	require.NoError(t, repo.Save(ctx, 7, "half-written"))
	require.NoError(t, repo.Save(ctx, 8, "other chat"))

	draft, err = repo.Load(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "half-written", draft)

	require.NoError(t, repo.Save(ctx, 7, "rewritten"))
	draft, err = repo.Load(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "rewritten", draft)

	require.NoError(t, repo.Delete(ctx, 7))
	draft, err = repo.Load(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, draft)

	// Chat 8 untouched.
	draft, err = repo.Load(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, "other chat", draft)
}

func TestDraftSaveEmptyDeletesRow(t *testing.T) {
	handle := openTestDB(t)
	repo := NewDraftRepository(handle)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 7, "something"))
	require.NoError(t, repo.Save(ctx, 7, ""))

	draft, err := repo.Load(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, draft)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	handle := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := handle.Transaction(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `INSERT INTO drafts (chat_id, content, updated_at) VALUES (1, 'x', 'now')`)
		require.NoError(t, execErr)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, handle.QueryRowContext(ctx, `SELECT COUNT(*) FROM drafts`).Scan(&count))
	require.Zero(t, count)
}
