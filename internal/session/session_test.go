package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coterie-chat/coterie/internal/db"
)

func testRepo(t *testing.T) *db.SessionRepository {
	t.Helper()
	handle, err := db.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })
	return db.NewSessionRepository(handle)
}

func TestEstablishAndRestore(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first := New(repo)
	require.NoError(t, first.Establish(ctx, "ana", "tok-1"))
	require.True(t, first.Authenticated())
	require.Equal(t, "ana", first.Username())
	require.Equal(t, "tok-1", first.Token())

	// A fresh process restores the persisted session.
	second := New(repo)
	restored, err := second.Restore(ctx)
	require.NoError(t, err)
	require.True(t, restored)
	require.Equal(t, "tok-1", second.Token())
}

func TestRestoreWithoutStoredSession(t *testing.T) {
	s := New(testRepo(t))
	restored, err := s.Restore(context.Background())
	require.NoError(t, err)
	require.False(t, restored)
	require.False(t, s.Authenticated())
}

func TestClearNotifiesObserversAndDropsPersistedCopy(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	s := New(repo)
	require.NoError(t, s.Establish(ctx, "ana", "tok-1"))

	cleared := 0
	s.OnClear(func() { cleared++ })

	s.Clear()
	require.Equal(t, 1, cleared)
	require.Empty(t, s.Token())
	require.Empty(t, s.Username())

	// Idempotent: a second clear fires no extra notifications.
	s.Clear()
	require.Equal(t, 1, cleared)

	other := New(repo)
	restored, err := other.Restore(ctx)
	require.NoError(t, err)
	require.False(t, restored)
}

func TestMemoryOnlySession(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Establish(context.Background(), "ana", "tok"))
	require.True(t, s.Authenticated())

	restored, err := s.Restore(context.Background())
	require.NoError(t, err)
	require.False(t, restored)
}
