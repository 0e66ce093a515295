package roster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coterie-chat/coterie/internal/model"
	"github.com/coterie-chat/coterie/internal/wire"
)

func entry(id int64, name string) model.RosterEntry {
	return model.RosterEntry{ID: id, Name: name}
}

func created(id int64, user1, user2 string) wire.ChatCreatedEvent {
	return wire.ChatCreatedEvent{
		ChatID: id, Name: user1 + " & " + user2,
		User1: user1, User2: user2,
		User1Photo: "/" + user1 + ".png", User2Photo: "/" + user2 + ".png",
	}
}

func TestReplaceAllKeepsServerOrder(t *testing.T) {
	r := New("ana")
	r.ReplaceAll([]model.RosterEntry{entry(3, "c"), entry(1, "a")})

	got := r.Entries()
	require.Len(t, got, 2)
	require.Equal(t, int64(3), got[0].ID)
}

func TestChatCreatedDedupAgainstPoll(t *testing.T) {
	r := New("ana")
	r.ReplaceAll([]model.RosterEntry{entry(1, "existing")})

	// Push echo of a chat the re-poll already delivered.
	require.False(t, r.Apply(created(1, "ana", "boris")))
	require.True(t, r.Apply(created(2, "ana", "carol")))
	require.Equal(t, 2, r.Len())
}

func TestChatCreatedForOtherUsersIsDropped(t *testing.T) {
	r := New("ana")
	r.ReplaceAll(nil)

	require.False(t, r.Apply(created(5, "boris", "carol")))
	require.Equal(t, 0, r.Len())
}

func TestChatCreatedPicksInterlocutor(t *testing.T) {
	r := New("ana")
	r.ReplaceAll(nil)

	require.True(t, r.Apply(created(5, "ana", "boris")))
	got := r.Entries()[0]
	require.Equal(t, "boris", got.Interlocutor)
	require.Equal(t, "/boris.png", got.AvatarURL)

	require.True(t, r.Apply(created(6, "carol", "ana")))
	got = r.Entries()[1]
	require.Equal(t, "carol", got.Interlocutor)
	require.Equal(t, "/carol.png", got.AvatarURL)
}

func TestChatDeletedRemovesEntry(t *testing.T) {
	r := New("ana")
	r.ReplaceAll([]model.RosterEntry{entry(1, "a"), entry(2, "b")})

	require.True(t, r.Apply(wire.ChatDeletedEvent{ChatID: 1}))
	require.False(t, r.Apply(wire.ChatDeletedEvent{ChatID: 1}))
	require.Equal(t, 1, r.Len())
	require.Equal(t, int64(2), r.Entries()[0].ID)
}

func TestEventsBeforeFirstSnapshotAreBuffered(t *testing.T) {
	r := New("ana")

	require.False(t, r.Apply(created(9, "ana", "boris")))
	require.Equal(t, 0, r.Len())

	r.ReplaceAll([]model.RosterEntry{entry(1, "old")})
	require.Equal(t, 2, r.Len())
}

func TestRepollReplacesWithoutReplay(t *testing.T) {
	r := New("ana")
	r.ReplaceAll([]model.RosterEntry{entry(1, "a")})
	r.Apply(created(2, "ana", "boris"))

	// A later re-poll is authoritative; buffered replay only happens once.
	r.ReplaceAll([]model.RosterEntry{entry(1, "a"), entry(3, "c")})

	got := r.Entries()
	require.Len(t, got, 2)
	require.Equal(t, int64(3), got[1].ID)
}

func TestClosedRosterRejectsMutation(t *testing.T) {
	r := New("ana")
	r.ReplaceAll([]model.RosterEntry{entry(1, "a")})
	r.Close()

	require.False(t, r.Apply(created(2, "ana", "boris")))
	r.ReplaceAll([]model.RosterEntry{entry(9, "late")})
	require.Equal(t, 1, r.Len())
}
