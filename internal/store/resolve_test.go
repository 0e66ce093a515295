package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coterie-chat/coterie/internal/model"
	"github.com/coterie-chat/coterie/internal/wire"
)

func TestResolveNoReply(t *testing.T) {
	s := New(1)
	s.LoadSnapshot([]model.Message{{ID: 1, ChatID: 1, Content: "plain"}})

	got, _ := s.Get(1)
	require.Equal(t, ReplyNone, Resolve(got, s).Status)
}

func TestResolvePresentTarget(t *testing.T) {
	s := New(1)
	target := int64(1)
	s.LoadSnapshot([]model.Message{
		{ID: 1, ChatID: 1, Sender: "ana", Content: "original"},
		{ID: 2, ChatID: 1, Sender: "boris", Content: "response", ReplyTo: &target},
	})

	got, _ := s.Get(2)
	reply := Resolve(got, s)
	require.Equal(t, ReplyResolved, reply.Status)
	require.Equal(t, "ana", reply.Sender)
	require.Equal(t, "original", reply.Content)
}

func TestResolveDegradesToTombstoneAfterDeletion(t *testing.T) {
	s := New(1)
	target := int64(1)
	s.LoadSnapshot([]model.Message{
		{ID: 1, ChatID: 1, Sender: "ana", Content: "original"},
		{ID: 2, ChatID: 1, Sender: "boris", Content: "response", ReplyTo: &target},
	})

	got, _ := s.Get(2)
	require.Equal(t, ReplyResolved, Resolve(got, s).Status)

	// Resolution is evaluated per render, so deleting the target between
	// renders flips the outcome without touching the replying message.
	s.Apply(wire.DeleteEvent{MessageID: 1})
	require.Equal(t, ReplyTombstone, Resolve(got, s).Status)
}

func TestResolveDanglingReference(t *testing.T) {
	s := New(1)
	target := int64(42)
	s.LoadSnapshot([]model.Message{
		{ID: 2, ChatID: 1, Content: "reply to nothing", ReplyTo: &target},
	})

	got, _ := s.Get(2)
	require.Equal(t, ReplyTombstone, Resolve(got, s).Status)
}
