// Package store maintains the per-chat message collection: one deterministic,
// duplicate-free, ordered view reconciled from the REST snapshot and the live
// event stream.
package store

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/coterie-chat/coterie/internal/logging"
	"github.com/coterie-chat/coterie/internal/model"
	"github.com/coterie-chat/coterie/internal/wire"
)

// Store holds the messages of exactly one chat. Snapshot order is preserved
// as the prefix; live messages append in arrival order. The snapshot load and
// the live subscription start concurrently, so events that arrive before the
// snapshot resolves are buffered and replayed, in arrival order, immediately
// after the snapshot merge. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	chatID   int64
	messages []model.Message
	present  map[int64]struct{}
	loaded   bool
	closed   bool
	pending  []wire.Event
	log      zerolog.Logger
}

// New creates an empty store owning the given chat.
func New(chatID int64) *Store {
	return &Store{
		chatID:  chatID,
		present: make(map[int64]struct{}),
		log:     logging.WithChat(chatID),
	}
}

// ChatID reports the chat this store belongs to.
func (s *Store) ChatID() int64 { return s.chatID }

// LoadSnapshot replaces the store's contents wholesale with the REST
// snapshot, in the order the server returned it, then replays any live
// events buffered while the fetch was in flight.
func (s *Store) LoadSnapshot(messages []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.messages = make([]model.Message, 0, len(messages))
	s.present = make(map[int64]struct{}, len(messages))
	for _, msg := range messages {
		if _, ok := s.present[msg.ID]; ok {
			continue
		}
		s.messages = append(s.messages, msg)
		s.present[msg.ID] = struct{}{}
	}
	s.loaded = true

	replay := s.pending
	s.pending = nil
	for _, event := range replay {
		s.applyLocked(event)
	}
	if len(replay) > 0 {
		s.log.Debug().Int("events", len(replay)).Msg("replayed buffered events after snapshot")
	}
}

// Apply merges one live event into the store. Events for a different chat
// are dropped; events arriving before the snapshot are buffered; a closed
// store is never mutated. Returns true when the visible contents changed.
func (s *Store) Apply(event wire.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if !s.eventBelongsHere(event) {
		s.log.Debug().Msg("dropped event for foreign chat")
		return false
	}
	if !s.loaded {
		s.pending = append(s.pending, event)
		return false
	}
	return s.applyLocked(event)
}

func (s *Store) eventBelongsHere(event wire.Event) bool {
	switch ev := event.(type) {
	case wire.MessageEvent:
		return ev.Message.ChatID == s.chatID
	case wire.EditEvent:
		return ev.ChatID == 0 || ev.ChatID == s.chatID
	case wire.DeleteEvent:
		return ev.ChatID == 0 || ev.ChatID == s.chatID
	default:
		return false
	}
}

func (s *Store) applyLocked(event wire.Event) bool {
	switch ev := event.(type) {
	case wire.MessageEvent:
		if _, ok := s.present[ev.Message.ID]; ok {
			return false
		}
		s.messages = append(s.messages, ev.Message)
		s.present[ev.Message.ID] = struct{}{}
		return true
	case wire.EditEvent:
		for i := range s.messages {
			if s.messages[i].ID == ev.MessageID {
				s.messages[i].Content = ev.Content
				return true
			}
		}
		return false
	case wire.DeleteEvent:
		for i := range s.messages {
			if s.messages[i].ID == ev.MessageID {
				s.messages = append(s.messages[:i], s.messages[i+1:]...)
				delete(s.present, ev.MessageID)
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Messages returns a copy of the current view in display order.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Get looks up a message by id.
func (s *Store) Get(id int64) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.present[id]; !ok {
		return model.Message{}, false
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			return s.messages[i], true
		}
	}
	return model.Message{}, false
}

// Len reports the number of visible messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Close marks the store torn down. Any event whose callback resolves after
// closure, including buffered ones, is discarded; a closed store is never
// mutated again.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
}
