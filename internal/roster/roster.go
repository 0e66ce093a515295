// Package roster keeps the chat list consistent under the same push/poll
// duality as the message view: a REST snapshot on activation, a fixed
// interval re-poll, and incremental create/delete push events in between.
package roster

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/coterie-chat/coterie/internal/logging"
	"github.com/coterie-chat/coterie/internal/model"
	"github.com/coterie-chat/coterie/internal/wire"
)

// Roster is the set of chats visible to the current user, one entry per
// chat id. Safe for concurrent use.
type Roster struct {
	mu      sync.Mutex
	user    string
	entries []model.RosterEntry
	present map[int64]struct{}
	loaded  bool
	closed  bool
	pending []wire.Event
	log     zerolog.Logger
}

// New creates an empty roster for the given user. The username gates
// chat_created events: a chat naming neither participant as this user is
// cross-talk and gets discarded.
func New(username string) *Roster {
	return &Roster{
		user:    username,
		present: make(map[int64]struct{}),
		log:     logging.Component("roster"),
	}
}

// ReplaceAll swaps in a full snapshot, from the activation fetch or a
// re-poll. The first snapshot also replays any push events buffered while
// the fetch was in flight.
func (r *Roster) ReplaceAll(entries []model.RosterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.entries = make([]model.RosterEntry, 0, len(entries))
	r.present = make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		if _, ok := r.present[entry.ID]; ok {
			continue
		}
		r.entries = append(r.entries, entry)
		r.present[entry.ID] = struct{}{}
	}

	first := !r.loaded
	r.loaded = true
	if first {
		replay := r.pending
		r.pending = nil
		for _, event := range replay {
			r.applyLocked(event)
		}
	}
}

// Apply merges one push event. Returns true when the roster changed.
func (r *Roster) Apply(event wire.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if !r.loaded {
		r.pending = append(r.pending, event)
		return false
	}
	return r.applyLocked(event)
}

func (r *Roster) applyLocked(event wire.Event) bool {
	switch ev := event.(type) {
	case wire.ChatCreatedEvent:
		if ev.User1 != r.user && ev.User2 != r.user {
			r.log.Debug().Int64("chat_id", ev.ChatID).Msg("dropped chat_created for other users")
			return false
		}
		if _, ok := r.present[ev.ChatID]; ok {
			return false
		}
		r.entries = append(r.entries, entryFromEvent(ev, r.user))
		r.present[ev.ChatID] = struct{}{}
		return true
	case wire.ChatDeletedEvent:
		for i := range r.entries {
			if r.entries[i].ID == ev.ChatID {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				delete(r.present, ev.ChatID)
				return true
			}
		}
		return false
	default:
		return false
	}
}

func entryFromEvent(ev wire.ChatCreatedEvent, user string) model.RosterEntry {
	interlocutor := ev.User1
	avatar := ev.User1Photo
	if ev.User1 == user {
		interlocutor = ev.User2
		avatar = ev.User2Photo
	}
	return model.RosterEntry{
		ID:           ev.ChatID,
		Name:         ev.Name,
		Interlocutor: interlocutor,
		AvatarURL:    avatar,
	}
}

// Entries returns a copy of the current roster in display order.
func (r *Roster) Entries() []model.RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.RosterEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len reports the number of visible chats.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close tears the roster down; later snapshots and events are discarded.
func (r *Roster) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.pending = nil
}
