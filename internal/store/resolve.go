package store

import "github.com/coterie-chat/coterie/internal/model"

// ReplyStatus classifies a message's reply reference.
type ReplyStatus int

const (
	// ReplyNone means the message is not a reply.
	ReplyNone ReplyStatus = iota
	// ReplyTombstone means the referenced message is gone from the store.
	ReplyTombstone
	// ReplyResolved means the referenced message is present.
	ReplyResolved
)

// Reply is the outcome of resolving a reply reference.
type Reply struct {
	Status  ReplyStatus
	Sender  string
	Content string
}

// Resolve evaluates a message's reply_to reference against the store. It runs
// at render time and is never cached: the referenced message may be deleted
// between renders, in which case the reference degrades to a tombstone
// instead of erroring.
func Resolve(msg model.Message, s *Store) Reply {
	if msg.ReplyTo == nil {
		return Reply{Status: ReplyNone}
	}
	target, ok := s.Get(*msg.ReplyTo)
	if !ok {
		return Reply{Status: ReplyTombstone}
	}
	return Reply{Status: ReplyResolved, Sender: target.Sender, Content: target.Content}
}
