package conn

import "strconv"

// State is the lifecycle position of a topic's connection. Transitions are
// driven exclusively by the Supervisor.
type State int

const (
	// StateIdle means Open has not been called yet.
	StateIdle State = iota
	// StateConnecting means the handshake is in flight.
	StateConnecting
	// StateOpen means the socket is live and frames flow.
	StateOpen
	// StateReconnecting means the socket dropped abnormally and a retry is
	// pending.
	StateReconnecting
	// StateClosed is terminal: normal closure or explicit Close. No further
	// reconnection.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Topic identifies one push stream: a chat, or the roster. The service
// multiplexes the roster over the chat endpoint with a sentinel id of zero.
type Topic struct {
	chatID int64
	roster bool
}

// ChatTopic is the push stream for a single chat.
func ChatTopic(chatID int64) Topic { return Topic{chatID: chatID} }

// RosterTopic is the push stream for chat created/deleted notifications.
func RosterTopic() Topic { return Topic{roster: true} }

// ChatID reports the chat id, or zero for the roster sentinel.
func (t Topic) ChatID() int64 {
	if t.roster {
		return 0
	}
	return t.chatID
}

func (t Topic) String() string {
	if t.roster {
		return "roster"
	}
	return "chat/" + strconv.FormatInt(t.chatID, 10)
}
