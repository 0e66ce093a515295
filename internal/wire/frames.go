// Package wire defines the JSON frames exchanged over the chat service's
// push connections and their decoding into events.
//
// Every inbound frame carries a "type" discriminator. A frame that fails to
// parse, or parses without a known discriminator, is a malformed frame: it is
// dropped with a diagnostic and the connection stays open.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coterie-chat/coterie/internal/model"
)

// ErrMalformedFrame marks an unparseable or discriminator-less payload.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame type discriminators.
const (
	TypeMessage     = "message"
	TypeFile        = "file"
	TypeEdit        = "edit"
	TypeDelete      = "delete"
	TypeError       = "error"
	TypeChatCreated = "chat_created"
	TypeChatDeleted = "chat_deleted"
)

// Event is a decoded inbound frame. Concrete types: MessageEvent, EditEvent,
// DeleteEvent, ErrorEvent, ChatCreatedEvent, ChatDeletedEvent.
type Event interface {
	eventType() string
}

// MessageEvent is a newly delivered message.
type MessageEvent struct {
	Message model.Message
}

func (MessageEvent) eventType() string { return TypeMessage }

// EditEvent replaces the content of an existing message. ChatID is zero when
// the frame did not embed one; the guard against cross-talk only applies to
// frames that do.
type EditEvent struct {
	ChatID    int64
	MessageID int64
	Content   string
}

func (EditEvent) eventType() string { return TypeEdit }

// DeleteEvent removes an existing message.
type DeleteEvent struct {
	ChatID    int64
	MessageID int64
}

func (DeleteEvent) eventType() string { return TypeDelete }

// ErrorEvent is a server-side notice delivered in-band. The connection stays
// open; the notice surfaces to the user.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) eventType() string { return TypeError }

// ChatCreatedEvent announces a new chat on the roster topic.
type ChatCreatedEvent struct {
	ChatID     int64
	Name       string
	User1      string
	User2      string
	User1Photo string
	User2Photo string
}

func (ChatCreatedEvent) eventType() string { return TypeChatCreated }

// ChatDeletedEvent announces a removed chat on the roster topic.
type ChatDeletedEvent struct {
	ChatID int64
}

func (ChatDeletedEvent) eventType() string { return TypeChatDeleted }

type inboundEnvelope struct {
	Type       string          `json:"type"`
	Username   string          `json:"username"`
	AvatarURL  string          `json:"avatar_url"`
	Timestamp  string          `json:"timestamp"`
	MessageID  int64           `json:"message_id"`
	NewContent string          `json:"new_content"`
	ChatID     int64           `json:"chat_id"`
	Message    string          `json:"message"`
	Data       *inboundPayload `json:"data"`
	Chat       *inboundChat    `json:"chat"`
}

type inboundPayload struct {
	ChatID    int64  `json:"chat_id"`
	Content   string `json:"content"`
	MessageID int64  `json:"message_id"`
	ReplyTo   *int64 `json:"reply_to"`
	FileName  string `json:"file_name"`
}

type inboundChat struct {
	ChatID     int64  `json:"chat_id"`
	Name       string `json:"name"`
	User1      string `json:"user1"`
	User2      string `json:"user2"`
	User1Photo string `json:"user1_avatar_url"`
	User2Photo string `json:"user2_avatar_url"`
}

// Decode parses a single inbound frame into an Event.
func Decode(data []byte) (Event, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case TypeMessage, TypeFile:
		if env.Data == nil {
			return nil, fmt.Errorf("%w: %s frame without data", ErrMalformedFrame, env.Type)
		}
		content := env.Data.Content
		if env.Type == TypeFile {
			content = "[attachment] " + env.Data.FileName
		}
		return MessageEvent{Message: model.Message{
			ID:        env.Data.MessageID,
			ChatID:    env.Data.ChatID,
			Sender:    env.Username,
			AvatarURL: env.AvatarURL,
			Content:   content,
			Timestamp: model.ParseTimestamp(env.Timestamp),
			ReplyTo:   env.Data.ReplyTo,
		}}, nil
	case TypeEdit:
		return EditEvent{ChatID: env.ChatID, MessageID: env.MessageID, Content: env.NewContent}, nil
	case TypeDelete:
		return DeleteEvent{ChatID: env.ChatID, MessageID: env.MessageID}, nil
	case TypeError:
		return ErrorEvent{Message: env.Message}, nil
	case TypeChatCreated:
		if env.Chat == nil {
			return nil, fmt.Errorf("%w: chat_created frame without chat", ErrMalformedFrame)
		}
		return ChatCreatedEvent{
			ChatID:     env.Chat.ChatID,
			Name:       env.Chat.Name,
			User1:      env.Chat.User1,
			User2:      env.Chat.User2,
			User1Photo: env.Chat.User1Photo,
			User2Photo: env.Chat.User2Photo,
		}, nil
	case TypeChatDeleted:
		return ChatDeletedEvent{ChatID: env.ChatID}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type discriminator", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, env.Type)
	}
}

type outboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

type outboundEdit struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

type outboundDelete struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
}

// EncodeMessage builds an outbound new-message frame. Sends are
// fire-and-forget: there is no per-message acknowledgement channel.
func EncodeMessage(content string, replyTo *int64) ([]byte, error) {
	return json.Marshal(outboundMessage{Type: TypeMessage, Content: content, ReplyTo: replyTo})
}

// EncodeEdit builds an outbound edit frame.
func EncodeEdit(messageID int64, content string) ([]byte, error) {
	return json.Marshal(outboundEdit{Type: TypeEdit, MessageID: messageID, Content: content})
}

// EncodeDelete builds an outbound delete frame.
func EncodeDelete(messageID int64) ([]byte, error) {
	return json.Marshal(outboundDelete{Type: TypeDelete, MessageID: messageID})
}
