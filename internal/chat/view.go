// Package chat wires one open chat view: the history snapshot, the chat
// topic's push connection, and the message store they reconcile into.
package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/coterie-chat/coterie/internal/conn"
	"github.com/coterie-chat/coterie/internal/logging"
	"github.com/coterie-chat/coterie/internal/model"
	"github.com/coterie-chat/coterie/internal/store"
	"github.com/coterie-chat/coterie/internal/wire"
)

// HistoryFetcher is the REST slice a chat view needs.
type HistoryFetcher interface {
	History(ctx context.Context, chatID int64) ([]model.Message, error)
}

// Config assembles a chat view.
type Config struct {
	ChatID  int64
	Fetcher HistoryFetcher

	// Websocket wiring, passed through to the supervisor.
	WSBaseURL      string
	Tokens         conn.TokenSource
	Dialer         conn.Dialer
	ReconnectDelay time.Duration

	// OnChange fires whenever the visible message list changed.
	OnChange func()
	// OnNotice receives in-band server error notices.
	OnNotice func(string)
	// OnState observes connection-state transitions.
	OnState func(conn.State)
	// OnError receives the snapshot fetch failure, if any.
	OnError func(error)
}

// View owns the reconciliation for one open chat. The snapshot fetch and the
// push subscription start concurrently; the store buffers live events that
// outrun the snapshot and replays them after the merge, so neither launch
// order nor network races can drop or double-apply an event.
type View struct {
	chatID int64
	store  *store.Store
	sup    *conn.Supervisor
	cancel context.CancelFunc
	log    zerolog.Logger
}

// Open starts a chat view: the store is created empty, the snapshot fetch is
// launched, and the push connection is opened, all before either completes.
func Open(ctx context.Context, cfg Config) *View {
	ctx, cancel := context.WithCancel(ctx)
	v := &View{
		chatID: cfg.ChatID,
		store:  store.New(cfg.ChatID),
		cancel: cancel,
		log:    logging.WithChat(cfg.ChatID),
	}

	v.sup = conn.NewSupervisor(conn.Config{
		Topic:          conn.ChatTopic(cfg.ChatID),
		BaseURL:        cfg.WSBaseURL,
		Tokens:         cfg.Tokens,
		Dialer:         cfg.Dialer,
		ReconnectDelay: cfg.ReconnectDelay,
		OnState:        cfg.OnState,
		OnEvent: func(event wire.Event) {
			if notice, ok := event.(wire.ErrorEvent); ok {
				if cfg.OnNotice != nil {
					cfg.OnNotice(notice.Message)
				}
				return
			}
			if v.store.Apply(event) && cfg.OnChange != nil {
				cfg.OnChange()
			}
		},
	})

	go v.loadSnapshot(ctx, cfg)
	if err := v.sup.Open(); err != nil {
		v.log.Warn().Err(err).Msg("push connection not opened")
	}
	return v
}

func (v *View) loadSnapshot(ctx context.Context, cfg Config) {
	messages, err := cfg.Fetcher.History(ctx, v.chatID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		v.log.Warn().Err(err).Msg("history fetch failed")
		if cfg.OnError != nil {
			cfg.OnError(err)
		}
		return
	}

	v.store.LoadSnapshot(messages)
	if cfg.OnChange != nil {
		cfg.OnChange()
	}
}

// Store exposes the reconciled message collection.
func (v *View) Store() *store.Store { return v.store }

// ConnState reports the push connection's current state.
func (v *View) ConnState() conn.State { return v.sup.State() }

// Send submits a new message over the socket, optionally as a reply.
func (v *View) Send(content string, replyTo *int64) error {
	frame, err := wire.EncodeMessage(content, replyTo)
	if err != nil {
		return err
	}
	return v.sup.Send(frame)
}

// SendEdit rewrites a message's content over the socket. The server echoes
// the edit back on the chat topic; the echo is what updates the store.
func (v *View) SendEdit(messageID int64, content string) error {
	frame, err := wire.EncodeEdit(messageID, content)
	if err != nil {
		return err
	}
	return v.sup.Send(frame)
}

// SendDelete removes a message over the socket. Like SendEdit, the store
// update arrives as the server's echo.
func (v *View) SendDelete(messageID int64) error {
	frame, err := wire.EncodeDelete(messageID)
	if err != nil {
		return err
	}
	return v.sup.Send(frame)
}

// Close tears the view down: the socket closure is requested synchronously
// and the store refuses any event that resolves afterwards.
func (v *View) Close() {
	v.cancel()
	v.sup.Close()
	v.store.Close()
}
