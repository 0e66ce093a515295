// Package tui renders the chat client in the terminal with bubbletea. The
// Update loop is the single cooperative scheduler: socket frames, poll
// results and timers all arrive as messages and are applied one at a time,
// so no partially-applied event is ever observable.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/coterie-chat/coterie/internal/api"
	"github.com/coterie-chat/coterie/internal/chat"
	"github.com/coterie-chat/coterie/internal/config"
	"github.com/coterie-chat/coterie/internal/conn"
	"github.com/coterie-chat/coterie/internal/db"
	"github.com/coterie-chat/coterie/internal/logging"
	"github.com/coterie-chat/coterie/internal/model"
	"github.com/coterie-chat/coterie/internal/roster"
	"github.com/coterie-chat/coterie/internal/session"
	"github.com/coterie-chat/coterie/internal/wire"
)

const eventBuffer = 256

type screenID int

const (
	screenRoster screenID = iota
	screenChat
)

// Messages that cross from background goroutines into the Update loop.
type (
	rosterUpdatedMsg  struct{}
	chatChangedMsg    struct{ chatID int64 }
	connStateMsg      struct{ state conn.State }
	noticeMsg         struct{ text string }
	restErrMsg        struct{ err error }
	sessionExpiredMsg struct{}
	chatCreatedMsg    struct{ chatID int64 }
	chatDeletedMsg    struct{ chatID int64 }
)

// Run validates the stored session and enters the TUI.
func Run(cfg *config.Config, sess *session.Session, client *api.Client, drafts *db.DraftRepository) error {
	restored, err := sess.Restore(context.Background())
	if err != nil {
		return err
	}
	if !restored {
		return fmt.Errorf("not logged in; run `coterie login` first")
	}

	// Probe the token before taking over the terminal.
	user, err := client.CurrentUser(context.Background())
	if err != nil {
		return fmt.Errorf("session check failed: %w", err)
	}

	m := newModel(cfg, sess, client, drafts, user)
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err = program.Run()
	m.teardown()
	return err
}

// Model is the root bubbletea model.
type Model struct {
	cfg    *config.Config
	sess   *session.Session
	client *api.Client
	drafts *db.DraftRepository
	user   model.User

	// events carries notifications from socket readers, timers and poll
	// loops into the Update loop, preserving arrival order.
	events chan tea.Msg

	roster     *roster.Roster
	rosterSync *roster.Syncer
	rosterConn *conn.Supervisor
	syncCtx    context.CancelFunc

	screen     screenID
	rosterView *rosterView
	chatView   *chatView

	notice string
	width  int
	height int
}

func newModel(cfg *config.Config, sess *session.Session, client *api.Client, drafts *db.DraftRepository, user model.User) *Model {
	m := &Model{
		cfg:    cfg,
		sess:   sess,
		client: client,
		drafts: drafts,
		user:   user,
		events: make(chan tea.Msg, eventBuffer),
		roster: roster.New(user.Username),
		screen: screenRoster,
	}
	m.rosterView = newRosterView(m)
	m.chatView = newChatView(m)

	sess.OnClear(func() {
		m.events <- sessionExpiredMsg{}
	})

	m.rosterSync = roster.NewSyncer(roster.SyncerConfig{
		Roster:   m.roster,
		Fetcher:  client,
		Username: user.Username,
		Interval: cfg.RosterPollInterval(),
		OnUpdate: func() { m.events <- rosterUpdatedMsg{} },
		OnError:  func(err error) { m.events <- restErrMsg{err: err} },
	})

	m.rosterConn = conn.NewSupervisor(conn.Config{
		Topic:          conn.RosterTopic(),
		BaseURL:        cfg.WebsocketURL(),
		Tokens:         sess,
		ReconnectDelay: cfg.ReconnectDelay(),
		OnEvent: func(event wire.Event) {
			if notice, ok := event.(wire.ErrorEvent); ok {
				m.events <- noticeMsg{text: notice.Message}
				return
			}
			if m.roster.Apply(event) {
				m.events <- rosterUpdatedMsg{}
			}
		},
	})
	return m
}

// Init starts the roster sync machinery and subscribes to the event channel.
func (m *Model) Init() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.syncCtx = cancel
	m.rosterSync.Start(ctx)
	if err := m.rosterConn.Open(); err != nil {
		logging.Warn().Err(err).Msg("roster push connection not opened")
	}
	return m.waitEvent()
}

// pumpMsg wraps a notification taken off the event channel. Exactly one
// channel reader exists at a time, so arrival order is preserved.
type pumpMsg struct {
	inner tea.Msg
}

// waitEvent pumps one background notification into the Update loop; the
// pump re-subscribes after each delivery.
func (m *Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		return pumpMsg{inner: <-m.events}
	}
}

// Update is the single control flow of the client.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if pumped, ok := msg.(pumpMsg); ok {
		m.apply(pumped.inner)
		return m, m.waitEvent()
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case noticeMsg:
		m.notice = msg.text
		return m, nil

	case restErrMsg:
		m.notice = msg.err.Error()
		return m, nil

	case chatCreatedMsg:
		m.notice = ""
		return m, nil

	case chatDeletedMsg:
		if m.screen == screenChat && m.chatView.entry.ID == msg.chatID {
			m.closeChat()
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.notice != "" && msg.String() == "x" && !m.capturingInput() {
			m.notice = ""
			return m, nil
		}
	}

	switch m.screen {
	case screenChat:
		return m, m.chatView.Update(msg)
	default:
		return m, m.rosterView.Update(msg)
	}
}

// apply handles one pumped background notification. Stores were already
// mutated, atomically, on the delivering goroutine; this only reacts.
func (m *Model) apply(msg tea.Msg) {
	switch msg := msg.(type) {
	case sessionExpiredMsg:
		// Stale credential: every connection observes the cleared token and
		// stops retrying on its own.
		m.notice = "session expired; run `coterie login`"
	case connStateMsg:
		m.chatView.connState = msg.state
	case noticeMsg:
		m.notice = msg.text
	case restErrMsg:
		m.notice = msg.err.Error()
	case rosterUpdatedMsg, chatChangedMsg:
		// Re-render only.
	}
}

// View renders the current screen.
func (m *Model) View() string {
	body := ""
	switch m.screen {
	case screenChat:
		body = m.chatView.View(m.width, m.height-m.chromeHeight())
	default:
		body = m.rosterView.View(m.width, m.height-m.chromeHeight())
	}

	chrome := ""
	if m.notice != "" {
		chrome = "\n" + noticeStyle.Render(m.notice+"  (x to dismiss)")
	}
	return body + chrome
}

func (m *Model) chromeHeight() int {
	if m.notice != "" {
		return 1
	}
	return 0
}

// capturingInput reports whether a text field currently owns the keyboard.
func (m *Model) capturingInput() bool {
	if m.screen == screenChat {
		return m.chatView.composing()
	}
	return m.rosterView.creating
}

// openChat activates a chat view. The history fetch and the push connection
// start together; the store reconciles whichever finishes first.
func (m *Model) openChat(entry model.RosterEntry) {
	chatID := entry.ID
	view := chat.Open(context.Background(), chat.Config{
		ChatID:         chatID,
		Fetcher:        m.client,
		WSBaseURL:      m.cfg.WebsocketURL(),
		Tokens:         m.sess,
		ReconnectDelay: m.cfg.ReconnectDelay(),
		OnChange:       func() { m.events <- chatChangedMsg{chatID: chatID} },
		OnNotice:       func(text string) { m.events <- noticeMsg{text: text} },
		OnState:        func(state conn.State) { m.events <- connStateMsg{state: state} },
		OnError:        func(err error) { m.events <- restErrMsg{err: err} },
	})

	m.chatView.open(entry, view)
	m.screen = screenChat
}

// closeChat tears the active chat view down and returns to the roster.
func (m *Model) closeChat() {
	m.chatView.close()
	m.screen = screenRoster
}

// teardown releases everything the model owns. Safe after program exit.
func (m *Model) teardown() {
	if m.screen == screenChat {
		m.chatView.close()
	}
	m.rosterConn.Close()
	if m.syncCtx != nil {
		m.syncCtx()
	}
	m.rosterSync.Stop()
	m.roster.Close()
}

// draftContext bounds the quick state-DB writes issued from the Update loop.
func draftContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}
