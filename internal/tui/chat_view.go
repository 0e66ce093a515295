package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/coterie-chat/coterie/internal/chat"
	"github.com/coterie-chat/coterie/internal/conn"
	"github.com/coterie-chat/coterie/internal/logging"
	"github.com/coterie-chat/coterie/internal/model"
	"github.com/coterie-chat/coterie/internal/store"
	"github.com/coterie-chat/coterie/internal/timeline"
	"github.com/coterie-chat/coterie/internal/wire"
)

// Results of REST edit/delete calls. The REST route does not broadcast, so
// the mutation is applied to the local store when the call succeeds.
type (
	messageEditedMsg struct {
		chatID    int64
		messageID int64
		content   string
	}
	messageDeletedMsg struct {
		chatID    int64
		messageID int64
	}
)

// chatView renders one open conversation: the grouped timeline, the compose
// field and the connection badge.
type chatView struct {
	m         *Model
	entry     model.RosterEntry
	view      *chat.View
	connState conn.State

	compose textinput.Model
	cursor  int
	replyTo *int64
	editing *int64
}

func newChatView(m *Model) *chatView {
	ti := textinput.New()
	ti.Placeholder = "message"
	ti.CharLimit = 4096
	return &chatView{m: m, compose: ti}
}

// open binds the view to a live chat and restores any saved draft.
func (v *chatView) open(entry model.RosterEntry, view *chat.View) {
	v.entry = entry
	v.view = view
	v.connState = conn.StateConnecting
	v.cursor = -1
	v.replyTo = nil
	v.editing = nil

	v.compose.Reset()
	ctx, cancel := draftContext()
	defer cancel()
	draft, err := v.m.drafts.Load(ctx, entry.ID)
	if err != nil {
		logging.Warn().Err(err).Int64("chat_id", entry.ID).Msg("draft load failed")
	} else {
		v.compose.SetValue(draft)
	}
	v.compose.Focus()
}

// close saves the draft and releases the chat resources.
func (v *chatView) close() {
	if v.view == nil {
		return
	}
	ctx, cancel := draftContext()
	defer cancel()
	if err := v.m.drafts.Save(ctx, v.entry.ID, v.compose.Value()); err != nil {
		logging.Warn().Err(err).Int64("chat_id", v.entry.ID).Msg("draft save failed")
	}
	v.view.Close()
	v.view = nil
}

func (v *chatView) composing() bool {
	return v.compose.Focused()
}

func (v *chatView) Update(msg tea.Msg) tea.Cmd {
	if v.view == nil {
		return nil
	}

	switch msg := msg.(type) {
	case messageEditedMsg:
		if msg.chatID == v.entry.ID {
			v.view.Store().Apply(wire.EditEvent{ChatID: msg.chatID, MessageID: msg.messageID, Content: msg.content})
		}
		return nil
	case messageDeletedMsg:
		if msg.chatID == v.entry.ID {
			v.view.Store().Apply(wire.DeleteEvent{ChatID: msg.chatID, MessageID: msg.messageID})
		}
		return nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	messages := v.liveMessages()
	switch key.String() {
	case "esc":
		if v.replyTo != nil || v.editing != nil {
			v.replyTo = nil
			v.editing = nil
			v.compose.Reset()
			return nil
		}
		v.m.closeChat()
		return nil
	case "up":
		if v.cursor == -1 {
			v.cursor = len(messages) - 1
		} else if v.cursor > 0 {
			v.cursor--
		}
		return nil
	case "down":
		if v.cursor >= 0 && v.cursor < len(messages)-1 {
			v.cursor++
		} else {
			v.cursor = -1
		}
		return nil
	case "ctrl+r":
		if sel := v.selected(messages); sel != nil {
			id := sel.ID
			v.replyTo = &id
			v.editing = nil
		}
		return nil
	case "ctrl+e":
		if sel := v.selected(messages); sel != nil && sel.Sender == v.m.user.Username {
			id := sel.ID
			v.editing = &id
			v.replyTo = nil
			v.compose.SetValue(sel.Content)
			v.compose.CursorEnd()
		}
		return nil
	case "ctrl+d":
		if sel := v.selected(messages); sel != nil && sel.Sender == v.m.user.Username {
			return v.deleteMessage(sel.ID)
		}
		return nil
	case "enter":
		return v.submit()
	}

	var cmd tea.Cmd
	v.compose, cmd = v.compose.Update(msg)
	return cmd
}

// liveMessages is the current timeline minus tombstones that never render a
// selectable body. Deleted messages stay selectable so their position is
// visible, so this is just the full store order.
func (v *chatView) liveMessages() []model.Message {
	if v.view == nil {
		return nil
	}
	return v.view.Store().Messages()
}

func (v *chatView) selected(messages []model.Message) *model.Message {
	if v.cursor < 0 || v.cursor >= len(messages) {
		return nil
	}
	return &messages[v.cursor]
}

func (v *chatView) submit() tea.Cmd {
	content := strings.TrimSpace(v.compose.Value())
	if content == "" {
		return nil
	}

	if v.editing != nil {
		id := *v.editing
		v.editing = nil
		v.compose.Reset()
		if err := v.view.SendEdit(id, content); err == nil {
			return nil
		}
		// Socket down: use the REST route. It does not echo, so apply the
		// edit locally once it succeeds.
		chatID := v.entry.ID
		client := v.m.client
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.EditMessage(ctx, id, content); err != nil {
				return restErrMsg{err: err}
			}
			return messageEditedMsg{chatID: chatID, messageID: id, content: content}
		}
	}

	replyTo := v.replyTo
	v.replyTo = nil
	v.compose.Reset()
	if err := v.view.Send(content, replyTo); err != nil {
		return func() tea.Msg { return restErrMsg{err: err} }
	}
	return nil
}

func (v *chatView) deleteMessage(id int64) tea.Cmd {
	if err := v.view.SendDelete(id); err == nil {
		return nil
	}
	chatID := v.entry.ID
	client := v.m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.DeleteMessage(ctx, id); err != nil {
			return restErrMsg{err: err}
		}
		return messageDeletedMsg{chatID: chatID, messageID: id}
	}
}

func (v *chatView) View(width, height int) string {
	if v.view == nil {
		return ""
	}

	var b strings.Builder
	title := fmt.Sprintf(" %s ", v.entry.Name)
	b.WriteString(headerStyle.Render(title))
	b.WriteString(" ")
	b.WriteString(connBadge(v.connState.String()))
	b.WriteString("\n")

	st := v.view.Store()
	messages := st.Messages()
	groups := timeline.ByDate(messages, time.Now())

	var lines []string
	idx := 0
	for _, g := range groups {
		lines = append(lines, dateLabelStyle.Render("── "+g.Label+" ──"))
		for _, msg := range g.Messages {
			lines = append(lines, v.renderMessage(msg, st, idx == v.cursor))
			idx++
		}
	}

	// Keep the tail of the timeline on screen, leaving room for the
	// header, compose line and status line.
	visible := height - 4
	if visible < 1 {
		visible = 1
	}
	if v.cursor == -1 && len(lines) > visible {
		lines = lines[len(lines)-visible:]
	} else if len(lines) > visible {
		start := v.cursor
		if start > len(lines)-visible {
			start = len(lines) - visible
		}
		if start < 0 {
			start = 0
		}
		lines = lines[start : start+visible]
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")

	if v.editing != nil {
		b.WriteString(replyStyle.Render("editing"))
		b.WriteString(" ")
	} else if v.replyTo != nil {
		b.WriteString(replyStyle.Render("replying"))
		b.WriteString(" ")
	}
	b.WriteString(v.compose.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  enter send · ↑/↓ select · ^r reply · ^e edit · ^d delete · esc back"))
	return b.String()
}

func (v *chatView) renderMessage(msg model.Message, st *store.Store, selected bool) string {
	var b strings.Builder
	if selected {
		b.WriteString(selectedStyle.Render(">"))
	} else {
		b.WriteString(" ")
	}
	b.WriteString(" ")

	if msg.Deleted {
		b.WriteString(deletedStyle.Render("message deleted"))
		return b.String()
	}

	reply := store.Resolve(msg, st)
	if reply.Status == store.ReplyResolved {
		b.WriteString(replyStyle.Render("↳ " + reply.Sender + ": " + truncate(reply.Content, 40)))
		b.WriteString("\n   ")
	} else if reply.Status == store.ReplyTombstone {
		b.WriteString(replyStyle.Render("↳ message deleted"))
		b.WriteString("\n   ")
	}

	sender := senderStyle
	if msg.Sender == v.m.user.Username {
		sender = ownSenderStyle
	}
	b.WriteString(sender.Render(msg.Sender))
	if !msg.Timestamp.IsZero() {
		b.WriteString(" ")
		b.WriteString(timestampStyle.Render(msg.Timestamp.Local().Format("15:04")))
	}
	b.WriteString("  ")
	b.WriteString(msg.Content)
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
