package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// rosterView lists the user's chats and hosts the new-chat prompt.
type rosterView struct {
	m        *Model
	cursor   int
	creating bool
	input    textinput.Model
}

func newRosterView(m *Model) *rosterView {
	ti := textinput.New()
	ti.Placeholder = "username"
	ti.CharLimit = 64
	ti.Width = 32
	return &rosterView{m: m, input: ti}
}

func (v *rosterView) Update(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	if v.creating {
		switch key.String() {
		case "esc":
			v.creating = false
			v.input.Reset()
			return nil
		case "enter":
			target := strings.TrimSpace(v.input.Value())
			v.creating = false
			v.input.Reset()
			if target == "" {
				return nil
			}
			return v.createChat(target)
		}
		var cmd tea.Cmd
		v.input, cmd = v.input.Update(msg)
		return cmd
	}

	entries := v.m.roster.Entries()
	switch key.String() {
	case "up", "k":
		if v.cursor > 0 {
			v.cursor--
		}
	case "down", "j":
		if v.cursor < len(entries)-1 {
			v.cursor++
		}
	case "enter":
		if v.cursor < len(entries) {
			v.m.openChat(entries[v.cursor])
		}
	case "n":
		v.creating = true
		v.input.Focus()
		return textinput.Blink
	case "d":
		if v.cursor < len(entries) {
			return v.deleteChat(entries[v.cursor].ID)
		}
	case "q":
		return tea.Quit
	}
	return nil
}

func (v *rosterView) createChat(target string) tea.Cmd {
	client := v.m.client
	me := v.m.sess.Username()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		chatID, err := client.CreateChat(ctx, me, target)
		if err != nil {
			return restErrMsg{err: err}
		}
		return chatCreatedMsg{chatID: chatID}
	}
}

func (v *rosterView) deleteChat(chatID int64) tea.Cmd {
	client := v.m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.DeleteChat(ctx, chatID); err != nil {
			return restErrMsg{err: err}
		}
		return chatDeletedMsg{chatID: chatID}
	}
}

func (v *rosterView) View(width, height int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf(" coterie · %s ", v.m.sess.Username())))
	b.WriteString("\n\n")

	entries := v.m.roster.Entries()
	if v.cursor >= len(entries) && len(entries) > 0 {
		v.cursor = len(entries) - 1
	}

	if len(entries) == 0 {
		b.WriteString(helpStyle.Render("  no chats yet; press n to start one"))
		b.WriteString("\n")
	}
	for i, e := range entries {
		line := "  " + e.Name
		if e.InterlocutorDeleted {
			line += deletedStyle.Render(" (deleted account)")
		}
		if i == v.cursor {
			line = selectedStyle.Render("> " + e.Name)
			if e.InterlocutorDeleted {
				line += deletedStyle.Render(" (deleted account)")
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if v.creating {
		b.WriteString("\n")
		b.WriteString("  new chat with: ")
		b.WriteString(v.input.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  enter open · n new · d delete · q quit"))
	return lipgloss.NewStyle().Width(width).Render(b.String())
}
