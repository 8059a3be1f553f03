package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/saravenpi/chatterbox/internal/models"
	"github.com/saravenpi/chatterbox/internal/session"
)

const composerHeight = 3

// Conversation shows the open conversation and the composer under it.
type Conversation struct {
	contact  *models.Contact
	messages []models.Message
	viewport viewport.Model
	textarea textarea.Model
	width    int
}

func NewConversation() Conversation {
	vp := viewport.New(80, 20)

	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.CharLimit = 1000
	ta.SetHeight(composerHeight)
	ta.ShowLineNumbers = false

	return Conversation{viewport: vp, textarea: ta, width: 80}
}

// Sync replaces the rendered conversation with the one in snap.
func (c Conversation) Sync(snap session.Snapshot) Conversation {
	switched := c.contact == nil || snap.Selected == nil || c.contact.ID != snap.Selected.ID
	grew := len(snap.Messages) > len(c.messages)

	c.contact = snap.Selected
	c.messages = snap.Messages
	c.viewport.SetContent(c.render())
	if switched || grew {
		c.viewport.GotoBottom()
	}
	return c
}

func (c Conversation) SetSize(width, height int) Conversation {
	c.width = width
	c.viewport.Width = width
	c.viewport.Height = max(height-composerHeight-4, 1)
	c.textarea.SetWidth(width)
	c.viewport.SetContent(c.render())
	return c
}

func (c Conversation) Focus() (Conversation, tea.Cmd) {
	cmd := c.textarea.Focus()
	return c, cmd
}

func (c Conversation) Blur() Conversation {
	c.textarea.Blur()
	return c
}

// Draft returns the composer text and clears it.
func (c Conversation) Draft() (Conversation, string) {
	text := c.textarea.Value()
	c.textarea.Reset()
	return c, text
}

func (c Conversation) UpdateComposer(msg tea.Msg) (Conversation, tea.Cmd) {
	var cmd tea.Cmd
	c.textarea, cmd = c.textarea.Update(msg)
	return c, cmd
}

func (c Conversation) UpdateViewport(msg tea.Msg) (Conversation, tea.Cmd) {
	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	return c, cmd
}

func (c Conversation) render() string {
	if c.contact == nil || len(c.messages) == 0 {
		return ""
	}

	wrapWidth := c.viewport.Width
	if wrapWidth <= 0 {
		wrapWidth = 80
	}
	right := lipgloss.NewStyle().Align(lipgloss.Right).Width(wrapWidth)

	var content strings.Builder
	for i, message := range c.messages {
		if i > 0 {
			content.WriteString("\n")
		}

		timestamp := ""
		if !message.CreatedAt.IsZero() {
			timestamp = " • " + message.CreatedAt.Local().Format("3:04 PM")
		}
		fromOther := message.SenderID == c.contact.ID

		sender := "You"
		if fromOther {
			sender = c.contact.FullName
		}
		header := messageHeaderStyle.Render(sender + timestamp)

		var lines []string
		if message.Content != "" {
			wrapped := wordwrap.String(message.Content, max(wrapWidth-10, 10))
			if fromOther {
				lines = append(lines, messageFromOtherStyle.Render(wrapped))
			} else {
				lines = append(lines, messageFromMeStyle.Render(wrapped))
			}
		}
		if message.Image != "" {
			lines = append(lines, messageHeaderStyle.Render(fmt.Sprintf("📎 [Image: %s]", truncate(message.Image, 40))))
		}

		if fromOther {
			content.WriteString(header + "\n")
			for _, line := range lines {
				content.WriteString(line + "\n")
			}
			continue
		}
		content.WriteString(right.Render(header) + "\n")
		for _, line := range lines {
			content.WriteString(right.Render(line) + "\n")
		}
	}
	return content.String()
}

func (c Conversation) View(loading, composing bool, spin string) string {
	if c.contact == nil {
		return "\n" + normalStyle.Render("  Select a contact to start chatting.")
	}

	s := titleStyle.Render("💬 "+c.contact.FullName) + "\n"

	switch {
	case loading && len(c.messages) == 0:
		s += fmt.Sprintf("  %s Loading messages...\n", spin)
	case len(c.messages) == 0:
		s += normalStyle.Render("  No messages in this conversation.") + "\n"
	default:
		s += c.viewport.View() + "\n"
	}

	if composing {
		s += inputStyle.Render("New Message:") + "\n" + c.textarea.View()
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
