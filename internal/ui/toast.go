package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ToastStyle determines the visual appearance of the toast.
type ToastStyle int

const (
	ToastInfo ToastStyle = iota
	ToastError
)

// Toast is a single transient notification shown at the bottom of the screen.
type Toast struct {
	message string
	style   ToastStyle
	visible bool
	// seq identifies the toast currently shown so a stale dismiss is ignored.
	seq int
}

// Show displays message, replacing any visible toast.
func (t Toast) Show(message string, style ToastStyle) Toast {
	t.message = message
	t.style = style
	t.visible = true
	t.seq++
	return t
}

// Hide dismisses the toast.
func (t Toast) Hide() Toast {
	t.visible = false
	t.message = ""
	return t
}

func (t Toast) Visible() bool {
	return t.visible
}

// Dismiss hides the toast if msg was scheduled for the one on screen.
func (t Toast) Dismiss(msg DismissMsg) Toast {
	if msg.seq != t.seq {
		return t
	}
	return t.Hide()
}

// View renders the toast box.
func (t Toast) View() string {
	if !t.visible || t.message == "" {
		return ""
	}

	style := lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder())

	switch t.style {
	case ToastError:
		return style.BorderForeground(toastErrorBorder).Render("✖ " + t.message)
	default:
		return style.BorderForeground(toastInfoBorder).Render("● " + t.message)
	}
}

// Overlay places the toast centered under bg.
func (t Toast) Overlay(bg string, width int) string {
	fg := t.View()
	if fg == "" {
		return bg
	}
	return lipgloss.JoinVertical(lipgloss.Left, bg, lipgloss.PlaceHorizontal(width, lipgloss.Center, fg))
}

// DismissMsg signals that a toast should be dismissed.
type DismissMsg struct {
	seq int
}

// ScheduleDismiss returns a command that dismisses the current toast after d.
func (t Toast) ScheduleDismiss(d time.Duration) tea.Cmd {
	seq := t.seq
	return tea.Tick(d, func(time.Time) tea.Msg {
		return DismissMsg{seq: seq}
	})
}
