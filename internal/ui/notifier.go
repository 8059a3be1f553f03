package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/saravenpi/chatterbox/internal/log"
)

// NotificationMsg carries a session notification into the Update loop.
type NotificationMsg struct {
	Message string
	IsError bool
}

// TeaNotifier implements session.Notifier by queueing notifications for the
// program. Sends never block; when the queue is full the notice is dropped.
type TeaNotifier struct {
	ch chan NotificationMsg
}

func NewTeaNotifier() *TeaNotifier {
	return &TeaNotifier{ch: make(chan NotificationMsg, 32)}
}

func (n *TeaNotifier) Error(msg string) { n.push(NotificationMsg{Message: msg, IsError: true}) }

func (n *TeaNotifier) Info(msg string) { n.push(NotificationMsg{Message: msg}) }

func (n *TeaNotifier) push(msg NotificationMsg) {
	select {
	case n.ch <- msg:
	default:
		log.Warn(log.CatUI, "notification dropped", "message", msg.Message)
	}
}

// Listen returns a command that waits for the next notification.
func (n *TeaNotifier) Listen() tea.Cmd {
	return func() tea.Msg {
		return <-n.ch
	}
}
