// Package ui is the terminal front end of a chat session: a contact sidebar
// with unread badges, the open conversation, a composer and toasts.
package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/saravenpi/chatterbox/internal/log"
	"github.com/saravenpi/chatterbox/internal/models"
	"github.com/saravenpi/chatterbox/internal/pubsub"
	"github.com/saravenpi/chatterbox/internal/session"
)

const (
	sidebarMaxWidth      = 32
	defaultToastDuration = 3 * time.Second
)

// Options tunes the view.
type Options struct {
	ToastDuration  time.Duration
	ShowOnlineOnly bool
	// OnReload runs before a user-requested contact reload, e.g. to drop a cache.
	OnReload func()
}

// Model is the root bubbletea model. It never mutates session state itself;
// every change goes through the store and comes back as a change event.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	store    *session.Store
	notifier *TeaNotifier
	listener *pubsub.ContinuousListener[session.Snapshot]

	snap          session.Snapshot
	sidebar       Sidebar
	conversation  Conversation
	spinner       spinner.Model
	spinning      bool
	toast         Toast
	toastDuration time.Duration
	onReload      func()
	focus         models.Focus

	width  int
	height int
}

// New builds the view for store. notifier must be the one the store reports to.
func New(ctx context.Context, store *session.Store, notifier *TeaNotifier, opts Options) Model {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	if opts.ToastDuration <= 0 {
		opts.ToastDuration = defaultToastDuration
	}

	m := Model{
		ctx:           ctx,
		cancel:        cancel,
		store:         store,
		notifier:      notifier,
		listener:      pubsub.NewContinuousListener[session.Snapshot](ctx, store),
		sidebar:       NewSidebar(opts.ShowOnlineOnly),
		conversation:  NewConversation(),
		spinner:       s,
		toastDuration: opts.ToastDuration,
		onReload:      opts.OnReload,
		focus:         models.FocusSidebar,
		width:         80,
		height:        30,
	}
	return m.sync()
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.listener.Listen(),
		m.notifier.Listen(),
		m.subscribeCmd(),
		m.loadContactsCmd(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m.layout(), nil

	case pubsub.Event[session.Snapshot]:
		// Re-read instead of trusting the payload: events may be dropped under load.
		m = m.sync()
		spin := m.startSpinner()
		return m, tea.Batch(m.listener.Listen(), spin)

	case NotificationMsg:
		style := ToastInfo
		if msg.IsError {
			style = ToastError
		}
		m.toast = m.toast.Show(msg.Message, style)
		return m, tea.Batch(m.toast.ScheduleDismiss(m.toastDuration), m.notifier.Listen())

	case DismissMsg:
		m.toast = m.toast.Dismiss(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.loading() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.focus == models.FocusComposer {
			return m.updateComposer(msg)
		}
		return m.updateSidebar(msg)
	}

	return m, nil
}

func (m Model) updateComposer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.focus = models.FocusSidebar
		m.conversation = m.conversation.Blur()
		return m, nil

	case "ctrl+s":
		var text string
		m.conversation, text = m.conversation.Draft()
		text = strings.TrimSpace(text)
		if text == "" {
			return m, nil
		}
		return m, m.sendCmd(models.SendPayload{Content: text})

	default:
		var cmd tea.Cmd
		m.conversation, cmd = m.conversation.UpdateComposer(msg)
		return m, cmd
	}
}

func (m Model) updateSidebar(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m.quit()

	case "enter":
		contact, ok := m.sidebar.Current()
		if !ok {
			return m, nil
		}
		m.store.SelectContact(contact)
		return m.sync(), m.loadConversationCmd(contact.ID)

	case "tab":
		if m.snap.Selected == nil {
			return m, nil
		}
		m.focus = models.FocusComposer
		var cmd tea.Cmd
		m.conversation, cmd = m.conversation.Focus()
		return m, cmd

	case "o":
		m.sidebar = m.sidebar.ToggleOnlineOnly(m.snap)
		return m, nil

	case "r":
		if m.onReload != nil {
			m.onReload()
		}
		return m, m.loadContactsCmd()

	case "esc":
		m.store.ClearSelection()
		return m.sync(), nil

	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.conversation, cmd = m.conversation.UpdateViewport(msg)
		return m, cmd

	default:
		var cmd tea.Cmd
		m.sidebar, cmd = m.sidebar.Update(msg)
		return m, cmd
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.store.UnsubscribeFromTransport()
	m.cancel()
	log.Debug(log.CatUI, "quit")
	return m, tea.Quit
}

func (m Model) View() string {
	spin := m.spinner.View()

	sidebarWidth, convWidth, bodyHeight := m.dimensions()

	left := paneStyle
	right := paneStyle
	if m.focus == models.FocusComposer {
		right = focusedPaneStyle
	} else {
		left = focusedPaneStyle
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		left.Width(sidebarWidth).Height(bodyHeight).Render(m.sidebar.View(m.snap.ContactsLoading, spin)),
		right.Width(convWidth).Height(bodyHeight).Render(
			m.conversation.View(m.snap.MessagesLoading, m.focus == models.FocusComposer, spin)),
	)

	s := body + "\n" + helpStyle.Render(m.help())
	return m.toast.Overlay(s, m.width)
}

func (m Model) help() string {
	if m.focus == models.FocusComposer {
		return "ctrl+s: send • esc: back to contacts • ctrl+c: quit"
	}
	return "↑↓/jk: navigate • enter: open • tab: write • o: online only • r: refresh • esc: close • q: quit"
}

func (m Model) dimensions() (sidebarWidth, convWidth, bodyHeight int) {
	sidebarWidth = min(sidebarMaxWidth, m.width/3)
	convWidth = max(m.width-sidebarWidth-4, 10)
	bodyHeight = max(m.height-5, 3)
	return sidebarWidth, convWidth, bodyHeight
}

func (m Model) layout() Model {
	sidebarWidth, convWidth, bodyHeight := m.dimensions()
	m.sidebar = m.sidebar.SetSize(sidebarWidth, bodyHeight)
	m.conversation = m.conversation.SetSize(convWidth, bodyHeight)
	return m
}

// sync pulls the latest snapshot from the store into the sub-views.
func (m Model) sync() Model {
	m.snap = m.store.Snapshot()
	m.sidebar = m.sidebar.Sync(m.snap)
	m.conversation = m.conversation.Sync(m.snap)
	if m.snap.Selected == nil && m.focus == models.FocusComposer {
		m.focus = models.FocusSidebar
		m.conversation = m.conversation.Blur()
	}
	return m
}

func (m Model) loading() bool {
	return m.snap.ContactsLoading || m.snap.MessagesLoading
}

// startSpinner starts the tick loop when something is loading and it is not
// already running.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinning || !m.loading() {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m Model) subscribeCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		store.SubscribeToTransport()
		return nil
	}
}

func (m Model) loadContactsCmd() tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		store.LoadContacts(ctx)
		return nil
	}
}

func (m Model) loadConversationCmd(contactID string) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		store.LoadConversation(ctx, contactID)
		return nil
	}
}

func (m Model) sendCmd(payload models.SendPayload) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		store.SendMessage(ctx, payload)
		return nil
	}
}
