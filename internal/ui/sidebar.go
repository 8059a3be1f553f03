package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/saravenpi/chatterbox/internal/models"
	"github.com/saravenpi/chatterbox/internal/session"
)

type contactItem struct {
	contact  models.Contact
	unread   int
	online   bool
	selected bool
}

func (i contactItem) FilterValue() string { return i.contact.FullName }

func (i contactItem) Title() string {
	title := i.contact.FullName
	if i.selected {
		title = "▸ " + title
	}
	if badge := FormatBadge(i.unread); badge != "" {
		title += " " + badgeStyle.Render(badge)
	}
	return title
}

func (i contactItem) Description() string {
	if i.online {
		return onlineDotStyle.Render("●") + " Online"
	}
	return offlineDotStyle.Render("○") + " Offline"
}

// Sidebar lists contacts with their unread badge and online state.
type Sidebar struct {
	list       list.Model
	onlineOnly bool
	count      int
}

func NewSidebar(onlineOnly bool) Sidebar {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("5")).
		Bold(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("8"))

	l := list.New([]list.Item{}, delegate, 30, 20)
	l.Title = "Contacts"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return Sidebar{list: l, onlineOnly: onlineOnly}
}

// Sync rebuilds the items from snap, keeping the cursor on the same contact.
func (s Sidebar) Sync(snap session.Snapshot) Sidebar {
	contacts := snap.Contacts
	if s.onlineOnly {
		contacts = lo.Filter(contacts, func(c models.Contact, _ int) bool { return snap.IsOnline(c.ID) })
	}

	cursorID := ""
	if item, ok := s.list.SelectedItem().(contactItem); ok {
		cursorID = item.contact.ID
	}

	items := lo.Map(contacts, func(c models.Contact, _ int) list.Item {
		return contactItem{
			contact:  c,
			unread:   snap.UnreadFor(c.ID),
			online:   snap.IsOnline(c.ID),
			selected: c.ID == snap.SelectedID(),
		}
	})
	s.list.SetItems(items)
	s.count = len(items)

	if _, idx, found := lo.FindIndexOf(contacts, func(c models.Contact) bool { return c.ID == cursorID }); found {
		s.list.Select(idx)
	}

	online := lo.CountBy(snap.Contacts, func(c models.Contact) bool { return snap.IsOnline(c.ID) })
	s.list.Title = fmt.Sprintf("Contacts (%d online)", online)
	return s
}

// ToggleOnlineOnly flips the online filter.
func (s Sidebar) ToggleOnlineOnly(snap session.Snapshot) Sidebar {
	s.onlineOnly = !s.onlineOnly
	return s.Sync(snap)
}

// Current returns the contact under the cursor.
func (s Sidebar) Current() (models.Contact, bool) {
	item, ok := s.list.SelectedItem().(contactItem)
	if !ok {
		return models.Contact{}, false
	}
	return item.contact, true
}

func (s Sidebar) SetSize(width, height int) Sidebar {
	s.list.SetSize(width, height)
	return s
}

func (s Sidebar) Update(msg tea.Msg) (Sidebar, tea.Cmd) {
	var cmd tea.Cmd
	s.list, cmd = s.list.Update(msg)
	return s, cmd
}

func (s Sidebar) View(loading bool, spin string) string {
	if loading && s.count == 0 {
		return fmt.Sprintf("\n  %s Loading contacts...\n", spin)
	}
	if s.count == 0 {
		empty := "No contacts found."
		if s.onlineOnly {
			empty = "No online users"
		}
		return titleStyle.Render(s.list.Title) + "\n" + normalStyle.Render("  "+empty)
	}
	return s.list.View()
}
