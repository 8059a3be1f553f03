package session

import (
	"maps"
	"slices"

	"github.com/saravenpi/chatterbox/internal/models"
	"github.com/saravenpi/chatterbox/internal/pubsub"
)

// Change events published by the store. Every event carries a full Snapshot.
const (
	EventContacts     pubsub.EventType = "contacts"
	EventConversation pubsub.EventType = "conversation"
	EventSelection    pubsub.EventType = "selection"
	EventUnread       pubsub.EventType = "unread"
	EventLoading      pubsub.EventType = "loading"
	EventOnline       pubsub.EventType = "online"
	EventSubscription pubsub.EventType = "subscription"
)

// Snapshot is a copy of the session state. Mutating it does not affect the store.
type Snapshot struct {
	Contacts        []models.Contact
	Selected        *models.Contact
	Messages        []models.Message
	Unread          map[string]int
	Online          map[string]struct{}
	ContactsLoading bool
	MessagesLoading bool
	Subscribed      bool
}

// SelectedID returns the selected contact id, or "" when nothing is selected.
func (s Snapshot) SelectedID() string {
	if s.Selected == nil {
		return ""
	}
	return s.Selected.ID
}

// UnreadFor returns the unread count for contactID (0 when absent).
func (s Snapshot) UnreadFor(contactID string) int {
	return s.Unread[contactID]
}

func (s Snapshot) IsOnline(contactID string) bool {
	_, ok := s.Online[contactID]
	return ok
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Contacts:        slices.Clone(s.contacts),
		Messages:        slices.Clone(s.messages),
		Unread:          maps.Clone(s.unread),
		Online:          maps.Clone(s.online),
		ContactsLoading: s.contactsLoading,
		MessagesLoading: s.messagesLoading,
		Subscribed:      s.subscribed,
	}
	if s.selected != nil {
		c := *s.selected
		snap.Selected = &c
	}
	return snap
}
