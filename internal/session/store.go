// Package session holds the state of one logged-in chat session: contacts,
// the open conversation, unread counters and loading flags. It drives the
// gateway, consumes transport events and keeps these invariants after every
// operation:
//
//   - the selected contact never has an unread counter;
//   - the conversation buffer only holds messages exchanged with the selected
//     contact and is replaced when the selection changes;
//   - a pushed message either joins the open conversation or bumps its
//     sender's unread counter, never both;
//   - at most one newMessage handler is registered on the transport.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/saravenpi/chatterbox/internal/gateway"
	"github.com/saravenpi/chatterbox/internal/log"
	"github.com/saravenpi/chatterbox/internal/models"
	"github.com/saravenpi/chatterbox/internal/pubsub"
	"github.com/saravenpi/chatterbox/internal/transport"
)

// Store owns the session state. All methods are safe for concurrent use;
// no lock is held while a gateway call is in flight.
type Store struct {
	gw       gateway.Gateway
	tr       transport.Transport
	notifier Notifier
	broker   *pubsub.Broker[Snapshot]

	mu              sync.Mutex
	contacts        []models.Contact
	selected        *models.Contact
	messages        []models.Message
	unread          map[string]int
	online          map[string]struct{}
	contactsLoading bool
	messagesLoading bool
	subscribed      bool
	closed          bool

	// loadSeq numbers LoadConversation calls; only the latest may land.
	loadSeq  uint64
	inflight *conversationLoad
}

// conversationLoad tracks messages appended to the buffer while a history
// fetch for the same contact is outstanding, so the response cannot erase them.
type conversationLoad struct {
	seq       uint64
	contactID string
	live      []models.Message
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets where errors and new-message notices are reported.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithBroker publishes change events on b instead of a private broker.
func WithBroker(b *pubsub.Broker[Snapshot]) Option {
	return func(s *Store) {
		if b != nil {
			s.broker = b
		}
	}
}

// New starts a session backed by gw and tr. The transport is not subscribed
// until SubscribeToTransport is called.
func New(gw gateway.Gateway, tr transport.Transport, opts ...Option) *Store {
	s := &Store{
		gw:       gw,
		tr:       tr,
		notifier: nopNotifier{},
		unread:   make(map[string]int),
		online:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.broker == nil {
		s.broker = pubsub.NewBroker[Snapshot]()
	}
	return s
}

// Subscribe returns a channel of change events that closes with ctx or Close.
func (s *Store) Subscribe(ctx context.Context) <-chan pubsub.Event[Snapshot] {
	return s.broker.Subscribe(ctx)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribed reports whether transport handlers are registered.
func (s *Store) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// LoadContacts replaces the contact list from the gateway. On failure the
// previous list is kept and the error is reported.
func (s *Store) LoadContacts(ctx context.Context) {
	if !s.mutate(func() pubsub.EventType {
		s.contactsLoading = true
		return EventLoading
	}) {
		return
	}
	defer s.mutate(func() pubsub.EventType {
		s.contactsLoading = false
		return EventLoading
	})

	contacts, err := s.gw.ListContacts(ctx)
	if err != nil {
		s.fail(err, msgContactsFailed)
		return
	}

	s.mutate(func() pubsub.EventType {
		s.contacts = contacts
		return EventContacts
	})
	log.Info(log.CatSession, "contacts loaded", "count", len(contacts))
}

// LoadConversation replaces the conversation buffer with the history for
// contactID. A response is dropped when a newer load has started or the
// selection has moved to someone else in the meantime.
func (s *Store) LoadConversation(ctx context.Context, contactID string) {
	var seq uint64
	if !s.mutate(func() pubsub.EventType {
		s.loadSeq++
		seq = s.loadSeq
		s.messagesLoading = true
		s.inflight = &conversationLoad{seq: seq, contactID: contactID}
		return EventLoading
	}) {
		return
	}
	defer s.mutate(func() pubsub.EventType {
		if s.loadSeq != seq {
			return ""
		}
		s.messagesLoading = false
		s.inflight = nil
		return EventLoading
	})

	messages, err := s.gw.ListMessages(ctx, contactID)
	if err != nil {
		s.fail(err, msgMessagesFailed, "contact", contactID)
		return
	}

	s.mutate(func() pubsub.EventType {
		if seq != s.loadSeq {
			log.Debug(log.CatSession, "dropping superseded conversation", "contact", contactID, "seq", seq)
			return ""
		}
		if s.selectedIDLocked() != contactID {
			log.Debug(log.CatSession, "dropping conversation for unselected contact", "contact", contactID)
			return ""
		}

		messages = lo.Filter(messages, func(m models.Message, _ int) bool { return m.Involves(contactID) })
		s.messages = mergeLive(messages, s.inflight)
		return EventConversation
	})
}

// mergeLive appends messages that arrived during the fetch and are missing
// from its response.
func mergeLive(fetched []models.Message, load *conversationLoad) []models.Message {
	if load == nil || len(load.live) == 0 {
		return fetched
	}

	known := lo.SliceToMap(fetched, func(m models.Message) (string, struct{}) { return m.ID, struct{}{} })
	missing := lo.Filter(load.live, func(m models.Message, _ int) bool {
		if m.ID == "" {
			return true
		}
		_, ok := known[m.ID]
		return !ok
	})
	return append(fetched, missing...)
}

// SendMessage sends payload to the selected contact and appends the message
// the gateway returns. Nothing is inserted before the gateway confirms and
// failures are not retried.
func (s *Store) SendMessage(ctx context.Context, payload models.SendPayload) {
	s.mu.Lock()
	closed, contactID := s.closed, s.selectedIDLocked()
	s.mu.Unlock()

	if closed {
		return
	}
	if contactID == "" {
		log.Warn(log.CatSession, "send without selection")
		s.fail(ErrNoContactSelected, msgNoContact)
		return
	}
	if strings.TrimSpace(payload.Content) == "" && payload.Image == "" {
		s.fail(ErrEmptyMessage, msgEmptyMessage)
		return
	}

	msg, err := s.gw.SendMessage(ctx, contactID, payload)
	if err != nil {
		s.fail(err, msgSendFailed, "contact", contactID)
		return
	}

	s.mutate(func() pubsub.EventType {
		if s.selectedIDLocked() != contactID {
			log.Debug(log.CatSession, "sent message no longer in open conversation", "contact", contactID)
			return ""
		}
		s.appendLocked(msg)
		return EventConversation
	})
}

// SelectContact opens the conversation with contact and clears its unread
// counter. Switching to a different contact empties the buffer; the caller
// follows up with LoadConversation.
func (s *Store) SelectContact(contact models.Contact) {
	s.mutate(func() pubsub.EventType {
		if s.selectedIDLocked() != contact.ID {
			s.messages = nil
		}
		c := contact
		s.selected = &c
		delete(s.unread, contact.ID)
		return EventSelection
	})
}

// ClearSelection closes the open conversation.
func (s *Store) ClearSelection() {
	s.mutate(func() pubsub.EventType {
		if s.selected == nil {
			return ""
		}
		s.selected = nil
		s.messages = nil
		return EventSelection
	})
}

// IncrementUnread adds one to contactID's counter. The selected contact's
// counter always stays at zero.
func (s *Store) IncrementUnread(contactID string) {
	s.mutate(func() pubsub.EventType {
		if !s.incrementLocked(contactID) {
			return ""
		}
		return EventUnread
	})
}

// ClearUnread removes contactID's counter.
func (s *Store) ClearUnread(contactID string) {
	s.mutate(func() pubsub.EventType {
		if _, ok := s.unread[contactID]; !ok {
			return ""
		}
		delete(s.unread, contactID)
		return EventUnread
	})
}

// SubscribeToTransport registers the store's event handlers, replacing any
// that are already registered. Calling it repeatedly leaves exactly one
// newMessage handler.
func (s *Store) SubscribeToTransport() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.tr.Off(transport.EventNewMessage)
	s.tr.On(transport.EventNewMessage, s.handleNewMessage)
	s.tr.Off(transport.EventOnlineUsers)
	s.tr.On(transport.EventOnlineUsers, s.handleOnlineUsers)

	s.mutate(func() pubsub.EventType {
		if s.subscribed {
			return ""
		}
		s.subscribed = true
		return EventSubscription
	})
	log.Debug(log.CatSession, "subscribed to transport")
}

// UnsubscribeFromTransport removes the store's handlers. Safe to repeat.
func (s *Store) UnsubscribeFromTransport() {
	s.tr.Off(transport.EventNewMessage)
	s.tr.Off(transport.EventOnlineUsers)

	s.mutate(func() pubsub.EventType {
		if !s.subscribed {
			return ""
		}
		s.subscribed = false
		return EventSubscription
	})
}

// Close ends the session: handlers are removed, state is discarded and
// change subscribers are closed. Later calls are no-ops.
func (s *Store) Close() {
	s.UnsubscribeFromTransport()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.contacts = nil
	s.selected = nil
	s.messages = nil
	s.unread = make(map[string]int)
	s.online = make(map[string]struct{})
	s.inflight = nil
	s.mu.Unlock()

	s.broker.Close()
	log.Info(log.CatSession, "session closed")
}

func (s *Store) handleNewMessage(ev transport.Event) {
	var msg models.Message
	if err := ev.Decode(&msg); err != nil {
		log.ErrorErr(log.CatTransport, "bad newMessage payload", err)
		return
	}
	s.receive(msg)
}

// receive routes a pushed message: into the open conversation when it comes
// from the selected contact, otherwise onto the sender's unread counter.
func (s *Store) receive(msg models.Message) {
	var counted bool
	s.mutate(func() pubsub.EventType {
		if s.selected != nil && msg.SenderID == s.selected.ID {
			s.appendLocked(msg)
			return EventConversation
		}
		if counted = s.incrementLocked(msg.SenderID); !counted {
			return ""
		}
		return EventUnread
	})

	if counted {
		log.Debug(log.CatSession, "unread message", "sender", msg.SenderID)
		s.notifier.Info(msgNewMessage)
	}
}

func (s *Store) handleOnlineUsers(ev transport.Event) {
	var ids []string
	if err := ev.Decode(&ids); err != nil {
		log.ErrorErr(log.CatTransport, "bad getOnlineUsers payload", err)
		return
	}

	s.mutate(func() pubsub.EventType {
		s.online = lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
		return EventOnline
	})
}

// mutate runs fn under the lock and publishes the event type it returns ("" for
// none) with a fresh snapshot. It reports false once the store is closed.
func (s *Store) mutate(fn func() pubsub.EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if eventType := fn(); eventType != "" {
		s.broker.Publish(eventType, s.snapshotLocked())
	}
	return true
}

func (s *Store) appendLocked(msg models.Message) {
	s.messages = append(s.messages, msg)
	if s.inflight != nil && s.inflight.contactID == s.selectedIDLocked() {
		s.inflight.live = append(s.inflight.live, msg)
	}
}

func (s *Store) incrementLocked(contactID string) bool {
	if contactID == "" || contactID == s.selectedIDLocked() {
		return false
	}
	s.unread[contactID]++
	return true
}

func (s *Store) selectedIDLocked() string {
	if s.selected == nil {
		return ""
	}
	return s.selected.ID
}

// fail logs err and reports the server's message, or fallback, to the user.
func (s *Store) fail(err error, fallback string, fields ...any) {
	log.ErrorErr(log.CatSession, fallback, err, fields...)
	s.notifier.Error(gateway.UserMessage(err, fallback))
}
