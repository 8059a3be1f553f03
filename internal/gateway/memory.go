package gateway

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saravenpi/chatterbox/internal/models"
)

// Memory is an in-process Gateway holding contacts and conversations in maps.
// It backs the playground command and tests.
type Memory struct {
	mu       sync.Mutex
	self     string
	contacts []models.Contact
	history  map[string][]models.Message
	failures map[Op]error
	onSend   func(models.Message)
	now      func() time.Time
}

// NewMemory creates a gateway for the user self with the given contacts.
func NewMemory(self string, contacts ...models.Contact) *Memory {
	return &Memory{
		self:     self,
		contacts: slices.Clone(contacts),
		history:  make(map[string][]models.Message),
		failures: make(map[Op]error),
		now:      time.Now,
	}
}

// Self returns the id of the session holder.
func (m *Memory) Self() string { return m.self }

// Record appends msg to the conversation it belongs to.
func (m *Memory) Record(msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(msg)
}

func (m *Memory) record(msg models.Message) {
	peer := msg.SenderID
	if peer == m.self {
		peer = msg.ReceiverID
	}
	m.history[peer] = append(m.history[peer], msg)
}

// Fail makes every call to op return err until Recover is called.
func (m *Memory) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Recover clears an injected failure.
func (m *Memory) Recover(op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, op)
}

// OnSend registers a hook called after each successful send.
func (m *Memory) OnSend(fn func(models.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSend = fn
}

// NewMessage builds a message stamped with a fresh id and the current time.
func (m *Memory) NewMessage(senderID, receiverID, content string) models.Message {
	return models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  m.now(),
	}
}

func (m *Memory) ListContacts(ctx context.Context) ([]models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: OpListContacts, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[OpListContacts]; err != nil {
		return nil, err
	}
	return slices.Clone(m.contacts), nil
}

func (m *Memory) ListMessages(ctx context.Context, contactID string) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: OpListMessages, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[OpListMessages]; err != nil {
		return nil, err
	}
	if !m.knows(contactID) {
		return nil, &Error{Op: OpListMessages, Status: http.StatusNotFound, Message: "User not found"}
	}
	return slices.Clone(m.history[contactID]), nil
}

func (m *Memory) SendMessage(ctx context.Context, contactID string, payload models.SendPayload) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, &Error{Op: OpSendMessage, Err: err}
	}

	m.mu.Lock()
	if err := m.failures[OpSendMessage]; err != nil {
		m.mu.Unlock()
		return models.Message{}, err
	}
	if !m.knows(contactID) {
		m.mu.Unlock()
		return models.Message{}, &Error{Op: OpSendMessage, Status: http.StatusNotFound, Message: "User not found"}
	}
	if strings.TrimSpace(payload.Content) == "" && payload.Image == "" {
		m.mu.Unlock()
		return models.Message{}, &Error{Op: OpSendMessage, Status: http.StatusBadRequest, Message: "Message is empty"}
	}

	msg := m.NewMessage(m.self, contactID, payload.Content)
	msg.Image = payload.Image
	m.record(msg)
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return msg, nil
}

func (m *Memory) knows(contactID string) bool {
	return slices.ContainsFunc(m.contacts, func(c models.Contact) bool { return c.ID == contactID })
}
