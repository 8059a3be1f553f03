package models

import "time"

// Contact is a user the session holder can talk to. Sourced from the gateway.
type Contact struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Message is immutable once created by a gateway response or a transport event.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Involves reports whether contactID is the sender or the receiver.
func (m Message) Involves(contactID string) bool {
	return m.SenderID == contactID || m.ReceiverID == contactID
}

// SendPayload is the body of a send-message request.
type SendPayload struct {
	Content string `json:"text,omitempty"`
	Image   string `json:"image,omitempty"`
}

type Focus int

const (
	FocusSidebar Focus = iota
	FocusComposer
)
