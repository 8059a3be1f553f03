package session

import "errors"

var (
	ErrNoContactSelected = errors.New("no contact selected")
	ErrEmptyMessage      = errors.New("message is empty")
)

// User-visible texts raised through the Notifier.
const (
	msgContactsFailed = "Error fetching contacts"
	msgMessagesFailed = "Error fetching messages"
	msgSendFailed     = "Failed to send message"
	msgNoContact      = "Select a contact first"
	msgEmptyMessage   = "Message is empty"
	msgNewMessage     = "New message received"
)
