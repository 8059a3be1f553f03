// Package gateway is the request/response side of the chat service: listing
// contacts, loading a conversation and sending a message.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/saravenpi/chatterbox/internal/models"
)

// Gateway is the request/response contract the session store depends on.
type Gateway interface {
	ListContacts(ctx context.Context) ([]models.Contact, error)
	ListMessages(ctx context.Context, contactID string) ([]models.Message, error)
	SendMessage(ctx context.Context, contactID string, payload models.SendPayload) (models.Message, error)
}

// Op names a gateway operation for error reporting.
type Op string

const (
	OpListContacts Op = "list-contacts"
	OpListMessages Op = "list-messages"
	OpSendMessage  Op = "send-message"
)

// Error is a failed gateway call. Message is the human-readable text the
// server supplied, if any.
type Error struct {
	Op      Op
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the server-provided message carried by err, or fallback
// when there is none.
func UserMessage(err error, fallback string) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return fallback
}
