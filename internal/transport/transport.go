// Package transport is the push side of the chat service: named events
// delivered outside the request/response cycle.
package transport

import (
	"encoding/json"
	"fmt"
)

// Event names the session layer listens for.
const (
	EventNewMessage  = "newMessage"
	EventOnlineUsers = "getOnlineUsers"
)

// Event is one pushed frame. Data is the undecoded JSON payload.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s: empty payload", e.Name)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("event %s: %w", e.Name, err)
	}
	return nil
}

// Handler consumes events for one name.
type Handler func(Event)

// Transport is a named-event subscription interface. Each event name has at
// most one handler: On replaces whatever was registered before.
type Transport interface {
	On(event string, h Handler)
	Off(event string)
}
