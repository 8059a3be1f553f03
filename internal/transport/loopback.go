package transport

import (
	"encoding/json"
	"fmt"
)

// Loopback is an in-process Transport. Emit dispatches synchronously.
type Loopback struct {
	*Registry
}

// NewLoopback returns a loopback with no handlers.
func NewLoopback() *Loopback {
	return &Loopback{Registry: NewRegistry()}
}

// Emit encodes payload and hands it to the handler for event.
// It reports whether a handler consumed the event.
func (l *Loopback) Emit(event string, payload any) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return l.Dispatch(Event{Name: event, Data: data}), nil
}
