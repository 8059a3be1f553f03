package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/saravenpi/chatterbox/internal/log"
)

// WebSocket reads {"event": ..., "data": ...} frames from a connection and
// dispatches them through its registry. The connection is assumed to be
// authenticated already; there is no reconnection.
type WebSocket struct {
	*Registry

	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// DialWebSocket connects to rawURL, adding userId as a query parameter when
// set, and starts reading frames.
func DialWebSocket(ctx context.Context, rawURL, userID string, header http.Header) (*WebSocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid socket url %q: %w", rawURL, err)
	}
	if userID != "" {
		q := u.Query()
		q.Set("userId", userID)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", u.Redacted(), err)
	}

	log.Info(log.CatTransport, "connected", "url", u.Redacted())
	return NewWebSocket(conn), nil
}

// NewWebSocket wraps an open connection and starts its read loop.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	ws := &WebSocket{
		Registry: NewRegistry(),
		conn:     conn,
		done:     make(chan struct{}),
	}
	go ws.readLoop()
	return ws
}

func (w *WebSocket) readLoop() {
	defer w.finish()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				w.setErr(err)
				log.ErrorErr(log.CatTransport, "read failed", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
			log.Warn(log.CatTransport, "dropping malformed frame", "bytes", len(data))
			continue
		}
		w.Dispatch(ev)
	}
}

// Send writes an event frame to the server.
func (w *WebSocket) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(Event{Name: event, Data: data})
}

// Done is closed when the read loop exits.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

// Err returns the error that stopped the read loop, if any.
func (w *WebSocket) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close sends a close frame, shuts the connection and waits for the read
// loop to exit. It must not be called from a handler.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.mu.Unlock()

	err := w.conn.Close()
	<-w.done
	return err
}

func (w *WebSocket) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *WebSocket) finish() {
	w.closeOnce.Do(func() { close(w.done) })
}
