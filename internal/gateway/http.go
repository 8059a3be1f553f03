package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saravenpi/chatterbox/internal/log"
	"github.com/saravenpi/chatterbox/internal/models"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// HTTPClient talks to the chat REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithToken sends a bearer token on every request.
func WithToken(token string) HTTPOption {
	return func(c *HTTPClient) { c.token = token }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.client = hc }
}

// NewHTTPClient builds a client rooted at baseURL (e.g. http://localhost:8000/api).
// Cookies set by the server are kept and replayed, like a browser session.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPOption) (*HTTPClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout, Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) ListContacts(ctx context.Context) ([]models.Contact, error) {
	var contacts []models.Contact
	if err := c.do(ctx, OpListContacts, http.MethodGet, "/messages/users", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *HTTPClient) ListMessages(ctx context.Context, contactID string) ([]models.Message, error) {
	var messages []models.Message
	path := "/messages/" + url.PathEscape(contactID)
	if err := c.do(ctx, OpListMessages, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, contactID string, payload models.SendPayload) (models.Message, error) {
	var msg models.Message
	path := "/messages/send/" + url.PathEscape(contactID)
	if err := c.do(ctx, OpSendMessage, http.MethodPost, path, payload, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (c *HTTPClient) do(ctx context.Context, op Op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.ErrorErr(log.CatGateway, "request failed", err, "op", op, "request_id", requestID)
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	log.Debug(log.CatGateway, "response", "op", op, "status", resp.StatusCode,
		"request_id", requestID, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: op, Status: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// decodeErrorMessage pulls {"message": "..."} out of an error body.
func decodeErrorMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, maxErrorBody)).Decode(&body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Message)
}
