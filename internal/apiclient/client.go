// Package apiclient is a typed HTTP client for the agent API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/wabiz/internal/agent"
	"github.com/memohai/wabiz/internal/command"
	"github.com/memohai/wabiz/internal/conversation"
)

const defaultTimeout = 60 * time.Second

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api server error (%d): %s", e.Status, e.Message)
}

// Client calls the agent API with an optional bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client. A zero timeout uses a one minute default.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: NormalizeBaseURL(baseURL),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
	}
}

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

// BaseURLFromAddr turns a listen address such as ":4000" into a base URL.
func BaseURLFromAddr(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return NormalizeBaseURL(trimmed)
	}
	if strings.HasPrefix(trimmed, ":") {
		return "http://127.0.0.1" + trimmed
	}
	return "http://" + trimmed
}

// Chat sends one message to the agent.
func (c *Client) Chat(ctx context.Context, message string, opts agent.Options) (agent.Response, error) {
	var out agent.Response
	body := map[string]any{"message": message, "context": opts}
	err := c.do(ctx, http.MethodPost, "/api/ai-agent/chat", body, &out)
	return out, err
}

// AgentHistory returns the agent turns, oldest first.
func (c *Client) AgentHistory(ctx context.Context) ([]agent.Turn, error) {
	var out struct {
		History []agent.Turn `json:"history"`
	}
	err := c.do(ctx, http.MethodGet, "/api/ai-agent/history", nil, &out)
	return out.History, err
}

// ClearAgentHistory drops the agent turns.
func (c *Client) ClearAgentHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/ai-agent/clear-history", nil, nil)
}

// SendCommand runs a `send "<message>" to <recipient>` command.
func (c *Client) SendCommand(ctx context.Context, cmd string, aliases map[string]string) (command.Result, error) {
	var out command.Result
	body := map[string]any{"command": cmd, "aliases": aliases}
	err := c.do(ctx, http.MethodPost, "/api/mcp/send", body, &out)
	return out, err
}

// SendMessage sends message to recipient without command parsing, so the
// message may hold any quoting.
func (c *Client) SendMessage(ctx context.Context, message, recipient string, aliases map[string]string) (command.Result, error) {
	var out command.Result
	body := map[string]any{"message": message, "recipient": recipient, "aliases": aliases}
	err := c.do(ctx, http.MethodPost, "/api/mcp/send", body, &out)
	return out, err
}

// ContactNames returns the phone number to name map.
func (c *Client) ContactNames(ctx context.Context) (map[string]string, error) {
	var out struct {
		Names map[string]string `json:"contact_names"`
	}
	err := c.do(ctx, http.MethodGet, "/api/contacts/names", nil, &out)
	return out.Names, err
}

// RenameContact sets the display name of a phone number.
func (c *Client) RenameContact(ctx context.Context, phone, name string) error {
	return c.do(ctx, http.MethodPost, contactNamePath(phone), map[string]string{"name": name}, nil)
}

// ForgetContact removes the stored name of a phone number.
func (c *Client) ForgetContact(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodDelete, contactNamePath(phone), nil, nil)
}

// Conversation returns the latest limit messages exchanged with a contact.
func (c *Client) Conversation(ctx context.Context, contactID string, limit int) ([]conversation.Record, error) {
	path := "/api/conversations/" + url.PathEscape(contactID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Conversation []conversation.Record `json:"conversation"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Conversation, err
}

func contactNamePath(phone string) string {
	return "/api/contacts/" + url.PathEscape(strings.TrimSpace(phone)) + "/name"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Message: errorMessage(payload)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errorMessage prefers the "message" field of an echo error body.
func errorMessage(payload []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(payload))
}
