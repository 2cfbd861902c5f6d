package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/embeddings"
	"github.com/memohai/wabiz/internal/event"
	"github.com/memohai/wabiz/internal/inbox"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/meeting"
	"github.com/memohai/wabiz/internal/whatsapp"
)

const (
	defaultConversationLimit = 50
	defaultSearchResults     = 5
)

// MessageStore is the conversation store as used by the message routes.
type MessageStore interface {
	Append(ctx context.Context, in conversation.AppendInput) (string, error)
	History(ctx context.Context, contactID string, limit int) []conversation.Record
	Search(ctx context.Context, query, contactID string, limit int) []conversation.Match
	ListContacts(ctx context.Context) []string
	Purge(ctx context.Context, contactID string) bool
}

// MeetingHandler books meeting requests found in a message.
type MeetingHandler interface {
	Handle(ctx context.Context, req meeting.Request) meeting.Outcome
}

// NameLookup resolves a phone number to a display name.
type NameLookup interface {
	GetName(raw string) string
}

// MessagesHandler serves direct sends, model helpers and conversation reads.
type MessagesHandler struct {
	store      MessageStore
	transport  whatsapp.Transport
	meetings   MeetingHandler
	names      NameLookup
	model      llm.Model
	embedder   embeddings.Embedder
	publisher  event.Publisher
	businessID string
	logger     *slog.Logger
}

// MessagesDeps groups the collaborators of MessagesHandler. Meetings, Names,
// Model, Embedder and Publisher may be nil.
type MessagesDeps struct {
	Store      MessageStore
	Transport  whatsapp.Transport
	Meetings   MeetingHandler
	Names      NameLookup
	Model      llm.Model
	Embedder   embeddings.Embedder
	Publisher  event.Publisher
	BusinessID string
}

// SendMessageRequest is the body of POST /api/send-message.
type SendMessageRequest struct {
	Token         string `json:"WHATSAPP_TOKEN"`
	PhoneNumberID string `json:"PHONE_NUMBER_ID"`
	To            string `json:"to"`
	Text          string `json:"text"`
}

// SendMessageResponse reports a direct send.
type SendMessageResponse struct {
	Success  bool             `json:"success"`
	Receipt  whatsapp.Receipt `json:"whatsapp_response"`
	Meeting  *meeting.Outcome `json:"meeting,omitempty"`
	RecordID string           `json:"record_id,omitempty"`
}

// PromptRequest is the body of POST /api/generate-gemini-reply.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// EmbeddingRequest is the body of POST /api/embedding.
type EmbeddingRequest struct {
	Text string `json:"text"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query     string `json:"query"`
	ContactID string `json:"contact_id,omitempty"`
	NResults  int    `json:"n_results,omitempty"`
}

// NewMessagesHandler creates the message handler.
func NewMessagesHandler(log *slog.Logger, deps MessagesDeps) *MessagesHandler {
	return &MessagesHandler{
		store:      deps.Store,
		transport:  deps.Transport,
		meetings:   deps.Meetings,
		names:      deps.Names,
		model:      deps.Model,
		embedder:   deps.Embedder,
		publisher:  deps.Publisher,
		businessID: deps.BusinessID,
		logger:     logger.OrDiscard(log).With(slog.String("handler", "messages")),
	}
}

// Register mounts the message routes.
func (h *MessagesHandler) Register(e *echo.Echo) {
	api := e.Group("/api")
	api.POST("/send-message", h.Send)
	api.POST("/generate-gemini-reply", h.GenerateReply)
	api.POST("/embedding", h.Embedding)
	api.POST("/search", h.Search)
	api.GET("/conversations/:contact_id", h.Conversation)
	api.DELETE("/conversations/:contact_id", h.DeleteConversation)
	api.GET("/contacts", h.Contacts)
}

// Send godoc
// @Summary Send a WhatsApp text message
// @Description Sends text to a number, stores it and books any meeting it proposes
// @Tags messages
// @Param payload body SendMessageRequest true "Message"
// @Success 200 {object} SendMessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/send-message [post]
func (h *MessagesHandler) Send(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to := strings.TrimSpace(req.To)
	text := strings.TrimSpace(req.Text)
	if to == "" || text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to and text are required")
	}
	if h.transport == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "messaging transport not configured")
	}
	ctx := c.Request().Context()
	creds := credentials(req.Token, req.PhoneNumberID)
	receipt, err := h.transport.Send(ctx, whatsapp.Outgoing{To: to, Text: text, Credentials: creds})
	if err != nil {
		h.logger.Error("send message failed", slog.String("to", to), slog.Any("error", err))
		switch {
		case errors.Is(err, whatsapp.ErrInvalidRecipient):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, whatsapp.ErrNotConfigured):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if receipt.To != "" {
		to = receipt.To
	}

	resp := SendMessageResponse{Success: true, Receipt: receipt}
	if h.store != nil {
		id, err := h.store.Append(ctx, conversation.AppendInput{
			ContactID: to,
			Text:      text,
			Sender:    whatsapp.Sender(creds, h.businessID),
			Receiver:  to,
		})
		if err != nil {
			h.logger.Warn("store sent message failed", slog.String("to", to), slog.Any("error", err))
		}
		resp.RecordID = id
	}
	if h.meetings != nil {
		name := to
		if h.names != nil {
			name = h.names.GetName(to)
		}
		outcome := h.meetings.Handle(ctx, meeting.Request{Text: text, ContactName: name, Phone: to})
		if outcome.IsMeeting {
			resp.Meeting = &outcome
			if h.publisher != nil {
				h.publisher.Publish(event.New(event.TypeMeetingConfirmed, inbox.MeetingConfirmed{
					From:        to,
					ContactName: name,
					Message:     outcome.Response,
					MeetingInfo: outcome.Info,
					Timestamp:   time.Now().UTC(),
				}))
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// GenerateReply runs a raw prompt through the language model.
func (h *MessagesHandler) GenerateReply(c echo.Context) error {
	var req PromptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}
	if h.model == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "language model not configured")
	}
	text, err := h.model.Generate(c.Request().Context(), req.Prompt)
	if err != nil {
		h.logger.Error("generate reply failed", slog.Any("error", err))
		if errors.Is(err, llm.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"text": text})
}

// Embedding returns the embedding vector of a text.
func (h *MessagesHandler) Embedding(c echo.Context) error {
	var req EmbeddingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	if h.embedder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "embedder not configured")
	}
	vector, err := h.embedder.Embed(c.Request().Context(), req.Text)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"embedding": vector})
}

// Search godoc
// @Summary Semantic message search
// @Tags messages
// @Param payload body SearchRequest true "Query"
// @Success 200 {object} map[string][]conversation.Match
// @Router /api/search [post]
func (h *MessagesHandler) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	limit := req.NResults
	if limit <= 0 {
		limit = defaultSearchResults
	}
	results := h.store.Search(c.Request().Context(), req.Query, strings.TrimSpace(req.ContactID), limit)
	if results == nil {
		results = []conversation.Match{}
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

// Conversation returns the latest records of one contact, oldest first.
func (h *MessagesHandler) Conversation(c echo.Context) error {
	contactID := strings.TrimSpace(c.Param("contact_id"))
	if contactID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "contact id is required")
	}
	limit := parseIntOr(c.QueryParam("limit"), defaultConversationLimit)
	records := h.store.History(c.Request().Context(), contactID, limit)
	if records == nil {
		records = []conversation.Record{}
	}
	return c.JSON(http.StatusOK, map[string]any{"conversation": records})
}

// DeleteConversation removes every record of one contact. Contacts without
// records are reported as not found.
func (h *MessagesHandler) DeleteConversation(c echo.Context) error {
	contactID := strings.TrimSpace(c.Param("contact_id"))
	if contactID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "contact id is required")
	}
	if !h.store.Purge(c.Request().Context(), contactID) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "success", "contact_id": contactID})
}

// Contacts lists the contact ids that have stored messages.
func (h *MessagesHandler) Contacts(c echo.Context) error {
	ids := h.store.ListContacts(c.Request().Context())
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"contacts": ids})
}
