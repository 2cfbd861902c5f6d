package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/wabiz/internal/event"
	"github.com/memohai/wabiz/internal/logger"
)

const wsWriteTimeout = 10 * time.Second

// EventsHandler relays hub events to SSE and websocket clients.
type EventsHandler struct {
	hub    event.Subscriber
	logger *slog.Logger
}

// NewEventsHandler creates the events handler.
func NewEventsHandler(log *slog.Logger, hub event.Subscriber) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		logger: logger.OrDiscard(log).With(slog.String("handler", "events")),
	}
}

// Register mounts the SSE and websocket streams.
func (h *EventsHandler) Register(e *echo.Echo) {
	e.GET("/api/events", h.Stream)
	e.GET("/api/events/ws", h.WebSocket)
}

// Stream writes each event as an SSE data line until the client goes away.
func (h *EventsHandler) Stream(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	writer := bufio.NewWriter(c.Response().Writer)
	flusher.Flush()

	streamID, stream, cancel := h.hub.Subscribe(event.DefaultBufferSize)
	defer cancel()
	h.logger.Debug("sse client subscribed", slog.String("stream_id", streamID))

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case evt, ok := <-stream:
			if !ok {
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_, _ = writer.WriteString(fmt.Sprintf("data: %s\n\n", string(data)))
			writer.Flush()
			flusher.Flush()
		}
	}
}

// WebSocket sends each event as a JSON text frame. Client frames are ignored.
func (h *EventsHandler) WebSocket(c echo.Context) error {
	ws, err := websocket.Accept(c.Response().Writer, c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.Any("error", err))
		return nil
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("websocket close", slog.Any("error", closeErr))
		}
	}()

	ctx := ws.CloseRead(c.Request().Context())
	streamID, stream, cancel := h.hub.Subscribe(event.DefaultBufferSize)
	defer cancel()
	h.logger.Debug("websocket client subscribed", slog.String("stream_id", streamID))

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-stream:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, ws, evt); err != nil {
				if websocket.CloseStatus(err) == -1 {
					h.logger.Warn("websocket write failed", slog.Any("error", err))
				}
				return nil
			}
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, evt event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
