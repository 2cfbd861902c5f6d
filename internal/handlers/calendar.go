package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/memohai/wabiz/internal/calendar"
	"github.com/memohai/wabiz/internal/logger"
)

// Calendar is the calendar service as used by the HTTP routes.
type Calendar interface {
	AuthURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	SavedCredentials(ctx context.Context) (*oauth2.Token, error)
	CreateEvent(ctx context.Context, token *oauth2.Token, ev calendar.Event) (calendar.Created, error)
	Location() *time.Location
}

// CalendarHandler serves the Google OAuth flow and direct event creation.
type CalendarHandler struct {
	calendar Calendar
	logger   *slog.Logger
}

// GoogleTokens carries caller-supplied OAuth tokens.
type GoogleTokens struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenExpiry  string   `json:"token_expiry"`
	Scopes       []string `json:"scopes,omitempty"`
}

// MeetEvent describes the event to create. Start and End are RFC 3339, or
// local times in the calendar timezone.
type MeetEvent struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Attendees   []string `json:"attendees"`
}

// GoogleMeetRequest is the body of POST /api/create-google-meet.
type GoogleMeetRequest struct {
	Tokens GoogleTokens `json:"tokens"`
	Event  MeetEvent    `json:"event"`
}

// GoogleMeetResponse is returned after the event was created.
type GoogleMeetResponse struct {
	MeetLink string `json:"meetLink"`
	calendar.Created
}

// NewCalendarHandler creates the calendar handler.
func NewCalendarHandler(log *slog.Logger, cal Calendar) *CalendarHandler {
	return &CalendarHandler{
		calendar: cal,
		logger:   logger.OrDiscard(log).With(slog.String("handler", "calendar")),
	}
}

// Register mounts the OAuth and event routes.
func (h *CalendarHandler) Register(e *echo.Echo) {
	e.GET("/auth/google", h.Authorize)
	e.GET("/auth/google/callback", h.Callback)
	e.POST("/api/create-google-meet", h.CreateMeet)
}

// Authorize returns the consent page URL.
func (h *CalendarHandler) Authorize(c echo.Context) error {
	url, err := h.calendar.AuthURL(uuid.NewString())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"auth_url": url})
}

// Callback exchanges the authorization code and stores the token.
func (h *CalendarHandler) Callback(c echo.Context) error {
	if reason := c.QueryParam("error"); reason != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "authorization denied: "+reason)
	}
	code := strings.TrimSpace(c.QueryParam("code"))
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	token, err := h.calendar.Exchange(c.Request().Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange failed", slog.Any("error", err))
		if errors.Is(err, calendar.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"tokens": GoogleTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  formatExpiry(token.Expiry),
		Scopes:       calendar.Scopes,
	}})
}

// CreateMeet godoc
// @Summary Create a calendar event with a Meet link
// @Description Uses the supplied tokens, or the saved account when access_token is empty
// @Tags calendar
// @Param payload body GoogleMeetRequest true "Event"
// @Success 200 {object} GoogleMeetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/create-google-meet [post]
func (h *CalendarHandler) CreateMeet(c echo.Context) error {
	var req GoogleMeetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	loc := h.calendar.Location()
	start, err := parseEventTime(req.Event.Start, loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid start: "+err.Error())
	}
	end, err := parseEventTime(req.Event.End, loc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid end: "+err.Error())
	}
	if !end.After(start) {
		return echo.NewHTTPError(http.StatusBadRequest, "end must be after start")
	}

	ctx := c.Request().Context()
	token, err := h.token(ctx, req.Tokens)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	created, err := h.calendar.CreateEvent(ctx, token, calendar.Event{
		Summary:     req.Event.Summary,
		Description: req.Event.Description,
		Start:       start,
		End:         end,
		Attendees:   req.Event.Attendees,
	})
	if err != nil {
		h.logger.Error("create meet failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, GoogleMeetResponse{MeetLink: created.MeetingLink, Created: created})
}

func (h *CalendarHandler) token(ctx context.Context, in GoogleTokens) (*oauth2.Token, error) {
	if strings.TrimSpace(in.AccessToken) == "" {
		return h.calendar.SavedCredentials(ctx)
	}
	token := &oauth2.Token{
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		TokenType:    "Bearer",
	}
	if in.TokenExpiry != "" {
		expiry, err := time.Parse(time.RFC3339, in.TokenExpiry)
		if err != nil {
			return nil, fmt.Errorf("invalid token_expiry: %w", err)
		}
		token.Expiry = expiry
	}
	return token, nil
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

func parseEventTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("time is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
