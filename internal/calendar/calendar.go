// Package calendar creates calendar events with video-conference links and
// manages the OAuth connection to the calendar account.
package calendar

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/memohai/wabiz/internal/logger"
)

var (
	// ErrNoCredentials is returned when no calendar account has been connected.
	ErrNoCredentials = errors.New("no calendar credentials saved")
	// ErrNotConfigured is returned when the OAuth client id or secret is missing.
	ErrNotConfigured = errors.New("google oauth client is not configured")
)

// FallbackMeetURL starts an instant meeting when no real event could be created.
const FallbackMeetURL = "https://meet.google.com/new"

// Booking statuses.
const (
	StatusCreated  = "real_calendar_event"
	StatusInstant  = "instant_meeting"
	StatusFallback = "fallback"
)

// Scopes requested during the OAuth flow.
var Scopes = []string{
	gcal.CalendarScope,
	gcal.CalendarEventsScope,
}

// Config configures the OAuth client and event defaults.
type Config struct {
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	Location        *time.Location
	ReminderMinutes int
	// Endpoint overrides the Calendar API base URL.
	Endpoint string
}

// Event is a calendar event to create.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// Created describes an event created through the Calendar API.
type Created struct {
	EventID     string `json:"event_id"`
	MeetingLink string `json:"meeting_link"`
	EventLink   string `json:"event_link,omitempty"`
}

// Booking is a meeting request with a local date and time.
type Booking struct {
	Title           string
	Description     string
	Date            string // 2006-01-02
	Time            string // 15:04
	DurationMinutes int
	Attendees       []string
}

// BookingResult is the outcome of Book. Fallback is true when MeetingLink is
// the instant-meeting placeholder rather than a link of a created event.
type BookingResult struct {
	EventID     string    `json:"event_id,omitempty"`
	MeetingLink string    `json:"meet_link"`
	EventLink   string    `json:"event_link,omitempty"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start_datetime"`
	End         time.Time `json:"end_datetime"`
	Status      string    `json:"status"`
	Fallback    bool      `json:"fallback"`
}

// Service talks to the Calendar API on behalf of the connected account.
type Service struct {
	oauth    *oauth2.Config
	tokens   TokenStore
	location *time.Location
	reminder int
	endpoint string
	logger   *slog.Logger
}

// NewService creates a calendar service. A nil location means UTC.
func NewService(log *slog.Logger, cfg Config, tokens TokenStore) *Service {
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
		tokens:   tokens,
		location: cfg.Location,
		reminder: cfg.ReminderMinutes,
		endpoint: cfg.Endpoint,
		logger:   logger.OrDiscard(log).With(slog.String("service", "calendar")),
	}
}

// Configured reports whether the OAuth client credentials are set.
func (s *Service) Configured() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// Location returns the timezone events are created in.
func (s *Service) Location() *time.Location {
	return s.location
}

// AuthURL returns the consent page URL for state.
func (s *Service) AuthURL(state string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// Exchange trades an authorization code for a token and saves it.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	token, err := s.oauth.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := s.tokens.Save(ctx, token); err != nil {
		return nil, err
	}
	s.logger.Info("calendar account connected")
	return token, nil
}

// SavedCredentials returns the stored token or ErrNoCredentials.
func (s *Service) SavedCredentials(ctx context.Context) (*oauth2.Token, error) {
	return s.tokens.Load(ctx)
}

// CreateEvent inserts an event with a Meet conference into the primary calendar.
func (s *Service) CreateEvent(ctx context.Context, token *oauth2.Token, ev Event) (Created, error) {
	if token == nil {
		return Created{}, ErrNoCredentials
	}
	fresh, err := s.oauth.TokenSource(ctx, token).Token()
	if err != nil {
		return Created{}, fmt.Errorf("refresh token: %w", err)
	}
	if fresh.AccessToken != token.AccessToken {
		if err := s.tokens.Save(ctx, fresh); err != nil {
			s.logger.Warn("save refreshed token failed", slog.Any("error", err))
		}
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(fresh)))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return Created{}, fmt.Errorf("calendar client: %w", err)
	}

	created, err := svc.Events.Insert("primary", s.buildEvent(ev)).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return Created{}, fmt.Errorf("create event: %w", err)
	}
	out := Created{
		EventID:     created.Id,
		MeetingLink: meetingLink(created),
		EventLink:   created.HtmlLink,
	}
	s.logger.Info("calendar event created", slog.String("event_id", out.EventID), slog.String("meeting_link", out.MeetingLink))
	return out, nil
}

func (s *Service) buildEvent(ev Event) *gcal.Event {
	summary := strings.TrimSpace(ev.Summary)
	if summary == "" {
		summary = "Meeting"
	}
	tz := s.location.String()
	event := &gcal.Event{
		Summary:     summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.In(s.location).Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.In(s.location).Format(time.RFC3339),
			TimeZone: tz,
		},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             "meet-" + uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	for _, email := range ev.Attendees {
		if email = strings.TrimSpace(email); email != "" {
			event.Attendees = append(event.Attendees, &gcal.EventAttendee{Email: email})
		}
	}
	if s.reminder > 0 {
		event.Reminders = &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: int64(s.reminder)},
			},
			ForceSendFields: []string{"UseDefault"},
		}
	}
	return event
}

func meetingLink(event *gcal.Event) string {
	if event.ConferenceData != nil {
		for _, ep := range event.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri
			}
		}
		if len(event.ConferenceData.EntryPoints) > 0 && event.ConferenceData.EntryPoints[0].Uri != "" {
			return event.ConferenceData.EntryPoints[0].Uri
		}
	}
	return event.HangoutLink
}

// Book creates a real event when credentials are saved and otherwise returns
// an instant-meeting placeholder. It does not fail; errors downgrade the result.
func (s *Service) Book(ctx context.Context, b Booking) BookingResult {
	title := strings.TrimSpace(b.Title)
	if title == "" {
		title = "Meeting"
	}
	duration := time.Duration(b.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = time.Hour
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", b.Date+" "+b.Time, s.location)
	if err != nil {
		s.logger.Warn("invalid meeting date or time", slog.String("date", b.Date), slog.String("time", b.Time), slog.Any("error", err))
		return BookingResult{MeetingLink: FallbackMeetURL, Title: title, Status: StatusFallback, Fallback: true}
	}
	end := start.Add(duration)

	if token, err := s.tokens.Load(ctx); err == nil {
		created, err := s.CreateEvent(ctx, token, Event{
			Summary:     title,
			Description: b.Description,
			Start:       start,
			End:         end,
			Attendees:   b.Attendees,
		})
		if err == nil && created.MeetingLink != "" {
			return BookingResult{
				EventID:     created.EventID,
				MeetingLink: created.MeetingLink,
				EventLink:   created.EventLink,
				Title:       title,
				Start:       start,
				End:         end,
				Status:      StatusCreated,
			}
		}
		s.logger.Warn("real calendar event failed, using instant meeting", slog.Any("error", err))
	} else if !errors.Is(err, ErrNoCredentials) {
		s.logger.Warn("load calendar credentials failed", slog.Any("error", err))
	}

	return BookingResult{
		EventID:     fallbackEventID(b.Date, b.Time, title),
		MeetingLink: FallbackMeetURL,
		Title:       title,
		Start:       start,
		End:         end,
		Status:      StatusInstant,
		Fallback:    true,
	}
}

func fallbackEventID(date, clock, title string) string {
	sum := md5.Sum([]byte(date + "-" + clock + "-" + title + "-" + uuid.NewString()))
	return "evt_" + hex.EncodeToString(sum[:])[:10]
}
