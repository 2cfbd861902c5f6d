package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/memohai/wabiz/internal/calendar"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/meeting"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/whatsapp"
)

const meetingNotUnderstood = "I couldn't understand the meeting details. Please specify who, when, and what time."

var withPattern = regexp.MustCompile(`(?i)\bwith\s+(\+?[\d\s()-]{7,}\d|[\p{L}][\p{L}'.-]*)`)

// ScheduleMeeting books a meeting described by input and sends the invite to
// the contact on WhatsApp. The invite send is best effort.
func (a *Agent) ScheduleMeeting(ctx context.Context, input string, opts Options) Response {
	now := a.now().In(a.cfg.Location)
	info, err := a.extractMeeting(ctx, input)
	if err != nil {
		a.logger.Warn("meeting extraction failed", slog.Any("error", err))
		text := meetingNotUnderstood
		if errors.Is(err, llm.ErrUnavailable) {
			text = modelUnavailable
		}
		return Response{Response: text, ActionType: ActionScheduleMeetingFailed}
	}
	info.ContactName = strings.TrimSpace(info.ContactName)
	info.ContactNumber = strings.TrimSpace(info.ContactNumber)
	if !info.IsValidRequest || (info.ContactName == "" && info.ContactNumber == "") {
		return Response{Response: meetingNotUnderstood, ActionType: ActionScheduleMeetingFailed}
	}

	info.Date = meeting.ResolveDate(info.Date, input, now)
	info.Time = meeting.ResolveTime(info.Time, input)
	if info.DurationMinutes <= 0 {
		info.DurationMinutes = DefaultMeetingMinutes
	}
	phone := a.meetingPhone(info, opts)
	name := info.ContactName
	if name == "" && a.directory != nil {
		name = a.directory.GetName(phone)
	}
	if name == "" {
		name = phone
	}
	if strings.TrimSpace(info.Title) == "" {
		info.Title = "Meeting with " + name
	}

	booked := a.booker.Book(ctx, calendar.Booking{
		Title:           info.Title,
		Description:     "Meeting scheduled via AI agent with " + name,
		Date:            info.Date,
		Time:            info.Time,
		DurationMinutes: info.DurationMinutes,
	})
	formattedDate := meeting.FormatDate(info.Date, now)
	formattedTime := meeting.FormatTime(info.Time)

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Meeting scheduled with %s!\n\n", name)
	fmt.Fprintf(&b, "📅 %s at %s\n", formattedDate, formattedTime)
	fmt.Fprintf(&b, "🔗 %s\n", booked.MeetingLink)
	if booked.Fallback {
		b.WriteString("📝 Calendar not connected, shared an instant Meet link")
	} else {
		b.WriteString("📝 Added to your calendar")
	}

	invite := inviteText(info.Invite, name, formattedDate, formattedTime, booked.MeetingLink)
	details := MeetingDetails{
		MeetingInfo:    info,
		MeetingResult:  booked,
		CalendarAdded:  !booked.Fallback,
		ContactName:    name,
		RecipientPhone: phone,
		InviteMessage:  invite,
		FormattedDate:  formattedDate,
		FormattedTime:  formattedTime,
	}
	if phone != "" && a.transport != nil {
		if _, err := a.transport.Send(ctx, whatsapp.Outgoing{To: phone, Text: invite, Credentials: opts.Credentials}); err != nil {
			a.logger.Error("send meeting invite failed", slog.String("to", phone), slog.Any("error", err))
		} else {
			details.InviteSent = true
			a.record(ctx, phone, invite, opts.Credentials, "")
		}
	}

	return Response{
		Success:    true,
		Response:   b.String(),
		ActionType: ActionScheduleMeeting,
		Details:    details,
	}
}

func (a *Agent) extractMeeting(ctx context.Context, input string) (llm.MeetingExtraction, error) {
	var modelErr error
	if a.model != nil {
		now := a.now().In(a.cfg.Location)
		raw, err := a.model.GenerateJSON(ctx, meetingPrompt(input, now))
		if err == nil {
			var info llm.MeetingExtraction
			if info, err = llm.Decode(raw, llm.MeetingExtractionSchema); err == nil {
				return info, nil
			}
		}
		modelErr = err
	}
	if m := withPattern.FindStringSubmatch(input); m != nil {
		target := strings.TrimSpace(m[1])
		info := llm.MeetingExtraction{IsValidRequest: true}
		if digits, ok := resolver.PhoneLiteral(target); ok {
			info.ContactNumber = digits
		} else {
			info.ContactName = target
		}
		return info, nil
	}
	if modelErr == nil {
		modelErr = llm.ErrMalformed
	}
	return llm.MeetingExtraction{}, modelErr
}

// meetingPhone resolves the invite recipient: an explicit number, then the
// directory by name, then the alias table.
func (a *Agent) meetingPhone(info llm.MeetingExtraction, opts Options) string {
	if digits, ok := resolver.PhoneLiteral(info.ContactNumber); ok {
		return digits
	}
	if info.ContactName == "" {
		return ""
	}
	if a.directory != nil {
		if contact, ok := a.directory.FindByName(info.ContactName); ok {
			return contact.Key
		}
	}
	if res, ok := resolver.ResolveLocal(info.ContactName, a.aliases(opts)); ok {
		return res.ContactID
	}
	if digits, ok := resolver.PhoneLiteral(info.ContactName); ok {
		return digits
	}
	return ""
}

// inviteText cleans a drafted invite and appends the meeting link. A static
// invite is used when nothing usable was drafted.
func inviteText(draft, name, date, clock, link string) string {
	body := meeting.CleanConfirmation(draft, link)
	if body == "" {
		when := "on " + date
		if date == "Today" || date == "Tomorrow" {
			when = strings.ToLower(date)
		}
		body = fmt.Sprintf("Hi %s, I've scheduled our meeting %s at %s.", name, when, clock)
	}
	return fmt.Sprintf("%s\n\n📅 %s at %s\n🔗 %s", body, date, clock, link)
}
