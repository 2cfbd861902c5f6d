// Package meeting detects meeting requests in chat messages and books them.
package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/logger"
)

// Detection sources.
const (
	SourceModel    = "model"
	SourceKeywords = "keywords"
)

// Detection is the result of scanning a message for a meeting request.
type Detection struct {
	HasMeeting  bool   `json:"has_meeting"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	MeetingLink string `json:"meeting_link,omitempty"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}

var (
	meetingWords = regexp.MustCompile(`(?i)\b(meeting|meet|schedule|appointment|call|book|reserve|zoom|teams|google meet|skype|conference|discussion|session)\b`)
	timeWords    = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|time|o'clock|at|am|pm)\b|\d{1,2}(:\d{2})?\s*(am|pm)\b`)
	linkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)https://meet\.google\.com/[a-z-]+`),
		regexp.MustCompile(`(?i)https://zoom\.us/j/\d+`),
		regexp.MustCompile(`(?i)https://teams\.microsoft\.com/\S+`),
		regexp.MustCompile(`(?i)https://\S*meet\S*`),
	}
)

// Detector finds meeting requests using the model, falling back to keywords.
type Detector struct {
	model    llm.Model
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewDetector creates a detector. model may be nil, which means keywords only.
func NewDetector(log *slog.Logger, model llm.Model, loc *time.Location) *Detector {
	if loc == nil {
		loc = time.UTC
	}
	return &Detector{
		model:    model,
		location: loc,
		logger:   logger.OrDiscard(log).With(slog.String("service", "meeting")),
		now:      time.Now,
	}
}

// Detect reports whether text asks for a meeting.
func (d *Detector) Detect(ctx context.Context, text string) Detection {
	if d.model != nil {
		raw, err := d.model.GenerateJSON(ctx, detectPrompt(text, d.now().In(d.location)))
		if err == nil {
			var parsed llm.MeetingDetection
			parsed, err = llm.Decode(raw, llm.MeetingDetectionSchema)
			if err == nil {
				det := Detection{
					HasMeeting:  parsed.HasMeeting,
					Date:        parsed.Date,
					Time:        parsed.Time,
					MeetingLink: parsed.MeetingLink,
					Description: parsed.Description,
					Source:      SourceModel,
				}
				if det.MeetingLink == "" {
					det.MeetingLink = firstLink(text)
				}
				return det
			}
		}
		d.logger.Warn("meeting detection fell back to keywords", slog.Any("error", err))
	}
	return DetectKeywords(text)
}

// DetectKeywords requires both a meeting word and a time word.
func DetectKeywords(text string) Detection {
	det := Detection{Source: SourceKeywords, MeetingLink: firstLink(text)}
	if meetingWords.MatchString(text) && timeWords.MatchString(text) {
		det.HasMeeting = true
		det.Description = "Meeting detected via keyword matching"
	}
	return det
}

// Links returns the conferencing links found in text.
func Links(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, re := range linkPatterns {
		for _, link := range re.FindAllString(text, -1) {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			out = append(out, link)
		}
	}
	return out
}

func firstLink(text string) string {
	if links := Links(text); len(links) > 0 {
		return links[0]
	}
	return ""
}

func detectPrompt(text string, now time.Time) string {
	var b strings.Builder
	b.WriteString("Analyze this message and extract any meeting or appointment information:\n")
	fmt.Fprintf(&b, "%q\n\n", text)
	fmt.Fprintf(&b, "Today is %s (%s).\n", now.Format("2006-01-02"), now.Weekday())
	b.WriteString("Look for words like meeting, schedule, appointment, call, meet, tomorrow, today, time, PM, AM, date.\n\n")
	b.WriteString("Return ONLY a JSON object with these keys:\n")
	b.WriteString(`- "has_meeting": true or false` + "\n")
	b.WriteString(`- "date": "YYYY-MM-DD" or null (resolve relative dates against today)` + "\n")
	b.WriteString(`- "time": "HH:MM" in 24-hour format or null` + "\n")
	b.WriteString(`- "meeting_link": a link found in the message or null` + "\n")
	b.WriteString(`- "description": a brief description or null` + "\n\n")
	b.WriteString(`Example: {"has_meeting": true, "date": "2025-10-13", "time": "14:00", "meeting_link": null, "description": "Meeting request"}` + "\n")
	b.WriteString("No markdown, no explanations.")
	return b.String()
}
