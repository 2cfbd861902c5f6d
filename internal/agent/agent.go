// Package agent interprets free-text requests from the business operator and
// dispatches them as message sends, meeting bookings or plain conversation.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/memohai/wabiz/internal/event"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/whatsapp"
)

const chatFallback = "I'm here to help! You can ask me to send messages or schedule meetings."

var (
	sendIntentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`send.*to\s+(\w+)`),
		regexp.MustCompile(`message.*(\w+)`),
		regexp.MustCompile(`tell.*(\w+)`),
	}
	meetingIntentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`meeting.*with`),
		regexp.MustCompile(`schedule.*meeting`),
		regexp.MustCompile(`meet.*with`),
		regexp.MustCompile(`appointment`),
	}
)

// Agent is the orchestrator. Its turn history lives in memory only.
type Agent struct {
	model     llm.Model
	directory Directory
	commands  Commander
	transport whatsapp.Transport
	booker    Booker
	recorder  Recorder
	publisher event.Publisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	history []Turn
}

// New creates an agent. model, recorder and publisher may be nil; without a
// model the agent runs on its heuristics alone.
func New(log *slog.Logger, model llm.Model, directory Directory, commands Commander, transport whatsapp.Transport, booker Booker, recorder Recorder, publisher event.Publisher, cfg Config) *Agent {
	if cfg.ChatWindow <= 0 {
		cfg.ChatWindow = DefaultChatWindow
	}
	if cfg.ContactLimit <= 0 {
		cfg.ContactLimit = resolver.DefaultCandidateLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Agent{
		model:     model,
		directory: directory,
		commands:  commands,
		transport: transport,
		booker:    booker,
		recorder:  recorder,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.OrDiscard(log).With(slog.String("service", "agent")),
		now:       time.Now,
	}
}

// Process classifies input, runs the matching action and records both sides in
// the turn history. Failures are reported in the Response.
func (a *Agent) Process(ctx context.Context, input string, opts Options) (resp Response) {
	input = strings.TrimSpace(input)
	a.remember(Turn{Role: RoleUser, Message: input})

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent request panicked", slog.Any("panic", r))
			resp = Response{Response: fmt.Sprintf("Sorry, I encountered an error: %v", r), ActionType: ActionError}
		}
		message := resp.Response
		if message == "" {
			message = "Action completed"
		}
		a.remember(Turn{Role: RoleAgent, Message: message, ActionType: resp.ActionType, Details: resp.Details})
		a.publish(event.TypeAgentResponse, map[string]any{"result": resp, "timestamp": a.now()})
	}()

	intent := a.classify(ctx, input)
	a.logger.Info("intent classified", slog.String("intent", intent))
	switch intent {
	case llm.IntentSendMessage:
		return a.SendMessage(ctx, input, opts)
	case llm.IntentScheduleMeeting:
		return a.ScheduleMeeting(ctx, input, opts)
	default:
		return a.chat(ctx, input)
	}
}

// History returns a copy of the turn history, oldest first.
func (a *Agent) History() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Turn, len(a.history))
	copy(out, a.history)
	return out
}

// Clear drops the turn history.
func (a *Agent) Clear() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
	a.publish(event.TypeAgentHistoryCleared, map[string]any{"timestamp": a.now()})
}

func (a *Agent) classify(ctx context.Context, input string) string {
	if a.model != nil {
		raw, err := a.model.GenerateJSON(ctx, intentPrompt(input))
		if err == nil {
			var intent llm.Intent
			intent, err = llm.Decode(raw, llm.IntentSchema)
			if err == nil {
				return intent.Intent
			}
		}
		a.logger.Warn("intent classification failed, using heuristics", slog.Any("error", err))
	}
	return ClassifyHeuristic(input)
}

// ClassifyHeuristic picks an intent from fixed patterns: send verbs first,
// then meeting phrases, else general chat.
func ClassifyHeuristic(input string) string {
	lower := strings.ToLower(input)
	for _, pattern := range sendIntentPatterns {
		if pattern.MatchString(lower) {
			return llm.IntentSendMessage
		}
	}
	for _, pattern := range meetingIntentPatterns {
		if pattern.MatchString(lower) {
			return llm.IntentScheduleMeeting
		}
	}
	return llm.IntentGeneralChat
}

func (a *Agent) chat(ctx context.Context, input string) Response {
	resp := Response{Success: true, Response: chatFallback, ActionType: ActionGeneralChat}
	if a.model == nil {
		return resp
	}
	reply, err := a.model.Generate(ctx, chatPrompt(a.recent(), input))
	if err != nil {
		a.logger.Warn("chat reply failed", slog.Any("error", err))
		return resp
	}
	if reply = llm.CleanText(reply); reply != "" {
		resp.Response = reply
	}
	return resp
}

// recent formats the last turns before the current input.
func (a *Agent) recent() string {
	a.mu.Lock()
	turns := a.history
	if len(turns) > 0 && turns[len(turns)-1].Role == RoleUser {
		turns = turns[:len(turns)-1]
	}
	if len(turns) > a.cfg.ChatWindow {
		turns = turns[len(turns)-a.cfg.ChatWindow:]
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, strings.ToUpper(turn.Role)+": "+turn.Message)
	}
	a.mu.Unlock()
	if len(lines) == 0 {
		return "No previous conversation."
	}
	return strings.Join(lines, "\n")
}

func (a *Agent) remember(turn Turn) {
	if turn.Timestamp == "" {
		turn.Timestamp = a.now().In(a.cfg.Location).Format(timestampLayout)
	}
	a.mu.Lock()
	a.history = append(a.history, turn)
	a.mu.Unlock()
}

func (a *Agent) publish(t event.Type, data any) {
	if a.publisher != nil {
		a.publisher.Publish(event.New(t, data))
	}
}
