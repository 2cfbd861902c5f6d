package modules

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/memohai/wabiz/internal/agent"
	"github.com/memohai/wabiz/internal/autoreply"
	"github.com/memohai/wabiz/internal/boot"
	"github.com/memohai/wabiz/internal/calendar"
	"github.com/memohai/wabiz/internal/command"
	"github.com/memohai/wabiz/internal/config"
	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/event"
	"github.com/memohai/wabiz/internal/inbox"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/meeting"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/schedule"
	"github.com/memohai/wabiz/internal/whatsapp"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		event.NewHub,
		provideModel,
		provideDirectory,
		provideResolver,
		provideExecutor,
		provideCalendar,
		provideScheduler,
		provideMeetingHandler,
		provideAutoReply,
		provideInbox,
		provideAgent,
	),
	fx.Invoke(loadDirectory),
)

// ---------------------------------------------------------------------------
// domain service providers
// ---------------------------------------------------------------------------

// provideModel returns a nil model without an API key; every consumer then
// runs on its heuristic fallbacks.
func provideModel(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (llm.Model, error) {
	if strings.TrimSpace(rc.GeminiAPIKey) == "" {
		log.Warn("no gemini api key configured, language model features disabled")
		return nil, nil
	}
	model, err := llm.NewGeminiModel(context.Background(), log, llm.GeminiConfig{
		APIKey:  rc.GeminiAPIKey,
		Model:   cfg.Gemini.Model,
		Timeout: time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

func provideDirectory(log *slog.Logger, conn *pgxpool.Pool) *contacts.Directory {
	return contacts.NewDirectory(log, contacts.NewPostgresStore(conn))
}

func loadDirectory(lc fx.Lifecycle, directory *contacts.Directory) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return directory.Load(ctx)
		},
	})
}

func provideResolver(log *slog.Logger, cfg config.Config, model llm.Model) *resolver.Resolver {
	var assistant resolver.Assistant
	if model != nil {
		assistant = resolver.NewModelAssistant(model)
	}
	return resolver.New(log, assistant, cfg.Agent.ContactPromptLimit)
}

func provideExecutor(log *slog.Logger, cfg config.Config, res *resolver.Resolver, transport whatsapp.Transport, store *conversation.Store, directory *contacts.Directory) *command.Executor {
	return command.NewExecutor(log, res, transport, store, directory, cfg.WhatsApp.BusinessID)
}

func provideCalendar(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, conn *pgxpool.Pool) *calendar.Service {
	return calendar.NewService(log, calendar.Config{
		ClientID:        rc.ClientID,
		ClientSecret:    rc.ClientSecret,
		RedirectURL:     cfg.Google.RedirectURL,
		Location:        rc.Location,
		ReminderMinutes: cfg.Google.ReminderMinutes,
	}, calendar.NewPostgresTokenStore(conn))
}

// provideScheduler delivers reminders through the configured transport with
// the server credentials.
func provideScheduler(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig, transport whatsapp.Transport) *schedule.Service {
	notifier := schedule.NotifierFunc(func(ctx context.Context, to, text string) error {
		_, err := transport.Send(ctx, whatsapp.Outgoing{To: to, Text: text})
		return err
	})
	svc := schedule.NewService(log, notifier, rc.Location)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			svc.Stop()
			return nil
		},
	})
	return svc
}

func provideMeetingHandler(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, model llm.Model, cal *calendar.Service, reminders *schedule.Service) *meeting.Handler {
	detector := meeting.NewDetector(log, model, rc.Location)
	return meeting.NewHandler(log, detector, model, cal, reminders, meeting.HandlerConfig{
		Location:     rc.Location,
		ReminderLead: time.Duration(cfg.Google.ReminderMinutes) * time.Minute,
	})
}

func provideAutoReply(log *slog.Logger, cfg config.Config, store *conversation.Store, directory *contacts.Directory, meetings *meeting.Handler, model llm.Model, transport whatsapp.Transport) *autoreply.Service {
	return autoreply.NewService(log, store, directory, meetings, model, transport, autoreply.Config{
		BusinessID:          cfg.WhatsApp.BusinessID,
		BusinessDescription: cfg.AutoReply.BusinessDescription,
		HistoryLimit:        cfg.AutoReply.HistoryLimit,
	})
}

func provideInbox(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, directory *contacts.Directory, store *conversation.Store, meetings *meeting.Handler, replier *autoreply.Service, transport whatsapp.Transport, hub *event.Hub) *inbox.Service {
	return inbox.NewService(log, directory, store, meetings, replier, transport, hub, inbox.Config{
		Credentials:         whatsapp.Credentials{AccessToken: rc.AccessToken, PhoneNumberID: rc.PhoneNumberID},
		BusinessID:          cfg.WhatsApp.BusinessID,
		AutoReply:           cfg.AutoReply.Enabled,
		BusinessDescription: cfg.AutoReply.BusinessDescription,
	})
}

func provideAgent(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, model llm.Model, directory *contacts.Directory, executor *command.Executor, transport whatsapp.Transport, cal *calendar.Service, store *conversation.Store, hub *event.Hub) *agent.Agent {
	return agent.New(log, model, directory, executor, transport, cal, store, hub, agent.Config{
		BusinessID:   cfg.WhatsApp.BusinessID,
		ChatWindow:   cfg.Agent.HistoryWindow,
		ContactLimit: cfg.Agent.ContactPromptLimit,
		Location:     rc.Location,
	})
}
