package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/wabiz/internal/agent"
	"github.com/memohai/wabiz/internal/autoreply"
	"github.com/memohai/wabiz/internal/boot"
	"github.com/memohai/wabiz/internal/calendar"
	"github.com/memohai/wabiz/internal/command"
	"github.com/memohai/wabiz/internal/config"
	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/embeddings"
	"github.com/memohai/wabiz/internal/event"
	"github.com/memohai/wabiz/internal/handlers"
	"github.com/memohai/wabiz/internal/inbox"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/meeting"
	"github.com/memohai/wabiz/internal/server"
	"github.com/memohai/wabiz/internal/whatsapp"
)

var HandlersModule = fx.Module(
	"handlers",
	fx.Provide(
		annotateHandler(handlers.NewPingHandler),
		annotateHandler(provideMessagesHandler),
		annotateHandler(provideContactsHandler),
		annotateHandler(provideWebhookHandler),
		annotateHandler(provideCommandHandler),
		annotateHandler(provideAutoReplyHandler),
		annotateHandler(provideCalendarHandler),
		annotateHandler(provideAgentHandler),
		annotateHandler(provideEventsHandler),
	),
)

// annotateHandler wraps a handler provider function with fx.Annotate
// to register it as a server.Handler with the correct group tag
func annotateHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

// ---------------------------------------------------------------------------
// handler providers
// ---------------------------------------------------------------------------

func provideMessagesHandler(log *slog.Logger, cfg config.Config, store *conversation.Store, transport whatsapp.Transport, meetings *meeting.Handler, directory *contacts.Directory, model llm.Model, embedder embeddings.Embedder, hub *event.Hub) *handlers.MessagesHandler {
	return handlers.NewMessagesHandler(log, handlers.MessagesDeps{
		Store:      store,
		Transport:  transport,
		Meetings:   meetings,
		Names:      directory,
		Model:      model,
		Embedder:   embedder,
		Publisher:  hub,
		BusinessID: cfg.WhatsApp.BusinessID,
	})
}

func provideContactsHandler(log *slog.Logger, directory *contacts.Directory) *handlers.ContactsHandler {
	return handlers.NewContactsHandler(log, directory)
}

func provideWebhookHandler(log *slog.Logger, rc *boot.RuntimeConfig, pipeline *inbox.Service) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, pipeline, rc.VerifyToken)
}

func provideCommandHandler(log *slog.Logger, executor *command.Executor) *handlers.CommandHandler {
	return handlers.NewCommandHandler(log, executor)
}

func provideAutoReplyHandler(log *slog.Logger, replier *autoreply.Service) *handlers.AutoReplyHandler {
	return handlers.NewAutoReplyHandler(log, replier)
}

func provideCalendarHandler(log *slog.Logger, cal *calendar.Service) *handlers.CalendarHandler {
	return handlers.NewCalendarHandler(log, cal)
}

func provideAgentHandler(log *slog.Logger, orchestrator *agent.Agent) *handlers.AgentHandler {
	return handlers.NewAgentHandler(log, orchestrator)
}

func provideEventsHandler(log *slog.Logger, hub *event.Hub) *handlers.EventsHandler {
	return handlers.NewEventsHandler(log, hub)
}
