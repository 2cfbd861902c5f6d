package main

import (
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/wabiz/cmd/agent/modules"
)

func main() {
	fx.New(
		modules.InfraModule,
		modules.ConversationModule,
		modules.TransportModule,
		modules.DomainModule,
		modules.HandlersModule,
		modules.ServerModule,
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}
