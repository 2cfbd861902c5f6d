package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/memohai/wabiz/internal/boot"
	"github.com/memohai/wabiz/internal/config"
	"github.com/memohai/wabiz/internal/server"
	"github.com/memohai/wabiz/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServer,
	),
	fx.Invoke(startServer),
)

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, server.Options{
		Addr:        params.RuntimeConfig.ServerAddr,
		JWTSecret:   params.RuntimeConfig.JwtSecret,
		CORSOrigins: params.Config.Server.CORSOrigins,
	}, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, rc *boot.RuntimeConfig) {
	fmt.Printf("Starting WhatsApp business agent %s\n", version.GetInfo())
	if rc.JwtSecret == "" {
		logger.Warn("auth.jwt_secret is empty, /api routes are unauthenticated")
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
