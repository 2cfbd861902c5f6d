package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	migrations "github.com/memohai/wabiz/db"
	"github.com/memohai/wabiz/internal/boot"
	"github.com/memohai/wabiz/internal/config"
	"github.com/memohai/wabiz/internal/db"
	"github.com/memohai/wabiz/internal/logger"
)

const dbConnectTimeout = 10 * time.Second

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		provideDBConn,
		boot.ProvideRuntimeConfig,
	),
	fx.Invoke(runMigrations),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideConfig() (config.Config, error) {
	boot.LoadDotEnv()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancel()
	conn, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

// runMigrations brings the schema up to date before any store is used.
func runMigrations(log *slog.Logger, cfg config.Config, _ *pgxpool.Pool) error {
	return db.RunMigrate(log, cfg.Postgres, migrations.MigrationsFS, "migrations", db.MigrateUp, nil)
}
