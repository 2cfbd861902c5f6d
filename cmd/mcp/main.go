package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memohai/wabiz/internal/apiclient"
	"github.com/memohai/wabiz/internal/auth"
	"github.com/memohai/wabiz/internal/boot"
	"github.com/memohai/wabiz/internal/config"
	"github.com/memohai/wabiz/internal/logger"
	"github.com/memohai/wabiz/internal/version"
)

func main() {
	boot.LoadDotEnv()
	cfgPath := os.Getenv("CONFIG_PATH")
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = config.DefaultConfigPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	// stdout carries the protocol.
	logger.L = logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger.L)

	rc, err := boot.ProvideRuntimeConfig(cfg)
	if err != nil {
		logger.L.Error("runtime config", slog.Any("error", err))
		os.Exit(1)
	}

	baseURL := strings.TrimSpace(os.Getenv("WABIZ_API_URL"))
	if baseURL == "" {
		baseURL = apiclient.BaseURLFromAddr(rc.ServerAddr)
	}
	token := strings.TrimSpace(os.Getenv("WABIZ_TOKEN"))
	if token == "" && rc.JwtSecret != "" {
		token, _, err = auth.GenerateToken("mcp", rc.JwtSecret, rc.JwtExpiresIn)
		if err != nil {
			logger.L.Error("mint token", slog.Any("error", err))
			os.Exit(1)
		}
	}

	server := gomcp.NewServer(
		&gomcp.Implementation{Name: "wabiz-mcp", Version: version.GetInfo()},
		nil,
	)
	registerTools(server, apiclient.New(baseURL, token, 60*time.Second))
	if err := server.Run(context.Background(), &gomcp.StdioTransport{}); err != nil {
		logger.L.Error("mcp server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
