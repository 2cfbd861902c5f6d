package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/wabiz/internal/apiclient"
	"github.com/memohai/wabiz/internal/boot"
	"github.com/memohai/wabiz/internal/config"
	"github.com/memohai/wabiz/internal/logger"
)

type cliOptions struct {
	configPath string
	apiBaseURL string
	jwtToken   string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	defaultConfig := os.Getenv("CONFIG_PATH")
	if strings.TrimSpace(defaultConfig) == "" {
		defaultConfig = config.DefaultConfigPath
	}

	root := &cobra.Command{
		Use:           "wabiz",
		Short:         "Command line client for the WhatsApp business agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", defaultConfig, "Path to config.toml")
	flags.StringVar(&opts.apiBaseURL, "api-url", "", "API server base URL (e.g. http://127.0.0.1:4000)")
	flags.StringVar(&opts.jwtToken, "jwt", os.Getenv("WABIZ_TOKEN"), "Bearer token (minted from auth.jwt_secret when empty)")
	flags.DurationVar(&opts.timeout, "timeout", 60*time.Second, "Request timeout")

	root.AddCommand(
		newChatCmd(opts),
		newSendCmd(opts),
		newContactsCmd(opts),
		newHistoryCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads config.toml and the environment the same way the server does.
func loadConfig(opts *cliOptions) (config.Config, *boot.RuntimeConfig, error) {
	boot.LoadDotEnv()
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	rc, err := boot.ProvideRuntimeConfig(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, rc, nil
}

// newClient builds an API client, minting a token from the shared secret
// when none was given.
func newClient(opts *cliOptions) (*apiclient.Client, error) {
	_, rc, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(opts.apiBaseURL)
	if baseURL == "" {
		baseURL = apiclient.BaseURLFromAddr(rc.ServerAddr)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("api url is required")
	}
	token := strings.TrimSpace(opts.jwtToken)
	if token == "" && rc.JwtSecret != "" {
		token, err = mintToken(rc, cliSubject, time.Hour)
		if err != nil {
			return nil, err
		}
	}
	return apiclient.New(baseURL, token, opts.timeout), nil
}
