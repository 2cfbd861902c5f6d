// Package boot provides runtime configuration and dependency wiring for the agent.
package boot

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/memohai/wabiz/internal/config"
)

// RuntimeConfig holds parsed runtime settings (JWT, server address, channel credentials).
// Values may be overridden by environment variables (e.g. HTTP_ADDR, WHATSAPP_ACCESS_TOKEN).
type RuntimeConfig struct {
	JwtSecret     string
	JwtExpiresIn  time.Duration
	ServerAddr    string
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	GeminiAPIKey  string
	ClientID      string
	ClientSecret  string
	Location      *time.Location
}

// LoadDotEnv loads a .env file from the working directory when present.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	jwtExpiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("invalid jwt expires in: %w", err)
	}

	ret := &RuntimeConfig{
		JwtSecret:     strings.TrimSpace(cfg.Auth.JWTSecret),
		JwtExpiresIn:  jwtExpiresIn,
		ServerAddr:    cfg.Server.Addr,
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		VerifyToken:   cfg.WhatsApp.VerifyToken,
		GeminiAPIKey:  cfg.Gemini.APIKey,
		ClientID:      cfg.Google.ClientID,
		ClientSecret:  cfg.Google.ClientSecret,
	}

	if value := os.Getenv("PORT"); value != "" {
		ret.ServerAddr = ":" + strings.TrimPrefix(value, ":")
	}
	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}
	overrides := map[string]*string{
		"WHATSAPP_ACCESS_TOKEN":    &ret.AccessToken,
		"WHATSAPP_PHONE_NUMBER_ID": &ret.PhoneNumberID,
		"WHATSAPP_VERIFY_TOKEN":    &ret.VerifyToken,
		"GEMINI_API_KEY":           &ret.GeminiAPIKey,
		"GOOGLE_CLIENT_ID":         &ret.ClientID,
		"GOOGLE_CLIENT_SECRET":     &ret.ClientSecret,
	}
	for key, target := range overrides {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
		}
	}

	timezone := cfg.Google.Timezone
	if value := strings.TrimSpace(os.Getenv("TIMEZONE")); value != "" {
		timezone = value
	}
	if timezone == "" {
		timezone = config.DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	ret.Location = loc
	return ret, nil
}
