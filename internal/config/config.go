// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath          = "config.toml"
	DefaultHTTPAddr            = ":4000"
	DefaultJWTExpiresIn        = "24h"
	DefaultPGHost              = "127.0.0.1"
	DefaultPGPort              = 5432
	DefaultPGUser              = "postgres"
	DefaultPGDatabase          = "wabiz"
	DefaultPGSSLMode           = "disable"
	DefaultQdrantURL           = "http://127.0.0.1:6334"
	DefaultQdrantCollection    = "conversations"
	DefaultWhatsAppTransport   = "cloud"
	DefaultWhatsAppAPIBaseURL  = "https://graph.facebook.com/v18.0"
	DefaultWhatsAppVerifyToken = "whatsapp_verify_token"
	DefaultBusinessID          = "business"
	DefaultDeviceStore         = "file:data/whatsmeow.db?_foreign_keys=on"
	DefaultGeminiModel         = "gemini-2.0-flash"
	DefaultEmbeddingModel      = "gemini-embedding-001"
	DefaultEmbeddingDimensions = 768
	DefaultGoogleRedirectURL   = "http://localhost:4000/auth/google/callback"
	DefaultTimezone            = "Asia/Kolkata"
)

// Transport names accepted in [whatsapp].transport.
const (
	TransportCloud  = "cloud"
	TransportDevice = "device"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp"`
	Gemini    GeminiConfig    `toml:"gemini"`
	Google    GoogleConfig    `toml:"google"`
	AutoReply AutoReplyConfig `toml:"auto_reply"`
	Agent     AgentConfig     `toml:"agent"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address and allowed CORS origins.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// AuthConfig holds the API JWT secret and token expiry (e.g. 24h).
// An empty secret leaves the API unauthenticated.
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// QdrantConfig holds Qdrant base URL, API key, collection name, and timeout.
type QdrantConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Collection     string `toml:"collection"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WhatsAppConfig selects the messaging transport and holds its credentials.
type WhatsAppConfig struct {
	Transport         string  `toml:"transport"`
	APIBaseURL        string  `toml:"api_base_url"`
	AccessToken       string  `toml:"access_token"`
	PhoneNumberID     string  `toml:"phone_number_id"`
	VerifyToken       string  `toml:"verify_token"`
	BusinessID        string  `toml:"business_id"`
	SendRatePerSecond float64 `toml:"send_rate_per_second"`
	DeviceStore       string  `toml:"device_store"`
}

// GeminiConfig holds the language model and embedding model settings.
type GeminiConfig struct {
	APIKey              string `toml:"api_key"`
	Model               string `toml:"model"`
	EmbeddingModel      string `toml:"embedding_model"`
	EmbeddingDimensions int    `toml:"embedding_dimensions"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// GoogleConfig holds OAuth client credentials and calendar defaults.
type GoogleConfig struct {
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	RedirectURL     string `toml:"redirect_url"`
	Timezone        string `toml:"timezone"`
	ReminderMinutes int    `toml:"reminder_minutes"`
}

// AutoReplyConfig controls automatic replies to inbound webhook messages.
type AutoReplyConfig struct {
	Enabled             bool   `toml:"enabled"`
	BusinessDescription string `toml:"business_description"`
	HistoryLimit        int    `toml:"history_limit"`
}

// AgentConfig holds the agent context window and prompt caps.
type AgentConfig struct {
	HistoryWindow      int `toml:"history_window"`
	ContactPromptLimit int `toml:"contact_prompt_limit"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:        DefaultHTTPAddr,
			CORSOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Qdrant: QdrantConfig{
			BaseURL:        DefaultQdrantURL,
			Collection:     DefaultQdrantCollection,
			TimeoutSeconds: 10,
		},
		WhatsApp: WhatsAppConfig{
			Transport:         DefaultWhatsAppTransport,
			APIBaseURL:        DefaultWhatsAppAPIBaseURL,
			VerifyToken:       DefaultWhatsAppVerifyToken,
			BusinessID:        DefaultBusinessID,
			SendRatePerSecond: 20,
			DeviceStore:       DefaultDeviceStore,
		},
		Gemini: GeminiConfig{
			Model:               DefaultGeminiModel,
			EmbeddingModel:      DefaultEmbeddingModel,
			EmbeddingDimensions: DefaultEmbeddingDimensions,
			TimeoutSeconds:      30,
		},
		Google: GoogleConfig{
			RedirectURL:     DefaultGoogleRedirectURL,
			Timezone:        DefaultTimezone,
			ReminderMinutes: 10,
		},
		AutoReply: AutoReplyConfig{
			HistoryLimit: 50,
		},
		Agent: AgentConfig{
			HistoryWindow:      6,
			ContactPromptLimit: 150,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
