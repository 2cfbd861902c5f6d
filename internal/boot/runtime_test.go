package boot

import (
	"testing"
	"time"

	"github.com/memohai/wabiz/internal/config"
)

func TestProvideRuntimeConfigEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "env-token")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "env-phone")
	t.Setenv("TIMEZONE", "UTC")

	cfg := config.Default()
	cfg.WhatsApp.AccessToken = "file-token"
	cfg.WhatsApp.PhoneNumberID = "file-phone"

	rc, err := ProvideRuntimeConfig(cfg)
	if err != nil {
		t.Fatalf("runtime config: %v", err)
	}
	if rc.ServerAddr != ":7000" {
		t.Fatalf("expected HTTP_ADDR override, got %q", rc.ServerAddr)
	}
	if rc.AccessToken != "env-token" || rc.PhoneNumberID != "env-phone" {
		t.Fatalf("expected env credentials, got %q / %q", rc.AccessToken, rc.PhoneNumberID)
	}
	if rc.Location != time.UTC {
		t.Fatalf("expected UTC location, got %v", rc.Location)
	}
	if rc.JwtExpiresIn != 24*time.Hour {
		t.Fatalf("unexpected jwt expiry: %v", rc.JwtExpiresIn)
	}
}

func TestProvideRuntimeConfigRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTExpiresIn = "soon"
	if _, err := ProvideRuntimeConfig(cfg); err == nil {
		t.Fatal("expected duration error")
	}

	cfg = config.Default()
	cfg.Google.Timezone = "Mars/Olympus"
	t.Setenv("TIMEZONE", "")
	if _, err := ProvideRuntimeConfig(cfg); err == nil {
		t.Fatal("expected timezone error")
	}
}
