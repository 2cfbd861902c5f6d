package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/memohai/wabiz/internal/boot"
	"github.com/memohai/wabiz/internal/config"
	"github.com/memohai/wabiz/internal/inbox"
	"github.com/memohai/wabiz/internal/whatsapp"
)

const cloudSendTimeout = 30 * time.Second

var TransportModule = fx.Module(
	"transport",
	fx.Provide(provideTransport),
	fx.Invoke(startDevice),
)

// ---------------------------------------------------------------------------
// messaging transport
// ---------------------------------------------------------------------------

type transportResult struct {
	fx.Out

	Transport whatsapp.Transport
	Device    *whatsapp.DeviceClient
}

// provideTransport selects the Cloud API or a linked device session. Device
// is nil for the cloud transport.
func provideTransport(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (transportResult, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.WhatsApp.Transport)) {
	case "", config.TransportCloud:
		client := whatsapp.NewCloudClient(
			log,
			cfg.WhatsApp.APIBaseURL,
			whatsapp.Credentials{AccessToken: rc.AccessToken, PhoneNumberID: rc.PhoneNumberID},
			cfg.WhatsApp.SendRatePerSecond,
			cloudSendTimeout,
		)
		return transportResult{Transport: client}, nil
	case config.TransportDevice:
		device := whatsapp.NewDeviceClient(log, cfg.WhatsApp.DeviceStore, os.Stdout)
		return transportResult{Transport: device, Device: device}, nil
	default:
		return transportResult{}, fmt.Errorf("unknown whatsapp transport %q", cfg.WhatsApp.Transport)
	}
}

// startDevice connects the linked session and feeds its messages to the
// same pipeline as webhooks.
func startDevice(lc fx.Lifecycle, device *whatsapp.DeviceClient, pipeline *inbox.Service) {
	if device == nil {
		return
	}
	device.OnInbound(func(ctx context.Context, in whatsapp.Inbound) {
		pipeline.HandleInbound(ctx, in)
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return device.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			device.Stop()
			return nil
		},
	})
}
