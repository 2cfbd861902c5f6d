package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/logger"
)

// InboundHandler receives messages from a linked device session.
type InboundHandler func(ctx context.Context, in Inbound)

// DeviceClient sends and receives through a linked WhatsApp multi-device session.
// The session is stored in SQLite; the first start prints a pairing QR code.
type DeviceClient struct {
	storeDSN string
	qrOut    io.Writer
	logger   *slog.Logger

	mu      sync.RWMutex
	client  *whatsmeow.Client
	handler InboundHandler
}

// NewDeviceClient creates a client for the session stored at storeDSN.
func NewDeviceClient(log *slog.Logger, storeDSN string, qrOut io.Writer) *DeviceClient {
	if qrOut == nil {
		qrOut = os.Stdout
	}
	return &DeviceClient{
		storeDSN: storeDSN,
		qrOut:    qrOut,
		logger:   logger.OrDiscard(log).With(slog.String("transport", "device")),
	}
}

// OnInbound registers the handler for incoming text messages.
func (d *DeviceClient) OnInbound(handler InboundHandler) {
	d.mu.Lock()
	d.handler = handler
	d.mu.Unlock()
}

// Start opens the session store and connects, pairing by QR code when no session exists.
func (d *DeviceClient) Start(ctx context.Context) error {
	if err := ensureStoreDir(d.storeDSN); err != nil {
		return err
	}
	container, err := sqlstore.New(ctx, "sqlite3", d.storeDSN, waLog.Stdout("Database", "ERROR", true))
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "ERROR", true))
	client.AddEventHandler(d.handleEvent)

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(context.Background())
		if err != nil {
			return fmt.Errorf("pairing: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		go d.printQR(qrChan)
	} else if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	d.mu.Lock()
	d.client = client
	d.mu.Unlock()
	d.logger.Info("device session started")
	return nil
}

// Stop disconnects the session.
func (d *DeviceClient) Stop() {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()
	if client != nil {
		client.Disconnect()
		d.logger.Info("device session stopped")
	}
}

// Send delivers a text message. Credentials are ignored; the linked session is the sender.
func (d *DeviceClient) Send(ctx context.Context, msg Outgoing) (Receipt, error) {
	d.mu.RLock()
	client := d.client
	d.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return Receipt{}, errors.New("device session is not connected")
	}
	to := contacts.Normalize(msg.To)
	if to == "" {
		return Receipt{}, ErrInvalidRecipient
	}
	text := msg.Text
	resp, err := client.SendMessage(ctx, types.NewJID(to, types.DefaultUserServer), &waProto.Message{
		Conversation: &text,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("send whatsapp message: %w", err)
	}
	d.logger.Info("message sent", slog.String("to", to), slog.String("message_id", string(resp.ID)))
	return Receipt{MessageID: string(resp.ID), To: to}, nil
}

func (d *DeviceClient) printQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			d.logger.Info("scan the QR code with WhatsApp to link this device")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, d.qrOut)
			continue
		}
		d.logger.Info("pairing event", slog.String("event", evt.Event))
	}
}

func (d *DeviceClient) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		if v.Info.IsFromMe {
			return
		}
		text := textOf(v.Message)
		if text == "" {
			return
		}
		d.mu.RLock()
		handler := d.handler
		d.mu.RUnlock()
		if handler == nil {
			return
		}
		in := Inbound{
			From:        v.Info.Sender.User,
			ProfileName: v.Info.PushName,
			MessageID:   string(v.Info.ID),
			Text:        text,
			Timestamp:   v.Info.Timestamp.UnixMilli(),
		}
		go handler(context.Background(), in)
	case *events.Connected:
		d.logger.Info("device connected")
	case *events.LoggedOut:
		d.logger.Warn("device logged out; delete the session store to pair again")
	}
}

func textOf(msg *waProto.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// ensureStoreDir creates the parent directory of a file: DSN.
func ensureStoreDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
