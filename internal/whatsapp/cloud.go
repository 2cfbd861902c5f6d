package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/memohai/wabiz/internal/contacts"
	"github.com/memohai/wabiz/internal/logger"
)

// CloudClient sends text messages through the WhatsApp Cloud API.
type CloudClient struct {
	baseURL  string
	defaults Credentials
	limiter  *rate.Limiter
	logger   *slog.Logger
	http     *http.Client
}

type cloudTextMessage struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             cloudTextBody `json:"text"`
}

type cloudTextBody struct {
	Body string `json:"body"`
}

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// NewCloudClient builds a Cloud API client. ratePerSecond <= 0 disables throttling.
func NewCloudClient(log *slog.Logger, baseURL string, defaults Credentials, ratePerSecond float64, timeout time.Duration) *CloudClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &CloudClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		defaults: defaults,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.OrDiscard(log).With(slog.String("transport", "cloud")),
		http:     &http.Client{Timeout: timeout},
	}
}

// Send posts a text message to {base}/{phone_number_id}/messages.
func (c *CloudClient) Send(ctx context.Context, msg Outgoing) (Receipt, error) {
	creds := msg.Credentials.Or(c.defaults)
	if !creds.Valid() {
		return Receipt{}, ErrNotConfigured
	}
	to := contacts.Normalize(msg.To)
	if to == "" {
		return Receipt{}, ErrInvalidRecipient
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Receipt{}, err
	}

	body, err := json.Marshal(cloudTextMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             cloudTextBody{Body: msg.Text},
	})
	if err != nil {
		return Receipt{}, err
	}
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, strings.TrimSpace(creds.PhoneNumberID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(creds.AccessToken))

	resp, err := c.http.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("send whatsapp message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("cloud api rejected message",
			slog.Int("status", resp.StatusCode),
			slog.String("to", to),
			slog.String("body", string(payload)),
		)
		return Receipt{}, fmt.Errorf("send whatsapp message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed cloudSendResponse
	_ = json.Unmarshal(payload, &parsed)
	receipt := Receipt{To: to, Response: json.RawMessage(payload)}
	if len(parsed.Messages) > 0 {
		receipt.MessageID = parsed.Messages[0].ID
	}
	c.logger.Info("message sent", slog.String("to", to), slog.String("message_id", receipt.MessageID))
	return receipt, nil
}
