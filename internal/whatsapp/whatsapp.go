// Package whatsapp sends and receives WhatsApp messages through the Cloud API
// or a linked multi-device session.
package whatsapp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrVerification is returned when a webhook subscription handshake is rejected.
	ErrVerification = errors.New("webhook verification failed")
	// ErrNotConfigured is returned when no credentials are available for sending.
	ErrNotConfigured = errors.New("whatsapp credentials are not configured")
	// ErrInvalidRecipient is returned when the recipient has no digits.
	ErrInvalidRecipient = errors.New("recipient phone number is invalid")
)

// Credentials identify the business number used for sending.
type Credentials struct {
	AccessToken   string `json:"token,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.AccessToken) != "" && strings.TrimSpace(c.PhoneNumberID) != ""
}

// Or returns c with empty fields filled from fallback.
func (c Credentials) Or(fallback Credentials) Credentials {
	if strings.TrimSpace(c.AccessToken) == "" {
		c.AccessToken = fallback.AccessToken
	}
	if strings.TrimSpace(c.PhoneNumberID) == "" {
		c.PhoneNumberID = fallback.PhoneNumberID
	}
	return c
}

// Outgoing is a text message to send. Empty Credentials use the transport defaults.
type Outgoing struct {
	To          string
	Text        string
	Credentials Credentials
}

// Receipt is the transport's acknowledgement of a sent message.
type Receipt struct {
	MessageID string          `json:"message_id,omitempty"`
	To        string          `json:"to"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// Transport delivers outgoing messages.
type Transport interface {
	Send(ctx context.Context, msg Outgoing) (Receipt, error)
}

// Sender returns the id recorded as the sender of outgoing messages.
// It is the business phone number id when known, else fallback.
func Sender(creds Credentials, fallback string) string {
	if id := strings.TrimSpace(creds.PhoneNumberID); id != "" {
		return id
	}
	return fallback
}

// Verify answers the webhook subscription handshake.
func Verify(mode, token, challenge, expected string) (string, error) {
	if mode != "subscribe" || expected == "" {
		return "", ErrVerification
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return "", ErrVerification
	}
	return challenge, nil
}
