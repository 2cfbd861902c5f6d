package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/wabiz/internal/command"
	"github.com/memohai/wabiz/internal/conversation"
	"github.com/memohai/wabiz/internal/llm"
	"github.com/memohai/wabiz/internal/resolver"
	"github.com/memohai/wabiz/internal/whatsapp"
)

const (
	sendNotUnderstood = "I couldn't understand who you want to send a message to. Please specify a name or number."
	modelUnavailable  = "The AI service is temporarily unavailable. Please try again in a moment."
)

// SendMessage extracts a recipient and message from input, polishes the text
// and sends it through the command executor, falling back to a direct send.
// Every attempt is recorded; the executor records its own.
func (a *Agent) SendMessage(ctx context.Context, input string, opts Options) Response {
	aliases := a.aliases(opts)

	extraction, err := a.extractSend(ctx, input, aliases)
	if err != nil {
		a.logger.Warn("send extraction failed", slog.Any("error", err))
		text := sendNotUnderstood
		if errors.Is(err, llm.ErrUnavailable) {
			text = modelUnavailable
		}
		return Response{Response: text, ActionType: ActionSendMessageFailed}
	}
	if !extraction.IsValidRequest || strings.TrimSpace(extraction.MessageToSend) == "" {
		return Response{Response: sendNotUnderstood, ActionType: ActionSendMessageFailed}
	}

	text := a.polish(ctx, extraction.MessageToSend)
	phone := recipientPhone(extraction, aliases)
	name := firstNonEmpty(extraction.RecipientName, extraction.ResolvedRecipientName, phone)
	target := firstNonEmpty(extraction.ResolvedRecipientName, extraction.RecipientName, phone)

	// Pin the target to the model's resolution so the executor sends to the same number.
	commandAliases := resolver.NewAliases()
	if phone != "" {
		commandAliases.Add(target, phone, name)
	}
	commandAliases.Merge(aliases)

	details := SendDetails{Recipient: target, RecipientPhone: phone, Message: text}
	result := a.commands.Send(ctx, command.Command{Message: text, Recipient: target}, commandAliases, opts.Credentials)
	details.Command = &result
	if result.Success {
		if details.RecipientPhone == "" {
			details.RecipientPhone = result.ContactID
		}
		details.Receipt = result.Receipt
		return Response{
			Success:    true,
			Response:   fmt.Sprintf("✅ Message sent to %s: %s", name, text),
			ActionType: ActionSendMessage,
			Details:    details,
		}
	}

	a.logger.Warn("command send failed", slog.String("target", target), slog.String("error", result.Error))
	if phone != "" && a.transport != nil {
		receipt, err := a.transport.Send(ctx, whatsapp.Outgoing{To: phone, Text: text, Credentials: opts.Credentials})
		if err == nil {
			a.record(ctx, phone, text, opts.Credentials, "")
			details.DirectSend = true
			details.Receipt = &receipt
			return Response{
				Success:    true,
				Response:   fmt.Sprintf("✅ Message sent to %s: %s", name, text),
				ActionType: ActionSendMessage,
				Details:    details,
			}
		}
		a.logger.Error("direct send failed", slog.String("to", phone), slog.Any("error", err))
		if result.ContactID != phone {
			a.record(ctx, phone, text, opts.Credentials, conversation.StatusFailed)
		}
		if errors.Is(err, whatsapp.ErrNotConfigured) {
			result.Error = "WhatsApp credentials are not configured on the server."
		}
	}

	reason := result.Error
	if reason == "" {
		reason = "Unknown error"
	}
	details.Error = reason
	return Response{
		Response:   fmt.Sprintf("❌ Failed to send message to %s: %s", name, reason),
		ActionType: ActionSendMessageFailed,
		Details:    details,
	}
}

// extractSend asks the model for the recipient and message. Without a usable
// model answer a literal send command in input is accepted instead.
func (a *Agent) extractSend(ctx context.Context, input string, aliases *resolver.Aliases) (llm.SendExtraction, error) {
	var modelErr error
	if a.model != nil {
		candidates, err := json.Marshal(resolver.Candidates(aliases, a.cfg.ContactLimit))
		if err != nil {
			return llm.SendExtraction{}, err
		}
		raw, err := a.model.GenerateJSON(ctx, sendPrompt(input, string(candidates)))
		if err == nil {
			var extraction llm.SendExtraction
			if extraction, err = llm.Decode(raw, llm.SendExtractionSchema); err == nil {
				return extraction, nil
			}
		}
		modelErr = err
	}
	if cmd, ok := command.Parse(input); ok {
		return llm.SendExtraction{
			RecipientName:  cmd.Recipient,
			MessageToSend:  cmd.Message,
			IsValidRequest: true,
		}, nil
	}
	if modelErr == nil {
		modelErr = llm.ErrMalformed
	}
	return llm.SendExtraction{}, modelErr
}

// polish rewrites text in a more professional register. The input text is
// kept when the model is missing or fails.
func (a *Agent) polish(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	if a.model == nil {
		return text
	}
	out, err := a.model.Generate(ctx, polishPrompt(text))
	if err != nil {
		a.logger.Warn("message rewrite failed", slog.Any("error", err))
		return text
	}
	if out = llm.CleanText(out); out != "" {
		return out
	}
	return text
}

// recipientPhone prefers the model's resolved number when it names a known
// contact, then the resolved and extracted names, then an explicit number.
func recipientPhone(ex llm.SendExtraction, aliases *resolver.Aliases) string {
	if number := strings.TrimSpace(ex.ResolvedRecipientNumber); number != "" {
		if known(aliases, number) {
			return number
		}
		if digits, ok := resolver.PhoneLiteral(number); ok {
			return digits
		}
	}
	for _, name := range []string{ex.ResolvedRecipientName, ex.RecipientName} {
		if id, ok := aliases.Lookup(name); ok {
			return id
		}
	}
	if digits, ok := resolver.PhoneLiteral(ex.RecipientNumber); ok {
		return digits
	}
	if digits, ok := resolver.PhoneLiteral(ex.RecipientName); ok {
		return digits
	}
	return ""
}

func known(aliases *resolver.Aliases, contactID string) bool {
	for _, alias := range aliases.Entries() {
		if alias.ContactID == contactID {
			return true
		}
	}
	return false
}

func (a *Agent) aliases(opts Options) *resolver.Aliases {
	out := resolver.NewAliases()
	if len(opts.Aliases) > 0 {
		out.Merge(resolver.FromMap(opts.Aliases))
	}
	if a.directory != nil {
		out.Merge(resolver.BuildAliases(a.directory.All()))
	}
	return out
}

func (a *Agent) record(ctx context.Context, to, text string, creds whatsapp.Credentials, status string) {
	if a.recorder == nil {
		return
	}
	_, err := a.recorder.Append(ctx, conversation.AppendInput{
		ContactID: to,
		Text:      text,
		Sender:    whatsapp.Sender(creds, a.cfg.BusinessID),
		Receiver:  to,
		Status:    status,
	})
	if err != nil {
		a.logger.Warn("record sent message failed", slog.String("contact_id", to), slog.Any("error", err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
