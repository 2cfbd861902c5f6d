package main

import (
	"context"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memohai/wabiz/internal/agent"
	"github.com/memohai/wabiz/internal/command"
)

// API is the part of the agent API the tools call.
type API interface {
	Chat(ctx context.Context, message string, opts agent.Options) (agent.Response, error)
	SendMessage(ctx context.Context, message, recipient string, aliases map[string]string) (command.Result, error)
	ContactNames(ctx context.Context) (map[string]string, error)
}

type sendInput struct {
	Message   string            `json:"message" jsonschema:"the text to send"`
	Recipient string            `json:"recipient" jsonschema:"contact name or phone number"`
	Aliases   map[string]string `json:"aliases,omitempty" jsonschema:"optional extra name to phone number mappings"`
}

type chatInput struct {
	Message string `json:"message" jsonschema:"free-text request for the agent"`
}

type chatOutput struct {
	Success    bool   `json:"success"`
	Response   string `json:"response"`
	ActionType string `json:"action_type"`
}

type listContactsInput struct{}

type contactsOutput struct {
	Contacts map[string]string `json:"contacts"`
}

type tools struct {
	api API
}

func registerTools(server *gomcp.Server, api API) {
	t := &tools{api: api}
	gomcp.AddTool(server, &gomcp.Tool{
		Name:        "send_whatsapp_message",
		Description: "Send a WhatsApp text message to a contact by name or phone number",
	}, t.send)
	gomcp.AddTool(server, &gomcp.Tool{
		Name:        "agent_chat",
		Description: "Ask the business agent to send a message, schedule a meeting or answer a question",
	}, t.chat)
	gomcp.AddTool(server, &gomcp.Tool{
		Name:        "list_contacts",
		Description: "List known contacts as phone number to name",
	}, t.listContacts)
}

func (t *tools) send(ctx context.Context, _ *gomcp.CallToolRequest, in sendInput) (*gomcp.CallToolResult, command.Result, error) {
	message := strings.TrimSpace(in.Message)
	recipient := strings.TrimSpace(in.Recipient)
	if message == "" || recipient == "" {
		return nil, command.Result{}, fmt.Errorf("message and recipient are required")
	}
	result, err := t.api.SendMessage(ctx, message, recipient, in.Aliases)
	if err != nil {
		return nil, command.Result{}, err
	}
	if !result.Success {
		return errorResult(result.Error), result, nil
	}
	return textResult(fmt.Sprintf("Message sent to %s (%s)", recipient, result.ContactID)), result, nil
}

func (t *tools) chat(ctx context.Context, _ *gomcp.CallToolRequest, in chatInput) (*gomcp.CallToolResult, chatOutput, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, chatOutput{}, fmt.Errorf("message is required")
	}
	resp, err := t.api.Chat(ctx, in.Message, agent.Options{})
	if err != nil {
		return nil, chatOutput{}, err
	}
	out := chatOutput{Success: resp.Success, Response: resp.Response, ActionType: resp.ActionType}
	return textResult(resp.Response), out, nil
}

func (t *tools) listContacts(ctx context.Context, _ *gomcp.CallToolRequest, _ listContactsInput) (*gomcp.CallToolResult, contactsOutput, error) {
	names, err := t.api.ContactNames(ctx)
	if err != nil {
		return nil, contactsOutput{}, err
	}
	if names == nil {
		names = map[string]string{}
	}
	return nil, contactsOutput{Contacts: names}, nil
}

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: text}}}
}

func errorResult(text string) *gomcp.CallToolResult {
	res := textResult(text)
	res.IsError = true
	return res
}
