package gohighlevel

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/protocol"
)

const Integration = "gohighlevel-action"

// SendSMSExecutorFactory creates SendSMSExecutor instances bound to a client.
type SendSMSExecutorFactory struct {
	client Client
}

func NewSendSMSExecutorFactory(client Client) protocol.ExecutorFactory {
	return &SendSMSExecutorFactory{client: client}
}

func (f *SendSMSExecutorFactory) Create(ctx context.Context, logger *slog.Logger) (protocol.NodeExecutor, error) {
	return NewSendSMSExecutor(f.client, logger), nil
}

func (f *SendSMSExecutorFactory) ID() string {
	return Integration + "-send-sms"
}

func (f *SendSMSExecutorFactory) Name() string {
	return "GoHighLevel: Send SMS"
}

func (f *SendSMSExecutorFactory) Description() string {
	return "Sends an SMS through GoHighLevel conversations"
}

func (f *SendSMSExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"phone": map[string]any{
				"type":        "string",
				"description": "Destination phone. Defaults to the 'phone' variable.",
				"examples":    []string{"+15551234567", "{{ .vars.phone }}"},
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message body. Supports templating.",
				"examples":    []string{"Hi {{ .vars.firstName }}, thanks for reaching out!"},
			},
			"contactId": map[string]any{
				"type":        "string",
				"description": "GoHighLevel contact to attach the conversation to",
			},
		},
	}
}

// CreateContactExecutorFactory creates CreateContactExecutor instances bound to a client.
type CreateContactExecutorFactory struct {
	client Client
}

func NewCreateContactExecutorFactory(client Client) protocol.ExecutorFactory {
	return &CreateContactExecutorFactory{client: client}
}

func (f *CreateContactExecutorFactory) Create(ctx context.Context, logger *slog.Logger) (protocol.NodeExecutor, error) {
	return NewCreateContactExecutor(f.client, logger), nil
}

func (f *CreateContactExecutorFactory) ID() string {
	return Integration + "-create-contact"
}

func (f *CreateContactExecutorFactory) Name() string {
	return "GoHighLevel: Create Contact"
}

func (f *CreateContactExecutorFactory) Description() string {
	return "Creates a contact in GoHighLevel"
}

func (f *CreateContactExecutorFactory) Schema() map[string]any {
	stringField := func(description string) map[string]any {
		return map[string]any{"type": "string", "description": description}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"locationId": stringField("Sub-account the contact belongs to"),
			"firstName":  stringField("First name. Supports templating."),
			"lastName":   stringField("Last name. Supports templating."),
			"email":      stringField("Email. Defaults to the 'email' variable."),
			"phone":      stringField("Phone. Defaults to the 'phone' variable."),
		},
	}
}

// FallbackExecutorFactory registers the integration-level fallback.
type FallbackExecutorFactory struct{}

func NewFallbackExecutorFactory() protocol.ExecutorFactory {
	return &FallbackExecutorFactory{}
}

func (f *FallbackExecutorFactory) Create(ctx context.Context, logger *slog.Logger) (protocol.NodeExecutor, error) {
	return &FallbackExecutor{}, nil
}

func (f *FallbackExecutorFactory) ID() string {
	return Integration
}

func (f *FallbackExecutorFactory) Name() string {
	return "GoHighLevel"
}

func (f *FallbackExecutorFactory) Description() string {
	return "Catches GoHighLevel module types that have no dedicated executor"
}

func (f *FallbackExecutorFactory) Schema() map[string]any {
	return nil
}
