package gohighlevel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/template"
)

// SendSMSExecutor sends a text message to the phone found in config or variables.
type SendSMSExecutor struct {
	client Client
	logger *slog.Logger
}

func NewSendSMSExecutor(client Client, logger *slog.Logger) *SendSMSExecutor {
	return &SendSMSExecutor{client: client, logger: logger}
}

func (e *SendSMSExecutor) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	phone, err := field(node, execCtx, "phone")
	if err != nil {
		return nil, err
	}

	if phone == "" {
		execCtx.Warning(node.ID, "No phone number available, SMS not sent", nil)

		return models.NodeOutput{"status": "skipped"}, nil
	}

	message, err := field(node, execCtx, "message")
	if err != nil {
		return nil, err
	}

	contactID, err := field(node, execCtx, "contactId")
	if err != nil {
		return nil, err
	}

	resp, err := e.client.SendSMS(ctx, SMSRequest{ContactID: contactID, Phone: phone, Message: message})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "SMS sent", "node_id", node.ID, "message_id", resp.MessageID)
	execCtx.Success(node.ID, "SMS sent to "+phone, map[string]any{"messageId": resp.MessageID})

	return models.NodeOutput{
		"messageId": resp.MessageID,
		"status":    resp.Status,
	}, nil
}

// CreateContactExecutor creates a CRM contact from config or variables.
type CreateContactExecutor struct {
	client Client
	logger *slog.Logger
}

func NewCreateContactExecutor(client Client, logger *slog.Logger) *CreateContactExecutor {
	return &CreateContactExecutor{client: client, logger: logger}
}

func (e *CreateContactExecutor) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	contact := Contact{}

	for key, dst := range map[string]*string{
		"locationId": &contact.LocationID,
		"firstName":  &contact.FirstName,
		"lastName":   &contact.LastName,
		"email":      &contact.Email,
		"phone":      &contact.Phone,
	} {
		value, err := field(node, execCtx, key)
		if err != nil {
			return nil, err
		}

		*dst = value
	}

	if contact.Email == "" && contact.Phone == "" {
		execCtx.Warning(node.ID, "Contact has neither email nor phone", nil)
	}

	resp, err := e.client.CreateContact(ctx, contact)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Contact created", "node_id", node.ID, "contact_id", resp.ContactID)
	execCtx.Success(node.ID, "Contact created", map[string]any{"contactId": resp.ContactID})

	return models.NodeOutput{
		"contactId": resp.ContactID,
		"email":     contact.Email,
		"phone":     contact.Phone,
	}, nil
}

// FallbackExecutor handles GoHighLevel module types without a dedicated executor.
type FallbackExecutor struct{}

func (e *FallbackExecutor) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	execCtx.Warning(node.ID, fmt.Sprintf("GoHighLevel module type %q is not supported", node.Data.ModuleType), nil)

	return models.NodeOutput{}, nil
}

// field reads key from the node config, rendering templates, and falls back to
// the variable of the same name.
func field(node *models.Node, execCtx *models.ExecutionContext, key string) (string, error) {
	if raw := node.Data.GetString(key); raw != "" {
		rendered, err := template.RenderStringWithContext(raw, execCtx)
		if err != nil {
			return "", fmt.Errorf("failed to render %s: %w", key, err)
		}

		return rendered, nil
	}

	switch v := execCtx.Variables[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}
