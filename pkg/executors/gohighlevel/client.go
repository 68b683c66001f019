// Package gohighlevel provides executors for the GoHighLevel (LeadConnector) CRM integration.
package gohighlevel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://services.leadconnectorhq.com"
	APIVersion     = "2021-07-28"
)

// ErrAPI is wrapped by every non-2xx LeadConnector response.
var ErrAPI = errors.New("gohighlevel api error")

type SMSRequest struct {
	ContactID string `json:"contactId,omitempty"`
	Phone     string `json:"toNumber,omitempty"`
	Message   string `json:"message"`
}

type SMSResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type Contact struct {
	LocationID string `json:"locationId,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type ContactResponse struct {
	ContactID string `json:"contactId"`
}

// Client is the subset of the LeadConnector API the executors need.
type Client interface {
	SendSMS(ctx context.Context, req SMSRequest) (*SMSResponse, error)
	CreateContact(ctx context.Context, contact Contact) (*ContactResponse, error)
}

// MockClient answers with fixed identifiers and never leaves the process.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) SendSMS(ctx context.Context, req SMSRequest) (*SMSResponse, error) {
	return &SMSResponse{MessageID: "mock-msg-789", Status: "sent"}, nil
}

func (c *MockClient) CreateContact(ctx context.Context, contact Contact) (*ContactResponse, error) {
	return &ContactResponse{ContactID: "mock-contact-123"}, nil
}

// HTTPClient talks to the LeadConnector REST API with a bearer token.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) SendSMS(ctx context.Context, req SMSRequest) (*SMSResponse, error) {
	body := map[string]any{
		"type":    "SMS",
		"message": req.Message,
	}
	if req.ContactID != "" {
		body["contactId"] = req.ContactID
	}

	if req.Phone != "" {
		body["toNumber"] = req.Phone
	}

	var resp struct {
		MessageID string `json:"messageId"`
		Status    string `json:"status"`
	}

	if err := c.post(ctx, "/conversations/messages", body, &resp); err != nil {
		return nil, err
	}

	status := resp.Status
	if status == "" {
		status = "sent"
	}

	return &SMSResponse{MessageID: resp.MessageID, Status: status}, nil
}

func (c *HTTPClient) CreateContact(ctx context.Context, contact Contact) (*ContactResponse, error) {
	var resp struct {
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
	}

	if err := c.post(ctx, "/contacts/", contact, &resp); err != nil {
		return nil, err
	}

	return &ContactResponse{ContactID: resp.Contact.ID}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: HTTP %d: %s", ErrAPI, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
