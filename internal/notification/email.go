package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultEmailAPIURL = "https://api.mailersend.com/v1/email"

// EmailSenderConfig holds email sender configuration.
type EmailSenderConfig struct {
	// APIToken authenticates against the transactional email API.
	APIToken string

	// FromEmail is the sender address. FromName is optional.
	FromEmail string
	FromName  string

	// Subject used for all relayed messages. Defaults to "Notification".
	Subject string

	// BaseURL overrides the API endpoint (used in tests).
	BaseURL string

	// Timeout for HTTP requests. Defaults to 10s.
	Timeout time.Duration
}

// EmailSender delivers messages through a transactional email HTTP API.
// The message recipient is the destination email address.
type EmailSender struct {
	config     EmailSenderConfig
	httpClient *http.Client
	apiURL     string
}

type emailParty struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type emailRequest struct {
	From    emailParty   `json:"from"`
	To      []emailParty `json:"to"`
	Subject string       `json:"subject"`
	Text    string       `json:"text"`
}

// NewEmailSender creates an email sender.
func NewEmailSender(config EmailSenderConfig) (*EmailSender, error) {
	if config.APIToken == "" {
		return nil, errors.New("email API token is required")
	}
	if config.FromEmail == "" {
		return nil, errors.New("email from address is required")
	}
	if config.Subject == "" {
		config.Subject = "Notification"
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	apiURL := config.BaseURL
	if apiURL == "" {
		apiURL = defaultEmailAPIURL
	}

	return &EmailSender{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
	}, nil
}

// Channel returns the channel this sender handles.
func (s *EmailSender) Channel() Channel {
	return ChannelEmail
}

// Send delivers the message to the recipient address.
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return NewChannelError(ChannelEmail, ErrorCodeInvalidPayload, err)
	}

	body, err := json.Marshal(emailRequest{
		From:    emailParty{Email: s.config.FromEmail, Name: s.config.FromName},
		To:      []emailParty{{Email: msg.Recipient}},
		Subject: s.config.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return NewChannelError(ChannelEmail, ErrorCodeInvalidPayload,
			fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return NewChannelError(ChannelEmail, ErrorCodeUnknown,
			fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return NewChannelError(ChannelEmail, ErrorCodeUnreachable,
			fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Limit how much of an error body we keep around.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return NewChannelError(ChannelEmail, classifyHTTPStatus(resp.StatusCode),
		fmt.Errorf("email API returned %d: %s", resp.StatusCode, string(respBody)))
}

// classifyHTTPStatus maps HTTP API status codes to error codes. Shared by
// the email and SMS senders, both of which speak plain HTTP.
func classifyHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorCodeRejected
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrorCodeInvalidPayload
	case status >= 500:
		return ErrorCodeUnreachable
	default:
		return ErrorCodeUnknown
	}
}
