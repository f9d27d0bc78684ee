package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSSenderConfig holds SMS gateway configuration.
type SMSSenderConfig struct {
	// AccountID and AuthToken authenticate against the gateway.
	AccountID string
	AuthToken string

	// From is the sending phone number or alphanumeric sender ID.
	From string

	// BaseURL is the gateway API root, e.g. "https://api.twilio.com/2010-04-01".
	BaseURL string

	// Timeout for HTTP requests. Defaults to 10s.
	Timeout time.Duration
}

// SMSSender delivers messages through a Twilio-style SMS gateway.
// The message recipient is the destination phone number.
type SMSSender struct {
	config     SMSSenderConfig
	httpClient *http.Client
}

// NewSMSSender creates an SMS sender.
func NewSMSSender(config SMSSenderConfig) (*SMSSender, error) {
	if config.AccountID == "" || config.AuthToken == "" {
		return nil, errors.New("sms account ID and auth token are required")
	}
	if config.From == "" {
		return nil, errors.New("sms from number is required")
	}
	if config.BaseURL == "" {
		return nil, errors.New("sms gateway base URL is required")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &SMSSender{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Channel returns the channel this sender handles.
func (s *SMSSender) Channel() Channel {
	return ChannelSMS
}

// Send delivers the message to the recipient phone number.
func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return NewChannelError(ChannelSMS, ErrorCodeInvalidPayload, err)
	}

	form := url.Values{}
	form.Set("To", msg.Recipient)
	form.Set("From", s.config.From)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json",
		strings.TrimRight(s.config.BaseURL, "/"), url.PathEscape(s.config.AccountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return NewChannelError(ChannelSMS, ErrorCodeUnknown,
			fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.config.AccountID, s.config.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return NewChannelError(ChannelSMS, ErrorCodeUnreachable,
			fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	return NewChannelError(ChannelSMS, classifyHTTPStatus(resp.StatusCode),
		fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, string(respBody)))
}
