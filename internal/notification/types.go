// Package notification defines the message delivery capability and its
// channel implementations (SMS, Email, Telegram).
//
// Each channel is a thin adapter over an external transport: the Telegram
// Bot API, a transactional email HTTP API, and an SMS gateway HTTP API.
// A Registry maps a configuration tag to one Sender, falling back to the
// email sender for unrecognized tags.
//
// Usage:
//
//	reg, err := notification.NewRegistry(emailSender, smsSender, tgSender)
//	snd := reg.SenderFor(cfg.Channel) // "sms", "email", "telegram", or anything
//	err = snd.Send(ctx, notification.Message{Recipient: "+155500", Body: "hi"})
package notification

import (
	"errors"
	"fmt"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
)

// DefaultChannel is used when a selector tag does not match any
// registered channel.
const DefaultChannel = ChannelEmail

// Message is a single delivery request. It is passed by value and never
// mutated by a Sender.
type Message struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

// Validate checks that the message can be delivered at all.
func (m Message) Validate() error {
	if m.Recipient == "" {
		return errors.New("recipient is required")
	}
	if m.Body == "" {
		return errors.New("body is required")
	}
	return nil
}

// ErrorCode is a coarse classification of a delivery failure, used for
// logging and the audit trail.
type ErrorCode string

const (
	ErrorCodeRateLimited    ErrorCode = "rate_limited"    // Channel throttled the request
	ErrorCodeRejected       ErrorCode = "rejected"        // Channel refused the recipient or credentials
	ErrorCodeInvalidPayload ErrorCode = "invalid_payload" // Channel refused the message content
	ErrorCodeUnreachable    ErrorCode = "unreachable"     // Channel could not be reached in time
	ErrorCodeUnknown        ErrorCode = "unknown"
)

// ChannelError is returned by a Sender when the external channel is
// unreachable or rejects the payload.
type ChannelError struct {
	Channel Channel
	Code    ErrorCode
	Err     error
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s channel: %s: %v", e.Channel, e.Code, e.Err)
	}
	return fmt.Sprintf("%s channel: %s", e.Channel, e.Code)
}

// Unwrap returns the underlying transport error.
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// NewChannelError wraps a transport failure with its channel and code.
func NewChannelError(ch Channel, code ErrorCode, err error) *ChannelError {
	return &ChannelError{Channel: ch, Code: code, Err: err}
}

// CodeOf extracts the error code from err, returning ErrorCodeUnknown for
// errors that are not ChannelErrors.
func CodeOf(err error) ErrorCode {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrorCodeUnknown
}
