package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// telegramAPI is the subset of the Telegram bot client used for delivery.
// Narrowed to an interface so tests can substitute a fake.
type telegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramSenderConfig holds Telegram sender configuration.
type TelegramSenderConfig struct {
	// BotToken is the Telegram Bot API token.
	BotToken string

	// Timeout applied to each delivery. Defaults to 10s.
	Timeout time.Duration
}

// TelegramSender delivers messages through the Telegram Bot API.
// The message recipient is the target chat ID.
type TelegramSender struct {
	api     telegramAPI
	timeout time.Duration
}

// NewTelegramSender creates a Telegram sender from a bot token.
func NewTelegramSender(config TelegramSenderConfig) (*TelegramSender, error) {
	if config.BotToken == "" {
		return nil, errors.New("telegram bot token is required")
	}

	b, err := bot.New(config.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return newTelegramSender(b, config.Timeout), nil
}

// NewTelegramSenderFromAPI creates a sender around an existing bot client.
func NewTelegramSenderFromAPI(api telegramAPI, timeout time.Duration) *TelegramSender {
	return newTelegramSender(api, timeout)
}

func newTelegramSender(api telegramAPI, timeout time.Duration) *TelegramSender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{api: api, timeout: timeout}
}

// Channel returns the channel this sender handles.
func (s *TelegramSender) Channel() Channel {
	return ChannelTelegram
}

// Send delivers the message to the recipient chat.
func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return NewChannelError(ChannelTelegram, ErrorCodeInvalidPayload, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Recipient,
		Text:   msg.Body,
	})
	if err != nil {
		return NewChannelError(ChannelTelegram, classifyTelegramError(err), err)
	}

	return nil
}

// classifyTelegramError maps Telegram API and transport failures to error
// codes. The bot client surfaces API errors as plain errors carrying the
// HTTP status text, so classification is by pattern.
func classifyTelegramError(err error) ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeUnreachable
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "too many requests"), strings.Contains(errStr, "429"):
		return ErrorCodeRateLimited
	case strings.Contains(errStr, "forbidden"),
		strings.Contains(errStr, "bot was blocked"),
		strings.Contains(errStr, "unauthorized"):
		return ErrorCodeRejected
	case strings.Contains(errStr, "chat not found"),
		strings.Contains(errStr, "bad request"):
		return ErrorCodeInvalidPayload
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"):
		return ErrorCodeUnreachable
	default:
		return ErrorCodeUnknown
	}
}
