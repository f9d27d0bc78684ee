package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockTelegramAPI is a mock implementation of the Telegram bot client.
type mockTelegramAPI struct {
	mock.Mock
}

func (m *mockTelegramAPI) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func TestTelegramSender_Send(t *testing.T) {
	api := new(mockTelegramAPI)
	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *bot.SendMessageParams) bool {
		return p.ChatID == "42" && p.Text == "hello"
	})).Return(&models.Message{ID: 1}, nil)

	snd := NewTelegramSenderFromAPI(api, 0)

	err := snd.Send(context.Background(), Message{Recipient: "42", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, ChannelTelegram, snd.Channel())
	api.AssertExpectations(t)
}

func TestTelegramSender_Send_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		apiErr   error
		wantCode ErrorCode
	}{
		{name: "blocked bot", apiErr: errors.New("forbidden: bot was blocked by the user"), wantCode: ErrorCodeRejected},
		{name: "rate limited", apiErr: errors.New("too many requests: retry after 5"), wantCode: ErrorCodeRateLimited},
		{name: "unknown chat", apiErr: errors.New("bad request: chat not found"), wantCode: ErrorCodeInvalidPayload},
		{name: "network down", apiErr: errors.New("dial tcp: connection refused"), wantCode: ErrorCodeUnreachable},
		{name: "anything else", apiErr: errors.New("boom"), wantCode: ErrorCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockTelegramAPI)
			api.On("SendMessage", mock.Anything, mock.Anything).Return(nil, tt.apiErr)

			snd := NewTelegramSenderFromAPI(api, 0)

			err := snd.Send(context.Background(), Message{Recipient: "42", Body: "x"})
			require.Error(t, err)

			var ce *ChannelError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, ChannelTelegram, ce.Channel)
			assert.Equal(t, tt.wantCode, ce.Code)
			assert.ErrorIs(t, err, tt.apiErr)
		})
	}
}

func TestNewTelegramSender_RequiresToken(t *testing.T) {
	_, err := NewTelegramSender(TelegramSenderConfig{})
	assert.Error(t, err)
}
