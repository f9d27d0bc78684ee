package notification

import (
	"context"
)

// Sender is the interface for channel delivery implementations.
// Each channel (SMS, Email, Telegram) has its own Sender.
type Sender interface {
	// Send delivers the message through the sender's channel. It returns
	// nil on success and a *ChannelError when the channel is unreachable
	// or rejects the payload. Send never mutates msg.
	Send(ctx context.Context, msg Message) error

	// Channel returns the channel this sender handles.
	Channel() Channel
}
