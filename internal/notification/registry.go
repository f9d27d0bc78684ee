package notification

import (
	"fmt"
	"strings"
)

// Registry maps selector tags to registered senders. Selection is a pure
// lookup with no side effects: every tag resolves to exactly one sender,
// and tags that match no registered channel resolve to the email sender.
type Registry struct {
	senders  map[Channel]Sender
	fallback Sender
}

// NewRegistry builds a registry from the given senders. The email sender
// is required because it is the default for unrecognized tags. Registering
// two senders for the same channel is a configuration mistake and fails.
func NewRegistry(senders ...Sender) (*Registry, error) {
	byChannel := make(map[Channel]Sender, len(senders))
	for _, snd := range senders {
		ch := snd.Channel()
		if _, dup := byChannel[ch]; dup {
			return nil, fmt.Errorf("duplicate sender for channel %q", ch)
		}
		byChannel[ch] = snd
	}

	fallback, ok := byChannel[DefaultChannel]
	if !ok {
		return nil, fmt.Errorf("sender for default channel %q is required", DefaultChannel)
	}

	return &Registry{senders: byChannel, fallback: fallback}, nil
}

// SenderFor returns the sender registered for the given selector tag.
// Unrecognized, unregistered, or empty tags return the email sender.
func (r *Registry) SenderFor(tag string) Sender {
	ch := Channel(strings.ToLower(strings.TrimSpace(tag)))
	if snd, ok := r.senders[ch]; ok {
		return snd
	}
	return r.fallback
}

// Channels returns the channels with a registered sender.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
