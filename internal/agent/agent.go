// Package agent defines the gateway's boundary to the conversational agent
// runtime. The runtime is an external collaborator: the gateway feeds it raw
// audio and tool responses and consumes an ordered stream of opaque events.
package agent

import (
	"context"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/events"
)

// Conversation is one live agent conversation bound to a single client
// session. It must be opened before use and closed at session teardown;
// Close releases outstanding runtime work rather than awaiting it.
type Conversation interface {
	// SendAudio forwards one raw PCM chunk to the runtime's live input channel.
	SendAudio(ctx context.Context, data []byte) error

	// SendToolResult returns a completed tool invocation to the runtime so it
	// can continue the turn.
	SendToolResult(ctx context.Context, id, name string, payload map[string]any) error

	// Events yields upstream events in emission order. The channel closes on
	// conversation end; Err reports the terminal error, if any, afterwards.
	Events() <-chan events.UpstreamEvent
	Err() error

	Close() error
}

// Runtime opens live conversations.
type Runtime interface {
	Open(ctx context.Context, sessionID string) (Conversation, error)
}
