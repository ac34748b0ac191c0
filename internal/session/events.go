package session

import "github.com/hubenschmidt/shop-concierge-gateway/internal/shop"

// Event is one typed outbound event sent to the client. Data carries the
// string payload (text, base64 audio, diagnostics); products events carry the
// product list with the intro text in Data.
type Event struct {
	Type     string         `json:"type"`
	Data     string         `json:"data,omitempty"`
	Products []shop.Product `json:"products,omitempty"`
}

// Outbound event types.
const (
	EventReady          = "ready"
	EventText           = "text"
	EventAudio          = "audio"
	EventUserText       = "user_text"
	EventProducts       = "products"
	EventBotSpeechStart = "bot_speech_start"
	EventBotSpeechEnd   = "bot_speech_end"
	EventTurnComplete   = "turn_complete"
	EventLog            = "log"
	EventError          = "error"
)

// EventCallback is invoked for each outbound event, in emission order.
type EventCallback func(Event)

// InboundKind discriminates client messages.
type InboundKind int

const (
	// InboundAudio carries one raw PCM chunk for the agent's live input.
	InboundAudio InboundKind = iota
	// InboundClose is an explicit client close request.
	InboundClose
)

// Inbound is one decoded client message. Produced by the transport adapter,
// consumed once by the session.
type Inbound struct {
	Kind  InboundKind
	Audio []byte
}
