// Package events defines the gateway's view of agent-runtime output. The
// runtime does not guarantee one canonical shape per logical fact: a tool
// result may arrive inside a typed content part, as a side-channel field, or
// embedded in free text. Raw events are therefore normalized into an explicit
// sum type before the session layer acts on them.
package events

// Kind tags one classified fact from an upstream event.
type Kind string

const (
	KindText         Kind = "text"
	KindAudio        Kind = "audio"
	KindUserText     Kind = "user_text"
	KindToolCall     Kind = "tool_call"
	KindToolResult   Kind = "tool_result"
	KindTurnBoundary Kind = "turn_boundary"
	KindUnrecognized Kind = "unrecognized"
)

// Part is one typed content part of a model turn.
type Part struct {
	Text       string
	Audio      []byte
	ToolResult *ToolResult
}

// ToolCall is a request from the agent to invoke a registered tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the raw payload produced for a completed tool call.
type ToolResult struct {
	ID      string
	Name    string
	Payload any
}

// UpstreamEvent is one opaque unit from the agent runtime, prior to
// classification. Fields mirror the runtime's overlapping encodings; most are
// empty on any given event.
type UpstreamEvent struct {
	// Typed content parts of the model turn.
	Parts []Part

	// Side-channel copies. ToolResults may duplicate results already present
	// in Parts; the classifier collapses those.
	ToolCalls   []ToolCall
	ToolResults []ToolResult

	// Transcriptions of the live audio streams.
	InputTranscription  string
	OutputTranscription string

	TurnComplete bool
	Interrupted  bool
}

// Classified is one normalized fact extracted from an UpstreamEvent.
type Classified struct {
	Kind       Kind
	Text       string
	Audio      []byte
	ToolCall   ToolCall
	ToolResult ToolResult
}
