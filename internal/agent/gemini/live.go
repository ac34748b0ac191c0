// Package gemini adapts the Gemini API to the gateway's agent-runtime
// boundary: live bidirectional conversations for voice sessions and a
// tool-looping content client for the text chat variant.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/genai"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/agent"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/events"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/search"
)

const inputMIMEType = "audio/pcm;rate=16000"

// Runtime opens Gemini Live conversations.
type Runtime struct {
	client      *genai.Client
	model       string
	voice       string
	instruction string
}

// RuntimeConfig holds live runtime configuration.
type RuntimeConfig struct {
	APIKey      string
	Model       string
	Voice       string
	Instruction string
}

// NewRuntime creates a live runtime backed by the Gemini API.
func NewRuntime(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Runtime{
		client:      client,
		model:       cfg.Model,
		voice:       cfg.Voice,
		instruction: cfg.Instruction,
	}, nil
}

// Open connects a live session and starts the receive pump.
func (r *Runtime) Open(ctx context.Context, sessionID string) (agent.Conversation, error) {
	session, err := r.client.Live.Connect(ctx, r.model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  genai.NewContentFromText(r.instruction, genai.RoleUser),
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: r.voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		Tools:                    []*genai.Tool{searchTool()},
	})
	if err != nil {
		return nil, fmt.Errorf("live connect: %w", err)
	}

	conv := &conversation{
		session:   session,
		sessionID: sessionID,
		eventCh:   make(chan events.UpstreamEvent, 16),
		closed:    make(chan struct{}),
	}
	go conv.pump()
	return conv, nil
}

// conversation is one live Gemini session.
type conversation struct {
	session   *genai.Session
	sessionID string
	eventCh   chan events.UpstreamEvent

	closeOnce sync.Once
	closed    chan struct{}

	mu  sync.Mutex
	err error
}

func (c *conversation) SendAudio(ctx context.Context, data []byte) error {
	err := c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: data, MIMEType: inputMIMEType},
	})
	if err != nil {
		return fmt.Errorf("send realtime input: %w", err)
	}
	return nil
}

func (c *conversation) SendToolResult(ctx context.Context, id, name string, payload map[string]any) error {
	err := c.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{
			{ID: id, Name: name, Response: payload},
		},
	})
	if err != nil {
		return fmt.Errorf("send tool response: %w", err)
	}
	return nil
}

func (c *conversation) Events() <-chan events.UpstreamEvent {
	return c.eventCh
}

func (c *conversation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *conversation) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.session.Close()
}

// pump converts live server messages to upstream events until the session
// ends. Runs for the conversation's lifetime.
func (c *conversation) pump() {
	defer close(c.eventCh)
	for {
		msg, err := c.session.Receive()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		if msg.SetupComplete != nil {
			slog.Debug("live setup complete", "session_id", c.sessionID)
			continue
		}
		if !c.deliver(toUpstreamEvent(msg)) {
			return
		}
	}
}

// deliver hands one event to the session's relay, giving up once the
// conversation is closed. Close alone cannot unpark a pump that is mid-send
// into a full buffer; only the closed channel can.
func (c *conversation) deliver(ev events.UpstreamEvent) bool {
	select {
	case c.eventCh <- ev:
		return true
	case <-c.closed:
		return false
	}
}

// toUpstreamEvent flattens one live server message into the gateway's raw
// event shape, preserving the runtime's overlapping encodings for the
// classifier to sort out.
func toUpstreamEvent(msg *genai.LiveServerMessage) events.UpstreamEvent {
	var ev events.UpstreamEvent

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				ev.Parts = append(ev.Parts, toPart(part))
			}
		}
		if sc.InputTranscription != nil {
			ev.InputTranscription = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			ev.OutputTranscription = sc.OutputTranscription.Text
		}
		ev.TurnComplete = sc.TurnComplete
		ev.Interrupted = sc.Interrupted
	}

	if tc := msg.ToolCall; tc != nil {
		for _, call := range tc.FunctionCalls {
			ev.ToolCalls = append(ev.ToolCalls, events.ToolCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Args,
			})
		}
	}

	return ev
}

func toPart(part *genai.Part) events.Part {
	if part == nil {
		return events.Part{}
	}
	if part.FunctionResponse != nil {
		return events.Part{ToolResult: &events.ToolResult{
			ID:      part.FunctionResponse.ID,
			Name:    part.FunctionResponse.Name,
			Payload: mapToAny(part.FunctionResponse.Response),
		}}
	}
	if part.InlineData != nil {
		return events.Part{Audio: part.InlineData.Data}
	}
	return events.Part{Text: part.Text}
}

func mapToAny(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

func searchTool() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        search.ToolName,
			Description: "Find products on the e-commerce catalog. Pass several diverse search queries for the user's intent.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"queries": {
						Type:        genai.TypeArray,
						Items:       &genai.Schema{Type: genai.TypeString},
						Description: "Search queries to run against the catalog",
					},
				},
				Required: []string{"queries"},
			},
		}},
	}
}
