// Package chat runs the text variant of the concierge. The router dispatches
// a request to a registered engine and normalizes whatever comes back: prose
// is separated from embedded result blocks, and each logical result set
// surfaces at most once per request, no matter how many paths delivered it.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/extract"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

// TokenCallback is invoked for each streamed response token.
type TokenCallback func(token string)

// Result is one engine's raw output: the final text plus any structured
// result payloads the engine surfaced while running tools. The text may still
// carry an embedded result block; the router sorts that out.
type Result struct {
	Text               string
	Payloads           []shop.ResultPayload
	LatencyMs          float64
	TimeToFirstTokenMs float64
}

// Response is one normalized answer. Prose has any embedded result block
// excised; Results holds each distinct result set exactly once, whether it
// arrived as a tool payload, a text block, or both.
type Response struct {
	Prose              string
	Results            []shop.ResultPayload
	LatencyMs          float64
	TimeToFirstTokenMs float64
}

// Client is a chat backend with its own API client, bypassing the agents SDK.
type Client interface {
	Chat(ctx context.Context, userMessage, systemPrompt, model string, onToken TokenCallback) (*Result, error)
}

// Router dispatches chat requests to the engine named by the caller, falling
// back to the default engine for unknown names.
type Router struct {
	providers  map[string]agents.ModelProvider
	rawClients map[string]Client
	models     map[string]string // engine → default model
	fallback   string
	maxTokens  int
}

// NewRouter creates a chat router with the given fallback engine and max tokens.
func NewRouter(fallback string, maxTokens int) *Router {
	return &Router{
		providers:  make(map[string]agents.ModelProvider),
		rawClients: make(map[string]Client),
		models:     make(map[string]string),
		fallback:   fallback,
		maxTokens:  maxTokens,
	}
}

// Register adds an agents-SDK provider and default model for the given engine name.
func (r *Router) Register(engine string, provider agents.ModelProvider, defaultModel string) {
	r.providers[engine] = provider
	r.models[engine] = defaultModel
}

// RegisterRaw adds a direct client for engines that bypass the SDK.
func (r *Router) RegisterRaw(engine string, client Client, defaultModel string) {
	r.rawClients[engine] = client
	r.models[engine] = defaultModel
}

// Engines returns the names of all registered backends.
func (r *Router) Engines() []string {
	names := make([]string, 0, len(r.providers)+len(r.rawClients))
	for name := range r.rawClients {
		names = append(names, name)
	}
	for name := range r.providers {
		if _, ok := r.rawClients[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}

// Has reports whether a backend is registered for the given engine name.
func (r *Router) Has(engine string) bool {
	if _, ok := r.rawClients[engine]; ok {
		return true
	}
	_, ok := r.providers[engine]
	return ok
}

// Chat runs one request on the resolved engine and returns the normalized
// response.
func (r *Router) Chat(ctx context.Context, userMessage, systemPrompt, model, engine string, onToken TokenCallback) (*Response, error) {
	result, err := r.dispatch(ctx, userMessage, systemPrompt, model, engine, onToken)
	if err != nil {
		return nil, err
	}
	return normalize(result), nil
}

func (r *Router) dispatch(ctx context.Context, userMessage, systemPrompt, model, engine string, onToken TokenCallback) (*Result, error) {
	if !r.Has(engine) {
		engine = r.fallback
	}
	if model == "" {
		model = r.models[engine]
	}

	if raw, ok := r.rawClients[engine]; ok {
		return raw.Chat(ctx, userMessage, systemPrompt, model, onToken)
	}
	if provider, ok := r.providers[engine]; ok {
		return r.runAgent(ctx, provider, userMessage, systemPrompt, model, onToken)
	}
	return nil, fmt.Errorf("no chat backend for engine %q", engine)
}

// runAgent streams one single-turn completion through the agents SDK.
func (r *Router) runAgent(ctx context.Context, provider agents.ModelProvider, userMessage, systemPrompt, model string, onToken TokenCallback) (*Result, error) {
	assistant := agents.New("concierge").
		WithInstructions(systemPrompt).
		WithModel(model).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(r.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()
	eventCh, errCh, err := runner.RunStreamedChan(ctx, assistant, userMessage)
	if err != nil {
		return nil, fmt.Errorf("chat stream start: %w", err)
	}

	var text strings.Builder
	var firstToken time.Time
	for ev := range eventCh {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok || raw.Data.Type != "response.output_text.delta" {
			continue
		}
		if firstToken.IsZero() {
			firstToken = time.Now()
		}
		if onToken != nil {
			onToken(raw.Data.Delta)
		}
		text.WriteString(raw.Data.Delta)
	}
	if streamErr := <-errCh; streamErr != nil {
		return nil, fmt.Errorf("chat stream: %w", streamErr)
	}

	result := &Result{
		Text:      text.String(),
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}
	if !firstToken.IsZero() {
		result.TimeToFirstTokenMs = float64(firstToken.Sub(start).Milliseconds())
	}
	return result, nil
}

// normalize separates prose from structured results and collapses duplicate
// result sets, mirroring what the live session's relay does for its event
// stream. A text-block copy is kept in preference to a tool payload with the
// same products because it carries the intro sentence.
func normalize(res *Result) *Response {
	prose, blockPayload, dropped := extract.FromText(res.Text)
	for _, err := range dropped {
		slog.Warn("chat result record dropped", "error", err)
	}

	resp := &Response{
		Prose:              strings.TrimSpace(prose),
		LatencyMs:          res.LatencyMs,
		TimeToFirstTokenMs: res.TimeToFirstTokenMs,
	}

	seen := make(map[string]struct{})
	keep := func(payload shop.ResultPayload) {
		if len(payload.Products) == 0 && payload.IntroText == "" {
			return
		}
		key := payload.Key()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		resp.Results = append(resp.Results, payload)
	}

	if blockPayload != nil {
		keep(*blockPayload)
	}
	for _, payload := range res.Payloads {
		keep(payload)
	}
	return resp
}
