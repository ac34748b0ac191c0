package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/chat"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/extract"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/search"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

// maxToolTurns bounds the tool-calling loop for one chat request.
const maxToolTurns = 4

// ChatClient answers text-variant requests with a Gemini tool loop: generate,
// run any requested searches, feed the results back, repeat until the model
// produces a final answer. Structured search payloads are surfaced alongside
// the text so the router can dedup them against any embedded block.
type ChatClient struct {
	client    *genai.Client
	tool      *search.Tool
	maxTokens int
}

// NewChatClient creates a text-mode chat client sharing the runtime's API client.
func NewChatClient(ctx context.Context, apiKey string, tool *search.Tool, maxTokens int) (*ChatClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &ChatClient{client: client, tool: tool, maxTokens: maxTokens}, nil
}

// Chat runs one request to completion. The final text is delivered through
// onToken in a single piece; intermediate tool traffic stays internal except
// for the collected result payloads.
func (c *ChatClient) Chat(ctx context.Context, userMessage, systemPrompt, model string, onToken chat.TokenCallback) (*chat.Result, error) {
	start := time.Now()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Tools:             []*genai.Tool{searchTool()},
		MaxOutputTokens:   int32(c.maxTokens),
	}

	contents := []*genai.Content{genai.NewContentFromText(userMessage, genai.RoleUser)}
	var payloads []shop.ResultPayload

	for range maxToolTurns {
		resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			return nil, fmt.Errorf("generate content: %w", err)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			text := resp.Text()
			if onToken != nil && text != "" {
				onToken(text)
			}
			return &chat.Result{
				Text:      text,
				Payloads:  payloads,
				LatencyMs: float64(time.Since(start).Milliseconds()),
			}, nil
		}

		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}
		for _, call := range calls {
			result := c.tool.Invoke(ctx, call.Args)

			payload, dropped := extract.FromStructured(result)
			for _, dropErr := range dropped {
				slog.Warn("chat tool record dropped", "error", dropErr)
			}
			if len(payload.Products) > 0 {
				payloads = append(payloads, payload)
			}

			contents = append(contents, genai.NewContentFromParts(
				[]*genai.Part{genai.NewPartFromFunctionResponse(call.Name, result)},
				genai.RoleUser,
			))
		}
	}

	return nil, fmt.Errorf("tool loop exceeded %d turns", maxToolTurns)
}
