package search

import (
	"context"
	"log/slog"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

// ToolName is the function name the agent runtime uses to invoke product search.
const ToolName = "find_shopping_items"

// Tool adapts the search client to the agent's tool-calling contract. Backend
// failures surface as an empty result set, never as a tool error: the agent
// should keep talking even when search is down.
type Tool struct {
	client       *Client
	rowsPerQuery int
}

// NewTool wraps the search client with the tool-level contract.
func NewTool(client *Client, rowsPerQuery int) *Tool {
	if rowsPerQuery <= 0 {
		rowsPerQuery = 3
	}
	return &Tool{client: client, rowsPerQuery: rowsPerQuery}
}

// FindShoppingItems fans the queries over the backend and concatenates the
// validated products in query order.
func (t *Tool) FindShoppingItems(ctx context.Context, queries []string) []shop.Product {
	var items []shop.Product
	for _, query := range queries {
		products, dropped, err := t.client.Query(ctx, query, t.rowsPerQuery)
		if err != nil {
			slog.Error("vector search", "query", query, "error", err)
			continue
		}
		for _, dropErr := range dropped {
			slog.Warn("search item dropped", "query", query, "error", dropErr)
		}
		items = append(items, products...)
	}
	return items
}

// Invoke handles a raw tool call from the agent runtime. Args carry a
// "queries" list; malformed args behave like an empty query list.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) map[string]any {
	queries := queryList(args)
	if len(queries) == 0 {
		slog.Warn("tool call without queries", "tool", ToolName)
	}

	items := t.FindShoppingItems(ctx, queries)
	records := make([]any, len(items))
	for i, item := range items {
		records[i] = map[string]any{
			"name":        item.Name,
			"description": item.Description,
			"image_url":   item.ImageURL,
			"link_url":    item.LinkURL,
			"id":          item.ID,
		}
	}
	return map[string]any{"items": records}
}

func queryList(args map[string]any) []string {
	raw, ok := args["queries"].([]any)
	if !ok {
		if single, ok := args["query"].(string); ok && single != "" {
			return []string{single}
		}
		return nil
	}
	queries := make([]string, 0, len(raw))
	for _, q := range raw {
		if s, ok := q.(string); ok && s != "" {
			queries = append(queries, s)
		}
	}
	return queries
}
