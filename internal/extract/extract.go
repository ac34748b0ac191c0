// Package extract pulls structured shopping results out of agent output.
// Results arrive either as the raw payload of a completed tool call or as a
// marker-delimited JSON block embedded in free-form model text. Extraction is
// pure: no I/O and no session state.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

// Markers delimiting a result block embedded in model text. The agent's
// instructions tell it to wrap the JSON payload in exactly this pair.
const (
	StartMarker = "[[PRODUCTS]]"
	EndMarker   = "[[/PRODUCTS]]"
)

// FromStructured coerces a raw tool result into a ResultPayload. The input is
// either the tool's response object ({"items": [...]} or {"products": [...]})
// or a bare list of records. Records failing validation are dropped; the
// returned errors describe each drop so the caller can log them. A batch is
// never failed wholesale.
func FromStructured(raw any) (shop.ResultPayload, []error) {
	records := recordList(raw)

	payload := shop.ResultPayload{IntroText: introText(raw)}
	var dropped []error
	for i, rec := range records {
		fields, ok := rec.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Errorf("record %d: not an object", i))
			continue
		}
		product, err := shop.CoerceProduct(fields)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		payload.Products = append(payload.Products, product)
	}
	return payload, dropped
}

// FromText scans text for one delimited result block. If a well-formed block
// is found, it returns the text with the block excised (byte-for-byte except
// the excision) and the parsed payload. A missing or unparseable block returns
// the input unchanged and a nil payload; this never fails to the caller.
func FromText(text string) (string, *shop.ResultPayload, []error) {
	start := strings.Index(text, StartMarker)
	if start < 0 {
		return text, nil, nil
	}
	rest := text[start+len(StartMarker):]
	end := strings.Index(rest, EndMarker)
	if end < 0 {
		return text, nil, nil
	}

	enclosed := rest[:end]
	remainder := text[:start] + rest[end+len(EndMarker):]

	var block struct {
		IntroText string `json:"intro_text"`
		Products  []any  `json:"products"`
	}
	if err := json.Unmarshal([]byte(enclosed), &block); err != nil {
		return text, nil, nil
	}

	payload, dropped := FromStructured(block.Products)
	payload.IntroText = block.IntroText
	return remainder, &payload, dropped
}

// recordList unwraps the shapes a tool result may arrive in.
func recordList(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"items", "products"} {
			if list, ok := v[key].([]any); ok {
				return list
			}
		}
	}
	return nil
}

func introText(raw any) string {
	fields, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	intro, _ := fields["intro_text"].(string)
	return intro
}
