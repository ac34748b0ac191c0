package shop

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Product is a single searchable item returned by the vector search backend
// and displayed to the user. Every field is required; a missing field is a
// validation failure, not a silent default.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	LinkURL     string `json:"link_url"`
	ID          string `json:"id"`
}

// Validate reports the first missing required field.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return errors.New("product missing id")
	case p.Name == "":
		return errors.New("product missing name")
	case p.Description == "":
		return errors.New("product missing description")
	case p.ImageURL == "":
		return errors.New("product missing image_url")
	case p.LinkURL == "":
		return errors.New("product missing link_url")
	}
	return nil
}

// ResultPayload is one logical result set: an introductory sentence plus an
// ordered product list. Immutable once constructed; the session layer is
// responsible for forwarding it to the client exactly once.
type ResultPayload struct {
	IntroText string    `json:"intro_text"`
	Products  []Product `json:"products"`
}

// Key is the content identity of one result set: the ordered product IDs,
// falling back to the intro text for product-less payloads. The same logical
// result keys identically however it was delivered.
func (r ResultPayload) Key() string {
	parts := make([]string, 0, len(r.Products)+1)
	for _, p := range r.Products {
		parts = append(parts, p.ID)
	}
	if len(parts) == 0 {
		parts = append(parts, r.IntroText)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1e")))
	return hex.EncodeToString(sum[:])
}

// CoerceProduct builds a Product from a loosely typed record, accepting the
// legacy field spellings the search backend emits (img_url, url) alongside the
// canonical ones.
func CoerceProduct(raw map[string]any) (Product, error) {
	p := Product{
		Name:        stringField(raw, "name"),
		Description: stringField(raw, "description"),
		ImageURL:    stringField(raw, "image_url", "img_url"),
		LinkURL:     stringField(raw, "link_url", "url"),
		ID:          stringField(raw, "id"),
	}
	if err := p.Validate(); err != nil {
		return Product{}, fmt.Errorf("coerce product: %w", err)
	}
	return p, nil
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
