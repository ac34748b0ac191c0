package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/events"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

func TestShouldEmitOncePerKey(t *testing.T) {
	set := newDedupSet()

	assert.True(t, set.ShouldEmit("a"))
	assert.False(t, set.ShouldEmit("a"))
	assert.True(t, set.ShouldEmit("b"))
	assert.False(t, set.ShouldEmit("a"))
	assert.False(t, set.ShouldEmit("b"))
}

func TestCallKeyDistinguishesCalls(t *testing.T) {
	a := callKey(events.ToolCall{ID: "c1", Name: "find_shopping_items"})
	b := callKey(events.ToolCall{ID: "c2", Name: "find_shopping_items"})
	again := callKey(events.ToolCall{ID: "c1", Name: "find_shopping_items"})

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
}

// The same logical result set must key identically whether it arrived as a
// structured tool result or re-parsed out of a text block, so the key is
// derived from product identity, not delivery metadata.
func TestResultKeyMatchesAcrossDeliveryShapes(t *testing.T) {
	products := []shop.Product{
		{Name: "Mug", Description: "Ceramic", ImageURL: "i1", LinkURL: "l1", ID: "p1"},
		{Name: "Plate", Description: "Stone", ImageURL: "i2", LinkURL: "l2", ID: "p2"},
	}

	structured := resultKey(shop.ResultPayload{Products: products})
	fromText := resultKey(shop.ResultPayload{IntroText: "Here you go", Products: products})

	assert.Equal(t, structured, fromText)
}

func TestResultKeyDiffersOnProducts(t *testing.T) {
	a := resultKey(shop.ResultPayload{Products: []shop.Product{{ID: "p1"}}})
	b := resultKey(shop.ResultPayload{Products: []shop.Product{{ID: "p2"}}})
	ordered := resultKey(shop.ResultPayload{Products: []shop.Product{{ID: "p1"}, {ID: "p2"}}})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, ordered)
}

func TestResultKeyFallsBackToIntroText(t *testing.T) {
	a := resultKey(shop.ResultPayload{IntroText: "nothing found"})
	b := resultKey(shop.ResultPayload{IntroText: "try again"})

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, resultKey(shop.ResultPayload{IntroText: "nothing found"}))
}

func TestIsCompletionAck(t *testing.T) {
	assert.True(t, isCompletionAck("Search complete."))
	assert.True(t, isCompletionAck("  search completed!  "))
	assert.True(t, isCompletionAck("Done searching"))
	assert.False(t, isCompletionAck("The search is complete and here is what I found."))
	assert.False(t, isCompletionAck("hello"))
}
