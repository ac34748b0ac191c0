package session

import (
	"github.com/hubenschmidt/shop-concierge-gateway/internal/events"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

// dedupSet suppresses repeated emission of a logical fact. Instances are
// per-session and mutated only by the session's relay goroutine, so no lock
// is needed.
type dedupSet struct {
	seen map[string]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{seen: make(map[string]struct{})}
}

// ShouldEmit returns true exactly once per key for the lifetime of the set.
func (d *dedupSet) ShouldEmit(key string) bool {
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// callKey identifies one tool invocation. The runtime may redeliver the same
// call; the name plus call ID pins it down.
func callKey(call events.ToolCall) string {
	return "call:" + call.Name + ":" + call.ID
}

// resultKey identifies one logical result set by content, not by delivery
// shape: the same products arriving as a structured tool result and again as
// a text-embedded block must produce the same key.
func resultKey(payload shop.ResultPayload) string {
	return "result:" + payload.Key()
}
