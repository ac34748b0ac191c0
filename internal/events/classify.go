package events

// Classify normalizes one raw upstream event into ordered facts. An event can
// carry several facts at once (text plus audio plus a turn boundary); each is
// emitted separately, content before tool traffic, the turn boundary last.
//
// Classification is priority-based, not shape-based: a tool result found in a
// typed content part wins over a side-channel copy with the same call ID, and
// the lower-priority copy is discarded so one logical fact is never processed
// twice from within a single event. Results embedded in free text are left to
// the extractor downstream, which probes every text fact anyway.
//
// Missing fields are evidence of an unrecognized shape, never an error: an
// event yielding no fact at all classifies as a single unrecognized fact.
func Classify(ev UpstreamEvent) []Classified {
	var facts []Classified
	seenResults := make(map[string]bool)

	// Priority 1: typed content parts.
	for _, part := range ev.Parts {
		switch {
		case part.ToolResult != nil:
			facts = append(facts, Classified{Kind: KindToolResult, ToolResult: *part.ToolResult})
			if part.ToolResult.ID != "" {
				seenResults[part.ToolResult.ID] = true
			}
		case len(part.Audio) > 0:
			facts = append(facts, Classified{Kind: KindAudio, Audio: part.Audio})
		case part.Text != "":
			facts = append(facts, Classified{Kind: KindText, Text: part.Text})
		}
	}

	// Priority 2: side-channel fields. Result copies already seen in a typed
	// part are dropped here.
	if ev.OutputTranscription != "" {
		facts = append(facts, Classified{Kind: KindText, Text: ev.OutputTranscription})
	}
	if ev.InputTranscription != "" {
		facts = append(facts, Classified{Kind: KindUserText, Text: ev.InputTranscription})
	}
	for _, result := range ev.ToolResults {
		if result.ID != "" && seenResults[result.ID] {
			continue
		}
		facts = append(facts, Classified{Kind: KindToolResult, ToolResult: result})
	}
	for _, call := range ev.ToolCalls {
		facts = append(facts, Classified{Kind: KindToolCall, ToolCall: call})
	}

	// Boundary always trails content so the session layer closes the
	// utterance after its final chunk.
	if ev.TurnComplete || ev.Interrupted {
		facts = append(facts, Classified{Kind: KindTurnBoundary})
	}

	if len(facts) == 0 {
		return []Classified{{Kind: KindUnrecognized}}
	}
	return facts
}
