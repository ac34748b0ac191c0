package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/agent"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/events"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/search"
)

type recordedToolResult struct {
	id      string
	name    string
	payload map[string]any
}

// fakeConversation is an in-memory agent runtime conversation. Upstream events
// are fed through the events channel; everything sent to the runtime is
// recorded for assertions after Run returns.
type fakeConversation struct {
	eventsCh    chan events.UpstreamEvent
	sentAudio   [][]byte
	toolResults []recordedToolResult
	terminalErr error
	closed      bool
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{eventsCh: make(chan events.UpstreamEvent, 16)}
}

func (c *fakeConversation) SendAudio(ctx context.Context, data []byte) error {
	c.sentAudio = append(c.sentAudio, data)
	return nil
}

func (c *fakeConversation) SendToolResult(ctx context.Context, id, name string, payload map[string]any) error {
	c.toolResults = append(c.toolResults, recordedToolResult{id: id, name: name, payload: payload})
	return nil
}

func (c *fakeConversation) Events() <-chan events.UpstreamEvent { return c.eventsCh }
func (c *fakeConversation) Err() error                          { return c.terminalErr }
func (c *fakeConversation) Close() error                        { c.closed = true; return nil }

type fakeRuntime struct {
	conv *fakeConversation
}

func (r *fakeRuntime) Open(ctx context.Context, sessionID string) (agent.Conversation, error) {
	return r.conv, nil
}

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) callback() EventCallback {
	return func(ev Event) { r.events = append(r.events, ev) }
}

func (r *eventRecorder) types() []string {
	types := make([]string, len(r.events))
	for i, ev := range r.events {
		types[i] = ev.Type
	}
	return types
}

func runWith(t *testing.T, conv *fakeConversation, cfg Config, inbound chan Inbound) (*eventRecorder, error) {
	t.Helper()
	cfg.SessionID = "test-session"
	cfg.Runtime = &fakeRuntime{conv: conv}
	rec := &eventRecorder{}
	err := New(cfg).Run(context.Background(), inbound, rec.callback())
	return rec, err
}

func TestRunEmitsReadyFirstAndClosesCleanly(t *testing.T) {
	conv := newFakeConversation()
	inbound := make(chan Inbound)
	close(inbound)

	rec, err := runWith(t, conv, Config{}, inbound)

	require.NoError(t, err)
	require.NotEmpty(t, rec.events)
	assert.Equal(t, EventReady, rec.events[0].Type)
	assert.True(t, conv.closed)
}

func TestSpeechBracketOrdering(t *testing.T) {
	conv := newFakeConversation()
	conv.eventsCh <- events.UpstreamEvent{Parts: []events.Part{{Text: "Here are some ideas."}}}
	conv.eventsCh <- events.UpstreamEvent{TurnComplete: true}
	close(conv.eventsCh)

	rec, err := runWith(t, conv, Config{}, make(chan Inbound))

	require.NoError(t, err)
	assert.Equal(t, []string{
		EventReady,
		EventBotSpeechStart,
		EventText,
		EventBotSpeechEnd,
		EventTurnComplete,
	}, rec.types())
	assert.Equal(t, "Here are some ideas.", rec.events[2].Data)
}

func TestTurnCompleteWithoutSpeechSkipsSpeechEnd(t *testing.T) {
	conv := newFakeConversation()
	conv.eventsCh <- events.UpstreamEvent{TurnComplete: true}
	close(conv.eventsCh)

	rec, err := runWith(t, conv, Config{}, make(chan Inbound))

	require.NoError(t, err)
	assert.Equal(t, []string{EventReady, EventTurnComplete}, rec.types())
}

func TestCompletionAckSuppressed(t *testing.T) {
	conv := newFakeConversation()
	conv.eventsCh <- events.UpstreamEvent{Parts: []events.Part{{Text: "Search complete."}}}
	conv.eventsCh <- events.UpstreamEvent{TurnComplete: true}
	close(conv.eventsCh)

	rec, err := runWith(t, conv, Config{}, make(chan Inbound))

	require.NoError(t, err)
	assert.Equal(t, []string{EventReady, EventTurnComplete}, rec.types())
}

func TestDuplicateResultAcrossShapesCollapsed(t *testing.T) {
	items := []any{
		map[string]any{"name": "Mug", "description": "Ceramic", "image_url": "i1", "link_url": "l1", "id": "p1"},
		map[string]any{"name": "Plate", "description": "Stone", "image_url": "i2", "link_url": "l2", "id": "p2"},
	}
	conv := newFakeConversation()
	conv.eventsCh <- events.UpstreamEvent{Parts: []events.Part{{
		ToolResult: &events.ToolResult{ID: "r1", Name: search.ToolName, Payload: map[string]any{"items": items}},
	}}}
	conv.eventsCh <- events.UpstreamEvent{Parts: []events.Part{{
		Text: `[[PRODUCTS]]{"intro_text":"","products":[` +
			`{"name":"Mug","description":"Ceramic","image_url":"i1","link_url":"l1","id":"p1"},` +
			`{"name":"Plate","description":"Stone","image_url":"i2","link_url":"l2","id":"p2"}` +
			`]}[[/PRODUCTS]]`,
	}}}
	close(conv.eventsCh)

	rec, err := runWith(t, conv, Config{}, make(chan Inbound))

	require.NoError(t, err)
	var productEvents []Event
	for _, ev := range rec.events {
		if ev.Type == EventProducts {
			productEvents = append(productEvents, ev)
		}
	}
	require.Len(t, productEvents, 1)
	require.Len(t, productEvents[0].Products, 2)
	assert.Equal(t, "p1", productEvents[0].Products[0].ID)
}

func TestAudioForwardedToRuntime(t *testing.T) {
	conv := newFakeConversation()
	inbound := make(chan Inbound, 2)
	inbound <- Inbound{Kind: InboundAudio, Audio: []byte{1, 2, 3}}
	inbound <- Inbound{Kind: InboundClose}

	_, err := runWith(t, conv, Config{}, inbound)

	require.NoError(t, err)
	require.Len(t, conv.sentAudio, 1)
	assert.Equal(t, []byte{1, 2, 3}, conv.sentAudio[0])
	assert.True(t, conv.closed)
}

func TestToolCallRoundTrip(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": []any{
			map[string]any{"name": "Lamp", "description": "Desk lamp", "image_url": "i1", "link_url": "l1", "id": "p9"},
		}})
	}))
	defer backend.Close()

	tool := search.NewTool(search.NewClient(search.Config{URL: backend.URL, Dataset: "test"}), 3)

	conv := newFakeConversation()
	conv.eventsCh <- events.UpstreamEvent{ToolCalls: []events.ToolCall{{
		ID:   "c1",
		Name: search.ToolName,
		Args: map[string]any{"queries": []any{"desk lamp"}},
	}}}
	close(conv.eventsCh)

	rec, err := runWith(t, conv, Config{Tool: tool}, make(chan Inbound))

	require.NoError(t, err)
	require.Len(t, conv.toolResults, 1)
	assert.Equal(t, "c1", conv.toolResults[0].id)
	assert.Equal(t, search.ToolName, conv.toolResults[0].name)

	types := rec.types()
	assert.Contains(t, types, EventLog)
	assert.Contains(t, types, EventProducts)
}

func TestDuplicateToolCallInvokedOnce(t *testing.T) {
	var requests atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	}))
	defer backend.Close()

	tool := search.NewTool(search.NewClient(search.Config{URL: backend.URL, Dataset: "test"}), 3)

	call := events.ToolCall{ID: "c1", Name: search.ToolName, Args: map[string]any{"query": "mug"}}
	conv := newFakeConversation()
	conv.eventsCh <- events.UpstreamEvent{ToolCalls: []events.ToolCall{call}}
	conv.eventsCh <- events.UpstreamEvent{ToolCalls: []events.ToolCall{call}}
	close(conv.eventsCh)

	_, err := runWith(t, conv, Config{Tool: tool}, make(chan Inbound))

	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())
	assert.Len(t, conv.toolResults, 1)
}

func TestToolCallWithoutConfiguredToolDropped(t *testing.T) {
	conv := newFakeConversation()
	conv.eventsCh <- events.UpstreamEvent{ToolCalls: []events.ToolCall{{
		ID:   "c1",
		Name: search.ToolName,
		Args: map[string]any{"query": "mug"},
	}}}
	close(conv.eventsCh)

	rec, err := runWith(t, conv, Config{}, make(chan Inbound))

	require.NoError(t, err)
	assert.Equal(t, []string{EventReady}, rec.types())
	assert.Empty(t, conv.toolResults)
}

func TestIdleTimeoutTerminatesSession(t *testing.T) {
	conv := newFakeConversation()

	rec, err := runWith(t, conv, Config{IdleTimeout: 20 * time.Millisecond}, make(chan Inbound))

	require.ErrorIs(t, err, ErrIdleTimeout)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.True(t, conv.closed)
}

func TestRuntimeFailureSurfacesAsErrorEvent(t *testing.T) {
	conv := newFakeConversation()
	conv.terminalErr = assert.AnError
	close(conv.eventsCh)

	rec, err := runWith(t, conv, Config{}, make(chan Inbound))

	require.Error(t, err)
	require.ErrorIs(t, err, assert.AnError)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventError, last.Type)
}

func TestStateTransitions(t *testing.T) {
	conv := newFakeConversation()
	close(conv.eventsCh)

	sess := New(Config{SessionID: "s", Runtime: &fakeRuntime{conv: conv}})
	assert.Equal(t, StateConnecting, sess.State())

	err := sess.Run(context.Background(), make(chan Inbound), func(Event) {})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, sess.State())
}
