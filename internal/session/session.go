// Package session owns one client connection's lifecycle: the upstream-read
// and downstream-relay flows, the classifier → dedup → extractor ordering, and
// the turn-boundary bookkeeping that keeps the outbound stream well-ordered
// and duplicate-free.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/agent"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/events"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/extract"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/history"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/metrics"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/search"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

// State is the session lifecycle phase.
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrIdleTimeout reports a stalled upstream: no runtime activity within the
// configured window.
var ErrIdleTimeout = errors.New("agent runtime idle timeout")

// Config holds one session's collaborators.
type Config struct {
	SessionID string
	Runtime   agent.Runtime
	Tool      *search.Tool   // handles find_shopping_items calls; nil drops them
	History   *history.Store // optional

	// IdleTimeout force-closes the session after upstream silence.
	// Zero disables the check.
	IdleTimeout time.Duration
}

// Session orchestrates one client connection. The speaking flag and both
// dedup sets are mutated only by the downstream-relay flow.
type Session struct {
	cfg   Config
	state atomic.Int32

	speaking    bool
	callsSeen   *dedupSet
	resultsSeen *dedupSet

	// current turn, accumulated for the history store
	userBuf      strings.Builder
	botBuf       strings.Builder
	turnProducts int
}

// New creates a session in the Connecting state.
func New(cfg Config) *Session {
	return &Session{
		cfg:         cfg,
		callsSeen:   newDedupSet(),
		resultsSeen: newDedupSet(),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run drives the session until the client disconnects, the runtime fails, or
// the idle window elapses. It emits ready, opens the agent conversation, runs
// both flows, and tears everything down before returning. A nil return is a
// clean close; any error was already surfaced to the client as an error event
// where the transport allowed.
func (s *Session) Run(ctx context.Context, inbound <-chan Inbound, emit EventCallback) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	emit(Event{Type: EventReady})
	s.setState(StateReady)

	conv, err := s.cfg.Runtime.Open(ctx, s.cfg.SessionID)
	if err != nil {
		s.setState(StateClosed)
		emit(Event{Type: EventError, Data: "agent unavailable"})
		return fmt.Errorf("open conversation: %w", err)
	}

	if s.cfg.History != nil {
		if histErr := s.cfg.History.CreateSession(s.cfg.SessionID); histErr != nil {
			slog.Warn("history create session", "session_id", s.cfg.SessionID, "error", histErr)
		}
	}

	s.setState(StateStreaming)
	slog.Info("session streaming", "session_id", s.cfg.SessionID)

	readErr := make(chan error, 1)
	relayErr := make(chan error, 1)
	go func() { readErr <- s.readUpstream(ctx, conv, inbound) }()
	go func() { relayErr <- s.relayDownstream(ctx, conv, emit) }()

	// First flow to finish decides the outcome; the other is cancelled and
	// drained so teardown never leaks a goroutine.
	var runErr error
	select {
	case runErr = <-readErr:
		cancel()
		<-relayErr
	case runErr = <-relayErr:
		cancel()
		<-readErr
	}

	s.teardown(conv, emit, runErr)
	return runErr
}

// teardown is idempotent through state checks; both dedup sets and the
// conversation handle are released here.
func (s *Session) teardown(conv agent.Conversation, emit EventCallback, runErr error) {
	if s.State() == StateClosed {
		return
	}
	s.setState(StateClosing)

	if runErr != nil {
		emit(Event{Type: EventError, Data: runErr.Error()})
	}

	if err := conv.Close(); err != nil {
		slog.Warn("conversation close", "session_id", s.cfg.SessionID, "error", err)
	}
	if s.cfg.History != nil {
		if err := s.cfg.History.EndSession(s.cfg.SessionID); err != nil {
			slog.Warn("history end session", "session_id", s.cfg.SessionID, "error", err)
		}
	}
	s.callsSeen = newDedupSet()
	s.resultsSeen = newDedupSet()

	s.setState(StateClosed)
	slog.Info("session closed", "session_id", s.cfg.SessionID)
}

// readUpstream forwards inbound client messages to the runtime in arrival
// order. Malformed messages never reach this point; the transport adapter
// drops them. Returns nil on client disconnect or explicit close.
func (s *Session) readUpstream(ctx context.Context, conv agent.Conversation, inbound <-chan Inbound) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				slog.Info("client disconnected", "session_id", s.cfg.SessionID)
				return nil
			}
			switch msg.Kind {
			case InboundAudio:
				if err := conv.SendAudio(ctx, msg.Audio); err != nil {
					return fmt.Errorf("forward audio: %w", err)
				}
			case InboundClose:
				slog.Info("client close request", "session_id", s.cfg.SessionID)
				return nil
			}
		}
	}
}

// relayDownstream consumes runtime events in emission order and turns each
// into zero or more outbound events. Owns all per-session mutable state.
func (s *Session) relayDownstream(ctx context.Context, conv agent.Conversation, emit EventCallback) error {
	var idleCh <-chan time.Time
	var idleTimer *time.Timer
	if s.cfg.IdleTimeout > 0 {
		idleTimer = time.NewTimer(s.cfg.IdleTimeout)
		defer idleTimer.Stop()
		idleCh = idleTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-idleCh:
			metrics.IdleTimeouts.Inc()
			return ErrIdleTimeout
		case ev, ok := <-conv.Events():
			if !ok {
				if err := conv.Err(); err != nil {
					return fmt.Errorf("agent runtime: %w", err)
				}
				return nil
			}
			if idleTimer != nil {
				if !idleTimer.Stop() {
					<-idleTimer.C
				}
				idleTimer.Reset(s.cfg.IdleTimeout)
			}
			if err := s.handleEvent(ctx, ev, conv, emit); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev events.UpstreamEvent, conv agent.Conversation, emit EventCallback) error {
	for _, fact := range events.Classify(ev) {
		metrics.UpstreamEvents.WithLabelValues(string(fact.Kind)).Inc()

		switch fact.Kind {
		case events.KindText:
			s.handleText(fact.Text, emit)
		case events.KindAudio:
			s.startSpeaking(emit)
			emit(Event{Type: EventAudio, Data: base64.StdEncoding.EncodeToString(fact.Audio)})
		case events.KindUserText:
			s.userBuf.WriteString(fact.Text)
			emit(Event{Type: EventUserText, Data: fact.Text})
		case events.KindToolCall:
			if err := s.handleToolCall(ctx, fact.ToolCall, conv, emit); err != nil {
				return err
			}
		case events.KindToolResult:
			s.handleToolResult(fact.ToolResult, emit)
		case events.KindTurnBoundary:
			s.handleTurnBoundary(emit)
		case events.KindUnrecognized:
			slog.Debug("unrecognized upstream event", "session_id", s.cfg.SessionID)
		}
	}
	return nil
}

// handleText excises any embedded result block before anything is spoken or
// displayed, suppresses tool-scaffolding acknowledgments, and forwards the
// rest as model text.
func (s *Session) handleText(text string, emit EventCallback) {
	remainder, payload, dropped := extract.FromText(text)
	for _, err := range dropped {
		slog.Warn("result block record dropped", "session_id", s.cfg.SessionID, "error", err)
	}
	if payload != nil {
		s.emitProducts(*payload, emit)
	}

	if strings.TrimSpace(remainder) == "" {
		return
	}
	if isCompletionAck(remainder) {
		slog.Debug("completion acknowledgment suppressed", "session_id", s.cfg.SessionID, "text", remainder)
		return
	}

	s.startSpeaking(emit)
	s.botBuf.WriteString(remainder)
	emit(Event{Type: EventText, Data: remainder})
}

// handleToolCall invokes the search tool and feeds the response back into the
// conversation. The structured payload also surfaces directly as a products
// event; if the runtime echoes the same result later, dedup collapses it.
func (s *Session) handleToolCall(ctx context.Context, call events.ToolCall, conv agent.Conversation, emit EventCallback) error {
	if call.Name != search.ToolName {
		slog.Warn("unknown tool requested", "session_id", s.cfg.SessionID, "tool", call.Name)
		return nil
	}
	if s.cfg.Tool == nil {
		slog.Warn("tool call dropped, no search tool configured", "session_id", s.cfg.SessionID)
		return nil
	}
	if !s.callsSeen.ShouldEmit(callKey(call)) {
		metrics.DuplicatesSuppressed.Inc()
		return nil
	}

	emit(Event{Type: EventLog, Data: "searching the catalog"})
	payload := s.cfg.Tool.Invoke(ctx, call.Args)

	if err := conv.SendToolResult(ctx, call.ID, call.Name, payload); err != nil {
		return fmt.Errorf("return tool result: %w", err)
	}

	result, dropped := extract.FromStructured(payload)
	for _, dropErr := range dropped {
		slog.Warn("tool result record dropped", "session_id", s.cfg.SessionID, "error", dropErr)
	}
	s.emitProducts(result, emit)
	return nil
}

func (s *Session) handleToolResult(result events.ToolResult, emit EventCallback) {
	if result.Name != "" && result.Name != search.ToolName {
		slog.Debug("ignoring tool result", "session_id", s.cfg.SessionID, "tool", result.Name)
		return
	}
	payload, dropped := extract.FromStructured(result.Payload)
	for _, err := range dropped {
		slog.Warn("tool result record dropped", "session_id", s.cfg.SessionID, "error", err)
	}
	s.emitProducts(payload, emit)
}

// emitProducts forwards one logical result set exactly once per session.
func (s *Session) emitProducts(payload shop.ResultPayload, emit EventCallback) {
	if len(payload.Products) == 0 && payload.IntroText == "" {
		return
	}
	if !s.resultsSeen.ShouldEmit(resultKey(payload)) {
		metrics.DuplicatesSuppressed.Inc()
		return
	}
	metrics.ProductsEmitted.Inc()
	s.turnProducts += len(payload.Products)
	emit(Event{Type: EventProducts, Data: payload.IntroText, Products: payload.Products})
}

// handleTurnBoundary re-serializes the utterance bracket: a speech end always
// lands before the turn completion, regardless of upstream interleaving.
func (s *Session) handleTurnBoundary(emit EventCallback) {
	if s.speaking {
		s.speaking = false
		emit(Event{Type: EventBotSpeechEnd})
	}
	emit(Event{Type: EventTurnComplete})
	s.recordTurn()
}

func (s *Session) startSpeaking(emit EventCallback) {
	if s.speaking {
		return
	}
	s.speaking = true
	emit(Event{Type: EventBotSpeechStart})
}

func (s *Session) recordTurn() {
	user := strings.TrimSpace(s.userBuf.String())
	bot := strings.TrimSpace(s.botBuf.String())
	products := s.turnProducts
	s.userBuf.Reset()
	s.botBuf.Reset()
	s.turnProducts = 0

	if user == "" && bot == "" && products == 0 {
		return
	}
	if s.cfg.History != nil {
		s.cfg.History.RecordTurnAsync(s.cfg.SessionID, user, bot, products)
	}
}

// completionAcks are scaffolding phrases the model emits around tool use;
// they are artifacts, not conversational content.
var completionAcks = map[string]bool{
	"search complete":  true,
	"search completed": true,
	"done searching":   true,
}

func isCompletionAck(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!")
	return completionAcks[normalized]
}
