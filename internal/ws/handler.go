// Package ws is the WebSocket edge: client bytes in, typed inbound messages
// up to the session; typed outbound events down, client bytes out. Kept thin
// on purpose; the session layer owns all protocol semantics.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/agent"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/history"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/metrics"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/search"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared backends for all sessions.
type HandlerConfig struct {
	Runtime       agent.Runtime
	Tool          *search.Tool
	History       *history.Store
	IdleTimeout   time.Duration
	MaxConcurrent int
}

// Handler manages WebSocket sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a WebSocket handler with shared backends and concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// ServeHTTP upgrades the connection and runs the session.
// Returns 503 at max concurrent session capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := uuid.NewString()
	slog.Info("session started", "session_id", sessionID, "remote", conn.RemoteAddr())

	sess := session.New(session.Config{
		SessionID:   sessionID,
		Runtime:     h.cfg.Runtime,
		Tool:        h.cfg.Tool,
		History:     h.cfg.History,
		IdleTimeout: h.cfg.IdleTimeout,
	})

	inbound := make(chan session.Inbound, 8)
	readerDone := make(chan struct{})
	go readMessages(conn, sessionID, inbound, readerDone)
	defer close(readerDone)

	if err := sess.Run(ctx, inbound, newEventSender(conn)); err != nil {
		slog.Error("session ended", "session_id", sessionID, "error", err)
		return
	}
	slog.Info("session ended", "session_id", sessionID)
}

// inboundFrame is the JSON shape of one client message.
type inboundFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// readMessages decodes client frames into inbound messages until the
// connection drops, then closes the channel. A malformed frame is a
// per-message error: logged, counted, dropped, never session-fatal.
//
// Sends race against done, which the caller closes once the session ends.
// Without that a client still streaming into a dead session would fill the
// buffer and park this goroutine in the send for good.
func readMessages(conn *websocket.Conn, sessionID string, inbound chan<- session.Inbound, done <-chan struct{}) {
	defer close(inbound)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "session_id", sessionID, "error", err)
			return
		}

		msg, ok := decodeInbound(data)
		if !ok {
			metrics.InboundDropped.Inc()
			slog.Warn("malformed inbound message dropped", "session_id", sessionID)
			continue
		}

		select {
		case inbound <- msg:
		case <-done:
			return
		}

		if msg.Kind == session.InboundClose {
			return
		}
	}
}

// decodeInbound parses one client frame. Audio payloads are base64 PCM,
// 16 kHz mono.
func decodeInbound(data []byte) (session.Inbound, bool) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return session.Inbound{}, false
	}

	switch frame.Type {
	case "audio":
		audio, err := base64.StdEncoding.DecodeString(frame.Data)
		if err != nil || len(audio) == 0 {
			return session.Inbound{}, false
		}
		return session.Inbound{Kind: session.InboundAudio, Audio: audio}, true
	case "close":
		return session.Inbound{Kind: session.InboundClose}, true
	}
	return session.Inbound{}, false
}

func newEventSender(conn *websocket.Conn) session.EventCallback {
	var mu sync.Mutex
	return func(ev session.Event) {
		mu.Lock()
		defer mu.Unlock()

		jsonBytes, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err = conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Error("write event", "type", ev.Type, "error", err)
		}
	}
}
