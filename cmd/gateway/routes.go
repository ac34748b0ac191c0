package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/chat"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/history"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/metrics"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/prompts"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/shop"
)

// defaultSessionListLimit is how many history sessions are returned when the
// caller omits the ?limit= query parameter.
const defaultSessionListLimit = 20

type deps struct {
	cfg          config
	chatRouter   *chat.Router
	wsHandler    http.Handler
	historyStore *history.Store
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws", d.wsHandler)
	mux.HandleFunc("POST /chat", d.handleChat)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	registerHistoryRoutes(mux, d.historyStore)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// chatFrame is one SSE data payload on the /chat stream.
type chatFrame struct {
	Type   string              `json:"type"`
	Data   string              `json:"data,omitempty"`
	Result *shop.ResultPayload `json:"result,omitempty"`
}

// handleChat runs one text-variant request and streams the normalized
// response as SSE: prose, then each distinct result set, then turn_complete.
func (d deps) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		Engine string `json:"engine"`
		Model  string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	engine := req.Engine
	if engine == "" {
		engine = d.cfg.chatEngine
	}
	if !d.chatRouter.Has(engine) {
		http.Error(w, "engine not available", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	emit := func(frame chatFrame) {
		data, err := json.Marshal(frame)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	metrics.ChatRequests.WithLabelValues(engine).Inc()
	slog.Info("chat request", "engine", engine, "chars", len(req.Text))

	systemPrompt := prompts.ForSession(d.cfg.chatPrompt, prompts.Chat)
	resp, err := d.chatRouter.Chat(r.Context(), req.Text, systemPrompt, req.Model, engine, nil)
	if err != nil {
		slog.Error("chat failed", "engine", engine, "error", err)
		metrics.Errors.WithLabelValues("chat", "backend").Inc()
		emit(chatFrame{Type: "error", Data: "chat backend failed"})
		return
	}

	if resp.Prose != "" {
		emit(chatFrame{Type: "text", Data: resp.Prose})
	}
	for i := range resp.Results {
		metrics.ProductsEmitted.Inc()
		emit(chatFrame{Type: "result", Result: &resp.Results[i]})
	}
	emit(chatFrame{Type: "turn_complete"})

	slog.Info("chat complete", "engine", engine, "latency_ms", resp.LatencyMs)
}

func registerHistoryRoutes(mux *http.ServeMux, store *history.Store) {
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "history disabled", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", defaultSessionListLimit)
		offset := queryInt(r, "offset", 0)
		sessions, total, err := store.ListSessions(limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "history disabled", http.StatusNotFound)
			return
		}
		sess, turns, err := store.GetSession(r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"session": sess, "turns": turns})
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
