package main

import (
	"os"
	"strconv"
	"time"
)

type config struct {
	port                  string
	googleAPIKey          string
	openaiAPIKey          string
	liveModel             string
	chatModel             string
	openaiChatModel       string
	chatEngine            string
	chatMaxTokens         int
	voice                 string
	voicePrompt           string
	chatPrompt            string
	vectorSearchURL       string
	searchDataset         string
	searchRowsPerQuery    int
	searchPoolSize        int
	maxConcurrentSessions int
	idleTimeout           time.Duration
	historyDBURL          string
}

func loadConfig() config {
	return config{
		port:                  envStr("GATEWAY_PORT", "8765"),
		googleAPIKey:          envStr("GOOGLE_API_KEY", ""),
		openaiAPIKey:          envStr("OPENAI_API_KEY", ""),
		liveModel:             envStr("GEMINI_LIVE_MODEL", "gemini-2.0-flash-live-001"),
		chatModel:             envStr("GEMINI_CHAT_MODEL", "gemini-2.0-flash"),
		openaiChatModel:       envStr("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		chatEngine:            envStr("CHAT_ENGINE", "gemini"),
		chatMaxTokens:         envInt("CHAT_MAX_TOKENS", 512),
		voice:                 envStr("AGENT_VOICE", "Puck"),
		voicePrompt:           envStr("VOICE_SYSTEM_PROMPT", ""),
		chatPrompt:            envStr("CHAT_SYSTEM_PROMPT", ""),
		vectorSearchURL:       envStr("VECTOR_SEARCH_URL", "https://www.ac0.cloudadvocacyorg.joonix.net/api/query"),
		searchDataset:         envStr("SEARCH_DATASET_ID", "mercari3m_mm"),
		searchRowsPerQuery:    envInt("SEARCH_ROWS_PER_QUERY", 3),
		searchPoolSize:        envInt("SEARCH_POOL_SIZE", 10),
		maxConcurrentSessions: envInt("MAX_CONCURRENT_SESSIONS", 100),
		idleTimeout:           envDur("GATEWAY_IDLE_TIMEOUT", 90*time.Second),
		historyDBURL:          envStr("HISTORY_DB_URL", ""),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envDur(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
