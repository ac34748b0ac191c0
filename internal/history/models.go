package history

import "time"

// Session is one recorded client session.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	TurnCount int        `json:"turn_count"`
}

// Turn is one completed user→assistant exchange.
type Turn struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	UserText     string    `json:"user_text"`
	BotText      string    `json:"bot_text"`
	ProductCount int       `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
}
