// Package history persists session and conversation-turn records to
// PostgreSQL. Persistence is optional and never on the hot path: turn writes
// are fire-and-forget, and failures are logged, not propagated.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 500

// Store persists session history to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the history database at connStr and applies migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("history open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session and prunes old ones.
func (s *Store) CreateSession(id string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, started_at) VALUES ($1, $2)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM sessions WHERE id NOT IN (SELECT id FROM sessions ORDER BY started_at DESC LIMIT $1)`,
		maxSessions,
	)
	return err
}

// EndSession sets the ended_at timestamp.
func (s *Store) EndSession(id string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return err
}

// RecordTurnAsync stores one completed turn in a background goroutine.
func (s *Store) RecordTurnAsync(sessionID, userText, botText string, productCount int) {
	go func() {
		_, err := s.db.Exec(
			`INSERT INTO turns (session_id, user_text, bot_text, product_count, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			sessionID, userText, botText, productCount, time.Now().UTC(),
		)
		if err != nil {
			slog.Error("history record turn", "session_id", sessionID, "error", err)
		}
	}()
}

// ListSessions returns sessions ordered newest first, with turn counts.
func (s *Store) ListSessions(limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT s.id, s.started_at, s.ended_at, COUNT(t.id) as turn_count
		FROM sessions s
		LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var endedAt sql.NullTime
		if err = rows.Scan(&sess.ID, &sess.StartedAt, &endedAt, &sess.TurnCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			sess.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetSession returns a single session with its turns.
func (s *Store) GetSession(id string) (*Session, []Turn, error) {
	var sess Session
	var endedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, started_at, ended_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.StartedAt, &endedAt)
	if err != nil {
		return nil, nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, user_text, bot_text, product_count, created_at
		 FROM turns WHERE session_id = $1 ORDER BY created_at ASC`,
		id,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err = rows.Scan(&t.ID, &t.SessionID, &t.UserText, &t.BotText, &t.ProductCount, &t.CreatedAt); err != nil {
			return nil, nil, err
		}
		turns = append(turns, t)
	}
	return &sess, turns, rows.Err()
}
