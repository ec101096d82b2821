package eventstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/harun/nalar/pkg/events"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL,
	session_id TEXT NOT NULL,
	type       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
`

// Store is the append-only SQLite event sink.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New opens (and if needed creates) the event database at path.
func New(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create event store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Event store opened")

	return &Store{db: db, logger: logger}, nil
}

// Persist appends one event for the session.
func (s *Store) Persist(sessionID uuid.UUID, ev events.Event) error {
	content, err := json.Marshal(ev.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal event content: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO events (event_id, session_id, type, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, sessionID.String(), string(ev.Type), string(content), ev.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	s.logger.Debug().
		Str("event_id", ev.ID).
		Str("type", string(ev.Type)).
		Msg("Event persisted")
	return nil
}

// ListBySession replays a session's events in insertion order.
func (s *Store) ListBySession(sessionID uuid.UUID) ([]events.Event, error) {
	rows, err := s.db.Query(
		`SELECT event_id, type, content, created_at FROM events WHERE session_id = ? ORDER BY seq`,
		sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			ev        events.Event
			eventType string
			content   string
			createdAt time.Time
		)
		if err := rows.Scan(&ev.ID, &eventType, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &ev.Content); err != nil {
			s.logger.Warn().Str("event_id", ev.ID).Err(err).Msg("Skipping event with malformed content")
			continue
		}
		ev.Type = events.EventType(eventType)
		ev.Timestamp = createdAt
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
