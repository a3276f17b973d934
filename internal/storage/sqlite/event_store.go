package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is a recorded activity event.
type Event struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// EventStore records activity events backed by SQLite.
type EventStore struct {
	db  *DB
	now func() time.Time
}

// NewEventStore creates a new SQLite-backed event store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db, now: time.Now}
}

// Record stores an event.
func (s *EventStore) Record(ctx context.Context, eventType, userID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	var uid *string
	if userID != "" {
		uid = &userID
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO events (event_type, user_id, data, created_at) VALUES (?, ?, ?, ?)",
		eventType, uid, string(payload), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Query returns events of a type, optionally filtered by user and time range, newest first.
func (s *EventStore) Query(ctx context.Context, eventType, userID string, since, until time.Time) ([]Event, error) {
	query := "SELECT id, event_type, user_id, data, created_at FROM events WHERE event_type = ?"
	args := []any{eventType}

	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if !since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, since.UTC())
	}
	if !until.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, until.UTC())
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var uid *string
		if err := rows.Scan(&e.ID, &e.EventType, &uid, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if uid != nil {
			e.UserID = *uid
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByType returns event counts grouped by type since the given time.
func (s *EventStore) CountByType(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_type, COUNT(*) FROM events WHERE created_at >= ? GROUP BY event_type",
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// Prune deletes events older than the given duration.
func (s *EventStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UTC()
	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return result.RowsAffected()
}
