package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStore records activity events using PostgreSQL
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new PostgreSQL event store
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Record stores an event
func (s *EventStore) Record(ctx context.Context, eventType, userID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	var uid *string
	if userID != "" {
		uid = &userID
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (event_type, user_id, data) VALUES ($1, $2, $3)`,
		eventType, uid, payload,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// CountByType returns event counts grouped by type since the given time
func (s *EventStore) CountByType(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_type, COUNT(*) FROM events WHERE created_at >= $1 GROUP BY event_type`, since)
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
