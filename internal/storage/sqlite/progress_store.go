package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ProgressStore reads per-topic progress counters backed by SQLite.
// Writes go through SubmissionStore.RecordGraded.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new SQLite-backed progress store.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Get returns the counter for a user and topic.
func (s *ProgressStore) Get(ctx context.Context, userID, topic string) (*domain.ProgressCounter, error) {
	return getProgress(ctx, s.db, userID, topic)
}

// ListByUser returns every counter of a user, ordered by topic.
func (s *ProgressStore) ListByUser(ctx context.Context, userID string) ([]*domain.ProgressCounter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, topic, attempts, solved, accuracy, streak,
			last_solved_at, solved_problems, updated_at
		FROM progress WHERE user_id = ? ORDER BY topic`, userID)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var out []*domain.ProgressCounter
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Save upserts a counter.
func (s *ProgressStore) Save(ctx context.Context, p *domain.ProgressCounter) error {
	return saveProgress(ctx, s.db, p)
}

func getProgress(ctx context.Context, q querier, userID, topic string) (*domain.ProgressCounter, error) {
	row := q.QueryRowContext(ctx, `
		SELECT user_id, topic, attempts, solved, accuracy, streak,
			last_solved_at, solved_problems, updated_at
		FROM progress WHERE user_id = ? AND topic = ?`, userID, topic)

	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProgressNotFound
	}
	return p, err
}

func saveProgress(ctx context.Context, q querier, p *domain.ProgressCounter) error {
	solved, err := json.Marshal(p.SolvedProblems)
	if err != nil {
		return fmt.Errorf("marshal solved_problems: %w", err)
	}

	var lastSolved sql.NullTime
	if p.LastSolvedAt != nil {
		lastSolved = sql.NullTime{Time: *p.LastSolvedAt, Valid: true}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO progress (user_id, topic, attempts, solved, accuracy, streak,
			last_solved_at, solved_problems, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, topic) DO UPDATE SET
			attempts=excluded.attempts,
			solved=excluded.solved,
			accuracy=excluded.accuracy,
			streak=excluded.streak,
			last_solved_at=excluded.last_solved_at,
			solved_problems=excluded.solved_problems,
			updated_at=excluded.updated_at`,
		p.UserID, p.Topic, p.Attempts, p.Solved, p.Accuracy, p.Streak,
		lastSolved, string(solved), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(row scanner) (*domain.ProgressCounter, error) {
	var (
		p          domain.ProgressCounter
		lastSolved sql.NullTime
		solved     string
	)
	err := row.Scan(&p.UserID, &p.Topic, &p.Attempts, &p.Solved, &p.Accuracy, &p.Streak,
		&lastSolved, &solved, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan progress: %w", err)
	}

	if lastSolved.Valid {
		t := lastSolved.Time
		p.LastSolvedAt = &t
	}
	if err := json.Unmarshal([]byte(solved), &p.SolvedProblems); err != nil {
		return nil, fmt.Errorf("unmarshal solved_problems: %w", err)
	}
	if p.SolvedProblems == nil {
		p.SolvedProblems = []string{}
	}
	return &p, nil
}
