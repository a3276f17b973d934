package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

const progressColumns = `user_id, topic, attempts, solved, accuracy, streak,
	last_solved_at, solved_problems, updated_at`

// ProgressStore reads and writes progress counters using PostgreSQL
type ProgressStore struct {
	pool *pgxpool.Pool
}

// NewProgressStore creates a new PostgreSQL progress store
func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// Get returns the counter for a user and topic
func (s *ProgressStore) Get(ctx context.Context, userID, topic string) (*domain.ProgressCounter, error) {
	query := `SELECT ` + progressColumns + ` FROM progress WHERE user_id = $1 AND topic = $2`
	p, err := scanProgress(s.pool.QueryRow(ctx, query, userID, topic))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProgressNotFound
	}
	return p, err
}

// ListByUser returns every counter of a user ordered by topic
func (s *ProgressStore) ListByUser(ctx context.Context, userID string) ([]*domain.ProgressCounter, error) {
	query := `SELECT ` + progressColumns + ` FROM progress WHERE user_id = $1 ORDER BY topic`
	rows, err := s.pool.Query(ctx, query, userID)
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

// Save upserts a counter
func (s *ProgressStore) Save(ctx context.Context, p *domain.ProgressCounter) error {
	_, err := s.pool.Exec(ctx, upsertProgress, progressArgs(p)...)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

const upsertProgress = `
	INSERT INTO progress (` + progressColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (user_id, topic) DO UPDATE SET
		attempts = EXCLUDED.attempts,
		solved = EXCLUDED.solved,
		accuracy = EXCLUDED.accuracy,
		streak = EXCLUDED.streak,
		last_solved_at = EXCLUDED.last_solved_at,
		solved_problems = EXCLUDED.solved_problems,
		updated_at = EXCLUDED.updated_at
`

// seedProgress creates an empty counter row, leaving an existing one alone.
const seedProgress = `
	INSERT INTO progress (user_id, topic, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, topic) DO NOTHING
`

func progressArgs(p *domain.ProgressCounter) []any {
	solved := p.SolvedProblems
	if solved == nil {
		solved = []string{}
	}
	return []any{
		p.UserID, p.Topic, p.Attempts, p.Solved, p.Accuracy, p.Streak,
		p.LastSolvedAt, solved, p.UpdatedAt,
	}
}

func scanProgress(row pgx.Row) (*domain.ProgressCounter, error) {
	p := &domain.ProgressCounter{}
	err := row.Scan(
		&p.UserID, &p.Topic, &p.Attempts, &p.Solved, &p.Accuracy, &p.Streak,
		&p.LastSolvedAt, &p.SolvedProblems, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.SolvedProblems == nil {
		p.SolvedProblems = []string{}
	}
	return p, nil
}
