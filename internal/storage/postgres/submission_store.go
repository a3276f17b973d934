package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

const submissionColumns = `id, user_id, question_id, topic, language, code,
	verdict, passed, total, created_at`

// SubmissionStore persists graded submissions using PostgreSQL
type SubmissionStore struct {
	pool *pgxpool.Pool
}

// NewSubmissionStore creates a new PostgreSQL submission store
func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

// RecordGraded inserts the submission and applies it to the topic counter in
// one transaction. The counter row is locked for the duration. An id that is
// already stored is a no-op and reports applied=false.
func (s *SubmissionStore) RecordGraded(ctx context.Context, rec *domain.SubmissionRecord) (*domain.ProgressCounter, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.QuestionID, rec.Topic, rec.Language, rec.Code,
		rec.Verdict, rec.Passed, rec.Total, rec.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert submission: %w", err)
	}

	if tag.RowsAffected() > 0 {
		// FOR UPDATE locks nothing when the row is missing, so the first
		// submissions of a topic would race. Seed it and lock the seed.
		if _, err := tx.Exec(ctx, seedProgress, rec.UserID, rec.Topic, rec.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("seed progress: %w", err)
		}
	}

	p, err := scanProgress(tx.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM progress WHERE user_id = $1 AND topic = $2 FOR UPDATE`,
		rec.UserID, rec.Topic,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		p = domain.NewProgressCounter(rec.UserID, rec.Topic)
	} else if err != nil {
		return nil, false, fmt.Errorf("load progress: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return p, false, tx.Commit(ctx)
	}

	p.Apply(rec.QuestionID, rec.Verdict == domain.VerdictAccepted, rec.CreatedAt)
	if _, err := tx.Exec(ctx, upsertProgress, progressArgs(p)...); err != nil {
		return nil, false, fmt.Errorf("upsert progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return p, true, nil
}

// Get retrieves a submission by id
func (s *SubmissionStore) Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionRecord, error) {
	rec, err := scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubmissionNotFound
	}
	return rec, err
}

// ListRecent returns the newest submissions of a user
func (s *SubmissionStore) ListRecent(ctx context.Context, userID string, limit int) ([]*domain.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []*domain.SubmissionRecord
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSubmission(row pgx.Row) (*domain.SubmissionRecord, error) {
	rec := &domain.SubmissionRecord{}
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.QuestionID, &rec.Topic, &rec.Language, &rec.Code,
		&rec.Verdict, &rec.Passed, &rec.Total, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
