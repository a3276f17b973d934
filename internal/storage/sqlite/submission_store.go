package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

// SubmissionStore persists graded submissions backed by SQLite.
type SubmissionStore struct {
	db *DB
}

// NewSubmissionStore creates a new SQLite-backed submission store.
func NewSubmissionStore(db *DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// RecordGraded inserts the submission and applies it to the user's topic
// counter in one transaction. A submission id that is already stored leaves
// everything untouched and reports applied=false.
func (s *SubmissionStore) RecordGraded(ctx context.Context, rec *domain.SubmissionRecord) (*domain.ProgressCounter, bool, error) {
	var (
		progress *domain.ProgressCounter
		applied  bool
	)

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO submissions (id, user_id, question_id, topic, language, code,
				verdict, passed, total, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			rec.ID.String(), rec.UserID, rec.QuestionID, rec.Topic, rec.Language, rec.Code,
			rec.Verdict, rec.Passed, rec.Total, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		p, err := getProgress(ctx, tx, rec.UserID, rec.Topic)
		if errors.Is(err, domain.ErrProgressNotFound) {
			p = domain.NewProgressCounter(rec.UserID, rec.Topic)
		} else if err != nil {
			return err
		}

		progress = p
		if n == 0 {
			return nil
		}

		p.Apply(rec.QuestionID, rec.Verdict == domain.VerdictAccepted, rec.CreatedAt)
		if err := saveProgress(ctx, tx, p); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return progress, applied, nil
}

// Get retrieves a submission by id.
func (s *SubmissionStore) Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, question_id, topic, language, code, verdict, passed, total, created_at
		FROM submissions WHERE id = ?`, id.String())

	rec, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSubmissionNotFound
	}
	return rec, err
}

// ListRecent returns the newest submissions of a user, newest first.
func (s *SubmissionStore) ListRecent(ctx context.Context, userID string, limit int) ([]*domain.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, question_id, topic, language, code, verdict, passed, total, created_at
		FROM submissions WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
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

func scanSubmission(row scanner) (*domain.SubmissionRecord, error) {
	var (
		rec domain.SubmissionRecord
		id  string
	)
	err := row.Scan(&id, &rec.UserID, &rec.QuestionID, &rec.Topic, &rec.Language, &rec.Code,
		&rec.Verdict, &rec.Passed, &rec.Total, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}

	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse submission id: %w", err)
	}
	return &rec, nil
}
