package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

const contentColumns = `id, kind, topic, cache_key, provider, payload, created_at`

// ContentStore persists generated documents as JSONB
type ContentStore struct {
	db *sql.DB
}

// NewContentStore creates a new PostgreSQL content store
func NewContentStore(db *sql.DB) *ContentStore {
	return &ContentStore{db: db}
}

// SaveContent inserts or replaces a document
func (s *ContentStore) SaveContent(ctx context.Context, rec *domain.ContentRecord) error {
	payload := pqtype.NullRawMessage{RawMessage: rec.Payload, Valid: len(rec.Payload) > 0}
	if !payload.Valid {
		payload = pqtype.NullRawMessage{RawMessage: []byte("{}"), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (`+contentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			provider = EXCLUDED.provider`,
		rec.ID, string(rec.Kind), rec.Topic, rec.CacheKey, rec.Provider, payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

// GetContent retrieves a document by id
func (s *ContentStore) GetContent(ctx context.Context, id uuid.UUID) (*domain.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content WHERE id = $1`, id)
	return scanContentOrNotFound(row)
}

// FindByCacheKey returns the newest document for a cache key
func (s *ContentStore) FindByCacheKey(ctx context.Context, kind domain.ContentKind, key string) (*domain.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content
		WHERE kind = $1 AND cache_key = $2
		ORDER BY created_at DESC LIMIT 1`, string(kind), key)
	return scanContentOrNotFound(row)
}

// ListContent returns documents of a kind, optionally filtered by topic
func (s *ContentStore) ListContent(ctx context.Context, kind domain.ContentKind, topic string, limit int) ([]*domain.ContentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+contentColumns+` FROM content
		WHERE kind = $1 AND ($2 = '' OR topic = $2)
		ORDER BY created_at DESC LIMIT $3`, string(kind), topic, limit)
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	defer rows.Close()

	var out []*domain.ContentRecord
	for rows.Next() {
		rec, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentOrNotFound(row rowScanner) (*domain.ContentRecord, error) {
	rec, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrContentNotFound
	}
	return rec, err
}

func scanContent(row rowScanner) (*domain.ContentRecord, error) {
	var (
		rec     domain.ContentRecord
		kind    string
		payload pqtype.NullRawMessage
	)
	if err := row.Scan(&rec.ID, &kind, &rec.Topic, &rec.CacheKey, &rec.Provider, &payload, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Kind = domain.ContentKind(kind)
	if payload.Valid {
		rec.Payload = payload.RawMessage
	}
	return &rec, nil
}
