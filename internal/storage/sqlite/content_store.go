package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

// ContentStore persists generated documents backed by SQLite.
type ContentStore struct {
	db *DB
}

// NewContentStore creates a new SQLite-backed content store.
func NewContentStore(db *DB) *ContentStore {
	return &ContentStore{db: db}
}

// SaveContent inserts or replaces a generated document.
func (s *ContentStore) SaveContent(ctx context.Context, rec *domain.ContentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (id, kind, topic, cache_key, provider, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload=excluded.payload,
			provider=excluded.provider`,
		rec.ID.String(), string(rec.Kind), rec.Topic, rec.CacheKey, rec.Provider,
		string(rec.Payload), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

// GetContent retrieves a document by id.
func (s *ContentStore) GetContent(ctx context.Context, id uuid.UUID) (*domain.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, topic, cache_key, provider, payload, created_at
		FROM content WHERE id = ?`, id.String())
	return scanContentOrNotFound(row)
}

// FindByCacheKey returns the newest document generated for a cache key.
func (s *ContentStore) FindByCacheKey(ctx context.Context, kind domain.ContentKind, key string) (*domain.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, topic, cache_key, provider, payload, created_at
		FROM content WHERE kind = ? AND cache_key = ?
		ORDER BY created_at DESC LIMIT 1`, string(kind), key)
	return scanContentOrNotFound(row)
}

// ListContent returns documents of a kind, optionally filtered by topic, newest first.
func (s *ContentStore) ListContent(ctx context.Context, kind domain.ContentKind, topic string, limit int) ([]*domain.ContentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT id, kind, topic, cache_key, provider, payload, created_at FROM content WHERE kind = ?"
	args := []any{string(kind)}
	if topic != "" {
		query += " AND topic = ?"
		args = append(args, topic)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func scanContentOrNotFound(row scanner) (*domain.ContentRecord, error) {
	rec, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrContentNotFound
	}
	return rec, err
}

func scanContent(row scanner) (*domain.ContentRecord, error) {
	var (
		rec     domain.ContentRecord
		id      string
		kind    string
		payload string
	)
	if err := row.Scan(&id, &kind, &rec.Topic, &rec.CacheKey, &rec.Provider, &payload, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan content: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse content id: %w", err)
	}
	rec.ID = parsed
	rec.Kind = domain.ContentKind(kind)
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}
