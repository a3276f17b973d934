// Package storage selects and opens the persistence backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/analytics"
	"github.com/felixgeelhaar/skillforge/internal/content"
	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/grading"
	"github.com/felixgeelhaar/skillforge/internal/storage/postgres"
	"github.com/felixgeelhaar/skillforge/internal/storage/sqlite"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SubmissionStore records graded submissions and lists them back
type SubmissionStore interface {
	grading.Store
	analytics.SubmissionReader
	Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionRecord, error)
}

// ProgressStore reads and writes topic counters
type ProgressStore interface {
	analytics.ProgressReader
	Get(ctx context.Context, userID, topic string) (*domain.ProgressCounter, error)
}

// EventStore records and counts activity events
type EventStore interface {
	content.EventRecorder
	analytics.EventCounter
}

// Config selects a backend
type Config struct {
	Driver     string
	SQLitePath string
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string
}

// Stores bundles the opened stores of one backend
type Stores struct {
	Driver      string
	Submissions SubmissionStore
	Progress    ProgressStore
	Content     content.Store
	Events      EventStore

	close func() error
}

// Open connects to the configured backend and applies its schema
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "", DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		db.WithLogger(logger)
		if err := db.MigrateContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info("storage ready", "driver", DriverSQLite, "path", cfg.SQLitePath)
		return &Stores{
			Driver:      DriverSQLite,
			Submissions: sqlite.NewSubmissionStore(db),
			Progress:    sqlite.NewProgressStore(db),
			Content:     sqlite.NewContentStore(db),
			Events:      sqlite.NewEventStore(db),
			close:       db.Close,
		}, nil

	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_URL")
		}
		openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		db, err := postgres.Open(openCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(openCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("storage ready", "driver", DriverPostgres)
		return &Stores{
			Driver:      DriverPostgres,
			Submissions: postgres.NewSubmissionStore(db.Pool),
			Progress:    postgres.NewProgressStore(db.Pool),
			Content:     postgres.NewContentStore(db.SQL),
			Events:      postgres.NewEventStore(db.Pool),
			close:       db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Close releases the backend connections
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
