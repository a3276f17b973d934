package sqlite

import (
	"github.com/felixgeelhaar/skillforge/internal/analytics"
	"github.com/felixgeelhaar/skillforge/internal/content"
	"github.com/felixgeelhaar/skillforge/internal/grading"
)

// Ensure SQLite stores implement the service interfaces.
var (
	_ grading.Store              = (*SubmissionStore)(nil)
	_ analytics.ProgressReader   = (*ProgressStore)(nil)
	_ analytics.SubmissionReader = (*SubmissionStore)(nil)
	_ analytics.EventCounter     = (*EventStore)(nil)
	_ content.Store              = (*ContentStore)(nil)
	_ content.EventRecorder      = (*EventStore)(nil)
)
