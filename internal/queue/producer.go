package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/grading"
)

// publisher is the part of Connection the producer needs
type publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes submission jobs and grading outcomes
type Producer struct {
	conn   publisher
	logger *slog.Logger
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn, logger: conn.logger}
}

// PublishSubmission enqueues a submission for grading. The submission id is
// fixed here so redeliveries of the same job are recognised downstream.
func (p *Producer) PublishSubmission(ctx context.Context, job *SubmissionJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Request.SubmissionID == uuid.Nil {
		job.Request.SubmissionID = job.ID
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, SubmissionQueueName, job); err != nil {
		return fmt.Errorf("failed to publish submission job: %w", err)
	}

	p.logger.Info("published submission job",
		"job_id", job.ID,
		"submission_id", job.Request.SubmissionID,
		"user_id", job.Request.UserID,
		"question_id", job.Request.QuestionID,
	)

	return nil
}

// PublishOutcome publishes a grading outcome to the results queue
func (p *Producer) PublishOutcome(ctx context.Context, out *GradingOutcome) error {
	if out.CompletedAt.IsZero() {
		out.CompletedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, ResultQueueName, out); err != nil {
		return fmt.Errorf("failed to publish grading outcome: %w", err)
	}

	p.logger.Info("published grading outcome",
		"job_id", out.JobID,
		"status", out.Status,
		"duration", out.Duration,
	)

	return nil
}

// NewSubmissionJob wraps a request in a job with a fresh id
func NewSubmissionJob(req grading.SubmissionRequest) *SubmissionJob {
	id := uuid.New()
	if req.SubmissionID == uuid.Nil {
		req.SubmissionID = id
	}
	return &SubmissionJob{
		ID:        id,
		Request:   req,
		CreatedAt: time.Now(),
	}
}
