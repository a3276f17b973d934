// Package grading runs a code submission against its test cases through a
// judge and records the outcome in the user's progress.
package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/judge"
)

// Store persists a graded submission together with the progress update.
// RecordGraded must commit both atomically and must be a no-op returning
// applied=false when the submission id was already recorded.
type Store interface {
	RecordGraded(ctx context.Context, rec *domain.SubmissionRecord) (progress *domain.ProgressCounter, applied bool, err error)
}

// SubmissionRequest is one submission to grade
type SubmissionRequest struct {
	// SubmissionID identifies the submission across redeliveries; a new id is
	// generated when zero
	SubmissionID uuid.UUID `json:"submission_id"`

	UserID     string            `json:"user_id"`
	QuestionID string            `json:"question_id"`
	Topic      string            `json:"topic"`
	Language   string            `json:"language"`
	Code       string            `json:"code"`
	Driver     string            `json:"driver,omitempty"`
	TestCases  []domain.TestCase `json:"test_cases"`

	CPUTimeLimit  float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimitKB int     `json:"memory_limit_kb,omitempty"`
}

// Outcome is the grading result plus the progress it produced
type Outcome struct {
	Result   *domain.GradingResult   `json:"result"`
	Progress *domain.ProgressCounter `json:"progress,omitempty"`

	// Applied is false when the submission had already been recorded
	Applied bool `json:"applied"`
}

// Orchestrator grades submissions
type Orchestrator struct {
	executor judge.Executor
	store    Store
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. store may be nil, in which case Submit grades
// without recording anything.
func New(executor judge.Executor, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor: executor,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunSubmission grades the submission and records it. Only the grading
// result is returned; use Submit for the progress as well.
func (o *Orchestrator) RunSubmission(ctx context.Context, req SubmissionRequest) (*domain.GradingResult, error) {
	out, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Submit grades the submission and, when it was graded, commits the
// submission record and progress update in one store call. A judge error
// aborts before anything is recorded.
func (o *Orchestrator) Submit(ctx context.Context, req SubmissionRequest) (*Outcome, error) {
	if req.SubmissionID == uuid.Nil {
		req.SubmissionID = uuid.New()
	}

	result, err := o.Grade(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Result: result}
	if o.store == nil {
		return out, nil
	}

	rec := domain.NewSubmissionRecord(req.UserID, req.QuestionID, req.Topic, req.Language, req.Code, result, o.now())
	progress, applied, err := o.store.RecordGraded(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("record graded submission: %w", err)
	}
	if !applied {
		o.logger.Info("submission already recorded, progress unchanged",
			"submission_id", req.SubmissionID,
			"user_id", req.UserID)
	}

	out.Progress = progress
	out.Applied = applied
	return out, nil
}

// Grade wraps the code once and runs every case in order. A case passes when
// the judge says Accepted or the trimmed output equals the trimmed
// expectation. Only the first failure is kept.
func (o *Orchestrator) Grade(ctx context.Context, req SubmissionRequest) (*domain.GradingResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, domain.ErrEmptyCode
	}
	if len(req.TestCases) == 0 {
		return nil, domain.ErrNoTestCases
	}

	source, err := judge.Wrap(req.Code, req.Language, req.Driver)
	if err != nil {
		return nil, err
	}

	result := &domain.GradingResult{
		SubmissionID: req.SubmissionID,
		Total:        len(req.TestCases),
		Failures:     []domain.CaseResult{},
	}

	for i, tc := range req.TestCases {
		verdict, err := o.executor.Execute(ctx, judge.Submission{
			SourceCode:     source,
			Language:       req.Language,
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			CPUTimeLimit:   req.CPUTimeLimit,
			MemoryLimitKB:  req.MemoryLimitKB,
		})
		if err != nil {
			o.logger.Error("judge execution failed",
				"submission_id", req.SubmissionID,
				"case", i,
				"error", err)
			return nil, fmt.Errorf("test case %d: %w", i+1, err)
		}

		if casePassed(verdict, tc.ExpectedOutput) {
			result.Passed++
			continue
		}

		if len(result.Failures) == 0 {
			failure := domain.CaseResult{
				Index:    i,
				Input:    tc.Input,
				Expected: tc.ExpectedOutput,
				Actual:   verdict.Stdout,
				Status:   verdict.Status,
				Stderr:   verdict.Stderr,
				Compile:  verdict.CompileOutput,
			}
			if tc.Hidden {
				failure.Input, failure.Expected, failure.Actual = "", "", ""
			}
			result.Failures = append(result.Failures, failure)
		}
	}

	result.Verdict = domain.VerdictFailed
	if result.Passed == result.Total {
		result.Verdict = domain.VerdictAccepted
	}

	o.logger.Info("submission graded",
		"submission_id", req.SubmissionID,
		"user_id", req.UserID,
		"question_id", req.QuestionID,
		"verdict", result.Verdict,
		"passed", result.Passed,
		"total", result.Total)

	return result, nil
}

func casePassed(v *judge.Verdict, expected string) bool {
	return v.Status == domain.StatusAccepted ||
		strings.TrimSpace(v.Stdout) == strings.TrimSpace(expected)
}
