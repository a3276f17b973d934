// Package mcp exposes content generation, grading and progress as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/skillforge/internal/analytics"
	"github.com/felixgeelhaar/skillforge/internal/content"
	"github.com/felixgeelhaar/skillforge/internal/domain"
	"github.com/felixgeelhaar/skillforge/internal/grading"
)

// Submitter grades and records one submission
type Submitter interface {
	Submit(ctx context.Context, req grading.SubmissionRequest) (*grading.Outcome, error)
}

// ProgressReader lists and reads topic counters
type ProgressReader interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.ProgressCounter, error)
	Get(ctx context.Context, userID, topic string) (*domain.ProgressCounter, error)
}

// Server wraps the MCP server with skillforge functionality
type Server struct {
	mcpServer *server.Server
	content   *content.Service
	grader    Submitter
	progress  ProgressReader
	analytics *analytics.Service
	logger    *slog.Logger
}

// Config contains configuration for the MCP server
type Config struct {
	Version   string
	Content   *content.Service
	Grader    Submitter
	Progress  ProgressReader
	Analytics *analytics.Service
	Logger    *slog.Logger
}

// NewServer creates a new MCP server for skillforge
func NewServer(cfg Config) *Server {
	s := &Server{
		content:   cfg.Content,
		grader:    cfg.Grader,
		progress:  cfg.Progress,
		analytics: cfg.Analytics,
		logger:    cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "skillforge",
		Version: version,
	}, server.WithInstructions(`
Skillforge generates learning content and grades coding submissions.

Available tools:
- skillforge_generate: Generate a roadmap, quiz or coding problem for a topic
- skillforge_submit: Grade code against test cases and update progress
- skillforge_progress: Show per-topic progress for a learner
- skillforge_overview: Summarize a learner's practice history
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("skillforge_generate").
		Description("Generate a roadmap, quiz or coding problem for a topic.").
		Handler(s.handleGenerate)

	s.mcpServer.Tool("skillforge_submit").
		Description("Grade a code submission against test cases and record progress.").
		Handler(s.handleSubmit)

	s.mcpServer.Tool("skillforge_progress").
		Description("Get per-topic progress counters for a learner.").
		Handler(s.handleProgress)

	s.mcpServer.Tool("skillforge_overview").
		Description("Get a summary of a learner's practice history.").
		Handler(s.handleOverview)
}

// Input/Output types for tools

type GenerateInput struct {
	Kind       string `json:"kind" jsonschema:"description=Content kind,enum=roadmap,enum=quiz,enum=problem"`
	Topic      string `json:"topic" jsonschema:"description=Topic to generate content for"`
	Level      string `json:"level,omitempty" jsonschema:"description=Roadmap level: beginner intermediate or advanced"`
	Count      int    `json:"count,omitempty" jsonschema:"description=Number of quiz questions (1-20)"`
	Difficulty string `json:"difficulty,omitempty" jsonschema:"description=Quiz or problem difficulty: easy medium or hard"`
}

type GenerateOutput struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Topic    string `json:"topic"`
	Provider string `json:"provider,omitempty"`
	Cached   bool   `json:"cached"`
	Content  string `json:"content"`
}

type TestCaseInput struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

type SubmitInput struct {
	UserID     string          `json:"user_id" jsonschema:"description=Learner ID"`
	QuestionID string          `json:"question_id" jsonschema:"description=Problem ID"`
	Topic      string          `json:"topic" jsonschema:"description=Topic the problem belongs to"`
	Language   string          `json:"language" jsonschema:"description=Source language such as python or go"`
	Code       string          `json:"code" jsonschema:"description=Solution source code"`
	Driver     string          `json:"driver,omitempty" jsonschema:"description=Harness appended to bare solutions"`
	TestCases  []TestCaseInput `json:"test_cases" jsonschema:"description=Cases to run in order"`
}

type SubmitOutput struct {
	SubmissionID string             `json:"submission_id"`
	Verdict      string             `json:"verdict"`
	Passed       int                `json:"passed"`
	Total        int                `json:"total"`
	FirstFailure *domain.CaseResult `json:"first_failure,omitempty"`
	Applied      bool               `json:"applied"`
	Attempts     int                `json:"attempts"`
	Solved       int                `json:"solved"`
	Accuracy     int                `json:"accuracy"`
	Streak       int                `json:"streak"`
}

type ProgressInput struct {
	UserID string `json:"user_id" jsonschema:"description=Learner ID"`
	Topic  string `json:"topic,omitempty" jsonschema:"description=Limit to one topic"`
}

type ProgressOutput struct {
	UserID string                   `json:"user_id"`
	Topics []domain.ProgressCounter `json:"topics"`
}

type OverviewInput struct {
	UserID string `json:"user_id" jsonschema:"description=Learner ID"`
}

func (s *Server) handleGenerate(ctx context.Context, input GenerateInput) (GenerateOutput, error) {
	if s.content == nil {
		return GenerateOutput{}, errors.New("content generation is not available")
	}
	kind, err := domain.ParseContentKind(input.Kind)
	if err != nil {
		return GenerateOutput{}, err
	}

	var (
		rec    *domain.ContentRecord
		cached bool
	)
	switch kind {
	case domain.ContentRoadmap:
		doc, gerr := s.content.GenerateRoadmap(ctx, content.RoadmapRequest{Topic: input.Topic, Level: input.Level})
		if doc != nil {
			rec, cached = doc.Record, doc.Cached
		}
		err = gerr
	case domain.ContentQuiz:
		doc, gerr := s.content.GenerateQuiz(ctx, content.QuizRequest{Topic: input.Topic, Count: input.Count, Difficulty: input.Difficulty})
		if doc != nil {
			rec, cached = doc.Record, doc.Cached
		}
		err = gerr
	case domain.ContentProblem:
		doc, gerr := s.content.GenerateProblem(ctx, content.ProblemRequest{Topic: input.Topic, Difficulty: input.Difficulty})
		if doc != nil {
			rec, cached = doc.Record, doc.Cached
		}
		err = gerr
	}
	if err != nil {
		return GenerateOutput{}, fmt.Errorf("generate %s: %w", kind, err)
	}

	return GenerateOutput{
		ID:       rec.ID.String(),
		Kind:     string(rec.Kind),
		Topic:    rec.Topic,
		Provider: rec.Provider,
		Cached:   cached,
		Content:  string(rec.Payload),
	}, nil
}

func (s *Server) handleSubmit(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	if s.grader == nil {
		return SubmitOutput{}, errors.New("grading is not available")
	}

	cases := make([]domain.TestCase, len(input.TestCases))
	for i, tc := range input.TestCases {
		cases[i] = domain.TestCase{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput}
	}

	out, err := s.grader.Submit(ctx, grading.SubmissionRequest{
		UserID:     input.UserID,
		QuestionID: input.QuestionID,
		Topic:      input.Topic,
		Language:   input.Language,
		Code:       input.Code,
		Driver:     input.Driver,
		TestCases:  cases,
	})
	if err != nil {
		return SubmitOutput{}, fmt.Errorf("grade submission: %w", err)
	}

	output := SubmitOutput{
		SubmissionID: out.Result.SubmissionID.String(),
		Verdict:      out.Result.Verdict,
		Passed:       out.Result.Passed,
		Total:        out.Result.Total,
		Applied:      out.Applied,
	}
	if len(out.Result.Failures) > 0 {
		first := out.Result.Failures[0]
		output.FirstFailure = &first
	}
	if p := out.Progress; p != nil {
		output.Attempts = p.Attempts
		output.Solved = p.Solved
		output.Accuracy = p.Accuracy
		output.Streak = p.Streak
	}
	return output, nil
}

func (s *Server) handleProgress(ctx context.Context, input ProgressInput) (ProgressOutput, error) {
	if s.progress == nil {
		return ProgressOutput{}, errors.New("progress is not available")
	}
	output := ProgressOutput{UserID: input.UserID, Topics: []domain.ProgressCounter{}}

	if input.Topic != "" {
		p, err := s.progress.Get(ctx, input.UserID, input.Topic)
		if errors.Is(err, domain.ErrProgressNotFound) {
			return output, nil
		}
		if err != nil {
			return ProgressOutput{}, err
		}
		output.Topics = append(output.Topics, *p)
		return output, nil
	}

	counters, err := s.progress.ListByUser(ctx, input.UserID)
	if err != nil {
		return ProgressOutput{}, err
	}
	for _, p := range counters {
		output.Topics = append(output.Topics, *p)
	}
	return output, nil
}

func (s *Server) handleOverview(ctx context.Context, input OverviewInput) (analytics.Overview, error) {
	if s.analytics == nil {
		return analytics.Overview{}, errors.New("analytics is not available")
	}
	overview, err := s.analytics.Overview(ctx, input.UserID)
	if err != nil {
		return analytics.Overview{}, err
	}
	return *overview, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio")
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	s.logger.Info("serving MCP on http", "addr", addr)
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
