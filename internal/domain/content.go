package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentKind identifies a kind of generated content
type ContentKind string

const (
	ContentRoadmap ContentKind = "roadmap"
	ContentQuiz    ContentKind = "quiz"
	ContentProblem ContentKind = "problem"
)

// IsValid checks if the kind is known
func (k ContentKind) IsValid() bool {
	switch k {
	case ContentRoadmap, ContentQuiz, ContentProblem:
		return true
	default:
		return false
	}
}

// ParseContentKind converts a string to a ContentKind
func ParseContentKind(s string) (ContentKind, error) {
	k := ContentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: unknown content kind %q", ErrInvalidInput, s)
	}
	return k, nil
}

// ContentRecord is a generated document as stored
type ContentRecord struct {
	ID        uuid.UUID       `json:"id"`
	Kind      ContentKind     `json:"kind"`
	Topic     string          `json:"topic"`
	CacheKey  string          `json:"cache_key"`
	Provider  string          `json:"provider,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Roadmap is an ordered learning path for a topic
type Roadmap struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Level       string        `json:"level"`
	Steps       []RoadmapStep `json:"steps"`
}

// RoadmapStep is one stage of a roadmap
type RoadmapStep struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Topics        []string `json:"topics"`
	EstimatedDays int      `json:"estimated_days"`
	Resources     []string `json:"resources,omitempty"`
}

// Validate runs the field checks a caller relies on
func (r *Roadmap) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: roadmap title is empty", ErrInvalidContent)
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: roadmap has no steps", ErrInvalidContent)
	}
	for i, step := range r.Steps {
		if strings.TrimSpace(step.Title) == "" {
			return fmt.Errorf("%w: roadmap step %d has no title", ErrInvalidContent, i)
		}
	}
	return nil
}

// Quiz is a set of multiple-choice questions
type Quiz struct {
	Title     string         `json:"title"`
	Topic     string         `json:"topic"`
	Questions []QuizQuestion `json:"questions"`
}

// QuizQuestion is one multiple-choice question
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

// Validate runs the field checks a caller relies on
func (q *Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz has no questions", ErrInvalidContent)
	}
	for i, question := range q.Questions {
		if strings.TrimSpace(question.Question) == "" {
			return fmt.Errorf("%w: quiz question %d is empty", ErrInvalidContent, i)
		}
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: quiz question %d has fewer than two options", ErrInvalidContent, i)
		}
		if question.AnswerIndex < 0 || question.AnswerIndex >= len(question.Options) {
			return fmt.Errorf("%w: quiz question %d answer index %d out of range", ErrInvalidContent, i, question.AnswerIndex)
		}
	}
	return nil
}

// Problem is a coding exercise with judge test cases
type Problem struct {
	Title       string            `json:"title"`
	Difficulty  string            `json:"difficulty"`
	Statement   string            `json:"statement"`
	Constraints []string          `json:"constraints,omitempty"`
	Examples    []TestCase        `json:"examples,omitempty"`
	TestCases   []TestCase        `json:"test_cases"`
	Drivers     map[string]string `json:"drivers,omitempty"` // language -> driver snippet
}

// Validate runs the field checks a caller relies on
func (p *Problem) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: problem title is empty", ErrInvalidContent)
	}
	if strings.TrimSpace(p.Statement) == "" {
		return fmt.Errorf("%w: problem statement is empty", ErrInvalidContent)
	}
	if len(p.TestCases) == 0 {
		return fmt.Errorf("%w: problem has no test cases", ErrInvalidContent)
	}
	return nil
}
