package content

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

const (
	defaultQuizQuestions = 5
	maxQuizQuestions     = 20
)

var (
	levels       = []string{"beginner", "intermediate", "advanced"}
	difficulties = []string{"easy", "medium", "hard"}
)

// RoadmapRequest asks for a learning path
type RoadmapRequest struct {
	Topic string `json:"topic"`
	Level string `json:"level"`
}

func (r *RoadmapRequest) normalize() error {
	r.Topic = normalizeText(r.Topic)
	if r.Topic == "" {
		return fmt.Errorf("%w: topic is required", domain.ErrInvalidInput)
	}
	level, err := pick(r.Level, levels, "beginner", "level")
	if err != nil {
		return err
	}
	r.Level = level
	return nil
}

func (r RoadmapRequest) cacheKey() string {
	return "roadmap:" + r.Topic + ":" + r.Level
}

// QuizRequest asks for a multiple-choice quiz
type QuizRequest struct {
	Topic      string `json:"topic"`
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
}

func (r *QuizRequest) normalize() error {
	r.Topic = normalizeText(r.Topic)
	if r.Topic == "" {
		return fmt.Errorf("%w: topic is required", domain.ErrInvalidInput)
	}
	switch {
	case r.Count <= 0:
		r.Count = defaultQuizQuestions
	case r.Count > maxQuizQuestions:
		r.Count = maxQuizQuestions
	}
	d, err := pick(r.Difficulty, difficulties, "medium", "difficulty")
	if err != nil {
		return err
	}
	r.Difficulty = d
	return nil
}

func (r QuizRequest) cacheKey() string {
	return fmt.Sprintf("quiz:%s:%s:%d", r.Topic, r.Difficulty, r.Count)
}

// ProblemRequest asks for a coding problem
type ProblemRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

func (r *ProblemRequest) normalize() error {
	r.Topic = normalizeText(r.Topic)
	if r.Topic == "" {
		return fmt.Errorf("%w: topic is required", domain.ErrInvalidInput)
	}
	d, err := pick(r.Difficulty, difficulties, "easy", "difficulty")
	if err != nil {
		return err
	}
	r.Difficulty = d
	return nil
}

func (r ProblemRequest) cacheKey() string {
	return "problem:" + r.Topic + ":" + r.Difficulty
}

// normalizeText lowercases, trims and collapses inner whitespace
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func pick(value string, allowed []string, fallback, field string) (string, error) {
	v := normalizeText(value)
	if v == "" {
		return fallback, nil
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s must be one of %s", domain.ErrInvalidInput, field, strings.Join(allowed, ", "))
}

func roadmapPrompt(r RoadmapRequest) string {
	return fmt.Sprintf(`Create a learning roadmap for %q aimed at a %s learner.

Return a JSON object with exactly these fields:
{
  "title": string,
  "description": string,
  "level": %q,
  "steps": [
    {"title": string, "description": string, "topics": [string], "estimated_days": integer, "resources": [string]}
  ]
}

Use between 5 and 10 steps ordered from first to last.`, r.Topic, r.Level, r.Level)
}

func quizPrompt(r QuizRequest) string {
	return fmt.Sprintf(`Write a %s multiple-choice quiz about %q with exactly %d questions.

Return a JSON object with exactly these fields:
{
  "title": string,
  "topic": %q,
  "questions": [
    {"question": string, "options": [string, string, string, string], "answer_index": integer, "explanation": string}
  ]
}

answer_index is the zero-based index of the correct option.`, r.Difficulty, r.Topic, r.Count, r.Topic)
}

func problemPrompt(r ProblemRequest) string {
	return fmt.Sprintf(`Write a %s competitive programming problem about %q.
Programs read from standard input and write to standard output.

Return a JSON object with exactly these fields:
{
  "title": string,
  "difficulty": %q,
  "statement": string,
  "constraints": [string],
  "examples": [{"input": string, "expected_output": string}],
  "test_cases": [{"input": string, "expected_output": string, "hidden": boolean}]
}

Provide at least 5 test cases including edge cases. Inputs and outputs are the
exact text fed to and expected from the program.`, r.Difficulty, r.Topic, r.Difficulty)
}
