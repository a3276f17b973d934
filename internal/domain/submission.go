package domain

import (
	"time"

	"github.com/google/uuid"
)

// Verdict labels produced by grading
const (
	VerdictAccepted = "Accepted"
	VerdictFailed   = "Failed"
)

// StatusAccepted is the judge's label for a passing run. Judge labels are an
// external vocabulary and are kept verbatim.
const StatusAccepted = "Accepted"

// TestCase is one stdin/expected-stdout pair
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"hidden,omitempty"`
}

// CaseResult describes a failing test case
type CaseResult struct {
	Index    int    `json:"index"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Status   string `json:"status"`
	Stderr   string `json:"stderr,omitempty"`
	Compile  string `json:"compile_output,omitempty"`
}

// GradingResult aggregates all case results of one submission
type GradingResult struct {
	SubmissionID uuid.UUID    `json:"submission_id"`
	Passed       int          `json:"passed"`
	Total        int          `json:"total"`
	Verdict      string       `json:"verdict"`
	Failures     []CaseResult `json:"failures"`
}

// Accepted reports whether every case passed
func (r *GradingResult) Accepted() bool {
	return r.Verdict == VerdictAccepted
}

// SubmissionRecord is the persisted form of a graded submission
type SubmissionRecord struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	QuestionID string    `json:"question_id"`
	Topic      string    `json:"topic"`
	Language   string    `json:"language"`
	Code       string    `json:"code"`
	Verdict    string    `json:"verdict"`
	Passed     int       `json:"passed"`
	Total      int       `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewSubmissionRecord builds a record from a grading result
func NewSubmissionRecord(userID, questionID, topic, language, code string, result *GradingResult, now time.Time) *SubmissionRecord {
	return &SubmissionRecord{
		ID:         result.SubmissionID,
		UserID:     userID,
		QuestionID: questionID,
		Topic:      topic,
		Language:   language,
		Code:       code,
		Verdict:    result.Verdict,
		Passed:     result.Passed,
		Total:      result.Total,
		CreatedAt:  now,
	}
}
