package domain

import (
	"math"
	"slices"
	"time"
)

// ProgressCounter tracks a user's submission history for one topic
type ProgressCounter struct {
	UserID         string     `json:"user_id"`
	Topic          string     `json:"topic"`
	Attempts       int        `json:"attempts"`
	Solved         int        `json:"solved"`
	Accuracy       int        `json:"accuracy"` // percent, round(solved/attempts*100)
	Streak         int        `json:"streak"`
	LastSolvedAt   *time.Time `json:"last_solved_at,omitempty"`
	SolvedProblems []string   `json:"solved_problems"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewProgressCounter returns an empty counter for a user and topic
func NewProgressCounter(userID, topic string) *ProgressCounter {
	return &ProgressCounter{
		UserID:         userID,
		Topic:          topic,
		SolvedProblems: []string{},
	}
}

// Apply records one graded attempt.
// Attempts always increments. An accepted attempt also bumps the solved count
// and streak, stamps LastSolvedAt and adds the question to the solved set if
// it is not there yet. Accuracy is recomputed after every attempt.
func (p *ProgressCounter) Apply(questionID string, accepted bool, now time.Time) {
	p.Attempts++

	if accepted {
		p.Solved++
		p.Streak++
		solvedAt := now
		p.LastSolvedAt = &solvedAt
		if !p.HasSolved(questionID) {
			p.SolvedProblems = append(p.SolvedProblems, questionID)
		}
	}

	p.Accuracy = ComputeAccuracy(p.Solved, p.Attempts)
	p.UpdatedAt = now
}

// HasSolved reports whether the question is in the solved set
func (p *ProgressCounter) HasSolved(questionID string) bool {
	return slices.Contains(p.SolvedProblems, questionID)
}

// ComputeAccuracy returns round(solved/attempts*100), or 0 with no attempts
func ComputeAccuracy(solved, attempts int) int {
	if attempts <= 0 {
		return 0
	}
	return int(math.Round(float64(solved) / float64(attempts) * 100))
}
