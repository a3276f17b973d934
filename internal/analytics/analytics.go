// Package analytics derives learner statistics from stored progress counters
// and graded submissions.
package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

// Topic trends
const (
	TrendNew        = "new"
	TrendStrong     = "strong"
	TrendSteady     = "steady"
	TrendStruggling = "struggling"
)

// ErrUnknownUser is returned when a user has no recorded progress
var ErrUnknownUser = errors.New("no progress recorded for user")

// ProgressReader lists a user's topic counters
type ProgressReader interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.ProgressCounter, error)
}

// SubmissionReader lists a user's graded submissions, newest first
type SubmissionReader interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]*domain.SubmissionRecord, error)
}

// EventCounter counts activity events by type
type EventCounter interface {
	CountByType(ctx context.Context, since time.Time) (map[string]int, error)
}

// Overview provides aggregate statistics for a user
type Overview struct {
	UserID          string      `json:"user_id"`
	TotalAttempts   int         `json:"total_attempts"`
	TotalSolved     int         `json:"total_solved"`
	Accuracy        int         `json:"accuracy"`
	BestStreak      int         `json:"best_streak"`
	TopicsPracticed int         `json:"topics_practiced"`
	UniqueSolved    int         `json:"unique_solved"`
	LastSolvedAt    *time.Time  `json:"last_solved_at,omitempty"`
	TopTopics       []TopicStat `json:"top_topics"`
}

// TopicStat represents statistics for a single topic
type TopicStat struct {
	Topic        string     `json:"topic"`
	Attempts     int        `json:"attempts"`
	Solved       int        `json:"solved"`
	Accuracy     int        `json:"accuracy"`
	Streak       int        `json:"streak"`
	UniqueSolved int        `json:"unique_solved"`
	LastSolvedAt *time.Time `json:"last_solved_at,omitempty"`
	Trend        string     `json:"trend"`
}

// ProgressPoint is one day of submission activity
type ProgressPoint struct {
	Date     string `json:"date"`
	Attempts int    `json:"attempts"`
	Accepted int    `json:"accepted"`
}

// Service computes analytics views
type Service struct {
	progress    ProgressReader
	submissions SubmissionReader
	events      EventCounter
	topN        int
}

// NewService creates an analytics service. events may be nil.
func NewService(progress ProgressReader, submissions SubmissionReader, events EventCounter) *Service {
	return &Service{
		progress:    progress,
		submissions: submissions,
		events:      events,
		topN:        5,
	}
}

// Overview returns totals across every topic of a user
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	counters, err := s.progress.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return nil, ErrUnknownUser
	}

	o := &Overview{
		UserID:          userID,
		TopicsPracticed: len(counters),
	}
	for _, c := range counters {
		o.TotalAttempts += c.Attempts
		o.TotalSolved += c.Solved
		o.UniqueSolved += len(c.SolvedProblems)
		o.BestStreak = max(o.BestStreak, c.Streak)
		if c.LastSolvedAt != nil && (o.LastSolvedAt == nil || c.LastSolvedAt.After(*o.LastSolvedAt)) {
			t := *c.LastSolvedAt
			o.LastSolvedAt = &t
		}
	}
	o.Accuracy = domain.ComputeAccuracy(o.TotalSolved, o.TotalAttempts)

	topics := topicStats(counters)
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].Attempts > topics[j].Attempts
	})
	if len(topics) > s.topN {
		topics = topics[:s.topN]
	}
	o.TopTopics = topics

	return o, nil
}

// TopicBreakdown returns per-topic statistics ordered by topic name
func (s *Service) TopicBreakdown(ctx context.Context, userID string) ([]TopicStat, error) {
	counters, err := s.progress.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return nil, ErrUnknownUser
	}

	topics := topicStats(counters)
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Topic < topics[j].Topic
	})
	return topics, nil
}

// RecentSubmissions returns the last n graded submissions of a user
func (s *Service) RecentSubmissions(ctx context.Context, userID string, n int) ([]*domain.SubmissionRecord, error) {
	if n <= 0 {
		n = 20
	}
	recs, err := s.submissions.ListRecent(ctx, userID, n)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*domain.SubmissionRecord{}
	}
	return recs, nil
}

// Progression groups the last n submissions by day, oldest day first
func (s *Service) Progression(ctx context.Context, userID string, n int) ([]ProgressPoint, error) {
	recs, err := s.RecentSubmissions(ctx, userID, n)
	if err != nil {
		return nil, err
	}
	return buildProgression(recs), nil
}

// Activity counts events by type since the given time
func (s *Service) Activity(ctx context.Context, since time.Time) (map[string]int, error) {
	if s.events == nil {
		return map[string]int{}, nil
	}
	return s.events.CountByType(ctx, since)
}

func topicStats(counters []*domain.ProgressCounter) []TopicStat {
	out := make([]TopicStat, 0, len(counters))
	for _, c := range counters {
		out = append(out, TopicStat{
			Topic:        c.Topic,
			Attempts:     c.Attempts,
			Solved:       c.Solved,
			Accuracy:     c.Accuracy,
			Streak:       c.Streak,
			UniqueSolved: len(c.SolvedProblems),
			LastSolvedAt: c.LastSolvedAt,
			Trend:        determineTrend(c),
		})
	}
	return out
}

// determineTrend labels a topic by volume and accuracy
func determineTrend(c *domain.ProgressCounter) string {
	if c.Attempts <= 2 {
		return TrendNew
	}
	switch {
	case c.Accuracy >= 70:
		return TrendStrong
	case c.Accuracy >= 40:
		return TrendSteady
	default:
		return TrendStruggling
	}
}

func buildProgression(recs []*domain.SubmissionRecord) []ProgressPoint {
	if len(recs) == 0 {
		return []ProgressPoint{}
	}

	byDay := make(map[string]*ProgressPoint)
	for _, r := range recs {
		day := r.CreatedAt.UTC().Format("2006-01-02")
		p, ok := byDay[day]
		if !ok {
			p = &ProgressPoint{Date: day}
			byDay[day] = p
		}
		p.Attempts++
		if r.Verdict == domain.VerdictAccepted {
			p.Accepted++
		}
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	points := make([]ProgressPoint, 0, len(days))
	for _, day := range days {
		points = append(points, *byDay[day])
	}

	// last 30 days
	if len(points) > 30 {
		points = points[len(points)-30:]
	}
	return points
}
