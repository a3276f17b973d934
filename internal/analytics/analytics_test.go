package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/domain"
)

type fakeProgress map[string][]*domain.ProgressCounter

func (f fakeProgress) ListByUser(_ context.Context, userID string) ([]*domain.ProgressCounter, error) {
	return f[userID], nil
}

type fakeSubmissions struct {
	recs []*domain.SubmissionRecord
	err  error
}

func (f *fakeSubmissions) ListRecent(_ context.Context, _ string, limit int) ([]*domain.SubmissionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.recs) > limit {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

type fakeEvents map[string]int

func (f fakeEvents) CountByType(context.Context, time.Time) (map[string]int, error) {
	return f, nil
}

func counter(topic string, attempts, solved, streak int, solvedIDs ...string) *domain.ProgressCounter {
	c := domain.NewProgressCounter("u1", topic)
	c.Attempts = attempts
	c.Solved = solved
	c.Streak = streak
	c.Accuracy = domain.ComputeAccuracy(solved, attempts)
	c.SolvedProblems = append(c.SolvedProblems, solvedIDs...)
	return c
}

func TestService_Overview(t *testing.T) {
	t1 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)

	arrays := counter("arrays", 10, 8, 8, "a1", "a2")
	arrays.LastSolvedAt = &t1
	graphs := counter("graphs", 4, 1, 1, "g1")
	graphs.LastSolvedAt = &t2

	svc := NewService(fakeProgress{"u1": {arrays, graphs, counter("dp", 1, 0, 0)}}, &fakeSubmissions{}, nil)

	o, err := svc.Overview(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if o.TotalAttempts != 15 || o.TotalSolved != 9 {
		t.Errorf("totals = %d/%d; want 15/9", o.TotalAttempts, o.TotalSolved)
	}
	if o.Accuracy != 60 {
		t.Errorf("Accuracy = %d; want 60", o.Accuracy)
	}
	if o.BestStreak != 8 {
		t.Errorf("BestStreak = %d; want 8", o.BestStreak)
	}
	if o.TopicsPracticed != 3 || o.UniqueSolved != 3 {
		t.Errorf("TopicsPracticed = %d, UniqueSolved = %d", o.TopicsPracticed, o.UniqueSolved)
	}
	if o.LastSolvedAt == nil || !o.LastSolvedAt.Equal(t2) {
		t.Errorf("LastSolvedAt = %v; want %v", o.LastSolvedAt, t2)
	}
	if o.TopTopics[0].Topic != "arrays" {
		t.Errorf("TopTopics[0] = %s; want arrays", o.TopTopics[0].Topic)
	}
}

func TestService_Overview_UnknownUser(t *testing.T) {
	svc := NewService(fakeProgress{}, &fakeSubmissions{}, nil)

	_, err := svc.Overview(context.Background(), "ghost")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Overview() error = %v; want ErrUnknownUser", err)
	}
}

func TestService_Overview_TopTopicsCapped(t *testing.T) {
	var cs []*domain.ProgressCounter
	for i, topic := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		cs = append(cs, counter(topic, i+1, 0, 0))
	}
	svc := NewService(fakeProgress{"u1": cs}, &fakeSubmissions{}, nil)

	o, err := svc.Overview(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if len(o.TopTopics) != 5 {
		t.Fatalf("TopTopics len = %d; want 5", len(o.TopTopics))
	}
	if o.TopTopics[0].Topic != "g" {
		t.Errorf("TopTopics[0] = %s; want g", o.TopTopics[0].Topic)
	}
}

func TestDetermineTrend(t *testing.T) {
	tests := []struct {
		name             string
		attempts, solved int
		want             string
	}{
		{"no attempts", 0, 0, TrendNew},
		{"two attempts", 2, 0, TrendNew},
		{"strong", 10, 7, TrendStrong},
		{"steady", 10, 4, TrendSteady},
		{"struggling", 10, 3, TrendStruggling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := determineTrend(counter("x", tt.attempts, tt.solved, 0)); got != tt.want {
				t.Errorf("determineTrend() = %s; want %s", got, tt.want)
			}
		})
	}
}

func TestService_TopicBreakdown(t *testing.T) {
	svc := NewService(fakeProgress{"u1": {counter("trees", 5, 5, 5), counter("arrays", 1, 0, 0)}}, &fakeSubmissions{}, nil)

	topics, err := svc.TopicBreakdown(context.Background(), "u1")
	if err != nil {
		t.Fatalf("TopicBreakdown() error = %v", err)
	}
	if len(topics) != 2 || topics[0].Topic != "arrays" {
		t.Fatalf("TopicBreakdown() = %+v", topics)
	}
	if topics[1].Trend != TrendStrong {
		t.Errorf("trees trend = %s; want strong", topics[1].Trend)
	}
}

func TestService_RecentSubmissionsAndProgression(t *testing.T) {
	day1 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	recs := []*domain.SubmissionRecord{
		{ID: uuid.New(), CreatedAt: day2, Verdict: domain.VerdictAccepted},
		{ID: uuid.New(), CreatedAt: day1.Add(time.Hour), Verdict: domain.VerdictFailed},
		{ID: uuid.New(), CreatedAt: day1, Verdict: domain.VerdictAccepted},
	}
	svc := NewService(fakeProgress{}, &fakeSubmissions{recs: recs}, nil)
	ctx := context.Background()

	got, err := svc.RecentSubmissions(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("RecentSubmissions() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("RecentSubmissions() len = %d; want 2", len(got))
	}

	points, err := svc.Progression(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Progression() error = %v", err)
	}
	want := []ProgressPoint{
		{Date: "2026-04-01", Attempts: 2, Accepted: 1},
		{Date: "2026-04-02", Attempts: 1, Accepted: 1},
	}
	if len(points) != len(want) {
		t.Fatalf("Progression() = %+v", points)
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("points[%d] = %+v; want %+v", i, points[i], want[i])
		}
	}
}

func TestService_RecentSubmissions_Empty(t *testing.T) {
	svc := NewService(fakeProgress{}, &fakeSubmissions{}, nil)

	got, err := svc.RecentSubmissions(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("RecentSubmissions() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("RecentSubmissions() = %v; want empty slice", got)
	}
}

func TestService_Activity(t *testing.T) {
	svc := NewService(fakeProgress{}, &fakeSubmissions{}, fakeEvents{"submission_graded": 4})

	counts, err := svc.Activity(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Activity() error = %v", err)
	}
	if counts["submission_graded"] != 4 {
		t.Errorf("Activity() = %v", counts)
	}

	empty, err := NewService(fakeProgress{}, &fakeSubmissions{}, nil).Activity(context.Background(), time.Time{})
	if err != nil || len(empty) != 0 {
		t.Errorf("Activity() without events = %v, %v", empty, err)
	}
}
