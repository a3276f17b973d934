package daemon

import (
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillforge/internal/queue"
)

// JobTracker remembers queued submission jobs until their outcome arrives
type JobTracker interface {
	Track(jobID uuid.UUID)
	// Lookup reports whether the job is known and, once graded, its outcome
	Lookup(jobID uuid.UUID) (*queue.GradingOutcome, bool)
}

type outcomeSubscriber interface {
	Subscribe(jobID string, handler queue.OutcomeHandler)
	Unsubscribe(jobID string)
}

// resultTracker keeps outcomes delivered by a result consumer. Finished
// jobs beyond max are forgotten oldest first.
type resultTracker struct {
	results outcomeSubscriber
	max     int

	mu       sync.Mutex
	jobs     map[uuid.UUID]*queue.GradingOutcome
	finished []uuid.UUID
}

func newResultTracker(results outcomeSubscriber, max int) *resultTracker {
	if max <= 0 {
		max = 1000
	}
	return &resultTracker{
		results: results,
		max:     max,
		jobs:    make(map[uuid.UUID]*queue.GradingOutcome),
	}
}

func (t *resultTracker) Track(jobID uuid.UUID) {
	t.mu.Lock()
	t.jobs[jobID] = nil
	t.mu.Unlock()

	t.results.Subscribe(jobID.String(), func(out *queue.GradingOutcome) {
		t.complete(jobID, out)
		t.results.Unsubscribe(jobID.String())
	})
}

func (t *resultTracker) complete(jobID uuid.UUID, out *queue.GradingOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.jobs[jobID] = out
	t.finished = append(t.finished, jobID)
	for len(t.finished) > t.max {
		delete(t.jobs, t.finished[0])
		t.finished = t.finished[1:]
	}
}

func (t *resultTracker) Lookup(jobID uuid.UUID) (*queue.GradingOutcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out, ok := t.jobs[jobID]
	return out, ok
}
