package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultRequestsPerMinute is the per-key admission ceiling
	DefaultRequestsPerMinute = 15

	// DefaultSaturationPoll is how long to wait when every key is at its ceiling
	DefaultSaturationPoll = 5 * time.Second

	// DefaultMaxAdmissionWait bounds the total time spent waiting for a free key
	DefaultMaxAdmissionWait = 60 * time.Second

	rateWindowSpan = time.Minute
)

// RateWindow is a sliding window of request timestamps for one key
type RateWindow struct {
	stamps []time.Time
}

// Prune drops every timestamp older than span relative to now
func (w *RateWindow) Prune(now time.Time, span time.Duration) {
	cutoff := now.Add(-span)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept
}

// Record adds a request timestamp
func (w *RateWindow) Record(ts time.Time) {
	w.stamps = append(w.stamps, ts)
}

// Count returns the number of timestamps currently held
func (w *RateWindow) Count() int {
	return len(w.stamps)
}

// KeyPoolConfig holds admission settings for a KeyPool
type KeyPoolConfig struct {
	RequestsPerMinute int
	SaturationPoll    time.Duration
	MaxAdmissionWait  time.Duration
	Logger            *slog.Logger

	// Now and Sleep are replaceable for tests
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// KeyPool rotates over a fixed set of API keys and enforces a
// requests-per-minute ceiling per key. Keys never change after construction;
// the cursor and windows are guarded by mu.
type KeyPool struct {
	keys []string

	mu      sync.Mutex
	cursor  int
	windows []*RateWindow

	ceiling int
	poll    time.Duration
	maxWait time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
}

// NewKeyPool creates a pool over keys. Empty keys are skipped.
func NewKeyPool(keys []string, cfg KeyPoolConfig) *KeyPool {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.SaturationPoll <= 0 {
		cfg.SaturationPoll = DefaultSaturationPoll
	}
	if cfg.MaxAdmissionWait <= 0 {
		cfg.MaxAdmissionWait = DefaultMaxAdmissionWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			clean = append(clean, k)
		}
	}

	windows := make([]*RateWindow, len(clean))
	for i := range windows {
		windows[i] = &RateWindow{}
	}

	return &KeyPool{
		keys:    clean,
		windows: windows,
		ceiling: cfg.RequestsPerMinute,
		poll:    cfg.SaturationPoll,
		maxWait: cfg.MaxAdmissionWait,
		now:     cfg.Now,
		sleep:   cfg.Sleep,
		logger:  cfg.Logger,
	}
}

// Size returns the number of keys in the pool
func (p *KeyPool) Size() int {
	return len(p.keys)
}

// TryAcquire walks the pool from the cursor and admits the first key whose
// pruned window is below the ceiling. The admission is recorded and the
// cursor moves past the admitted key.
func (p *KeyPool) TryAcquire() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.keys)
	if n == 0 {
		return "", false
	}

	now := p.now()
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		w := p.windows[idx]
		w.Prune(now, rateWindowSpan)
		if w.Count() < p.ceiling {
			w.Record(now)
			p.cursor = (idx + 1) % n
			return p.keys[idx], true
		}
	}
	return "", false
}

// Acquire admits a key, waiting in SaturationPoll steps while every key is at
// its ceiling. It gives up with ErrRateLimited once MaxAdmissionWait is spent.
func (p *KeyPool) Acquire(ctx context.Context) (string, error) {
	if len(p.keys) == 0 {
		return "", ErrNotConfigured
	}

	var waited time.Duration
	for {
		if key, ok := p.TryAcquire(); ok {
			return key, nil
		}

		if waited+p.poll > p.maxWait {
			return "", fmt.Errorf("%w: all %d keys at %d requests/minute after waiting %s",
				ErrRateLimited, len(p.keys), p.ceiling, waited)
		}

		p.logger.Warn("all API keys at rate ceiling, waiting",
			"keys", len(p.keys),
			"ceiling", p.ceiling,
			"wait", p.poll,
			"waited", waited)

		if err := p.sleep(ctx, p.poll); err != nil {
			return "", err
		}
		waited += p.poll
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
