package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// SlidingWindow is an in-process domain.RateLimiter. It keeps the admission
// times of the last limit calls per key.
type SlidingWindow struct {
	mu    sync.Mutex
	calls map[string][]time.Time
	now   func() time.Time
}

// NewSlidingWindow returns an empty in-process window.
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{calls: make(map[string][]time.Time), now: time.Now}
}

// Allow admits and records one call when fewer than limit calls were admitted
// for key during the trailing window.
func (w *SlidingWindow) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-window)
	kept := w.calls[key][:0]
	for _, t := range w.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) < limit {
		w.calls[key] = append(kept, now)
		return true, 0, nil
	}
	w.calls[key] = kept
	retry := kept[0].Add(window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return false, retry, nil
}

var _ domain.RateLimiter = (*SlidingWindow)(nil)
