package repository

import (
	"context"
	"sync"
	"time"
)

type rateWindow struct {
	mu      sync.Mutex
	stamps  []time.Time
	next    int
	filled  int
	removed bool
}

// admit reports whether fewer than len(stamps) admissions fall inside the
// window ending at now, recording now when it does. The ring holds the most
// recent admissions, so the slot about to be overwritten is the oldest one.
func (w *rateWindow) admit(now time.Time, window time.Duration) bool {
	limit := len(w.stamps)
	if w.filled == limit && w.stamps[w.next].After(now.Add(-window)) {
		return false
	}
	w.stamps[w.next] = now
	w.next = (w.next + 1) % limit
	if w.filled < limit {
		w.filled++
	}
	return true
}

func (w *rateWindow) newest() time.Time {
	if w.filled == 0 {
		return time.Time{}
	}
	return w.stamps[(w.next-1+len(w.stamps))%len(w.stamps)]
}

// MemoryRateWindowRepository keeps per-origin sliding windows in memory. Each
// origin costs at most limit timestamps, and idle origins are removed by Sweep.
type MemoryRateWindowRepository struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*rateWindow
}

// NewMemoryRateWindowRepository constructs the backend.
func NewMemoryRateWindowRepository(limit int, window time.Duration) *MemoryRateWindowRepository {
	if limit <= 0 {
		limit = 1
	}
	return &MemoryRateWindowRepository{
		limit:   limit,
		window:  window,
		windows: make(map[string]*rateWindow),
	}
}

// Admit atomically checks and records one attempt for origin.
func (r *MemoryRateWindowRepository) Admit(ctx context.Context, origin string, now time.Time) (bool, error) {
	for {
		w := r.windowFor(origin)
		w.mu.Lock()
		if w.removed {
			w.mu.Unlock()
			continue
		}
		ok := w.admit(now, r.window)
		w.mu.Unlock()
		return ok, nil
	}
}

// Sweep drops origins whose newest admission left the window and returns how
// many were removed.
func (r *MemoryRateWindowRepository) Sweep(now time.Time) int {
	cutoff := now.Add(-r.window)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for origin, w := range r.windows {
		w.mu.Lock()
		if !w.newest().After(cutoff) {
			w.removed = true
			delete(r.windows, origin)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len reports how many origins are tracked.
func (r *MemoryRateWindowRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

func (r *MemoryRateWindowRepository) windowFor(origin string) *rateWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[origin]
	if !ok {
		w = &rateWindow{stamps: make([]time.Time, r.limit)}
		r.windows[origin] = w
	}
	return w
}
