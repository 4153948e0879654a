package repository

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryHoldIndex is the in-process fallback for the hold expiry index.
type MemoryHoldIndex struct {
	mu    sync.Mutex
	holds map[int64]time.Time
}

func NewMemoryHoldIndex() *MemoryHoldIndex {
	return &MemoryHoldIndex{holds: make(map[int64]time.Time)}
}

func (r *MemoryHoldIndex) Track(ctx context.Context, bookingID int64, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holds[bookingID] = expiresAt
	return nil
}

func (r *MemoryHoldIndex) Forget(ctx context.Context, bookingID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.holds, bookingID)
	return nil
}

func (r *MemoryHoldIndex) Due(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []int64
	for id, expiresAt := range r.holds {
		if !expiresAt.After(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
