package backfill

import (
	"slices"
	"sync"
)

// FailureTracker counts write failures per record for a single run and
// dead-letters a record once it has failed maxFailures times.
// Dead-lettered ids are excluded from later fetches, so a record whose write
// can never succeed cannot keep the loop alive forever.
type FailureTracker struct {
	mu           sync.Mutex
	maxFailures  int
	failures     map[int64]int
	deadLettered map[int64]struct{}
}

// NewFailureTracker returns a tracker; maxFailures below 1 is treated as 1.
func NewFailureTracker(maxFailures int) *FailureTracker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &FailureTracker{
		maxFailures:  maxFailures,
		failures:     make(map[int64]int),
		deadLettered: make(map[int64]struct{}),
	}
}

// RecordFailure counts one failed write for id and reports whether this
// failure dead-lettered it.
func (t *FailureTracker) RecordFailure(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.deadLettered[id]; ok {
		return false
	}
	t.failures[id]++
	if t.failures[id] >= t.maxFailures {
		t.deadLettered[id] = struct{}{}
		return true
	}
	return false
}

// Failures returns the failure count for id.
func (t *FailureTracker) Failures(id int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures[id]
}

// Excluded returns the dead-lettered ids in ascending order, or nil.
func (t *FailureTracker) Excluded() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.deadLettered) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(t.deadLettered))
	for id := range t.deadLettered {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
