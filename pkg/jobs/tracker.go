package jobs

import "sync"

// InflightTracker remembers which job sequences are queued or running so
// recovery sweeps do not dispatch them twice.
type InflightTracker struct {
	mu   sync.RWMutex
	jobs map[uint64]struct{}
}

func NewInflightTracker() *InflightTracker {
	return &InflightTracker{jobs: make(map[uint64]struct{})}
}

// Add starts tracking seq. It returns false if seq is already tracked.
func (t *InflightTracker) Add(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[seq]; ok {
		return false
	}
	t.jobs[seq] = struct{}{}
	return true
}

func (t *InflightTracker) Remove(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, seq)
}

func (t *InflightTracker) IsInflight(seq uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.jobs[seq]
	return ok
}

func (t *InflightTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}
