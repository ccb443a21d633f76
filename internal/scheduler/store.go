package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Predicate selects jobs for Remove/List.
type Predicate func(Job) bool

// JobStore is the in-memory registry of scheduled jobs.
//
// Reads (List, NextFire, conflict checks) may run concurrently with each
// other; mutations are serialized by the store's lock. The scheduler
// additionally serializes all mutators behind its own guard, so the firing
// goroutine and manual triggers never interleave half-built job sets.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: map[string]Job{}}
}

// Add registers the job and returns its ID, assigning one when empty.
func (s *JobStore) Add(j Job) string {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
	return j.ID
}

// Remove deletes every job matching pred and returns the count removed.
func (s *JobStore) Remove(pred Predicate) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if pred(j) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// List returns matching jobs ordered by fire time (ties by ID, for
// deterministic iteration). A nil predicate matches everything.
func (s *JobStore) List(pred Predicate) []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if pred == nil || pred(j) {
			out = append(out, j)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if !out[i].FireTime.Equal(out[k].FireTime) {
			return out[i].FireTime.Before(out[k].FireTime)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	return j, ok
}

// Update applies fn to the stored job, if present.
func (s *JobStore) Update(id string, fn func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(&j)
	j.ID = id // the identity is not mutable
	s.jobs[id] = j
	return true
}

func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// NextFire returns the earliest fire time among the user's jobs.
func (s *JobStore) NextFire(userID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best time.Time
	found := false
	for _, j := range s.jobs {
		if j.UserID != userID {
			continue
		}
		if !found || j.FireTime.Before(best) {
			best = j.FireTime
			found = true
		}
	}
	return best, found
}

// NextFireAny returns the earliest fire time across all users.
func (s *JobStore) NextFireAny() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best time.Time
	found := false
	for _, j := range s.jobs {
		if !found || j.FireTime.Before(best) {
			best = j.FireTime
			found = true
		}
	}
	return best, found
}
