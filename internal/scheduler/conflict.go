package scheduler

import "time"

// ConflictWindow is the minimal separation below which two jobs for the same
// user count as duplicates. It matches the minute granularity jobs are
// scheduled at.
const ConflictWindow = time.Minute

// IsTimeConflict reports whether any existing job for the user fires within
// ConflictWindow of candidate. Every time value is canonicalized to UTC at
// this boundary, so callers may pass times in any location.
func (s *Service) IsTimeConflict(userID string, candidate time.Time) bool {
	c := candidate.UTC()
	for _, j := range s.jobs.List(func(j Job) bool { return j.UserID == userID }) {
		if withinConflictWindow(j.FireTime, c) {
			return true
		}
	}
	return false
}

func withinConflictWindow(a, b time.Time) bool {
	d := a.UTC().Sub(b.UTC())
	if d < 0 {
		d = -d
	}
	return d <= ConflictWindow
}
