package scheduler

import (
	"time"

	"carebot/internal/store"
)

// Priority weights are strictly ordered so a tier always outweighs the one
// below it. The exact ratios are a tuning choice.
var priorityWeights = map[store.Priority]float64{
	store.PriorityLow:    1,
	store.PriorityMedium: 2,
	store.PriorityHigh:   4,
	store.PriorityUrgent: 8,
}

// dueBoost scales how hard an approaching due date pulls a task forward.
// Due tomorrow: 1 + 6/2 = 4x. Due in 30 days: ~1.2x. No due date: 1x.
const dueBoost = 6.0

// WeightedCandidate is the ephemeral per-selection weight for one task.
type WeightedCandidate struct {
	Task   store.Task
	Weight float64
}

// SelectTaskForReminder draws one incomplete task for a reminder slot.
//
// Zero candidates returns nil (a normal outcome, not an error). One candidate
// is returned deterministically, though its weight is still computed so tests
// can observe it. Otherwise the draw is weighted random on the injected RNG:
// same seed, same pick.
func (s *Service) SelectTaskForReminder(tasks []store.Task) *store.Task {
	cands := s.computeWeights(s.clk.Now(), tasks)
	if len(cands) == 0 {
		return nil
	}
	if len(cands) == 1 {
		t := cands[0].Task
		return &t
	}

	total := 0.0
	for _, c := range cands {
		total += c.Weight
	}

	s.rngMu.Lock()
	r := s.rng.Float64() * total
	s.rngMu.Unlock()

	for _, c := range cands {
		r -= c.Weight
		if r < 0 {
			t := c.Task
			return &t
		}
	}
	// Float accumulation can leave r at a hair above zero; the last candidate
	// takes the remainder.
	t := cands[len(cands)-1].Task
	return &t
}

// computeWeights builds the candidate set. Completed tasks are excluded;
// every weight is positive, so a non-empty set always sums positive.
func (s *Service) computeWeights(now time.Time, tasks []store.Task) []WeightedCandidate {
	out := make([]WeightedCandidate, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		out = append(out, WeightedCandidate{
			Task:   t,
			Weight: priorityWeight(t.Priority) * dueWeight(now, t),
		})
	}
	return out
}

func priorityWeight(p store.Priority) float64 {
	if w, ok := priorityWeights[p]; ok {
		return w
	}
	return priorityWeights[store.PriorityMedium]
}

// dueWeight decreases monotonically in days-until-due. Tasks without a due
// date (or with an unparseable one) get the neutral weight 1.
func dueWeight(now time.Time, t store.Task) float64 {
	if t.DueDate == "" {
		return 1
	}
	due, err := store.ParseDate(t.DueDate, time.UTC)
	if err != nil {
		return 1
	}
	if t.DueTime != "" {
		if h, m, herr := store.ParseHHMM(t.DueTime); herr == nil {
			due = due.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
		}
	}

	days := due.Sub(now.UTC()).Hours() / 24
	if days < 0 {
		days = 0 // overdue caps at the maximum boost
	}
	return 1 + dueBoost/(days+1)
}
