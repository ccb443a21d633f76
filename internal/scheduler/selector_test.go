package scheduler

import (
	"testing"

	"carebot/internal/store"
)

func TestSelectTaskForReminderEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(Config{}, 1)
	if got := env.svc.SelectTaskForReminder(nil); got != nil {
		t.Fatalf("empty candidate set: got %v, want nil", got)
	}
	// All-completed input behaves like an empty set.
	done := store.Task{ID: "t1", UserID: "u1", Completed: true}
	if got := env.svc.SelectTaskForReminder([]store.Task{done}); got != nil {
		t.Fatalf("completed-only candidates: got %v, want nil", got)
	}
}

func TestSelectTaskForReminderSingle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(Config{}, 1)
	only := store.Task{ID: "t1", UserID: "u1", Priority: store.PriorityLow}
	got := env.svc.SelectTaskForReminder([]store.Task{only})
	if got == nil || got.ID != "t1" {
		t.Fatalf("single candidate: got %v, want t1", got)
	}
}

func TestSelectTaskForReminderDeterministicUnderSeed(t *testing.T) {
	t.Parallel()
	tasks := []store.Task{
		{ID: "a", Priority: store.PriorityLow},
		{ID: "b", Priority: store.PriorityMedium},
		{ID: "c", Priority: store.PriorityHigh},
		{ID: "d", Priority: store.PriorityUrgent},
	}

	draw := func(seed int64, n int) []string {
		env := newTestEnv(Config{}, seed)
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, env.svc.SelectTaskForReminder(tasks).ID)
		}
		return out
	}

	first := draw(42, 20)
	second := draw(42, 20)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("draw %d differs under same seed: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestPriorityWeightsStrictlyOrdered(t *testing.T) {
	t.Parallel()
	order := []store.Priority{store.PriorityLow, store.PriorityMedium, store.PriorityHigh, store.PriorityUrgent}
	for i := 1; i < len(order); i++ {
		lo, hi := priorityWeight(order[i-1]), priorityWeight(order[i])
		if hi <= lo {
			t.Fatalf("weight(%v)=%v not above weight(%v)=%v", order[i], hi, order[i-1], lo)
		}
	}
}

func TestDueWeightMonotonic(t *testing.T) {
	t.Parallel()
	mk := func(due string) store.Task { return store.Task{ID: "t", DueDate: due} }

	wNone := dueWeight(testNow, mk(""))
	wSoon := dueWeight(testNow, mk("2026-02-23"))  // tomorrow
	wLater := dueWeight(testNow, mk("2026-03-24")) // ~30 days
	wPast := dueWeight(testNow, mk("2026-02-01"))  // overdue

	if wNone != 1 {
		t.Fatalf("no due date weight = %v, want neutral 1", wNone)
	}
	if !(wSoon > wLater && wLater > wNone) {
		t.Fatalf("due weights not monotonic: soon=%v later=%v none=%v", wSoon, wLater, wNone)
	}
	if wPast < wSoon {
		t.Fatalf("overdue weight %v below due-tomorrow %v", wPast, wSoon)
	}
}

func TestWeightsPositiveAndComputed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(Config{}, 1)
	tasks := []store.Task{
		{ID: "a", Priority: store.PriorityLow, DueDate: "2026-06-01"},
		{ID: "b", Priority: store.PriorityUrgent},
		{ID: "done", Completed: true},
	}
	cands := env.svc.computeWeights(testNow, tasks)
	if len(cands) != 2 {
		t.Fatalf("computeWeights kept %d candidates, want 2 (completed excluded)", len(cands))
	}
	total := 0.0
	for _, c := range cands {
		if c.Weight <= 0 {
			t.Fatalf("weight for %s = %v, want > 0", c.Task.ID, c.Weight)
		}
		total += c.Weight
	}
	if total <= 0 {
		t.Fatalf("total weight = %v, want positive", total)
	}
}

// Task A (high priority, due tomorrow) must win a clear majority of draws
// against task B (low priority, due in 30 days).
func TestSelectionDistributionFavorsUrgentWork(t *testing.T) {
	t.Parallel()
	env := newTestEnv(Config{}, 7)
	a := store.Task{ID: "a", Priority: store.PriorityHigh, DueDate: "2026-02-23"}
	b := store.Task{ID: "b", Priority: store.PriorityLow, DueDate: "2026-03-24"}

	const draws = 10000
	hitsA := 0
	for i := 0; i < draws; i++ {
		if env.svc.SelectTaskForReminder([]store.Task{a, b}).ID == "a" {
			hitsA++
		}
	}
	if hitsA < draws*85/100 {
		t.Fatalf("task A selected %d/%d times, want > 85%%", hitsA, draws)
	}
	if hitsA == draws {
		t.Fatalf("task B never selected in %d draws; weighting degenerated to deterministic", draws)
	}
}
