package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carebot/internal/clock"
	"carebot/internal/store"
	logx "carebot/pkg/logx"
)

// testNow is the pinned "now" used across scheduler tests: a Sunday morning.
var testNow = time.Date(2026, 2, 22, 7, 0, 0, 0, time.UTC)

type fakeTasks struct {
	mu      sync.Mutex
	tasks   map[string]store.Task
	listErr error // returned by ListIncompleteTasks when set
}

func newFakeTasks(ts ...store.Task) *fakeTasks {
	f := &fakeTasks{tasks: map[string]store.Task{}}
	for _, t := range ts {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTasks) GetTask(_ context.Context, id string) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return store.Task{}, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	return t, nil
}

func (f *fakeTasks) ListIncompleteTasks(_ context.Context, userID string) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []store.Task
	for _, t := range f.tasks {
		if t.UserID == userID && !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) complete(id string) {
	f.mu.Lock()
	t := f.tasks[id]
	t.Completed = true
	f.tasks[id] = t
	f.mu.Unlock()
}

func (f *fakeTasks) remove(id string) {
	f.mu.Lock()
	delete(f.tasks, id)
	f.mu.Unlock()
}

type fakeSchedules struct {
	periods map[string][]store.TimePeriod // "user|category"
	tz      map[string]string
}

func newFakeSchedules() *fakeSchedules {
	return &fakeSchedules{periods: map[string][]store.TimePeriod{}, tz: map[string]string{}}
}

func (f *fakeSchedules) set(userID, category string, ps ...store.TimePeriod) {
	f.periods[userID+"|"+category] = ps
}

func (f *fakeSchedules) GetTimePeriods(_ context.Context, userID, category string) ([]store.TimePeriod, error) {
	return f.periods[userID+"|"+category], nil
}

func (f *fakeSchedules) GetTimezone(_ context.Context, userID string) (string, error) {
	return f.tz[userID], nil
}

type fakeUsers struct{ users []store.User }

func (f *fakeUsers) ListUsers(context.Context) ([]store.User, error) {
	return f.users, nil
}

type fakeDispatch struct {
	mu       sync.Mutex
	sent     []Delivery
	failNext int // fail this many calls before succeeding
	attempts int
}

func (f *fakeDispatch) Send(_ context.Context, d Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failNext > 0 {
		f.failNext--
		return fmt.Errorf("gateway unavailable")
	}
	f.sent = append(f.sent, d)
	return nil
}

func (f *fakeDispatch) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	svc    *Service
	clk    *clock.Fake
	tasks  *fakeTasks
	scheds *fakeSchedules
	users  *fakeUsers
	disp   *fakeDispatch
}

func newTestEnv(cfg Config, seed int64) *testEnv {
	env := &testEnv{
		clk:    clock.NewFake(testNow),
		tasks:  newFakeTasks(),
		scheds: newFakeSchedules(),
		users:  &fakeUsers{},
		disp:   &fakeDispatch{},
	}
	cfg.Enabled = true
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	env.svc = New(cfg, Deps{
		Tasks:     env.tasks,
		Schedules: env.scheds,
		Users:     env.users,
		Dispatch:  env.disp,
		Clock:     env.clk,
		RNG:       clock.NewRand(seed),
	}, logx.Nop(), nil)
	// Pin the fallback timezone so tests are independent of the host's
	// local zone; Start would normally set this from the config.
	env.svc.loc = time.UTC
	return env
}
