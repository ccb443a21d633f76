package scheduler

import (
	"testing"
	"time"
)

func TestIsTimeConflictWindow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(Config{}, 1)
	existing := testNow.Add(2 * time.Hour)
	env.svc.jobs.Add(Job{UserID: "u1", Kind: KindMessage, FireTime: existing})

	tests := []struct {
		name      string
		candidate time.Time
		want      bool
	}{
		{"exact match", existing, true},
		{"30s after", existing.Add(30 * time.Second), true},
		{"1m before", existing.Add(-time.Minute), true},
		{"1m after", existing.Add(time.Minute), true},
		{"90s after", existing.Add(90 * time.Second), false},
		{"exactly 2m apart", existing.Add(2 * time.Minute), false},
		{"2m before", existing.Add(-2 * time.Minute), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := env.svc.IsTimeConflict("u1", tt.candidate); got != tt.want {
				t.Fatalf("IsTimeConflict(%v) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestIsTimeConflictOtherUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(Config{}, 1)
	env.svc.jobs.Add(Job{UserID: "u1", Kind: KindMessage, FireTime: testNow.Add(time.Hour)})

	if env.svc.IsTimeConflict("u2", testNow.Add(time.Hour)) {
		t.Fatal("jobs of another user must not conflict")
	}
}

func TestIsTimeConflictCanonicalizesLocations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(Config{}, 1)

	// Same instant expressed in a fixed +02:00 zone and in UTC.
	zone := time.FixedZone("UTC+2", 2*60*60)
	instant := time.Date(2026, 2, 22, 12, 0, 0, 0, zone)
	env.svc.jobs.Add(Job{UserID: "u1", Kind: KindMessage, FireTime: instant})

	if !env.svc.IsTimeConflict("u1", instant.UTC()) {
		t.Fatal("same instant in UTC must conflict")
	}
	if !env.svc.IsTimeConflict("u1", instant.UTC().Add(30*time.Second)) {
		t.Fatal("30s offset across locations must conflict")
	}
	if env.svc.IsTimeConflict("u1", instant.UTC().Add(5*time.Minute)) {
		t.Fatal("5m offset must not conflict")
	}
}
