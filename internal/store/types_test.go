package store

import (
	"testing"
	"time"
)

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{in: "09:30", h: 9, m: 30},
		{in: "00:00", h: 0, m: 0},
		{in: "23:59", h: 23, m: 59},
		{in: " 08:15 ", h: 8, m: 15},
		{in: "24:00", wantErr: true},
		{in: "9:30pm", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		h, m, err := ParseHHMM(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHHMM(%q): want error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHHMM(%q): %v", tc.in, err)
			continue
		}
		if h != tc.h || m != tc.m {
			t.Errorf("ParseHHMM(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.h, tc.m)
		}
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	d, err := ParseDate("2026-03-01", loc)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Location() != loc {
		t.Fatalf("parsed location %v, want Europe/Berlin", d.Location())
	}
	if d.Year() != 2026 || d.Month() != time.March || d.Day() != 1 {
		t.Fatalf("parsed %v, want 2026-03-01", d)
	}
	if _, err := ParseDate("01.03.2026", loc); err == nil {
		t.Fatal("ParseDate accepted non-ISO format")
	}
}

func TestAppliesOn(t *testing.T) {
	t.Parallel()
	all := TimePeriod{Name: AllDays}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !all.AppliesOn(d) {
			t.Fatalf("AllDays period does not apply on %v", d)
		}
	}
	weekend := TimePeriod{Name: "Weekend", Days: []time.Weekday{time.Saturday, time.Sunday}}
	if !weekend.AppliesOn(time.Saturday) || weekend.AppliesOn(time.Wednesday) {
		t.Fatal("named period day matching broken")
	}
}

func TestValidatePeriods(t *testing.T) {
	t.Parallel()
	all := TimePeriod{Name: AllDays, Start: "08:00", End: "10:00"}
	named := TimePeriod{Name: "Evening", Start: "18:00", End: "20:00"}

	if err := ValidatePeriods(nil); err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if err := ValidatePeriods([]TimePeriod{all}); err != nil {
		t.Fatalf("single sentinel: %v", err)
	}
	if err := ValidatePeriods([]TimePeriod{named, named}); err != nil {
		t.Fatalf("named-only list: %v", err)
	}
	if err := ValidatePeriods([]TimePeriod{all, named}); err == nil {
		t.Fatal("mixed sentinel and named list accepted")
	}
	if err := ValidatePeriods([]TimePeriod{all, all}); err == nil {
		t.Fatal("duplicate sentinel accepted")
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Priority{
		"low":    PriorityLow,
		"MEDIUM": PriorityMedium,
		"":       PriorityMedium,
		"High":   PriorityHigh,
		"urgent": PriorityUrgent,
	} {
		got, err := ParsePriority(in)
		if err != nil || got != want {
			t.Errorf("ParsePriority(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePriority("critical"); err == nil {
		t.Fatal("unknown priority accepted")
	}
}

func TestReminderPeriodKey(t *testing.T) {
	t.Parallel()
	a := ReminderPeriod{Start: "09:00", End: "11:00"}
	b := ReminderPeriod{Start: "09:00", End: "11:00"}
	c := ReminderPeriod{Date: "2026-03-01", Start: "09:00", End: "11:00"}
	if a.Key() != b.Key() {
		t.Fatal("equal periods have different keys")
	}
	if a.Key() == c.Key() {
		t.Fatal("dated and undated periods share a key")
	}
}

func TestDaysRoundTrip(t *testing.T) {
	t.Parallel()
	days := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	got := decodeDays(encodeDays(days))
	if len(got) != len(days) {
		t.Fatalf("round trip %v -> %v", days, got)
	}
	for i := range days {
		if got[i] != days[i] {
			t.Fatalf("round trip %v -> %v", days, got)
		}
	}
	if decodeDays("") != nil {
		t.Fatal("empty encoding decoded to non-nil")
	}
	if got := decodeDays("1,bogus,9,5"); len(got) != 2 || got[0] != time.Monday || got[1] != time.Friday {
		t.Fatalf("lenient decode = %v, want [Monday Friday]", got)
	}
}
