package model

import (
	"testing"
	"time"
)

func TestContractDays_StartsOnLocalCreationDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 02:00 UTC on the 10th is still the 9th in New York.
	c := Contract{StartDate: time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), DurationDays: 3}
	days := ContractDays(c, loc)
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	want := []string{"2026-03-09", "2026-03-10", "2026-03-11"}
	for i, d := range days {
		if d.Day != want[i] {
			t.Errorf("day %d: expected %s, got %s", i, want[i], d.Day)
		}
		if !d.End.After(d.Start) {
			t.Errorf("day %d: end %v not after start %v", i, d.End, d.Start)
		}
	}
}

func TestContractStatus_Terminal(t *testing.T) {
	if StatusActive.Terminal() {
		t.Error("active must not be terminal")
	}
	for _, s := range []ContractStatus{StatusSucceeded, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
