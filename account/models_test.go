package account

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func ptr(t time.Time) *time.Time { return &t }

func TestRecomputeStatus(t *testing.T) {
	tests := []struct {
		name     string
		tokens   int64
		inPeriod bool
		current  Status
		want     Status
	}{
		{"positive balance", 5, false, StatusUnfunded, StatusFunded},
		{"zero balance", 0, false, StatusFunded, StatusUnfunded},
		{"negative balance", -2, false, StatusFunded, StatusUnfunded},
		{"period wins over balance", 0, true, StatusUnfunded, StatusActivePeriod},
		{"period wins over funded", 10, true, StatusFunded, StatusActivePeriod},
		{"blocked is sticky", 10, true, StatusBlocked, StatusBlocked},
		{"blocked with no funds", 0, false, StatusBlocked, StatusBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecomputeStatus(tt.tokens, tt.inPeriod, tt.current); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPeriodCovers(t *testing.T) {
	acct := &Account{
		PeriodStart: ptr(day(2026, 3, 9)),
		PeriodEnd:   ptr(day(2026, 3, 15)),
	}

	tests := []struct {
		name string
		day  time.Time
		want bool
	}{
		{"start boundary", day(2026, 3, 9), true},
		{"end boundary", day(2026, 3, 15), true},
		{"middle", day(2026, 3, 12), true},
		{"middle with time component", time.Date(2026, 3, 12, 11, 45, 0, 0, time.Local), true},
		{"before start", day(2026, 3, 8), false},
		{"after end", day(2026, 3, 16), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := acct.PeriodCovers(tt.day); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeriodCoversWithoutPeriod(t *testing.T) {
	acct := &Account{}
	if acct.PeriodCovers(day(2026, 3, 12)) {
		t.Error("account without period should not cover any day")
	}
	if acct.HasPeriod() {
		t.Error("HasPeriod should be false")
	}
}

func TestClearPeriod(t *testing.T) {
	acct := &Account{
		PeriodStart: ptr(day(2026, 3, 9)),
		PeriodEnd:   ptr(day(2026, 3, 15)),
	}

	acct.ClearPeriod()

	if acct.HasPeriod() {
		t.Error("period should be cleared")
	}
}

func TestRefresh(t *testing.T) {
	acct := &Account{
		Tokens:      0,
		Status:      StatusUnfunded,
		PeriodStart: ptr(day(2026, 3, 9)),
		PeriodEnd:   ptr(day(2026, 3, 15)),
	}

	acct.Refresh(day(2026, 3, 10))
	if acct.Status != StatusActivePeriod {
		t.Errorf("inside period: got %s", acct.Status)
	}

	acct.Refresh(day(2026, 3, 16))
	if acct.Status != StatusUnfunded {
		t.Errorf("after period: got %s", acct.Status)
	}
}
