package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/mensa/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"AccountID", id.NewAccountID, "acct_"},
		{"EntryID", id.NewEntryID, "lent_"},
		{"PaymentID", id.NewPaymentID, "pay_"},
		{"PeriodLogID", id.NewPeriodLogID, "plog_"},
		{"HolidayID", id.NewHolidayID, "hol_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"AccountID", id.NewAccountID, id.ParseAccountID},
		{"EntryID", id.NewEntryID, id.ParseEntryID},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID},
		{"PeriodLogID", id.NewPeriodLogID, id.ParsePeriodLogID},
		{"HolidayID", id.NewHolidayID, id.ParseHolidayID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	acct := id.NewAccountID()
	if _, err := id.ParsePaymentID(acct.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID
	if !nilID.IsNil() {
		t.Fatal("zero value should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID should render empty, got %q", nilID.String())
	}
	if _, err := id.Parse(""); err == nil {
		t.Fatal("empty string should not parse")
	}
}
