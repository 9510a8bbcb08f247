package entry

import "testing"

func TestReasonValid(t *testing.T) {
	valid := []Reason{
		ReasonUse, ReasonUseWithDebt, ReasonUseInPeriod, ReasonPayment,
		ReasonManualAdjust, ReasonPeriodAssigned, ReasonPeriodRemoved,
		ReasonPeriodExpired,
	}
	for _, r := range valid {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}

	if Reason("refund").Valid() {
		t.Error("unknown reason should be invalid")
	}
}

func TestReasonIsConsumption(t *testing.T) {
	tests := []struct {
		reason Reason
		want   bool
	}{
		{ReasonUse, true},
		{ReasonUseWithDebt, true},
		{ReasonUseInPeriod, true},
		{ReasonPayment, false},
		{ReasonManualAdjust, false},
		{ReasonPeriodAssigned, false},
		{ReasonPeriodExpired, false},
	}

	for _, tt := range tests {
		if got := tt.reason.IsConsumption(); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.reason, got, tt.want)
		}
	}
}
