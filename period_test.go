package mensa_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/types"
)

func TestSetPeriodActivatesImmediately(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	res, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2),
		End:   day(2026, time.March, 13),
		Actor: staff,
	})
	if err != nil {
		t.Fatalf("set period: %v", err)
	}
	if !res.Active {
		t.Error("period covering today should be active")
	}
	if res.Account.Status != account.StatusActivePeriod {
		t.Errorf("status = %q, want active_period", res.Account.Status)
	}
	if res.Log.Outcome != period.OutcomeActive {
		t.Errorf("log outcome = %q, want active", res.Log.Outcome)
	}
	if res.Payment != nil {
		t.Error("unpaid assignment must not issue a payment")
	}

	// The assignment leaves a zero-change audit entry.
	entries, err := rig.engine.ListEntries(ctx, entry.ListOpts{AccountID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Reason != entry.ReasonPeriodAssigned || entries[0].Change != 0 {
		t.Errorf("assignment entry: %+v", entries)
	}
	rig.mustReconcile(t, a)
}

func TestSetPeriodScheduledStaysInactive(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	res, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.April, 6),
		End:   day(2026, time.April, 17),
		Actor: staff,
	})
	if err != nil {
		t.Fatalf("set period: %v", err)
	}
	if res.Active {
		t.Error("future period should not be active yet")
	}
	if res.Account.Status != account.StatusUnfunded {
		t.Errorf("status = %q, want unfunded until the start day", res.Account.Status)
	}
}

func TestSetPeriodValidation(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.engine.AddHoliday(ctx, day(2026, time.April, 6), "school closed", admin); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		req   mensa.SetPeriodRequest
		want  error
		check func(error) bool
	}{
		{
			name: "InvertedRange",
			req: mensa.SetPeriodRequest{
				Start: day(2026, time.March, 13), End: day(2026, time.March, 2), Actor: staff,
			},
			want: mensa.ErrPeriodInverted,
		},
		{
			name: "TooFewValidDays",
			req: mensa.SetPeriodRequest{
				Start: day(2026, time.March, 2), End: day(2026, time.March, 4), Actor: staff,
			},
			want: mensa.ErrPeriodTooShort,
		},
		{
			name: "StartOnHoliday",
			req: mensa.SetPeriodRequest{
				Start: day(2026, time.April, 6), End: day(2026, time.April, 17), Actor: staff,
			},
			check: mensa.IsValidation,
		},
		{
			name: "BackdatedNeedsElevatedRole",
			req: mensa.SetPeriodRequest{
				Start: day(2026, time.February, 23), End: day(2026, time.March, 6), Actor: student,
			},
			want: mensa.ErrPeriodBackdated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := rig.mustAccount(t, "stu-"+tt.name)
			_, err := rig.engine.SetPeriod(ctx, a.ID, tt.req)
			if tt.check != nil {
				if !tt.check(err) {
					t.Errorf("got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSetPeriodHolidaysShrinkValidDays(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	// Five calendar days, but two mid-range holidays leave only three valid.
	for _, d := range []int{3, 4} {
		if _, err := rig.engine.AddHoliday(ctx, day(2026, time.March, d), "teacher training", admin); err != nil {
			t.Fatal(err)
		}
	}

	_, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2),
		End:   day(2026, time.March, 6),
		Actor: staff,
	})
	if !errors.Is(err, mensa.ErrPeriodTooShort) {
		t.Errorf("got %v, want ErrPeriodTooShort", err)
	}
}

func TestSetPeriodDebtGate(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	if _, err := rig.engine.Consume(ctx, a.ID, mensa.ConsumeRequest{Actor: student}); err != nil {
		t.Fatal(err)
	}

	_, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 9),
		End:   day(2026, time.March, 20),
		Actor: staff,
	})
	if !errors.Is(err, mensa.ErrOutstandingDebt) {
		t.Errorf("got %v, want ErrOutstandingDebt", err)
	}
}

func TestSetPeriodOverlapHistory(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	first, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2),
		End:   day(2026, time.March, 13),
		Actor: staff,
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("SecondAssignmentWhileSet", func(t *testing.T) {
		_, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
			Start: day(2026, time.April, 6), End: day(2026, time.April, 17), Actor: staff,
		})
		if !errors.Is(err, mensa.ErrPeriodAlreadySet) {
			t.Errorf("got %v, want ErrPeriodAlreadySet", err)
		}
	})

	// Let it expire and sweep it out, then the held range stays burned.
	rig.clock.Advance(14)
	if _, err := rig.engine.RunDailySweep(ctx, rig.clock.Now()); err != nil {
		t.Fatal(err)
	}

	t.Run("ExpiredRangeStaysBurned", func(t *testing.T) {
		_, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
			Start: day(2026, time.March, 13), End: day(2026, time.March, 27), Actor: staff,
		})
		if !errors.Is(err, mensa.ErrPeriodOverlap) {
			t.Errorf("got %v, want ErrPeriodOverlap", err)
		}
	})

	t.Run("DisjointRangeAllowed", func(t *testing.T) {
		res, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
			Start: day(2026, time.March, 23), End: day(2026, time.April, 3), Actor: staff,
		})
		if err != nil {
			t.Fatalf("disjoint range: %v", err)
		}
		if res.Log.ID.String() == first.Log.ID.String() {
			t.Error("new assignment must create a new log row")
		}
	})
}

func TestSetPeriodAfterLapseBeforeSweep(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	if _, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2), End: day(2026, time.March, 13), Actor: staff,
	}); err != nil {
		t.Fatal(err)
	}

	// The window lapses with no sweep run in between.
	rig.clock.Advance(14)

	res, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 23), End: day(2026, time.April, 3), Actor: staff,
	})
	if err != nil {
		t.Fatalf("assign after lapse: %v", err)
	}
	if res.Log.Outcome != period.OutcomeActive {
		t.Errorf("new log outcome = %q, want active", res.Log.Outcome)
	}

	// The lapsed window was closed out the way the sweep closes it.
	logs, err := rig.store.ListPeriodLog(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	var expired int
	for _, l := range logs {
		if l.Outcome == period.OutcomeExpired {
			expired++
		}
	}
	if len(logs) != 2 || expired != 1 {
		t.Errorf("period log: %+v", logs)
	}

	entries, err := rig.engine.ListEntries(ctx, entry.ListOpts{AccountID: a.ID, Reason: entry.ReasonPeriodExpired})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Change != 0 {
		t.Errorf("expiry entries: %+v", entries)
	}
	rig.mustReconcile(t, a)
}

func TestSetPeriodPaid(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	res, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2),
		End:   day(2026, time.March, 13),
		Paid:  true,
		Actor: staff,
	})
	if err != nil {
		t.Fatalf("paid period: %v", err)
	}
	if res.Payment == nil {
		t.Fatal("paid assignment must issue a payment")
	}
	if res.Payment.TicketNumber != "TCK-00001" {
		t.Errorf("ticket = %q, want TCK-00001", res.Payment.TicketNumber)
	}
	if res.Payment.Tokens != 0 {
		t.Errorf("period purchase credits no tokens, got %d", res.Payment.Tokens)
	}

	// 12 calendar days, fundamental tier at R$4.00 per day.
	want := types.BRL(400).Multiply(12)
	if !res.Payment.Amount.Equal(want) {
		t.Errorf("amount = %s, want %s", res.Payment.Amount, want)
	}
	if rig.notifier.paymentCount() != 1 {
		t.Errorf("payment receipts = %d, want 1", rig.notifier.paymentCount())
	}
	rig.mustReconcile(t, a)
}

func TestRemovePeriod(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	t.Run("NoPeriod", func(t *testing.T) {
		a := rig.mustAccount(t, "stu-1042")
		_, err := rig.engine.RemovePeriod(ctx, a.ID, mensa.RemovePeriodRequest{Actor: staff})
		if !errors.Is(err, mensa.ErrNoPeriod) {
			t.Errorf("got %v, want ErrNoPeriod", err)
		}
	})

	t.Run("ScheduledPeriodNotRemovable", func(t *testing.T) {
		a := rig.mustAccount(t, "stu-2099")
		if _, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
			Start: day(2026, time.April, 6), End: day(2026, time.April, 17), Actor: staff,
		}); err != nil {
			t.Fatal(err)
		}
		_, err := rig.engine.RemovePeriod(ctx, a.ID, mensa.RemovePeriodRequest{Actor: staff})
		if !errors.Is(err, mensa.ErrPeriodNotActive) {
			t.Errorf("got %v, want ErrPeriodNotActive", err)
		}
	})

	t.Run("ActivePeriodRemovedAndRangeFreed", func(t *testing.T) {
		a := rig.mustAccount(t, "stu-3000")
		if _, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
			Start: day(2026, time.March, 2), End: day(2026, time.March, 13), Actor: staff,
		}); err != nil {
			t.Fatal(err)
		}

		res, err := rig.engine.RemovePeriod(ctx, a.ID, mensa.RemovePeriodRequest{Actor: staff})
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if res.Account.HasPeriod() {
			t.Error("period fields should be cleared")
		}
		if res.Account.Status != account.StatusUnfunded {
			t.Errorf("status = %q, want unfunded", res.Account.Status)
		}
		if res.Log.Outcome != period.OutcomeRemoved {
			t.Errorf("log outcome = %q, want removed", res.Log.Outcome)
		}

		// The removed range does not block re-assignment.
		if _, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
			Start: day(2026, time.March, 2), End: day(2026, time.March, 13), Actor: staff,
		}); err != nil {
			t.Fatalf("re-assign over removed range: %v", err)
		}
		rig.mustReconcile(t, a)
	})
}
