package mensa_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/entry"
)

func TestDailySweepActivatesScheduledPeriods(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	if _, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 9),
		End:   day(2026, time.March, 20),
		Actor: staff,
	}); err != nil {
		t.Fatal(err)
	}

	// Nothing to do before the start day.
	res, err := rig.engine.RunDailySweep(ctx, rig.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Activated != 0 || res.Deactivated != 0 {
		t.Errorf("early sweep: %+v", res)
	}

	rig.clock.Advance(7) // Mar 9
	res, err = rig.engine.RunDailySweep(ctx, rig.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Activated != 1 {
		t.Errorf("activated = %d, want 1", res.Activated)
	}

	got, _ := rig.engine.GetAccount(ctx, a.ID)
	if got.Status != account.StatusActivePeriod {
		t.Errorf("status = %q, want active_period", got.Status)
	}

	// Activation is a pure status flip, no ledger entry.
	entries, _ := rig.engine.ListEntries(ctx, entry.ListOpts{AccountID: a.ID})
	for _, e := range entries {
		if e.Reason != entry.ReasonPeriodAssigned {
			t.Errorf("unexpected entry %q from activation", e.Reason)
		}
	}
}

func TestDailySweepExpiresLapsedPeriods(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	if _, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: 3, Actor: staff}); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2),
		End:   day(2026, time.March, 6),
		Actor: staff,
	}); err != nil {
		t.Fatal(err)
	}

	rig.clock.Advance(7) // Mar 9
	res, err := rig.engine.RunDailySweep(ctx, rig.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Deactivated != 1 {
		t.Errorf("deactivated = %d, want 1", res.Deactivated)
	}

	got, _ := rig.engine.GetAccount(ctx, a.ID)
	if got.HasPeriod() {
		t.Error("expired period should be cleared off the account")
	}
	if got.Status != account.StatusFunded {
		t.Errorf("status = %q, want funded (3 tokens remain)", got.Status)
	}

	entries, _ := rig.engine.ListEntries(ctx, entry.ListOpts{AccountID: a.ID, Reason: entry.ReasonPeriodExpired})
	if len(entries) != 1 {
		t.Fatalf("period_expired entries = %d, want 1", len(entries))
	}
	if entries[0].Change != 0 {
		t.Errorf("expiry entry change = %d, want 0", entries[0].Change)
	}
	rig.mustReconcile(t, a)
}

func TestDailySweepIdempotent(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	if _, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2),
		End:   day(2026, time.March, 6),
		Actor: staff,
	}); err != nil {
		t.Fatal(err)
	}

	rig.clock.Advance(7)
	if _, err := rig.engine.RunDailySweep(ctx, rig.clock.Now()); err != nil {
		t.Fatal(err)
	}

	// Second run on the same day finds nothing and writes nothing.
	res, err := rig.engine.RunDailySweep(ctx, rig.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Activated != 0 || res.Deactivated != 0 {
		t.Errorf("second sweep: %+v", res)
	}

	entries, _ := rig.engine.ListEntries(ctx, entry.ListOpts{AccountID: a.ID, Reason: entry.ReasonPeriodExpired})
	if len(entries) != 1 {
		t.Errorf("period_expired entries = %d, want exactly 1", len(entries))
	}
}

func TestDailySweepHandlesBothDirections(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	lapsing := rig.mustAccount(t, "stu-1042")
	starting := rig.mustAccount(t, "stu-2099")

	if _, err := rig.engine.SetPeriod(ctx, lapsing.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2), End: day(2026, time.March, 6), Actor: staff,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.engine.SetPeriod(ctx, starting.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 9), End: day(2026, time.March, 20), Actor: staff,
	}); err != nil {
		t.Fatal(err)
	}

	rig.clock.Advance(7) // Mar 9
	res, err := rig.engine.RunDailySweep(ctx, rig.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Activated != 1 || res.Deactivated != 1 {
		t.Errorf("sweep = %+v, want 1 activated and 1 deactivated", res)
	}
}
