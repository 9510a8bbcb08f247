package mensa_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/types"
)

func TestAddTokensIssuesSequentialTickets(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")
	b := rig.mustAccount(t, "stu-2099")

	first, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: 5, Actor: staff})
	if err != nil {
		t.Fatalf("first top-up: %v", err)
	}
	second, err := rig.engine.AddTokens(ctx, b.ID, mensa.AddTokensRequest{Delta: 2, Actor: staff})
	if err != nil {
		t.Fatalf("second top-up: %v", err)
	}

	if first.Payment.TicketNumber != "TCK-00001" {
		t.Errorf("first ticket = %q, want TCK-00001", first.Payment.TicketNumber)
	}
	if second.Payment.TicketNumber != "TCK-00002" {
		t.Errorf("second ticket = %q, want TCK-00002", second.Payment.TicketNumber)
	}

	got, err := rig.engine.GetPaymentByTicket(ctx, "TCK-00002")
	if err != nil {
		t.Fatalf("ticket lookup: %v", err)
	}
	if got.ID.String() != second.Payment.ID.String() {
		t.Error("ticket resolves wrong payment")
	}
}

func TestAddTokensPricing(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		ownerRef string
		delta    int64
		want     types.Money
	}{
		{"FundamentalTier", "stu-1042", 10, types.BRL(4500)},
		{"MedioTier", "stu-2099", 10, types.BRL(5000)},
		{"UnknownOwnerFallsBackToHighestTier", "stu-9999", 2, types.BRL(1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := rig.mustAccount(t, tt.ownerRef)
			res, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: tt.delta, Actor: staff})
			if err != nil {
				t.Fatalf("add tokens: %v", err)
			}
			if !res.Payment.Amount.Equal(tt.want) {
				t.Errorf("amount = %s, want %s", res.Payment.Amount, tt.want)
			}
			rig.mustReconcile(t, a)
		})
	}
}

func TestAddTokensValidation(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	if _, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: 0, Actor: staff}); !errors.Is(err, mensa.ErrZeroDelta) {
		t.Errorf("zero delta: got %v, want ErrZeroDelta", err)
	}
	if _, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: -3, Actor: staff}); !errors.Is(err, mensa.ErrNegativeDelta) {
		t.Errorf("negative delta: got %v, want ErrNegativeDelta", err)
	}
}

func TestAddTokensRejectedDuringPeriod(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	if _, err := rig.engine.SetPeriod(ctx, a.ID, mensa.SetPeriodRequest{
		Start: day(2026, time.March, 2),
		End:   day(2026, time.March, 13),
		Actor: staff,
	}); err != nil {
		t.Fatalf("set period: %v", err)
	}

	_, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: 5, Actor: staff})
	if !errors.Is(err, mensa.ErrTokensDuringPeriod) {
		t.Errorf("got %v, want ErrTokensDuringPeriod", err)
	}

	// Once the period lapses, purchases reopen.
	rig.clock.Advance(12)
	if _, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: 5, Actor: staff}); err != nil {
		t.Fatalf("post-period top-up: %v", err)
	}
}

func TestAddTokensClearsDebt(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	if _, err := rig.engine.Consume(ctx, a.ID, mensa.ConsumeRequest{Actor: student}); err != nil {
		t.Fatal(err)
	}

	res, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: 5, Actor: staff})
	if err != nil {
		t.Fatalf("top-up: %v", err)
	}
	if res.Account.Tokens != 4 {
		t.Errorf("tokens = %d, want 4 (debt settled first)", res.Account.Tokens)
	}
	if res.Account.Status != account.StatusFunded {
		t.Errorf("status = %q, want funded", res.Account.Status)
	}
	rig.mustReconcile(t, a)
}

func TestAddTokensSendsPaymentReceipt(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	res, err := rig.engine.AddTokens(ctx, a.ID, mensa.AddTokensRequest{Delta: 3, Actor: staff})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Payment.EmailSent {
		t.Error("receipt should be marked sent")
	}
	if rig.notifier.paymentCount() != 1 {
		t.Errorf("payment receipts = %d, want 1", rig.notifier.paymentCount())
	}
}

func TestAdjust(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	a := rig.mustAccount(t, "stu-1042")

	t.Run("RequiresAdmin", func(t *testing.T) {
		_, err := rig.engine.Adjust(ctx, a.ID, mensa.AdjustRequest{Delta: 1, Note: "fix", Actor: staff})
		if !errors.Is(err, mensa.ErrAdjustRequiresRole) {
			t.Errorf("got %v, want ErrAdjustRequiresRole", err)
		}
	})

	t.Run("RequiresNote", func(t *testing.T) {
		_, err := rig.engine.Adjust(ctx, a.ID, mensa.AdjustRequest{Delta: 1, Actor: admin})
		if !mensa.IsValidation(err) {
			t.Errorf("got %v, want validation error", err)
		}
	})

	t.Run("SignedCorrection", func(t *testing.T) {
		up, err := rig.engine.Adjust(ctx, a.ID, mensa.AdjustRequest{Delta: 3, Note: "cash drawer recount", Actor: admin})
		if err != nil {
			t.Fatalf("adjust up: %v", err)
		}
		if up.Entry.Reason != entry.ReasonManualAdjust {
			t.Errorf("reason = %q, want manual_adjust", up.Entry.Reason)
		}
		if up.Payment != nil {
			t.Error("adjustments never issue payments")
		}

		down, err := rig.engine.Adjust(ctx, a.ID, mensa.AdjustRequest{Delta: -1, Note: "duplicate top-up reversal", Actor: admin})
		if err != nil {
			t.Fatalf("adjust down: %v", err)
		}
		if down.Account.Tokens != 2 {
			t.Errorf("tokens = %d, want 2", down.Account.Tokens)
		}
		rig.mustReconcile(t, a)
	})
}
