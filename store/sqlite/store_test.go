package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mensa.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func createAccount(t *testing.T, s *Store, ownerRef string) *account.Account {
	t.Helper()
	a := &account.Account{
		Entity:   types.NewEntity(),
		ID:       id.NewAccountID(),
		OwnerRef: ownerRef,
		Status:   account.StatusUnfunded,
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func TestAccountRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start, end := day(2026, 3, 9), day(2026, 3, 15)
	a := &account.Account{
		Entity:      types.NewEntity(),
		ID:          id.NewAccountID(),
		OwnerRef:    "stu-001",
		Tokens:      7,
		Status:      account.StatusFunded,
		PeriodStart: &start,
		PeriodEnd:   &end,
		Metadata:    map[string]any{"note": "transfer student"},
	}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerRef != "stu-001" || got.Tokens != 7 || got.Status != account.StatusFunded {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.PeriodStart == nil || !got.PeriodStart.Equal(start) {
		t.Errorf("period start: %v", got.PeriodStart)
	}
	if got.Metadata["note"] != "transfer student" {
		t.Errorf("metadata: %v", got.Metadata)
	}

	byOwner, err := s.GetAccountByOwnerRef(ctx, "stu-001")
	if err != nil || byOwner.ID.String() != a.ID.String() {
		t.Errorf("owner lookup: %v, %v", byOwner, err)
	}
}

func TestDuplicateOwnerRef(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	createAccount(t, s, "stu-dup")

	dup := &account.Account{
		Entity:   types.NewEntity(),
		ID:       id.NewAccountID(),
		OwnerRef: "stu-dup",
	}
	if err := s.CreateAccount(ctx, dup); !errors.Is(err, mensa.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestVersionConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := createAccount(t, s, "stu-cas")

	first, _ := s.GetAccount(ctx, a.ID)
	second, _ := s.GetAccount(ctx, a.ID)

	first.Tokens = 5
	if err := s.UpdateAccount(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second.Tokens = 9
	if err := s.UpdateAccount(ctx, second); !errors.Is(err, mensa.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := s.GetAccount(ctx, a.ID)
	if got.Tokens != 5 {
		t.Errorf("losing writer applied, tokens = %d", got.Tokens)
	}
}

func TestConsumptionUniqueIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := createAccount(t, s, "stu-idem")
	used := day(2026, 3, 10)

	mkEntry := func() *entry.Entry {
		return &entry.Entry{
			Entity:     types.NewEntity(),
			ID:         id.NewEntryID(),
			AccountID:  a.ID,
			Change:     -1,
			Reason:     entry.ReasonUse,
			OccurredAt: time.Now(),
			UsedOn:     &used,
		}
	}

	acct, _ := s.GetAccount(ctx, a.ID)
	acct.Tokens = 2
	if err := s.RecordConsumption(ctx, acct, mkEntry()); err != nil {
		t.Fatalf("first consumption: %v", err)
	}

	acct, _ = s.GetAccount(ctx, a.ID)
	acct.Tokens = 1
	if err := s.RecordConsumption(ctx, acct, mkEntry()); !errors.Is(err, mensa.ErrAlreadyUsedToday) {
		t.Fatalf("expected ErrAlreadyUsedToday, got %v", err)
	}

	// The failed write must not have touched the account either.
	got, _ := s.GetAccount(ctx, a.ID)
	if got.Tokens != 2 {
		t.Errorf("failed consumption leaked a write, tokens = %d", got.Tokens)
	}

	has, err := s.HasConsumptionOn(ctx, a.ID, used)
	if err != nil || !has {
		t.Errorf("consumption lookup: %v, %v", has, err)
	}
}

func TestTicketSequence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := createAccount(t, s, "stu-pay")

	for i := 1; i <= 3; i++ {
		acct, _ := s.GetAccount(ctx, a.ID)
		acct.Tokens += 5
		p := &payment.Payment{
			Entity:    types.NewEntity(),
			ID:        id.NewPaymentID(),
			AccountID: a.ID,
			Tokens:    5,
			UnitPrice: types.BRL(450),
			Amount:    types.BRL(2250),
			IssuedAt:  time.Now(),
		}
		e := &entry.Entry{
			Entity:     types.NewEntity(),
			ID:         id.NewEntryID(),
			AccountID:  a.ID,
			Change:     5,
			Reason:     entry.ReasonPayment,
			OccurredAt: time.Now(),
		}
		if err := s.RecordBalanceChange(ctx, acct, e, p); err != nil {
			t.Fatalf("payment %d: %v", i, err)
		}
		if p.TicketSeq != int64(i) {
			t.Errorf("payment %d: seq %d", i, p.TicketSeq)
		}
	}

	got, err := s.GetPaymentByTicket(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.TicketNumber != "TCK-00002" || !got.Amount.Equal(types.BRL(2250)) {
		t.Errorf("ticket 2: %+v", got)
	}

	entries, _ := s.ListEntries(ctx, entry.ListOpts{AccountID: a.ID, Reason: entry.ReasonPayment})
	if len(entries) != 3 {
		t.Fatalf("expected 3 payment entries, got %d", len(entries))
	}
	if entries[0].PaymentID.IsNil() {
		t.Error("payment entry should reference its payment")
	}
}

func TestTicketSequenceConcurrentIssuance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := createAccount(t, s, "stu-race")

	const writers = 8
	var wg sync.WaitGroup
	seqs := make(chan int64, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				acct, err := s.GetAccount(ctx, a.ID)
				if err != nil {
					t.Error(err)
					return
				}
				acct.Tokens += 5

				p := &payment.Payment{
					Entity: types.NewEntity(), ID: id.NewPaymentID(), AccountID: a.ID,
					Tokens: 5, UnitPrice: types.BRL(450), Amount: types.BRL(2250),
					IssuedAt: time.Now(),
				}
				e := &entry.Entry{
					Entity: types.NewEntity(), ID: id.NewEntryID(), AccountID: a.ID,
					Change: 5, Reason: entry.ReasonPayment, OccurredAt: time.Now(),
				}

				switch err := s.RecordBalanceChange(ctx, acct, e, p); {
				case errors.Is(err, mensa.ErrVersionConflict):
					// Lost the race on the account version; re-read and retry.
					continue
				case err != nil:
					t.Error(err)
					return
				default:
					seqs <- p.TicketSeq
					return
				}
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool, writers)
	for seq := range seqs {
		if seen[seq] {
			t.Errorf("duplicate ticket seq %d", seq)
		}
		seen[seq] = true
	}
	for want := int64(1); want <= writers; want++ {
		if !seen[want] {
			t.Errorf("ticket seq %d never issued", want)
		}
	}

	got, _ := s.GetAccount(ctx, a.ID)
	if got.Tokens != writers*5 {
		t.Errorf("tokens = %d, want %d", got.Tokens, writers*5)
	}
}

func TestPeriodLogAndSweepScans(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	today := day(2026, 3, 10)

	a := createAccount(t, s, "stu-period")
	start, end := day(2026, 3, 9), day(2026, 3, 15)

	acct, _ := s.GetAccount(ctx, a.ID)
	acct.PeriodStart, acct.PeriodEnd = &start, &end
	log := &period.LogEntry{
		Entity: types.NewEntity(), ID: id.NewPeriodLogID(), AccountID: a.ID,
		Start: start, End: end, Outcome: period.OutcomeActive, AssignedBy: "admin-1",
	}
	e := &entry.Entry{
		Entity: types.NewEntity(), ID: id.NewEntryID(), AccountID: a.ID,
		Reason: entry.ReasonPeriodAssigned, OccurredAt: time.Now(),
		PeriodStart: &start, PeriodEnd: &end,
	}
	if err := s.RecordPeriodAssigned(ctx, acct, e, log, nil); err != nil {
		t.Fatal(err)
	}

	toActivate, err := s.ListAccountsToActivate(ctx, today)
	if err != nil {
		t.Fatal(err)
	}
	if len(toActivate) != 1 {
		t.Fatalf("activation scan: %d accounts", len(toActivate))
	}

	active, err := s.GetActivePeriodLog(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}

	acct, _ = s.GetAccount(ctx, a.ID)
	acct.ClearPeriod()
	closeEntry := &entry.Entry{
		Entity: types.NewEntity(), ID: id.NewEntryID(), AccountID: a.ID,
		Reason: entry.ReasonPeriodRemoved, OccurredAt: time.Now(),
		PeriodStart: &start, PeriodEnd: &end,
	}
	if err := s.RecordPeriodClosed(ctx, acct, closeEntry, active.ID, period.OutcomeRemoved, time.Now()); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetActivePeriodLog(ctx, a.ID); !errors.Is(err, mensa.ErrNoPeriod) {
		t.Fatalf("expected ErrNoPeriod, got %v", err)
	}

	logs, _ := s.ListPeriodLog(ctx, a.ID)
	if len(logs) != 1 || logs[0].Outcome != period.OutcomeRemoved || logs[0].ClosedAt == nil {
		t.Errorf("closed log: %+v", logs)
	}
}

func TestHolidays(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	h := &calendar.Holiday{
		Entity: types.NewEntity(),
		ID:     id.NewHolidayID(),
		Day:    day(2026, 3, 11),
		Reason: "staff training",
	}
	if err := s.CreateHoliday(ctx, h); err != nil {
		t.Fatal(err)
	}

	dup := &calendar.Holiday{
		Entity: types.NewEntity(),
		ID:     id.NewHolidayID(),
		Day:    day(2026, 3, 11),
	}
	if err := s.CreateHoliday(ctx, dup); !errors.Is(err, mensa.ErrHolidayExists) {
		t.Fatalf("expected ErrHolidayExists, got %v", err)
	}

	listed, err := s.ListHolidays(ctx, day(2026, 3, 1), day(2026, 3, 31))
	if err != nil || len(listed) != 1 {
		t.Fatalf("list holidays: %v, %v", listed, err)
	}
	if !calendar.SameDay(listed[0].Day, day(2026, 3, 11)) || listed[0].Reason != "staff training" {
		t.Errorf("holiday round-trip: %+v", listed[0])
	}

	if err := s.DeleteHoliday(ctx, h.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteHoliday(ctx, h.ID); !errors.Is(err, mensa.ErrHolidayNotFound) {
		t.Fatalf("expected ErrHolidayNotFound, got %v", err)
	}
}
