// Package memory provides an in-memory Store implementation. It is the
// reference backend for tests and single-process development; all data is
// lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/store"
)

type Store struct {
	mu sync.RWMutex

	accounts  map[string]*account.Account
	entries   []*entry.Entry
	payments  map[string]*payment.Payment
	periodLog map[string][]*period.LogEntry // account ID -> log
	holidays  map[string]*calendar.Holiday

	ticketSeq int64
	closed    bool
}

func New() *Store {
	return &Store{
		accounts:  make(map[string]*account.Account),
		entries:   make([]*entry.Entry, 0),
		payments:  make(map[string]*payment.Payment),
		periodLog: make(map[string][]*period.LogEntry),
		holidays:  make(map[string]*calendar.Holiday),
	}
}

var _ store.Store = (*Store)(nil)

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return mensa.ErrStoreClosed
	}
	if _, exists := s.accounts[a.ID.String()]; exists {
		return mensa.ErrAlreadyExists
	}
	for _, existing := range s.accounts {
		if existing.OwnerRef == a.OwnerRef {
			return mensa.ErrAccountExists
		}
	}

	s.accounts[a.ID.String()] = cloneAccount(a)
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		return cloneAccount(a), nil
	}
	return nil, mensa.ErrAccountNotFound
}

func (s *Store) GetAccountByOwnerRef(_ context.Context, ownerRef string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.OwnerRef == ownerRef {
			return cloneAccount(a), nil
		}
	}
	return nil, mensa.ErrAccountNotFound
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		if opts.OwnerRef != "" && a.OwnerRef != opts.OwnerRef {
			continue
		}
		matched = append(matched, cloneAccount(a))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID.String() < matched[j].ID.String()
	})

	return paginate(matched, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.casAccount(a); err != nil {
		return err
	}
	return nil
}

// casAccount checks the caller's version against the stored row, then
// persists the mutation with a bumped version. Caller holds s.mu.
func (s *Store) casAccount(a *account.Account) error {
	stored, ok := s.accounts[a.ID.String()]
	if !ok {
		return mensa.ErrAccountNotFound
	}
	if stored.Version != a.Version {
		return mensa.ErrVersionConflict
	}

	a.Version++
	a.Touch()
	s.accounts[a.ID.String()] = cloneAccount(a)
	return nil
}

// ──────────────────────────────────────────────────
// Atomic operations
// ──────────────────────────────────────────────────

func (s *Store) RecordConsumption(_ context.Context, a *account.Account, e *entry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.UsedOn != nil {
		for _, existing := range s.entries {
			if existing.AccountID.String() == a.ID.String() &&
				existing.Reason.IsConsumption() &&
				existing.UsedOn != nil &&
				calendar.SameDay(*existing.UsedOn, *e.UsedOn) {
				return mensa.ErrAlreadyUsedToday
			}
		}
	}

	if err := s.casAccount(a); err != nil {
		return err
	}

	s.entries = append(s.entries, cloneEntry(e))
	return nil
}

func (s *Store) RecordBalanceChange(_ context.Context, a *account.Account, e *entry.Entry, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.casAccount(a); err != nil {
		return err
	}

	if p != nil {
		s.issueTicket(p)
		e.PaymentID = p.ID
		s.payments[p.ID.String()] = clonePayment(p)
	}
	s.entries = append(s.entries, cloneEntry(e))
	return nil
}

func (s *Store) RecordPeriodAssigned(_ context.Context, a *account.Account, e *entry.Entry, log *period.LogEntry, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.casAccount(a); err != nil {
		return err
	}

	if p != nil {
		s.issueTicket(p)
		e.PaymentID = p.ID
		s.payments[p.ID.String()] = clonePayment(p)
	}
	s.entries = append(s.entries, cloneEntry(e))

	key := a.ID.String()
	s.periodLog[key] = append(s.periodLog[key], cloneLog(log))
	return nil
}

func (s *Store) RecordPeriodClosed(_ context.Context, a *account.Account, e *entry.Entry, logID id.PeriodLogID, outcome period.Outcome, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *period.LogEntry
	for _, l := range s.periodLog[a.ID.String()] {
		if l.ID.String() == logID.String() {
			target = l
			break
		}
	}
	if target == nil {
		return mensa.ErrNoPeriod
	}

	if err := s.casAccount(a); err != nil {
		return err
	}

	target.Outcome = outcome
	closed := closedAt
	target.ClosedAt = &closed
	target.Touch()

	s.entries = append(s.entries, cloneEntry(e))
	return nil
}

// issueTicket assigns the next sequence number. Caller holds s.mu.
func (s *Store) issueTicket(p *payment.Payment) {
	s.ticketSeq++
	p.TicketSeq = s.ticketSeq
	p.TicketNumber = payment.FormatTicket(s.ticketSeq)
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

func (s *Store) GetEntry(_ context.Context, entryID id.EntryID) (*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID.String() == entryID.String() {
			return cloneEntry(e), nil
		}
	}
	return nil, mensa.ErrNotFound
}

func (s *Store) ListEntries(_ context.Context, opts entry.ListOpts) ([]*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*entry.Entry, 0)
	for _, e := range s.entries {
		if !opts.AccountID.IsNil() && e.AccountID.String() != opts.AccountID.String() {
			continue
		}
		if opts.Reason != "" && e.Reason != opts.Reason {
			continue
		}
		if !opts.From.IsZero() && e.OccurredAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && e.OccurredAt.After(opts.To) {
			continue
		}
		matched = append(matched, cloneEntry(e))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OccurredAt.Before(matched[j].OccurredAt)
	})

	return paginate(matched, opts.Offset, opts.Limit), nil
}

func (s *Store) HasConsumptionOn(_ context.Context, accountID id.AccountID, day time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.AccountID.String() == accountID.String() &&
			e.Reason.IsConsumption() &&
			e.UsedOn != nil &&
			calendar.SameDay(*e.UsedOn, day) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SumChanges(_ context.Context, accountID id.AccountID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, e := range s.entries {
		if e.AccountID.String() == accountID.String() {
			sum += e.Change
		}
	}
	return sum, nil
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[paymentID.String()]; ok {
		return clonePayment(p), nil
	}
	return nil, mensa.ErrPaymentNotFound
}

func (s *Store) GetPaymentByTicket(_ context.Context, ticketSeq int64) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.TicketSeq == ticketSeq {
			return clonePayment(p), nil
		}
	}
	return nil, mensa.ErrTicketNotFound
}

func (s *Store) ListPayments(_ context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if !opts.AccountID.IsNil() && p.AccountID.String() != opts.AccountID.String() {
			continue
		}
		if !opts.From.IsZero() && p.IssuedAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && p.IssuedAt.After(opts.To) {
			continue
		}
		matched = append(matched, clonePayment(p))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].TicketSeq < matched[j].TicketSeq
	})

	return paginate(matched, opts.Offset, opts.Limit), nil
}

func (s *Store) ListUnsentPayments(_ context.Context, limit int) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if !p.EmailSent {
			matched = append(matched, clonePayment(p))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].TicketSeq < matched[j].TicketSeq
	})

	return paginate(matched, 0, limit), nil
}

func (s *Store) MarkReceiptSent(_ context.Context, paymentID id.PaymentID, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID.String()]
	if !ok {
		return mensa.ErrPaymentNotFound
	}

	p.EmailSent = true
	ts := sentAt
	p.EmailSentAt = &ts
	p.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Period log
// ──────────────────────────────────────────────────

func (s *Store) ListPeriodLog(_ context.Context, accountID id.AccountID) ([]*period.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.periodLog[accountID.String()]
	out := make([]*period.LogEntry, 0, len(log))
	for _, l := range log {
		out = append(out, cloneLog(l))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})

	return out, nil
}

func (s *Store) GetActivePeriodLog(_ context.Context, accountID id.AccountID) (*period.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.periodLog[accountID.String()] {
		if l.Outcome == period.OutcomeActive {
			return cloneLog(l), nil
		}
	}
	return nil, mensa.ErrNoPeriod
}

// ──────────────────────────────────────────────────
// Holidays
// ──────────────────────────────────────────────────

func (s *Store) CreateHoliday(_ context.Context, h *calendar.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := calendar.DayKey(h.Day)
	for _, existing := range s.holidays {
		if calendar.DayKey(existing.Day) == key {
			return mensa.ErrHolidayExists
		}
	}

	hc := *h
	s.holidays[h.ID.String()] = &hc
	return nil
}

func (s *Store) DeleteHoliday(_ context.Context, holidayID id.HolidayID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holidays[holidayID.String()]; !ok {
		return mensa.ErrHolidayNotFound
	}

	delete(s.holidays, holidayID.String())
	return nil
}

func (s *Store) ListHolidays(_ context.Context, from, to time.Time) ([]*calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*calendar.Holiday, 0)
	for _, h := range s.holidays {
		if !from.IsZero() && calendar.Normalize(h.Day).Before(calendar.Normalize(from)) {
			continue
		}
		if !to.IsZero() && calendar.Normalize(h.Day).After(calendar.Normalize(to)) {
			continue
		}
		hc := *h
		matched = append(matched, &hc)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Day.Before(matched[j].Day)
	})

	return matched, nil
}

// ──────────────────────────────────────────────────
// Sweep scans
// ──────────────────────────────────────────────────

func (s *Store) ListAccountsToActivate(_ context.Context, today time.Time) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if a.Status == account.StatusBlocked || a.Status == account.StatusActivePeriod {
			continue
		}
		if a.PeriodCovers(today) {
			matched = append(matched, cloneAccount(a))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID.String() < matched[j].ID.String()
	})

	return matched, nil
}

func (s *Store) ListAccountsToDeactivate(_ context.Context, today time.Time) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := calendar.Normalize(today)

	matched := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if !a.HasPeriod() {
			continue
		}
		if calendar.Normalize(*a.PeriodEnd).Before(cutoff) {
			matched = append(matched, cloneAccount(a))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID.String() < matched[j].ID.String()
	})

	return matched, nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return mensa.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func cloneAccount(a *account.Account) *account.Account {
	c := *a
	if a.PeriodStart != nil {
		t := *a.PeriodStart
		c.PeriodStart = &t
	}
	if a.PeriodEnd != nil {
		t := *a.PeriodEnd
		c.PeriodEnd = &t
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneEntry(e *entry.Entry) *entry.Entry {
	c := *e
	if e.UsedOn != nil {
		t := *e.UsedOn
		c.UsedOn = &t
	}
	if e.PeriodStart != nil {
		t := *e.PeriodStart
		c.PeriodStart = &t
	}
	if e.PeriodEnd != nil {
		t := *e.PeriodEnd
		c.PeriodEnd = &t
	}
	return &c
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	if p.EmailSentAt != nil {
		t := *p.EmailSentAt
		c.EmailSentAt = &t
	}
	return &c
}

func cloneLog(l *period.LogEntry) *period.LogEntry {
	c := *l
	if l.ClosedAt != nil {
		t := *l.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
