// Package sqlite provides a SQLite-backed Store implementation using the
// pure-Go modernc.org/sqlite driver. It is the reference durable backend
// for single-school deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/store"
	"github.com/xraph/mensa/types"
)

// Store persists all Mensa entities in a single SQLite database.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) a SQLite store at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}

	dsn := path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	// SQLite admits one writer at a time; a single pooled connection keeps
	// concurrent transactions queued instead of failing busy.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Timestamps are stored as Unix millis; calendar days are stored as
// "2006-01-02" day keys so that day semantics survive time zones and
// string comparison orders them correctly.

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toDayKey(value *time.Time) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: calendar.DayKey(*value), Valid: true}
}

func fromDayKey(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil //nolint:nilnil // NULL column maps to no day
	}
	t, err := time.ParseInLocation(calendar.DayFormat, value.String, time.Local)
	if err != nil {
		return nil, fmt.Errorf("sqlite: bad day key %q: %w", value.String, err)
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────
// Schema
// ──────────────────────────────────────────────────

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		owner_ref     TEXT NOT NULL UNIQUE,
		tokens        INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL,
		period_start  TEXT,
		period_end    TEXT,
		version       INTEGER NOT NULL DEFAULT 0,
		metadata      TEXT,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		id                 TEXT PRIMARY KEY,
		account_id         TEXT NOT NULL REFERENCES accounts(id),
		change             INTEGER NOT NULL,
		reason             TEXT NOT NULL,
		note               TEXT NOT NULL DEFAULT '',
		occurred_at        INTEGER NOT NULL,
		used_on            TEXT,
		period_start       TEXT,
		period_end         TEXT,
		payment_id         TEXT,
		performed_by       TEXT NOT NULL DEFAULT '',
		performed_by_role  TEXT NOT NULL DEFAULT '',
		created_at         INTEGER NOT NULL,
		updated_at         INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_account
		ON entries(account_id, occurred_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_consumption_day
		ON entries(account_id, used_on)
		WHERE used_on IS NOT NULL
		  AND reason IN ('use', 'use_with_debt', 'use_in_period')`,
	`CREATE TABLE IF NOT EXISTS payments (
		id             TEXT PRIMARY KEY,
		account_id     TEXT NOT NULL REFERENCES accounts(id),
		ticket_seq     INTEGER NOT NULL UNIQUE,
		ticket_number  TEXT NOT NULL,
		tokens         INTEGER NOT NULL,
		unit_price     INTEGER NOT NULL DEFAULT 0,
		amount         INTEGER NOT NULL,
		currency       TEXT NOT NULL DEFAULT 'brl',
		issued_at      INTEGER NOT NULL,
		received_by    TEXT NOT NULL DEFAULT '',
		email_sent     INTEGER NOT NULL DEFAULT 0,
		email_sent_at  INTEGER,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS period_log (
		id           TEXT PRIMARY KEY,
		account_id   TEXT NOT NULL REFERENCES accounts(id),
		start_day    TEXT NOT NULL,
		end_day      TEXT NOT NULL,
		outcome      TEXT NOT NULL,
		assigned_by  TEXT NOT NULL DEFAULT '',
		closed_at    INTEGER,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_period_log_account
		ON period_log(account_id, start_day)`,
	`CREATE TABLE IF NOT EXISTS holidays (
		id          TEXT PRIMARY KEY,
		day         TEXT NOT NULL UNIQUE,
		reason      TEXT NOT NULL DEFAULT '',
		created_by  TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
}

// Migrate applies the schema statements. Statements are idempotent, so
// reapplying on startup is safe.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", mensa.ErrMigrationFailed, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", mensa.ErrStoreNotReady, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

const accountColumns = `id, owner_ref, tokens, status, period_start, period_end, version, metadata, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.OwnerRef, a.Tokens, string(a.Status),
		toDayKey(a.PeriodStart), toDayKey(a.PeriodEnd),
		a.Version, meta, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mensa.ErrAccountExists
		}
		return fmt.Errorf("sqlite: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, accountID.String())
	return scanAccount(row)
}

func (s *Store) GetAccountByOwnerRef(ctx context.Context, ownerRef string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_ref = ?`, ownerRef)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	args := make([]any, 0, 4)
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if opts.OwnerRef != "" {
		query += ` AND owner_ref = ?`
		args = append(args, opts.OwnerRef)
	}
	query += ` ORDER BY id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", mensa.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := casAccount(ctx, tx, a); err != nil {
		return err
	}
	return tx.Commit()
}

// casAccount applies a version-checked account update inside tx and bumps
// the caller's version on success.
func casAccount(ctx context.Context, tx *sql.Tx, a *account.Account) error {
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return err
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET tokens = ?, status = ?, period_start = ?, period_end = ?,
		     version = version + 1, metadata = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		a.Tokens, string(a.Status), toDayKey(a.PeriodStart), toDayKey(a.PeriodEnd),
		meta, toMillis(now), a.ID.String(), a.Version,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update account: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM accounts WHERE id = ?`, a.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: update account: %w", err)
		}
		if exists == 0 {
			return mensa.ErrAccountNotFound
		}
		return mensa.ErrVersionConflict
	}

	a.Version++
	a.UpdatedAt = now
	return nil
}

// ──────────────────────────────────────────────────
// Atomic operations
// ──────────────────────────────────────────────────

func (s *Store) RecordConsumption(ctx context.Context, a *account.Account, e *entry.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := casAccount(ctx, tx, a); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, e); err != nil {
			if isUniqueViolation(err) {
				return mensa.ErrAlreadyUsedToday
			}
			return err
		}
		return nil
	})
}

func (s *Store) RecordBalanceChange(ctx context.Context, a *account.Account, e *entry.Entry, p *payment.Payment) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := casAccount(ctx, tx, a); err != nil {
			return err
		}
		if p != nil {
			if err := insertPayment(ctx, tx, p); err != nil {
				return err
			}
			e.PaymentID = p.ID
		}
		return insertEntry(ctx, tx, e)
	})
}

func (s *Store) RecordPeriodAssigned(ctx context.Context, a *account.Account, e *entry.Entry, log *period.LogEntry, p *payment.Payment) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := casAccount(ctx, tx, a); err != nil {
			return err
		}
		if p != nil {
			if err := insertPayment(ctx, tx, p); err != nil {
				return err
			}
			e.PaymentID = p.ID
		}
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO period_log (id, account_id, start_day, end_day, outcome, assigned_by, closed_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
			log.ID.String(), log.AccountID.String(),
			calendar.DayKey(log.Start), calendar.DayKey(log.End),
			string(log.Outcome), log.AssignedBy,
			toMillis(log.CreatedAt), toMillis(log.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert period log: %w", err)
		}
		return nil
	})
}

func (s *Store) RecordPeriodClosed(ctx context.Context, a *account.Account, e *entry.Entry, logID id.PeriodLogID, outcome period.Outcome, closedAt time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE period_log SET outcome = ?, closed_at = ?, updated_at = ? WHERE id = ?`,
			string(outcome), toMillis(closedAt), toMillis(time.Now()), logID.String(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: close period log: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: close period log: %w", err)
		}
		if affected == 0 {
			return mensa.ErrNoPeriod
		}

		if err := casAccount(ctx, tx, a); err != nil {
			return err
		}
		return insertEntry(ctx, tx, e)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", mensa.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", mensa.ErrTransactionFailed, err)
	}
	return nil
}

// insertPayment assigns the next ticket sequence inside tx and writes the
// payment row. The unique index on ticket_seq backstops concurrent writers.
func insertPayment(ctx context.Context, tx *sql.Tx, p *payment.Payment) error {
	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ticket_seq), 0) + 1 FROM payments`).Scan(&next); err != nil {
		return fmt.Errorf("sqlite: next ticket: %w", err)
	}
	p.TicketSeq = next
	p.TicketNumber = payment.FormatTicket(next)

	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (id, account_id, ticket_seq, ticket_number, tokens, unit_price, amount, currency, issued_at, received_by, email_sent, email_sent_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		p.ID.String(), p.AccountID.String(), p.TicketSeq, p.TicketNumber,
		p.Tokens, p.UnitPrice.Amount, p.Amount.Amount, p.Amount.Currency,
		toMillis(p.IssuedAt), p.ReceivedBy,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert payment: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e *entry.Entry) error {
	var paymentID sql.NullString
	if !e.PaymentID.IsNil() {
		paymentID = sql.NullString{String: e.PaymentID.String(), Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, account_id, change, reason, note, occurred_at, used_on, period_start, period_end, payment_id, performed_by, performed_by_role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.AccountID.String(), e.Change, string(e.Reason), e.Note,
		toMillis(e.OccurredAt), toDayKey(e.UsedOn),
		toDayKey(e.PeriodStart), toDayKey(e.PeriodEnd),
		paymentID, e.PerformedBy, string(e.PerformedByRole),
		toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
	)
	return err
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

const entryColumns = `id, account_id, change, reason, note, occurred_at, used_on, period_start, period_end, payment_id, performed_by, performed_by_role, created_at, updated_at`

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*entry.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, entryID.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mensa.ErrNotFound
	}
	return e, err
}

func (s *Store) ListEntries(ctx context.Context, opts entry.ListOpts) ([]*entry.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE 1=1`
	args := make([]any, 0, 6)
	if !opts.AccountID.IsNil() {
		query += ` AND account_id = ?`
		args = append(args, opts.AccountID.String())
	}
	if opts.Reason != "" {
		query += ` AND reason = ?`
		args = append(args, string(opts.Reason))
	}
	if !opts.From.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, toMillis(opts.From))
	}
	if !opts.To.IsZero() {
		query += ` AND occurred_at <= ?`
		args = append(args, toMillis(opts.To))
	}
	query += ` ORDER BY occurred_at, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list entries: %w", err)
	}
	defer rows.Close()

	out := make([]*entry.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) HasConsumptionOn(ctx context.Context, accountID id.AccountID, day time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entries
		 WHERE account_id = ? AND used_on = ?
		   AND reason IN ('use', 'use_with_debt', 'use_in_period')`,
		accountID.String(), calendar.DayKey(day),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: consumption lookup: %w", err)
	}
	return count > 0, nil
}

func (s *Store) SumChanges(ctx context.Context, accountID id.AccountID) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(change), 0) FROM entries WHERE account_id = ?`,
		accountID.String(),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sum changes: %w", err)
	}
	return sum, nil
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

const paymentColumns = `id, account_id, ticket_seq, ticket_number, tokens, unit_price, amount, currency, issued_at, received_by, email_sent, email_sent_at, created_at, updated_at`

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, paymentID.String())
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mensa.ErrPaymentNotFound
	}
	return p, err
}

func (s *Store) GetPaymentByTicket(ctx context.Context, ticketSeq int64) (*payment.Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE ticket_seq = ?`, ticketSeq)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mensa.ErrTicketNotFound
	}
	return p, err
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := make([]any, 0, 4)
	if !opts.AccountID.IsNil() {
		query += ` AND account_id = ?`
		args = append(args, opts.AccountID.String())
	}
	if !opts.From.IsZero() {
		query += ` AND issued_at >= ?`
		args = append(args, toMillis(opts.From))
	}
	if !opts.To.IsZero() {
		query += ` AND issued_at <= ?`
		args = append(args, toMillis(opts.To))
	}
	query += ` ORDER BY ticket_seq`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	return s.queryPayments(ctx, query, args...)
}

func (s *Store) ListUnsentPayments(ctx context.Context, limit int) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE email_sent = 0 ORDER BY ticket_seq`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryPayments(ctx, query, args...)
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]*payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list payments: %w", err)
	}
	defer rows.Close()

	out := make([]*payment.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) MarkReceiptSent(ctx context.Context, paymentID id.PaymentID, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET email_sent = 1, email_sent_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(sentAt), toMillis(time.Now()), paymentID.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark receipt sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: mark receipt sent: %w", err)
	}
	if affected == 0 {
		return mensa.ErrPaymentNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Period log
// ──────────────────────────────────────────────────

const periodLogColumns = `id, account_id, start_day, end_day, outcome, assigned_by, closed_at, created_at, updated_at`

func (s *Store) ListPeriodLog(ctx context.Context, accountID id.AccountID) ([]*period.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+periodLogColumns+` FROM period_log WHERE account_id = ? ORDER BY start_day`,
		accountID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list period log: %w", err)
	}
	defer rows.Close()

	out := make([]*period.LogEntry, 0)
	for rows.Next() {
		l, err := scanPeriodLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) GetActivePeriodLog(ctx context.Context, accountID id.AccountID) (*period.LogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+periodLogColumns+` FROM period_log WHERE account_id = ? AND outcome = ?`,
		accountID.String(), string(period.OutcomeActive))
	l, err := scanPeriodLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mensa.ErrNoPeriod
	}
	return l, err
}

// ──────────────────────────────────────────────────
// Holidays
// ──────────────────────────────────────────────────

func (s *Store) CreateHoliday(ctx context.Context, h *calendar.Holiday) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO holidays (id, day, reason, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID.String(), calendar.DayKey(h.Day), h.Reason, h.CreatedBy,
		toMillis(h.CreatedAt), toMillis(h.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mensa.ErrHolidayExists
		}
		return fmt.Errorf("sqlite: create holiday: %w", err)
	}
	return nil
}

func (s *Store) DeleteHoliday(ctx context.Context, holidayID id.HolidayID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM holidays WHERE id = ?`, holidayID.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete holiday: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete holiday: %w", err)
	}
	if affected == 0 {
		return mensa.ErrHolidayNotFound
	}
	return nil
}

func (s *Store) ListHolidays(ctx context.Context, from, to time.Time) ([]*calendar.Holiday, error) {
	query := `SELECT id, day, reason, created_by, created_at, updated_at FROM holidays WHERE 1=1`
	args := make([]any, 0, 2)
	if !from.IsZero() {
		query += ` AND day >= ?`
		args = append(args, calendar.DayKey(from))
	}
	if !to.IsZero() {
		query += ` AND day <= ?`
		args = append(args, calendar.DayKey(to))
	}
	query += ` ORDER BY day`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list holidays: %w", err)
	}
	defer rows.Close()

	out := make([]*calendar.Holiday, 0)
	for rows.Next() {
		var (
			h         calendar.Holiday
			rawID     string
			dayKey    string
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&rawID, &dayKey, &h.Reason, &h.CreatedBy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan holiday: %w", err)
		}
		h.ID, err = id.Parse(rawID)
		if err != nil {
			return nil, err
		}
		day, err := fromDayKey(sql.NullString{String: dayKey, Valid: true})
		if err != nil {
			return nil, err
		}
		h.Day = *day
		h.CreatedAt = fromMillis(createdAt)
		h.UpdatedAt = fromMillis(updatedAt)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ──────────────────────────────────────────────────
// Sweep scans
// ──────────────────────────────────────────────────

func (s *Store) ListAccountsToActivate(ctx context.Context, today time.Time) ([]*account.Account, error) {
	key := calendar.DayKey(today)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE period_start IS NOT NULL AND period_end IS NOT NULL
		   AND period_start <= ? AND period_end >= ?
		   AND status NOT IN (?, ?)
		 ORDER BY id`,
		key, key, string(account.StatusBlocked), string(account.StatusActivePeriod))
	if err != nil {
		return nil, fmt.Errorf("sqlite: activation scan: %w", err)
	}
	return collectAccounts(rows)
}

func (s *Store) ListAccountsToDeactivate(ctx context.Context, today time.Time) ([]*account.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE period_end IS NOT NULL AND period_end < ?
		 ORDER BY id`,
		calendar.DayKey(today))
	if err != nil {
		return nil, fmt.Errorf("sqlite: deactivation scan: %w", err)
	}
	return collectAccounts(rows)
}

func collectAccounts(rows *sql.Rows) ([]*account.Account, error) {
	defer rows.Close()

	out := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ──────────────────────────────────────────────────
// Row scanning
// ──────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*account.Account, error) {
	var (
		a           account.Account
		rawID       string
		status      string
		periodStart sql.NullString
		periodEnd   sql.NullString
		meta        sql.NullString
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&rawID, &a.OwnerRef, &a.Tokens, &status,
		&periodStart, &periodEnd, &a.Version, &meta, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mensa.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan account: %w", err)
	}

	if a.ID, err = id.Parse(rawID); err != nil {
		return nil, err
	}
	a.Status = account.Status(status)
	if a.PeriodStart, err = fromDayKey(periodStart); err != nil {
		return nil, err
	}
	if a.PeriodEnd, err = fromDayKey(periodEnd); err != nil {
		return nil, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: bad account metadata: %w", err)
		}
	}
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

func scanEntry(row scanner) (*entry.Entry, error) {
	var (
		e           entry.Entry
		rawID       string
		rawAccount  string
		reason      string
		usedOn      sql.NullString
		periodStart sql.NullString
		periodEnd   sql.NullString
		paymentID   sql.NullString
		role        string
		occurredAt  int64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&rawID, &rawAccount, &e.Change, &reason, &e.Note,
		&occurredAt, &usedOn, &periodStart, &periodEnd, &paymentID,
		&e.PerformedBy, &role, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan entry: %w", err)
	}

	if e.ID, err = id.Parse(rawID); err != nil {
		return nil, err
	}
	if e.AccountID, err = id.Parse(rawAccount); err != nil {
		return nil, err
	}
	e.Reason = entry.Reason(reason)
	e.PerformedByRole = actor.Role(role)
	if e.UsedOn, err = fromDayKey(usedOn); err != nil {
		return nil, err
	}
	if e.PeriodStart, err = fromDayKey(periodStart); err != nil {
		return nil, err
	}
	if e.PeriodEnd, err = fromDayKey(periodEnd); err != nil {
		return nil, err
	}
	if paymentID.Valid {
		if e.PaymentID, err = id.Parse(paymentID.String); err != nil {
			return nil, err
		}
	}
	e.OccurredAt = fromMillis(occurredAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

func scanPayment(row scanner) (*payment.Payment, error) {
	var (
		p           payment.Payment
		rawID       string
		rawAccount  string
		unitPrice   int64
		amount      int64
		currency    string
		issuedAt    int64
		emailSentAt sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&rawID, &rawAccount, &p.TicketSeq, &p.TicketNumber,
		&p.Tokens, &unitPrice, &amount, &currency, &issuedAt, &p.ReceivedBy,
		&p.EmailSent, &emailSentAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan payment: %w", err)
	}

	if p.ID, err = id.Parse(rawID); err != nil {
		return nil, err
	}
	if p.AccountID, err = id.Parse(rawAccount); err != nil {
		return nil, err
	}
	p.UnitPrice = moneyOf(unitPrice, currency)
	p.Amount = moneyOf(amount, currency)
	p.IssuedAt = fromMillis(issuedAt)
	if emailSentAt.Valid {
		t := fromMillis(emailSentAt.Int64)
		p.EmailSentAt = &t
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func scanPeriodLog(row scanner) (*period.LogEntry, error) {
	var (
		l          period.LogEntry
		rawID      string
		rawAccount string
		startDay   string
		endDay     string
		outcome    string
		closedAt   sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(&rawID, &rawAccount, &startDay, &endDay, &outcome,
		&l.AssignedBy, &closedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan period log: %w", err)
	}

	if l.ID, err = id.Parse(rawID); err != nil {
		return nil, err
	}
	if l.AccountID, err = id.Parse(rawAccount); err != nil {
		return nil, err
	}
	start, err := fromDayKey(sql.NullString{String: startDay, Valid: true})
	if err != nil {
		return nil, err
	}
	end, err := fromDayKey(sql.NullString{String: endDay, Valid: true})
	if err != nil {
		return nil, err
	}
	l.Start, l.End = *start, *end
	l.Outcome = period.Outcome(outcome)
	if closedAt.Valid {
		t := fromMillis(closedAt.Int64)
		l.ClosedAt = &t
	}
	l.CreatedAt = fromMillis(createdAt)
	l.UpdatedAt = fromMillis(updatedAt)
	return &l, nil
}

func marshalMetadata(meta map[string]any) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sqlite: marshal metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func moneyOf(amount int64, currency string) types.Money {
	return types.Money{Amount: amount, Currency: currency}
}
