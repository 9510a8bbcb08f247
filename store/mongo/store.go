// Package mongo provides a MongoDB-backed Store implementation. Atomic
// operations run inside causally consistent multi-document transactions,
// so it requires a replica set (or mongos).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
	mensastore "github.com/xraph/mensa/store"
)

// Collection name constants.
const (
	colAccounts  = "mensa_accounts"
	colEntries   = "mensa_entries"
	colPayments  = "mensa_payments"
	colPeriodLog = "mensa_period_log"
	colHolidays  = "mensa_holidays"
	colCounters  = "mensa_counters"
)

const ticketCounterID = "ticket_seq"

// compile-time interface check
var _ mensastore.Store = (*Store)(nil)

// Store implements store.Store on the official MongoDB driver.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a MongoDB store on the given client and database name.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "owner_ref", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "period_end", Value: 1}}},
		},
		colEntries: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "occurred_at", Value: 1}}},
			{
				Keys: bson.D{{Key: "consumption_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"consumption_key": bson.M{"$exists": true}}),
			},
		},
		colPayments: {
			{Keys: bson.D{{Key: "ticket_seq", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "issued_at", Value: 1}}},
			{Keys: bson.D{{Key: "email_sent", Value: 1}}},
		},
		colPeriodLog: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "start_day", Value: 1}}},
		},
		colHolidays: {
			{Keys: bson.D{{Key: "day", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for col, models := range indexes {
		if _, err := s.col(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: %s indexes: %v", mensa.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", mensa.ErrStoreNotReady, err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func isDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// inTx runs fn inside a multi-document transaction.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: %v", mensa.ErrTransactionFailed, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, fn(sc)
	})
	return err
}

// ==================== Accounts ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.col(colAccounts).InsertOne(ctx, toAccountModel(a))
	if err != nil {
		if isDuplicateKey(err) {
			return mensa.ErrAccountExists
		}
		return fmt.Errorf("mensa/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": accountID.String()})
}

func (s *Store) GetAccountByOwnerRef(ctx context.Context, ownerRef string) (*account.Account, error) {
	return s.findAccount(ctx, bson.M{"owner_ref": ownerRef})
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (*account.Account, error) {
	var m accountModel
	if err := s.col(colAccounts).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, mensa.ErrAccountNotFound
		}
		return nil, fmt.Errorf("mensa/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.OwnerRef != "" {
		filter["owner_ref"] = opts.OwnerRef
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	return s.queryAccounts(ctx, filter, findOpts)
}

func (s *Store) queryAccounts(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*account.Account, error) {
	cursor, err := s.col(colAccounts).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mensa/mongo: list accounts: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	out := make([]*account.Account, 0)
	for cursor.Next(ctx) {
		var m accountModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("mensa/mongo: decode account: %w", err)
		}
		a, err := fromAccountModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, cursor.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	return s.casAccount(ctx, a)
}

// casAccount applies a version-checked update and bumps the caller's
// version on success.
func (s *Store) casAccount(ctx context.Context, a *account.Account) error {
	now := time.Now()
	res, err := s.col(colAccounts).UpdateOne(ctx,
		bson.M{"_id": a.ID.String(), "version": a.Version},
		bson.M{
			"$set": bson.M{
				"tokens":       a.Tokens,
				"status":       string(a.Status),
				"period_start": dayKeyPtr(a.PeriodStart),
				"period_end":   dayKeyPtr(a.PeriodEnd),
				"metadata":     a.Metadata,
				"updated_at":   now,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("mensa/mongo: update account: %w", err)
	}
	if res.MatchedCount == 0 {
		count, err := s.col(colAccounts).CountDocuments(ctx, bson.M{"_id": a.ID.String()})
		if err != nil {
			return fmt.Errorf("mensa/mongo: update account: %w", err)
		}
		if count == 0 {
			return mensa.ErrAccountNotFound
		}
		return mensa.ErrVersionConflict
	}

	a.Version++
	a.UpdatedAt = now
	return nil
}

// ==================== Atomic operations ====================

func (s *Store) RecordConsumption(ctx context.Context, a *account.Account, e *entry.Entry) error {
	return s.inTx(ctx, func(sc context.Context) error {
		if err := s.casAccount(sc, a); err != nil {
			return err
		}
		if _, err := s.col(colEntries).InsertOne(sc, toEntryModel(e)); err != nil {
			if isDuplicateKey(err) {
				return mensa.ErrAlreadyUsedToday
			}
			return fmt.Errorf("mensa/mongo: insert entry: %w", err)
		}
		return nil
	})
}

func (s *Store) RecordBalanceChange(ctx context.Context, a *account.Account, e *entry.Entry, p *payment.Payment) error {
	return s.inTx(ctx, func(sc context.Context) error {
		if err := s.casAccount(sc, a); err != nil {
			return err
		}
		if p != nil {
			if err := s.insertPayment(sc, p); err != nil {
				return err
			}
			e.PaymentID = p.ID
		}
		if _, err := s.col(colEntries).InsertOne(sc, toEntryModel(e)); err != nil {
			return fmt.Errorf("mensa/mongo: insert entry: %w", err)
		}
		return nil
	})
}

func (s *Store) RecordPeriodAssigned(ctx context.Context, a *account.Account, e *entry.Entry, log *period.LogEntry, p *payment.Payment) error {
	return s.inTx(ctx, func(sc context.Context) error {
		if err := s.casAccount(sc, a); err != nil {
			return err
		}
		if p != nil {
			if err := s.insertPayment(sc, p); err != nil {
				return err
			}
			e.PaymentID = p.ID
		}
		if _, err := s.col(colEntries).InsertOne(sc, toEntryModel(e)); err != nil {
			return fmt.Errorf("mensa/mongo: insert entry: %w", err)
		}
		if _, err := s.col(colPeriodLog).InsertOne(sc, toPeriodLogModel(log)); err != nil {
			return fmt.Errorf("mensa/mongo: insert period log: %w", err)
		}
		return nil
	})
}

func (s *Store) RecordPeriodClosed(ctx context.Context, a *account.Account, e *entry.Entry, logID id.PeriodLogID, outcome period.Outcome, closedAt time.Time) error {
	return s.inTx(ctx, func(sc context.Context) error {
		res, err := s.col(colPeriodLog).UpdateOne(sc,
			bson.M{"_id": logID.String()},
			bson.M{"$set": bson.M{
				"outcome":    string(outcome),
				"closed_at":  closedAt,
				"updated_at": time.Now(),
			}},
		)
		if err != nil {
			return fmt.Errorf("mensa/mongo: close period log: %w", err)
		}
		if res.MatchedCount == 0 {
			return mensa.ErrNoPeriod
		}

		if err := s.casAccount(sc, a); err != nil {
			return err
		}
		if _, err := s.col(colEntries).InsertOne(sc, toEntryModel(e)); err != nil {
			return fmt.Errorf("mensa/mongo: insert entry: %w", err)
		}
		return nil
	})
}

// insertPayment assigns the next ticket sequence from the counters
// collection and writes the payment document.
func (s *Store) insertPayment(ctx context.Context, p *payment.Payment) error {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.col(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": ticketCounterID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return fmt.Errorf("mensa/mongo: next ticket: %w", err)
	}

	p.TicketSeq = counter.Seq
	p.TicketNumber = payment.FormatTicket(counter.Seq)

	if _, err := s.col(colPayments).InsertOne(ctx, toPaymentModel(p)); err != nil {
		return fmt.Errorf("mensa/mongo: insert payment: %w", err)
	}
	return nil
}

// ==================== Ledger ====================

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*entry.Entry, error) {
	var m entryModel
	if err := s.col(colEntries).FindOne(ctx, bson.M{"_id": entryID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, mensa.ErrNotFound
		}
		return nil, fmt.Errorf("mensa/mongo: get entry: %w", err)
	}
	return fromEntryModel(&m)
}

func (s *Store) ListEntries(ctx context.Context, opts entry.ListOpts) ([]*entry.Entry, error) {
	filter := bson.M{}
	if !opts.AccountID.IsNil() {
		filter["account_id"] = opts.AccountID.String()
	}
	if opts.Reason != "" {
		filter["reason"] = string(opts.Reason)
	}
	occurred := bson.M{}
	if !opts.From.IsZero() {
		occurred["$gte"] = opts.From
	}
	if !opts.To.IsZero() {
		occurred["$lte"] = opts.To
	}
	if len(occurred) > 0 {
		filter["occurred_at"] = occurred
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.col(colEntries).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mensa/mongo: list entries: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	out := make([]*entry.Entry, 0)
	for cursor.Next(ctx) {
		var m entryModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("mensa/mongo: decode entry: %w", err)
		}
		e, err := fromEntryModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, cursor.Err()
}

func (s *Store) HasConsumptionOn(ctx context.Context, accountID id.AccountID, day time.Time) (bool, error) {
	key := accountID.String() + ":" + calendar.DayKey(day)
	count, err := s.col(colEntries).CountDocuments(ctx, bson.M{"consumption_key": key})
	if err != nil {
		return false, fmt.Errorf("mensa/mongo: consumption lookup: %w", err)
	}
	return count > 0, nil
}

func (s *Store) SumChanges(ctx context.Context, accountID id.AccountID) (int64, error) {
	cursor, err := s.col(colEntries).Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"account_id": accountID.String()}}},
		bson.D{{Key: "$group", Value: bson.M{"_id": nil, "sum": bson.M{"$sum": "$change"}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("mensa/mongo: sum changes: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var result struct {
		Sum int64 `bson:"sum"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("mensa/mongo: sum changes: %w", err)
		}
	}
	return result.Sum, cursor.Err()
}

// ==================== Payments ====================

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return s.findPayment(ctx, bson.M{"_id": paymentID.String()}, mensa.ErrPaymentNotFound)
}

func (s *Store) GetPaymentByTicket(ctx context.Context, ticketSeq int64) (*payment.Payment, error) {
	return s.findPayment(ctx, bson.M{"ticket_seq": ticketSeq}, mensa.ErrTicketNotFound)
}

func (s *Store) findPayment(ctx context.Context, filter bson.M, notFound error) (*payment.Payment, error) {
	var m paymentModel
	if err := s.col(colPayments).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("mensa/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	filter := bson.M{}
	if !opts.AccountID.IsNil() {
		filter["account_id"] = opts.AccountID.String()
	}
	issued := bson.M{}
	if !opts.From.IsZero() {
		issued["$gte"] = opts.From
	}
	if !opts.To.IsZero() {
		issued["$lte"] = opts.To
	}
	if len(issued) > 0 {
		filter["issued_at"] = issued
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "ticket_seq", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	return s.queryPayments(ctx, filter, findOpts)
}

func (s *Store) ListUnsentPayments(ctx context.Context, limit int) ([]*payment.Payment, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "ticket_seq", Value: 1}})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}
	return s.queryPayments(ctx, bson.M{"email_sent": false}, findOpts)
}

func (s *Store) queryPayments(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*payment.Payment, error) {
	cursor, err := s.col(colPayments).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mensa/mongo: list payments: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	out := make([]*payment.Payment, 0)
	for cursor.Next(ctx) {
		var m paymentModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("mensa/mongo: decode payment: %w", err)
		}
		p, err := fromPaymentModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, cursor.Err()
}

func (s *Store) MarkReceiptSent(ctx context.Context, paymentID id.PaymentID, sentAt time.Time) error {
	res, err := s.col(colPayments).UpdateOne(ctx,
		bson.M{"_id": paymentID.String()},
		bson.M{"$set": bson.M{
			"email_sent":    true,
			"email_sent_at": sentAt,
			"updated_at":    time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("mensa/mongo: mark receipt sent: %w", err)
	}
	if res.MatchedCount == 0 {
		return mensa.ErrPaymentNotFound
	}
	return nil
}

// ==================== Period log ====================

func (s *Store) ListPeriodLog(ctx context.Context, accountID id.AccountID) ([]*period.LogEntry, error) {
	cursor, err := s.col(colPeriodLog).Find(ctx,
		bson.M{"account_id": accountID.String()},
		options.Find().SetSort(bson.D{{Key: "start_day", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mensa/mongo: list period log: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	out := make([]*period.LogEntry, 0)
	for cursor.Next(ctx) {
		var m periodLogModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("mensa/mongo: decode period log: %w", err)
		}
		l, err := fromPeriodLogModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, cursor.Err()
}

func (s *Store) GetActivePeriodLog(ctx context.Context, accountID id.AccountID) (*period.LogEntry, error) {
	var m periodLogModel
	err := s.col(colPeriodLog).FindOne(ctx, bson.M{
		"account_id": accountID.String(),
		"outcome":    string(period.OutcomeActive),
	}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, mensa.ErrNoPeriod
		}
		return nil, fmt.Errorf("mensa/mongo: active period log: %w", err)
	}
	return fromPeriodLogModel(&m)
}

// ==================== Holidays ====================

func (s *Store) CreateHoliday(ctx context.Context, h *calendar.Holiday) error {
	if _, err := s.col(colHolidays).InsertOne(ctx, toHolidayModel(h)); err != nil {
		if isDuplicateKey(err) {
			return mensa.ErrHolidayExists
		}
		return fmt.Errorf("mensa/mongo: create holiday: %w", err)
	}
	return nil
}

func (s *Store) DeleteHoliday(ctx context.Context, holidayID id.HolidayID) error {
	res, err := s.col(colHolidays).DeleteOne(ctx, bson.M{"_id": holidayID.String()})
	if err != nil {
		return fmt.Errorf("mensa/mongo: delete holiday: %w", err)
	}
	if res.DeletedCount == 0 {
		return mensa.ErrHolidayNotFound
	}
	return nil
}

func (s *Store) ListHolidays(ctx context.Context, from, to time.Time) ([]*calendar.Holiday, error) {
	filter := bson.M{}
	day := bson.M{}
	if !from.IsZero() {
		day["$gte"] = calendar.DayKey(from)
	}
	if !to.IsZero() {
		day["$lte"] = calendar.DayKey(to)
	}
	if len(day) > 0 {
		filter["day"] = day
	}

	cursor, err := s.col(colHolidays).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "day", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mensa/mongo: list holidays: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	out := make([]*calendar.Holiday, 0)
	for cursor.Next(ctx) {
		var m holidayModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("mensa/mongo: decode holiday: %w", err)
		}
		h, err := fromHolidayModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, cursor.Err()
}

// ==================== Sweep scans ====================

func (s *Store) ListAccountsToActivate(ctx context.Context, today time.Time) ([]*account.Account, error) {
	key := calendar.DayKey(today)
	return s.queryAccounts(ctx, bson.M{
		"period_start": bson.M{"$lte": key},
		"period_end":   bson.M{"$gte": key},
		"status": bson.M{"$nin": bson.A{
			string(account.StatusBlocked),
			string(account.StatusActivePeriod),
		}},
	}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *Store) ListAccountsToDeactivate(ctx context.Context, today time.Time) ([]*account.Account, error) {
	return s.queryAccounts(ctx, bson.M{
		"period_end": bson.M{"$lt": calendar.DayKey(today)},
	}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}
