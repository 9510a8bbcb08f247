package mongo

import (
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/types"
)

// Calendar days are stored as "2006-01-02" keys so that day semantics are
// stable across server time zones and lexical comparison orders them.

// ==================== Account model ====================

type accountModel struct {
	ID          string         `bson:"_id"`
	OwnerRef    string         `bson:"owner_ref"`
	Tokens      int64          `bson:"tokens"`
	Status      string         `bson:"status"`
	PeriodStart *string        `bson:"period_start,omitempty"`
	PeriodEnd   *string        `bson:"period_end,omitempty"`
	Version     int64          `bson:"version"`
	Metadata    map[string]any `bson:"metadata,omitempty"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:          a.ID.String(),
		OwnerRef:    a.OwnerRef,
		Tokens:      a.Tokens,
		Status:      string(a.Status),
		PeriodStart: dayKeyPtr(a.PeriodStart),
		PeriodEnd:   dayKeyPtr(a.PeriodEnd),
		Version:     a.Version,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	start, err := dayPtr(m.PeriodStart)
	if err != nil {
		return nil, err
	}
	end, err := dayPtr(m.PeriodEnd)
	if err != nil {
		return nil, err
	}

	return &account.Account{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          accountID,
		OwnerRef:    m.OwnerRef,
		Tokens:      m.Tokens,
		Status:      account.Status(m.Status),
		PeriodStart: start,
		PeriodEnd:   end,
		Version:     m.Version,
		Metadata:    m.Metadata,
	}, nil
}

// ==================== Entry model ====================

type entryModel struct {
	ID              string    `bson:"_id"`
	AccountID       string    `bson:"account_id"`
	Change          int64     `bson:"change"`
	Reason          string    `bson:"reason"`
	Note            string    `bson:"note,omitempty"`
	OccurredAt      time.Time `bson:"occurred_at"`
	UsedOn          *string   `bson:"used_on,omitempty"`
	ConsumptionKey  *string   `bson:"consumption_key,omitempty"`
	PeriodStart     *string   `bson:"period_start,omitempty"`
	PeriodEnd       *string   `bson:"period_end,omitempty"`
	PaymentID       string    `bson:"payment_id,omitempty"`
	PerformedBy     string    `bson:"performed_by"`
	PerformedByRole string    `bson:"performed_by_role"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toEntryModel(e *entry.Entry) *entryModel {
	m := &entryModel{
		ID:              e.ID.String(),
		AccountID:       e.AccountID.String(),
		Change:          e.Change,
		Reason:          string(e.Reason),
		Note:            e.Note,
		OccurredAt:      e.OccurredAt,
		UsedOn:          dayKeyPtr(e.UsedOn),
		PeriodStart:     dayKeyPtr(e.PeriodStart),
		PeriodEnd:       dayKeyPtr(e.PeriodEnd),
		PerformedBy:     e.PerformedBy,
		PerformedByRole: string(e.PerformedByRole),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
	if !e.PaymentID.IsNil() {
		m.PaymentID = e.PaymentID.String()
	}
	// The unique index on consumption_key enforces one consumption per
	// account per day; non-consumption entries leave it unset.
	if e.Reason.IsConsumption() && e.UsedOn != nil {
		key := m.AccountID + ":" + calendar.DayKey(*e.UsedOn)
		m.ConsumptionKey = &key
	}
	return m
}

func fromEntryModel(m *entryModel) (*entry.Entry, error) {
	entryID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.Parse(m.AccountID)
	if err != nil {
		return nil, err
	}
	usedOn, err := dayPtr(m.UsedOn)
	if err != nil {
		return nil, err
	}
	periodStart, err := dayPtr(m.PeriodStart)
	if err != nil {
		return nil, err
	}
	periodEnd, err := dayPtr(m.PeriodEnd)
	if err != nil {
		return nil, err
	}

	e := &entry.Entry{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              entryID,
		AccountID:       accountID,
		Change:          m.Change,
		Reason:          entry.Reason(m.Reason),
		Note:            m.Note,
		OccurredAt:      m.OccurredAt,
		UsedOn:          usedOn,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		PerformedBy:     m.PerformedBy,
		PerformedByRole: actor.Role(m.PerformedByRole),
	}
	if m.PaymentID != "" {
		if e.PaymentID, err = id.Parse(m.PaymentID); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ==================== Payment model ====================

type paymentModel struct {
	ID           string     `bson:"_id"`
	AccountID    string     `bson:"account_id"`
	TicketSeq    int64      `bson:"ticket_seq"`
	TicketNumber string     `bson:"ticket_number"`
	Tokens       int64      `bson:"tokens"`
	UnitPrice    int64      `bson:"unit_price"`
	Amount       int64      `bson:"amount"`
	Currency     string     `bson:"currency"`
	IssuedAt     time.Time  `bson:"issued_at"`
	ReceivedBy   string     `bson:"received_by,omitempty"`
	EmailSent    bool       `bson:"email_sent"`
	EmailSentAt  *time.Time `bson:"email_sent_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:           p.ID.String(),
		AccountID:    p.AccountID.String(),
		TicketSeq:    p.TicketSeq,
		TicketNumber: p.TicketNumber,
		Tokens:       p.Tokens,
		UnitPrice:    p.UnitPrice.Amount,
		Amount:       p.Amount.Amount,
		Currency:     p.Amount.Currency,
		IssuedAt:     p.IssuedAt,
		ReceivedBy:   p.ReceivedBy,
		EmailSent:    p.EmailSent,
		EmailSentAt:  p.EmailSentAt,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	paymentID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.Parse(m.AccountID)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		Entity:       types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           paymentID,
		AccountID:    accountID,
		TicketSeq:    m.TicketSeq,
		TicketNumber: m.TicketNumber,
		Tokens:       m.Tokens,
		UnitPrice:    types.Money{Amount: m.UnitPrice, Currency: m.Currency},
		Amount:       types.Money{Amount: m.Amount, Currency: m.Currency},
		IssuedAt:     m.IssuedAt,
		ReceivedBy:   m.ReceivedBy,
		EmailSent:    m.EmailSent,
		EmailSentAt:  m.EmailSentAt,
	}, nil
}

// ==================== Period log model ====================

type periodLogModel struct {
	ID         string     `bson:"_id"`
	AccountID  string     `bson:"account_id"`
	StartDay   string     `bson:"start_day"`
	EndDay     string     `bson:"end_day"`
	Outcome    string     `bson:"outcome"`
	AssignedBy string     `bson:"assigned_by,omitempty"`
	ClosedAt   *time.Time `bson:"closed_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
}

func toPeriodLogModel(l *period.LogEntry) *periodLogModel {
	return &periodLogModel{
		ID:         l.ID.String(),
		AccountID:  l.AccountID.String(),
		StartDay:   calendar.DayKey(l.Start),
		EndDay:     calendar.DayKey(l.End),
		Outcome:    string(l.Outcome),
		AssignedBy: l.AssignedBy,
		ClosedAt:   l.ClosedAt,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

func fromPeriodLogModel(m *periodLogModel) (*period.LogEntry, error) {
	logID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.Parse(m.AccountID)
	if err != nil {
		return nil, err
	}
	start, err := parseDay(m.StartDay)
	if err != nil {
		return nil, err
	}
	end, err := parseDay(m.EndDay)
	if err != nil {
		return nil, err
	}

	return &period.LogEntry{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         logID,
		AccountID:  accountID,
		Start:      start,
		End:        end,
		Outcome:    period.Outcome(m.Outcome),
		AssignedBy: m.AssignedBy,
		ClosedAt:   m.ClosedAt,
	}, nil
}

// ==================== Holiday model ====================

type holidayModel struct {
	ID        string    `bson:"_id"`
	Day       string    `bson:"day"`
	Reason    string    `bson:"reason,omitempty"`
	CreatedBy string    `bson:"created_by,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toHolidayModel(h *calendar.Holiday) *holidayModel {
	return &holidayModel{
		ID:        h.ID.String(),
		Day:       calendar.DayKey(h.Day),
		Reason:    h.Reason,
		CreatedBy: h.CreatedBy,
		CreatedAt: h.CreatedAt,
		UpdatedAt: h.UpdatedAt,
	}
}

func fromHolidayModel(m *holidayModel) (*calendar.Holiday, error) {
	holidayID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	day, err := parseDay(m.Day)
	if err != nil {
		return nil, err
	}

	return &calendar.Holiday{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        holidayID,
		Day:       day,
		Reason:    m.Reason,
		CreatedBy: m.CreatedBy,
	}, nil
}

// ==================== Day helpers ====================

func dayKeyPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	key := calendar.DayKey(*t)
	return &key
}

func dayPtr(key *string) (*time.Time, error) {
	if key == nil {
		return nil, nil //nolint:nilnil // absent day key maps to no day
	}
	t, err := parseDay(*key)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDay(key string) (time.Time, error) {
	return time.ParseInLocation(calendar.DayFormat, key, time.Local)
}
