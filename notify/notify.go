// Package notify defines the outbound notification contract. Delivery is
// best-effort: a failed send never rolls back ledger state, callers only
// record whether the send succeeded.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/mensa/types"
)

// UseReceipt is the payload for a meal-consumption confirmation.
type UseReceipt struct {
	Email      string
	OwnerName  string
	UsedOn     time.Time
	TokensLeft int64
	InPeriod   bool
}

// PaymentReceipt is the payload for a top-up or period-purchase receipt.
type PaymentReceipt struct {
	Email        string
	OwnerName    string
	TicketNumber string
	Tokens       int64
	Amount       types.Money
	IssuedAt     time.Time
}

// Service delivers receipts to account owners.
type Service interface {
	SendUseReceipt(ctx context.Context, r UseReceipt) error
	SendPaymentReceipt(ctx context.Context, r PaymentReceipt) error
}

// Nop discards all receipts. The engine default.
type Nop struct{}

func (Nop) SendUseReceipt(context.Context, UseReceipt) error         { return nil }
func (Nop) SendPaymentReceipt(context.Context, PaymentReceipt) error { return nil }

var _ Service = Nop{}

// Logger writes receipts to a slog.Logger instead of delivering them.
// Useful in development and as a wiring placeholder.
type Logger struct {
	log *slog.Logger
}

// NewLogger builds a logging Service. A nil logger uses slog.Default().
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}

	return &Logger{log: log}
}

func (l *Logger) SendUseReceipt(ctx context.Context, r UseReceipt) error {
	l.log.InfoContext(ctx, "use receipt",
		slog.String("email", r.Email),
		slog.Time("used_on", r.UsedOn),
		slog.Int64("tokens_left", r.TokensLeft),
		slog.Bool("in_period", r.InPeriod),
	)

	return nil
}

func (l *Logger) SendPaymentReceipt(ctx context.Context, r PaymentReceipt) error {
	l.log.InfoContext(ctx, "payment receipt",
		slog.String("email", r.Email),
		slog.String("ticket", r.TicketNumber),
		slog.Int64("tokens", r.Tokens),
		slog.String("amount", r.Amount.String()),
	)

	return nil
}

var _ Service = (*Logger)(nil)
