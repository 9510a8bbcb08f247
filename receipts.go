package mensa

import (
	"context"

	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/payment"
)

// GetPayment retrieves a payment by ID.
func (e *Engine) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return e.store.GetPayment(ctx, paymentID)
}

// GetPaymentByTicket retrieves a payment by its printed ticket number,
// e.g. "TCK-00042".
func (e *Engine) GetPaymentByTicket(ctx context.Context, ticket string) (*payment.Payment, error) {
	seq, err := payment.ParseTicket(ticket)
	if err != nil {
		return nil, err
	}
	return e.store.GetPaymentByTicket(ctx, seq)
}

// ListPayments lists payments matching opts.
func (e *Engine) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	return e.store.ListPayments(ctx, opts)
}

// ResendResult reports one receipt resend batch.
type ResendResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
}

// ResendReceipts retries confirmation emails for payments whose receipt
// never went out. Delivery stays best-effort; a payment that fails again
// remains queued for the next run.
func (e *Engine) ResendReceipts(ctx context.Context, limit int) (*ResendResult, error) {
	unsent, err := e.store.ListUnsentPayments(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &ResendResult{}
	for _, p := range unsent {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempted++

		a, err := e.store.GetAccount(ctx, p.AccountID)
		if err != nil {
			e.logger.WarnContext(ctx, "receipt resend skipped: account missing",
				"ticket", p.TicketNumber, "error", err)
			continue
		}

		e.deliverPaymentReceipt(ctx, a, p)
		if p.EmailSent {
			result.Sent++
		}
	}

	e.logger.InfoContext(ctx, "receipt resend batch completed",
		"attempted", result.Attempted,
		"sent", result.Sent,
	)

	return result, nil
}
