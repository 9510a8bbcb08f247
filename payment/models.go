// Package payment defines the payment record and sequential ticket
// numbering written alongside every top-up.
package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/types"
)

// TicketPrefix is the display prefix for payment ticket numbers.
const TicketPrefix = "TCK-"

// Payment records money received for a token top-up. The ticket sequence
// is strictly monotonic across all payments and gap-free under normal
// operation; it is assigned inside the same transaction that credits
// tokens.
type Payment struct {
	types.Entity
	ID        id.PaymentID `json:"id"`
	AccountID id.AccountID `json:"account_id"`

	TicketSeq    int64  `json:"ticket_seq"`
	TicketNumber string `json:"ticket_number"`

	Tokens    int64       `json:"tokens"`
	UnitPrice types.Money `json:"unit_price"`
	Amount    types.Money `json:"amount"`

	IssuedAt    time.Time  `json:"issued_at"`
	ReceivedBy  string     `json:"received_by"`
	EmailSent   bool       `json:"email_sent"`
	EmailSentAt *time.Time `json:"email_sent_at,omitempty"`
}

// FormatTicket renders a sequence number as a display ticket, e.g.
// seq 7 becomes "TCK-00007". Sequences past five digits widen naturally.
func FormatTicket(seq int64) string {
	return fmt.Sprintf("%s%05d", TicketPrefix, seq)
}

// ParseTicket extracts the sequence number from a display ticket.
func ParseTicket(ticket string) (int64, error) {
	raw, ok := strings.CutPrefix(ticket, TicketPrefix)
	if !ok {
		return 0, fmt.Errorf("payment: ticket %q: missing %q prefix", ticket, TicketPrefix)
	}

	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 1 {
		return 0, fmt.Errorf("payment: ticket %q: invalid sequence", ticket)
	}

	return seq, nil
}

// ListOpts filters payment listings.
type ListOpts struct {
	AccountID id.AccountID
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
