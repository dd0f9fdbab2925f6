package email

import (
	"context"
	"fmt"

	"github.com/eventix/eventix/internal/kafka"
)

// Sender delivers ticket notifications. Delivery failures are reported to the
// caller for logging only; a lost email never rolls back a confirmed ticket.
type Sender struct{}

func NewSender() *Sender {
	return &Sender{}
}

func (s *Sender) Send(ctx context.Context, event kafka.TicketEvent) error {
	switch event.Type {
	case kafka.EventTicketsConfirmed:
		fmt.Printf("send confirmation email to %s: %d ticket(s), total %d cents\n", event.Email, len(event.TicketIDs), event.TotalCents)
	case kafka.EventTicketsCancelled, kafka.EventSessionExpired:
		fmt.Printf("send cancellation email to %s: session %s (%s)\n", event.Email, event.SessionToken, event.FailureReason)
	}
	return nil
}
