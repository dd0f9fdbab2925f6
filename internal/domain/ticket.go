package domain

import "time"

type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "PENDING"
	TicketStatusConfirmed TicketStatus = "CONFIRMED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
	TicketStatusUsed      TicketStatus = "USED"
)

// Ticket is one buyer's claim on one unit of an event's capacity. A pending
// ticket holds a capacity reservation; the reservation is released exactly
// once, on the pending -> cancelled transition.
type Ticket struct {
	ID           string
	UserID       string
	EventID      int64
	PriceCents   int64
	Status       TicketStatus
	SessionToken string
	Credential   string
	PurchaseDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t *Ticket) IsPaid() bool {
	return t.Status == TicketStatusConfirmed || t.Status == TicketStatusUsed
}

func (t *Ticket) IsUsed() bool {
	return t.Status == TicketStatusUsed
}

func (t *Ticket) CanCancel() bool {
	return t.Status == TicketStatusPending
}

func (t *Ticket) CanRedeem() bool {
	return t.Status == TicketStatusConfirmed
}
