package domain

import "time"

type EventStatus string

const (
	EventStatusActive    EventStatus = "ACTIVE"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusCompleted EventStatus = "COMPLETED"
)

type Event struct {
	ID                int64
	Title             string
	Date              time.Time
	Location          string
	PriceCents        int64
	TotalCapacity     int
	AvailableCapacity int
	Status            EventStatus
	IsApproved        bool
	CategoryID        int64
	OrganizerID       int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OnSale reports whether tickets for the event may be reserved. Approval and
// status are always re-read from storage at reservation time, never taken
// from the client.
func (e *Event) OnSale() bool {
	return e.IsApproved && e.Status == EventStatusActive
}
