package repository

import "errors"

var (
	// ErrInsufficientCapacity is the expected outcome of a reservation that
	// would oversell an event. It is not a fault.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	ErrEventNotFound   = errors.New("event not found")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrSessionNotFound = errors.New("payment session not found")

	// ErrInvalidTransition means a status-guarded update matched no row: the
	// record is not in the state the transition requires.
	ErrInvalidTransition = errors.New("invalid status transition")
)
