package checkout

import "errors"

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrContactRequired  = errors.New("contact email is required")
	ErrForbidden        = errors.New("caller may not perform this action")
	ErrEventNotOnSale   = errors.New("event is not on sale")
	ErrDuplicateTicket  = errors.New("user already holds a ticket for this event")
	ErrCheckoutInFlight = errors.New("another checkout is already in progress")
	ErrPaymentFailed    = errors.New("payment failed")
)
