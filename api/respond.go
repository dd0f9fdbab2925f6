package api

import (
	"errors"
	"net/http"

	"github.com/eventix/eventix/internal/repository"
	"github.com/eventix/eventix/internal/service/checkout"
	"github.com/eventix/eventix/internal/service/tickets"
	"github.com/gin-gonic/gin"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
}

// statusFor maps service sentinels to HTTP statuses. Anything unmapped is an
// internal error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrContactRequired),
		errors.Is(err, tickets.ErrBadCredential),
		errors.Is(err, tickets.ErrCredentialsUnset):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrForbidden),
		errors.Is(err, tickets.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrEventNotFound),
		errors.Is(err, repository.ErrTicketNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientCapacity),
		errors.Is(err, checkout.ErrDuplicateTicket),
		errors.Is(err, checkout.ErrCheckoutInFlight),
		errors.Is(err, checkout.ErrEventNotOnSale),
		errors.Is(err, tickets.ErrNotCancellable),
		errors.Is(err, tickets.ErrNotRedeemable),
		errors.Is(err, tickets.ErrAlreadyRedeemed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
