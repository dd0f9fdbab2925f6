package api

import (
	"net/http"

	"github.com/eventix/eventix/internal/service/tickets"
	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	service tickets.TicketUseCase
}

type redeemRequest struct {
	Credential string `json:"credential"`
}

func NewTicketHandler(service tickets.TicketUseCase) *TicketHandler {
	return &TicketHandler{service: service}
}

func (h *TicketHandler) Register(router *gin.RouterGroup) {
	router.GET("/cart", h.cart)
	router.GET("/my", h.myTickets)
	router.GET("/:id", h.get)
	router.GET("/:id/qr", h.qr)
	router.DELETE("/:id", h.remove)
	router.POST("/:id/redeem", h.redeem)
}

func (h *TicketHandler) cart(c *gin.Context) {
	list, err := h.service.Cart(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}

func (h *TicketHandler) myTickets(c *gin.Context) {
	list, err := h.service.MyTickets(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}

func (h *TicketHandler) get(c *gin.Context) {
	ticket, err := h.service.Get(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, ticket)
}

func (h *TicketHandler) qr(c *gin.Context) {
	dataURL, err := h.service.QRCode(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"qr": dataURL})
}

func (h *TicketHandler) remove(c *gin.Context) {
	if err := h.service.RemoveFromCart(c.Request.Context(), identityFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"removed": c.Param("id")})
}

func (h *TicketHandler) redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	ticket, err := h.service.Redeem(c.Request.Context(), identityFrom(c), c.Param("id"), req.Credential)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, ticket)
}
