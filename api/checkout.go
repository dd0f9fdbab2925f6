package api

import (
	"net/http"

	"github.com/eventix/eventix/internal/service/checkout"
	"github.com/gin-gonic/gin"
)

type CheckoutHandler struct {
	service checkout.CheckoutUseCase
}

type initiateRequest struct {
	Items   []checkout.CartItem  `json:"items"`
	Contact checkout.ContactInfo `json:"contact"`
}

type initiateResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	TotalCents  int64  `json:"total_cents"`
	FeeCents    int64  `json:"fee_cents"`
	Currency    string `json:"currency"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type finalizeResponse struct {
	Paid      bool     `json:"paid"`
	Status    string   `json:"status"`
	TicketIDs []string `json:"ticket_ids,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

func NewCheckoutHandler(service checkout.CheckoutUseCase) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

// Register mounts the authenticated checkout routes. The webhook is mounted
// separately because the gateway calls it without a user token.
func (h *CheckoutHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.initiate)
	router.POST("/verify", h.verify)
}

func (h *CheckoutHandler) RegisterWebhook(router *gin.RouterGroup) {
	router.POST("/webhook", h.webhook)
}

func (h *CheckoutHandler) initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	result, err := h.service.Initiate(c.Request.Context(), checkout.InitiateInput{
		Identity: identityFrom(c),
		Items:    req.Items,
		Contact:  req.Contact,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, initiateResponse{
		Token:       result.Token,
		RedirectURL: result.RedirectURL,
		TotalCents:  result.Session.TotalCents,
		FeeCents:    result.Session.FeeCents,
		Currency:    result.Session.Currency,
	})
}

func (h *CheckoutHandler) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "token is required"})
		return
	}
	h.finalize(c, req.Token)
}

// webhook handles the gateway's server-to-server callback. The gateway posts
// the checkout token as a form field on redirect-style callbacks and as JSON
// on notification ones; both shapes are accepted.
func (h *CheckoutHandler) webhook(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.Token
		}
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "token is required"})
		return
	}
	h.finalize(c, token)
}

func (h *CheckoutHandler) finalize(c *gin.Context, token string) {
	result, err := h.service.Finalize(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, finalizeResponse{
		Paid:      result.Success,
		Status:    string(result.Status),
		TicketIDs: result.TicketIDs,
		Reason:    result.Reason,
	})
}
