package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// CheckoutCreator opens payment intents
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, chatID int64, plan models.Plan) (*services.Checkout, error)
}

// CheckoutHandler creates checkouts on behalf of a chat
type CheckoutHandler struct {
	payments CheckoutCreator
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(payments CheckoutCreator) *CheckoutHandler {
	return &CheckoutHandler{payments: payments}
}

type checkoutRequest struct {
	ChatID int64  `json:"chatId" binding:"required"`
	Plan   string `json:"plan" binding:"required"`
}

// Create handles POST /checkout
func (h *CheckoutHandler) Create(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	checkout, err := h.payments.CreateCheckout(c.Request.Context(), req.ChatID, models.Plan(req.Plan))
	if errors.Is(err, services.ErrInvalidPlan) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payId":    checkout.Payment.PayID,
		"plan":     checkout.Payment.Plan,
		"amount":   checkout.Payment.Amount,
		"currency": checkout.Payment.Currency,
		"url":      checkout.URL,
	})
}
