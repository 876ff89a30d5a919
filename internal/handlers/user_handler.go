package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// UserStore is the per-user document API used by operator endpoints
type UserStore interface {
	EnsureUser(ctx context.Context, chatID int64) (*models.UserRecord, error)
	SetPrefs(ctx context.Context, chatID int64, updates map[string]interface{}) error
	SetOptIn(ctx context.Context, chatID int64, optIn bool) error
	SetOptInAll(ctx context.Context, optIn bool) (int64, error)
	DropChat(ctx context.Context, chatID int64) error
	Count(ctx context.Context) (int64, error)
}

// QuotaReporter derives entitlements from a user record
type QuotaReporter interface {
	Effective(rec *models.UserRecord) models.EffectivePlan
	GetLimits(rec *models.UserRecord) (int64, int64)
	StatusText(rec *models.UserRecord) string
}

// SubscriptionManager mutates plans and expiries
type SubscriptionManager interface {
	SetSubscription(ctx context.Context, chatID int64, plan models.Plan, days int) (time.Time, error)
	ExtendProMonths(ctx context.Context, chatID int64, months int) (time.Time, error)
	ApplyPromocodeAccess(ctx context.Context, chatID int64, code string, days int) (bool, *time.Time, error)
}

// PaymentLister reads a user's payment history
type PaymentLister interface {
	ListByChatID(ctx context.Context, chatID int64, limit int) ([]*models.PaymentRecord, error)
}

// UserHandler serves operator endpoints for users and subscriptions
type UserHandler struct {
	users    UserStore
	quota    QuotaReporter
	subs     SubscriptionManager
	payments PaymentLister
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserStore, quota QuotaReporter, subs SubscriptionManager, payments PaymentLister) *UserHandler {
	return &UserHandler{
		users:    users,
		quota:    quota,
		subs:     subs,
		payments: payments,
	}
}

// StatusResponse is the operator view of one user
type StatusResponse struct {
	User       *models.UserRecord   `json:"user"`
	Effective  models.EffectivePlan `json:"effectivePlan"`
	TextLimit  int64                `json:"textLimit"`
	PhotoLimit int64                `json:"photoLimit"`
	StatusText string               `json:"statusText"`
}

// GetStatus handles GET /users/:chat_id
func (h *UserHandler) GetStatus(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	rec, err := h.users.EnsureUser(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.status(rec))
}

func (h *UserHandler) status(rec *models.UserRecord) StatusResponse {
	textLimit, photoLimit := h.quota.GetLimits(rec)
	return StatusResponse{
		User:       rec,
		Effective:  h.quota.Effective(rec),
		TextLimit:  textLimit,
		PhotoLimit: photoLimit,
		StatusText: h.quota.StatusText(rec),
	}
}

// GetUserCount handles GET /users/count
func (h *UserHandler) GetUserCount(c *gin.Context) {
	count, err := h.users.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type grantRequest struct {
	Plan string `json:"plan" binding:"required"`
	Days int    `json:"days" binding:"required,min=1"`
}

// Grant handles POST /users/:chat_id/subscription
func (h *UserHandler) Grant(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	expiresAt, err := h.subs.SetSubscription(c.Request.Context(), chatID, models.Plan(req.Plan), req.Days)
	if errors.Is(err, services.ErrInvalidPlan) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "plan": req.Plan, "expiresAt": expiresAt})
}

type extendRequest struct {
	Months int `json:"months" binding:"required,min=1"`
}

// ExtendPro handles POST /users/:chat_id/extend
func (h *UserHandler) ExtendPro(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	expiresAt, err := h.subs.ExtendProMonths(c.Request.Context(), chatID, req.Months)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "plan": models.PlanPro, "expiresAt": expiresAt})
}

type promoRequest struct {
	Code string `json:"code" binding:"required"`
	Days int    `json:"days" binding:"required,min=1"`
}

// GrantPromo handles POST /users/:chat_id/promo
func (h *UserHandler) GrantPromo(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req promoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applied, expiresAt, err := h.subs.ApplyPromocodeAccess(c.Request.Context(), chatID, req.Code, req.Days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "applied": applied, "expiresAt": expiresAt})
}

// UpdatePrefs handles PUT /users/:chat_id/prefs
func (h *UserHandler) UpdatePrefs(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.users.SetPrefs(c.Request.Context(), chatID, updates); err != nil {
		if errors.Is(err, services.ErrInvalidPref) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.users.EnsureUser(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec.Prefs)
}

type optInRequest struct {
	OptIn *bool `json:"optin" binding:"required"`
}

// SetOptIn handles PUT /users/:chat_id/optin
func (h *UserHandler) SetOptIn(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req optInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.users.SetOptIn(c.Request.Context(), chatID, *req.OptIn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "optin": *req.OptIn})
}

// SetOptInAll handles POST /users/optin
func (h *UserHandler) SetOptInAll(c *gin.Context) {
	var req optInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changed, err := h.users.SetOptInAll(c.Request.Context(), *req.OptIn)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

// DropChat handles DELETE /users/:chat_id
func (h *UserHandler) DropChat(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	if err := h.users.DropChat(c.Request.Context(), chatID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPayments handles GET /users/:chat_id/payments
func (h *UserHandler) GetPayments(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	payments, err := h.payments.ListByChatID(c.Request.Context(), chatID, limit)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if payments == nil {
		payments = []*models.PaymentRecord{}
	}
	c.JSON(http.StatusOK, payments)
}

// chatIDParam parses :chat_id, writing a 400 when it is malformed
func chatIDParam(c *gin.Context) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil || chatID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return chatID, true
}
