package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/messages"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentGranter applies paid events to the ledger
type PaymentGranter interface {
	GrantPaidAccess(ctx context.Context, req services.GrantRequest) (services.GrantResult, error)
}

// ReferralRewarder credits referrers after a purchase
type ReferralRewarder interface {
	ProcessReferralRewardIfNeeded(ctx context.Context, buyerID int64) (services.ReferralOutcome, error)
}

// LangSource resolves the interface language of a chat
type LangSource interface {
	Lang(ctx context.Context, chatID int64) (string, error)
}

// WebhookHandler handles payment provider callbacks
type WebhookHandler struct {
	payments  PaymentGranter
	referrals ReferralRewarder
	langs     LangSource
	notifier  services.Sender
	cfg       config.WebhookConfig
	days      int
	logger    *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler. notifier may be nil.
func NewWebhookHandler(
	payments PaymentGranter,
	referrals ReferralRewarder,
	langs LangSource,
	notifier services.Sender,
	cfg config.WebhookConfig,
	days int,
	log *zap.Logger,
) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{
		payments:  payments,
		referrals: referrals,
		langs:     langs,
		notifier:  notifier,
		cfg:       cfg,
		days:      days,
		logger:    log.With(logger.Service("webhook")),
	}
}

// Ping handles GET /webhook/tribute
func (h *WebhookHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "ping": true})
}

// Tribute handles POST /webhook/tribute. Every event the provider should
// not retry is acknowledged with 200, including ignored ones.
func (h *WebhookHandler) Tribute(c *gin.Context) {
	var data map[string]interface{}
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid json"})
		return
	}
	ev := ParsePaymentEvent(data)
	log := h.logger.With(
		zap.String("event_id", ev.EventID),
		zap.String("order_id", ev.OrderID),
		logger.ChatID(ev.ChatID),
	)
	log.Info("payment event received", zap.String("status", ev.Status), zap.Float64("amount", ev.Amount))

	if ev.Test || ev.Event == "test" || ev.Event == "ping" {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": "test"})
		return
	}
	if !ev.Paid {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": "not_paid"})
		return
	}
	if ev.Amount <= 0 {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": "zero_amount"})
		return
	}

	chatID, plan := ev.ChatID, h.planFor(ev)
	if orderChat, orderPlan, ok := services.ParseOrderID(ev.OrderID); ok {
		if chatID == 0 {
			chatID = orderChat
		}
		if plan == "" {
			plan = orderPlan
		}
	}
	if chatID == 0 && ev.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "telegram_user_id missing"})
		return
	}

	res, err := h.payments.GrantPaidAccess(c.Request.Context(), services.GrantRequest{
		ChatID:    chatID,
		Plan:      plan,
		PaymentID: ev.EventID,
		OrderID:   ev.OrderID,
		Provider:  services.DefaultProvider,
		Amount:    ev.Amount,
		Currency:  ev.Currency,
		RawEvent:  data,
	})
	switch {
	case errors.Is(err, services.ErrInvalidPlan):
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": "unknown_startapp", "startapp": ev.Startapp})
		return
	case errors.Is(err, services.ErrMissingPayID), errors.Is(err, services.ErrMissingChatID):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	case err != nil:
		log.Error("failed to grant paid access", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
		return
	}

	if !res.Granted {
		c.JSON(http.StatusOK, gin.H{"ok": true, "dup": true})
		return
	}

	h.afterGrant(c.Request.Context(), res)
	c.JSON(http.StatusOK, gin.H{"ok": true, "plan": res.Plan, "days": h.days, "chat_id": res.ChatID})
}

// planFor maps provider product codes to plans
func (h *WebhookHandler) planFor(ev PaymentEvent) models.Plan {
	switch {
	case ev.Startapp != "" && ev.Startapp == h.cfg.LiteStartapp:
		return models.PlanLite
	case ev.Startapp != "" && ev.Startapp == h.cfg.ProStartapp:
		return models.PlanPro
	}
	if p := models.Plan(ev.Plan); p.Paid() {
		return p
	}
	return ""
}

// afterGrant credits the referrer and notifies both parties. Failures here
// are logged; the payment itself is already applied.
func (h *WebhookHandler) afterGrant(ctx context.Context, res services.GrantResult) {
	out, err := h.referrals.ProcessReferralRewardIfNeeded(ctx, res.ChatID)
	if err != nil {
		h.logger.Error("referral processing failed", logger.ChatID(res.ChatID), zap.Error(err))
	}

	if !h.cfg.NotifyOnPayment || h.notifier == nil {
		return
	}
	h.notify(ctx, res.ChatID, messages.PaymentGranted, string(res.Plan), res.ExpiresAt.Format(services.ExpiryLayout))
	if out.Rewarded && out.RewardExpiresAt != nil {
		h.notify(ctx, out.ReferrerID, messages.ReferralReward, out.PaidCount, out.RewardExpiresAt.Format(services.ExpiryLayout))
	}
}

func (h *WebhookHandler) notify(ctx context.Context, chatID int64, key messages.Key, args ...interface{}) {
	lang, err := h.langs.Lang(ctx, chatID)
	if err != nil {
		lang = messages.DefaultLang
	}
	if err := h.notifier.Send(ctx, chatID, messages.Get(lang, key, args...)); err != nil {
		h.logger.Warn("payment notification failed", logger.ChatID(chatID), zap.Error(err))
	}
}
