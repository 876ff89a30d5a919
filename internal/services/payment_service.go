package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/clock"
	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultProvider tags payments whose provider did not name itself.
const DefaultProvider = "tribute"

// orderIDPlaceholder is replaced with the order id in the checkout URL.
const orderIDPlaceholder = "{order_id}"

// Checkout is a created payment intent and where the user pays it.
type Checkout struct {
	Payment *models.PaymentRecord
	URL     string
}

// PaymentService is the payment ledger. Subscription activation for a pay
// id happens at most once, gated by MarkProcessed.
type PaymentService struct {
	paymentRepo repositories.PaymentRepository
	subs        *SubscriptionService
	pricing     config.SubscriptionConfig
	clock       clock.Clock
	logger      *zap.Logger
	newID       func() string
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	paymentRepo repositories.PaymentRepository,
	subs *SubscriptionService,
	pricing config.SubscriptionConfig,
	clk clock.Clock,
	log *zap.Logger,
) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentService{
		paymentRepo: paymentRepo,
		subs:        subs,
		pricing:     pricing,
		clock:       clk,
		logger:      log.With(logger.Service("payments")),
		newID:       uuid.NewString,
	}
}

// Create records a payment intent. A second call for the same pay id is a
// no-op and reports false.
func (s *PaymentService) Create(ctx context.Context, payment *models.PaymentRecord) (bool, error) {
	if payment.PayID == "" {
		return false, ErrMissingPayID
	}
	now := clock.NowUTC(s.clock)
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
		payment.UpdatedAt = now
	}
	if payment.Provider == "" {
		payment.Provider = DefaultProvider
	}
	created, err := s.paymentRepo.Create(ctx, payment)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("payment created",
			logger.PayID(payment.PayID),
			logger.ChatID(payment.ChatID),
			zap.String("plan", string(payment.Plan)),
		)
	}
	return created, nil
}

// CreateCheckout synthesizes an order id "tg-<chat>-<plan>-<uuid>", records
// it with status created and returns the checkout link.
func (s *PaymentService) CreateCheckout(ctx context.Context, chatID int64, plan models.Plan) (*Checkout, error) {
	if !plan.Paid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	amount := s.pricing.LiteAmount
	if plan == models.PlanPro {
		amount = s.pricing.ProAmount
	}
	payment := &models.PaymentRecord{
		PayID:    fmt.Sprintf("tg-%d-%s-%s", chatID, plan, s.newID()),
		ChatID:   chatID,
		Plan:     plan,
		Amount:   amount,
		Currency: s.pricing.Currency,
		Status:   models.PaymentStatusCreated,
		RawCreate: map[string]interface{}{
			"source": "bot",
			"plan":   string(plan),
		},
	}
	if _, err := s.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create checkout for %d: %w", chatID, err)
	}
	return &Checkout{Payment: payment, URL: s.checkoutURL(payment.PayID)}, nil
}

// ParseOrderID extracts chat id and plan from an order id produced by
// CreateCheckout.
func ParseOrderID(orderID string) (int64, models.Plan, bool) {
	parts := strings.SplitN(orderID, "-", 4)
	if len(parts) != 4 || parts[0] != "tg" {
		return 0, "", false
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	plan := models.Plan(parts[2])
	if !plan.Paid() {
		return 0, "", false
	}
	return chatID, plan, true
}

func (s *PaymentService) checkoutURL(orderID string) string {
	base := s.pricing.CheckoutURL
	if base == "" {
		return ""
	}
	if strings.Contains(base, orderIDPlaceholder) {
		return strings.ReplaceAll(base, orderIDPlaceholder, url.QueryEscape(orderID))
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "order_id=" + url.QueryEscape(orderID)
}

// SetStatus records the latest provider event, overwriting the status
func (s *PaymentService) SetStatus(ctx context.Context, payID, status string, rawEvent map[string]interface{}, externalID string) error {
	return s.paymentRepo.SetStatus(ctx, payID, status, rawEvent, externalID)
}

// MarkProcessed flips processed false->true and reports whether this call
// did it.
func (s *PaymentService) MarkProcessed(ctx context.Context, payID string) (bool, error) {
	return s.paymentRepo.MarkProcessed(ctx, payID)
}

// Get returns a payment by pay id
func (s *PaymentService) Get(ctx context.Context, payID string) (*models.PaymentRecord, error) {
	return s.paymentRepo.FindByID(ctx, payID)
}

// ListByChatID returns a user's recent payments
func (s *PaymentService) ListByChatID(ctx context.Context, chatID int64, limit int) ([]*models.PaymentRecord, error) {
	return s.paymentRepo.FindByChatID(ctx, chatID, limit)
}

// GrantRequest is a paid event as extracted by a webhook handler
type GrantRequest struct {
	ChatID    int64
	Plan      models.Plan
	PaymentID string
	OrderID   string
	Provider  string
	Amount    float64
	Currency  string
	RawEvent  map[string]interface{}
}

// GrantResult describes the outcome of GrantPaidAccess
type GrantResult struct {
	// Granted is false for replayed deliveries.
	Granted   bool
	PayID     string
	ChatID    int64
	Plan      models.Plan
	ExpiresAt time.Time
}

// GrantPaidAccess applies a paid event exactly once per pay id. Replayed
// deliveries return a result with Granted false.
func (s *PaymentService) GrantPaidAccess(ctx context.Context, req GrantRequest) (GrantResult, error) {
	payment, err := s.lookupOrCreate(ctx, req)
	if err != nil {
		return GrantResult{}, err
	}
	log := s.logger.With(logger.PayID(payment.PayID), logger.ChatID(payment.ChatID))
	result := GrantResult{PayID: payment.PayID, ChatID: payment.ChatID, Plan: payment.Plan}

	if payment.Processed {
		log.Info("payment already processed")
		return result, nil
	}

	chatID := req.ChatID
	if chatID == 0 {
		chatID = payment.ChatID
	}
	plan := req.Plan
	if !plan.Paid() {
		plan = payment.Plan
	}
	if !plan.Paid() {
		return result, fmt.Errorf("%w: %q for payment %s", ErrInvalidPlan, plan, payment.PayID)
	}
	if chatID == 0 {
		return result, fmt.Errorf("%w: payment %s", ErrMissingChatID, payment.PayID)
	}
	result.ChatID, result.Plan = chatID, plan

	externalID := ""
	if req.PaymentID != "" && req.PaymentID != payment.PayID {
		externalID = req.PaymentID
	}
	if err := s.paymentRepo.SetStatus(ctx, payment.PayID, models.PaymentStatusPaid, req.RawEvent, externalID); err != nil {
		return result, fmt.Errorf("set paid status: %w", err)
	}

	flipped, err := s.paymentRepo.MarkProcessed(ctx, payment.PayID)
	if err != nil {
		return result, fmt.Errorf("mark processed: %w", err)
	}
	if !flipped {
		log.Info("payment processed concurrently")
		return result, nil
	}

	expiresAt, err := s.subs.SetSubscription(ctx, chatID, plan, s.pricing.Days)
	if err != nil {
		if releaseErr := s.paymentRepo.ReleaseProcessed(ctx, payment.PayID); releaseErr != nil {
			log.Error("failed to release processed claim", zap.Error(releaseErr))
		}
		return result, fmt.Errorf("apply subscription: %w", err)
	}

	log.Info("paid access granted",
		zap.String("plan", string(plan)),
		zap.Time("expires_at", expiresAt),
	)
	result.Granted = true
	result.ExpiresAt = expiresAt
	return result, nil
}

// lookupOrCreate finds the ledger record for a paid event. The order id is
// our own key from CreateCheckout; the payment id may be either a key or
// the provider's external reference. When nothing matches, a record is
// created under the order id, else the payment id, so duplicate deliveries
// converge on the same key. An unmatched event without a paid plan or a
// chat id is rejected before anything is stored.
func (s *PaymentService) lookupOrCreate(ctx context.Context, req GrantRequest) (*models.PaymentRecord, error) {
	if req.PaymentID == "" && req.OrderID == "" {
		return nil, ErrMissingPayID
	}

	lookups := make([]func() (*models.PaymentRecord, error), 0, 3)
	if req.OrderID != "" {
		lookups = append(lookups, func() (*models.PaymentRecord, error) { return s.paymentRepo.FindByID(ctx, req.OrderID) })
	}
	if req.PaymentID != "" {
		lookups = append(lookups,
			func() (*models.PaymentRecord, error) { return s.paymentRepo.FindByID(ctx, req.PaymentID) },
			func() (*models.PaymentRecord, error) { return s.paymentRepo.FindByExternalID(ctx, req.PaymentID) },
		)
	}
	for _, lookup := range lookups {
		payment, err := lookup()
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("lookup payment: %w", err)
		}
	}

	payID := req.OrderID
	externalID := req.PaymentID
	if payID == "" {
		payID, externalID = req.PaymentID, ""
	}
	// Only events that can be granted get a ledger record.
	if !req.Plan.Paid() {
		return nil, fmt.Errorf("%w: %q for payment %s", ErrInvalidPlan, req.Plan, payID)
	}
	if req.ChatID == 0 {
		return nil, fmt.Errorf("%w: payment %s", ErrMissingChatID, payID)
	}
	payment := &models.PaymentRecord{
		PayID:      payID,
		Provider:   req.Provider,
		ChatID:     req.ChatID,
		Plan:       req.Plan,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Status:     models.PaymentStatusCreated,
		ExternalID: externalID,
		RawCreate:  req.RawEvent,
	}
	if _, err := s.Create(ctx, payment); err != nil {
		return nil, err
	}
	// Re-read: a concurrent delivery may have created it first.
	return s.paymentRepo.FindByID(ctx, payID)
}
