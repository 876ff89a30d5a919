package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/clock"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"go.uber.org/zap"
)

// DaysPerMonth is the length of a bonus month. Bonus extensions add
// 30*N days, never calendar months.
const DaysPerMonth = 30

// maxSwapAttempts bounds conditional write retries under contention
const maxSwapAttempts = 5

// SubscriptionService mutates plan and expiry on purchase, promo redemption
// and manual grants.
type SubscriptionService struct {
	userRepo repositories.UserRepository
	users    *UserService
	quota    *QuotaService
	promos   map[string]int
	clock    clock.Clock
	logger   *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService. promos maps
// upper-case promo codes to the number of days they grant.
func NewSubscriptionService(
	userRepo repositories.UserRepository,
	users *UserService,
	quota *QuotaService,
	promos map[string]int,
	clk clock.Clock,
	log *zap.Logger,
) *SubscriptionService {
	if log == nil {
		log = zap.NewNop()
	}
	if promos == nil {
		promos = map[string]int{}
	}
	return &SubscriptionService{
		userRepo: userRepo,
		users:    users,
		quota:    quota,
		promos:   promos,
		clock:    clk,
		logger:   log.With(logger.Service("subscriptions")),
	}
}

// SetSubscription sets plan with an expiry of now+days, replacing any
// existing expiry. The user document is created if missing.
func (s *SubscriptionService) SetSubscription(ctx context.Context, chatID int64, plan models.Plan, days int) (time.Time, error) {
	if !plan.Valid() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	if days <= 0 {
		return time.Time{}, fmt.Errorf("set subscription: days must be positive, got %d", days)
	}
	expiresAt := clock.NowUTC(s.clock).AddDate(0, 0, days)
	if err := s.userRepo.SetSubscription(ctx, chatID, plan, expiresAt); err != nil {
		return time.Time{}, err
	}
	s.logger.Info("subscription set",
		logger.ChatID(chatID),
		zap.String("plan", string(plan)),
		zap.Time("expires_at", expiresAt),
	)
	return expiresAt, nil
}

// ExtendProMonths extends pro by 30*months days. An active pro term is
// extended from its current expiry; otherwise the term starts now. The
// write only lands if plan and expiry are unchanged since the read, so
// concurrent extensions stack instead of overwriting each other.
func (s *SubscriptionService) ExtendProMonths(ctx context.Context, chatID int64, months int) (time.Time, error) {
	if months <= 0 {
		return time.Time{}, fmt.Errorf("extend pro: months must be positive, got %d", months)
	}
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		rec, err := s.users.EnsureUser(ctx, chatID)
		if err != nil {
			return time.Time{}, err
		}

		base := clock.NowUTC(s.clock)
		if rec.Plan == models.PlanPro && s.quota.IsSubscriptionActive(rec) {
			base = *rec.SubExpiresAt
		}
		expiresAt := base.AddDate(0, 0, DaysPerMonth*months)
		swapped, err := s.userRepo.SwapSubscription(ctx, chatID, rec.Plan, rec.SubExpiresAt, models.PlanPro, expiresAt)
		if err != nil {
			return time.Time{}, err
		}
		if !swapped {
			continue
		}
		s.logger.Info("pro extended",
			logger.ChatID(chatID),
			zap.Int("months", months),
			zap.Time("expires_at", expiresAt),
			zap.Int("attempt", attempt+1),
		)
		return expiresAt, nil
	}
	return time.Time{}, fmt.Errorf("extend pro for %d: %w", chatID, ErrConcurrentUpdate)
}

// ApplyPromocodeAccess grants pro for days unless chatID already redeemed
// code. The new expiry is the later of the current expiry and now+days, so
// redemption never shortens an entitlement. The returned expiry is the
// user's expiry after the call.
func (s *SubscriptionService) ApplyPromocodeAccess(ctx context.Context, chatID int64, code string, days int) (bool, *time.Time, error) {
	if days <= 0 {
		return false, nil, fmt.Errorf("apply promo: days must be positive, got %d", days)
	}
	rec, err := s.users.EnsureUser(ctx, chatID)
	if err != nil {
		return false, nil, err
	}
	if rec.Promo != nil && rec.Promo.Code == code {
		return false, rec.SubExpiresAt, nil
	}

	now := clock.NowUTC(s.clock)
	expiresAt := now.AddDate(0, 0, days)
	if rec.SubExpiresAt != nil && rec.SubExpiresAt.After(expiresAt) {
		expiresAt = *rec.SubExpiresAt
	}

	applied, err := s.userRepo.ApplyPromo(ctx, chatID, models.PlanPro, models.Promo{
		Code:        code,
		ActivatedAt: now,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return false, nil, fmt.Errorf("apply promo %s for %d: %w", code, chatID, err)
	}
	if !applied {
		// A concurrent redemption of the same code won.
		stored, err := s.userRepo.FindByChatID(ctx, chatID)
		if err != nil {
			return false, nil, err
		}
		return false, clock.ToAwareUTC(stored.SubExpiresAt), nil
	}

	s.logger.Info("promo redeemed",
		logger.ChatID(chatID),
		zap.String("code", code),
		zap.Time("expires_at", expiresAt),
	)
	return true, &expiresAt, nil
}

// RedeemPromo looks up a configured promo code, case-insensitively, and
// applies it.
func (s *SubscriptionService) RedeemPromo(ctx context.Context, chatID int64, code string) (bool, *time.Time, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	days, ok := s.promos[code]
	if !ok {
		return false, nil, ErrUnknownPromo
	}
	return s.ApplyPromocodeAccess(ctx, chatID, code, days)
}

// IsProActive reports whether chatID has an active pro subscription
func (s *SubscriptionService) IsProActive(ctx context.Context, chatID int64) (bool, error) {
	return s.isActive(ctx, chatID, models.PlanPro)
}

// IsLiteActive reports whether chatID has an active lite subscription
func (s *SubscriptionService) IsLiteActive(ctx context.Context, chatID int64) (bool, error) {
	return s.isActive(ctx, chatID, models.PlanLite)
}

func (s *SubscriptionService) isActive(ctx context.Context, chatID int64, plan models.Plan) (bool, error) {
	rec, err := s.users.EnsureUser(ctx, chatID)
	if err != nil {
		return false, err
	}
	return rec.Plan == plan && s.quota.IsSubscriptionActive(rec), nil
}
