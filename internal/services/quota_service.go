package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/clock"
	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/messages"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
)

// Unlimited is the limit reported for an active pro subscription.
const Unlimited int64 = 1_000_000_000_000

// ExpiryLayout formats subscription expiries in user-facing texts.
const ExpiryLayout = "2006-01-02 15:04 UTC"

// QuotaService decides whether a request fits the user's monthly limits.
// CanUse and IncUsage are separate calls: two concurrent requests from one
// chat can both pass CanUse before either increments, so a user may
// overshoot a limit by a request or two.
type QuotaService struct {
	userRepo repositories.UserRepository
	limits   config.LimitsConfig
	pricing  config.SubscriptionConfig
	clock    clock.Clock
}

// NewQuotaService creates a new QuotaService
func NewQuotaService(userRepo repositories.UserRepository, limits config.LimitsConfig, pricing config.SubscriptionConfig, clk clock.Clock) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		limits:   limits,
		pricing:  pricing,
		clock:    clk,
	}
}

// IsSubscriptionActive reports whether rec holds a paid plan whose expiry is
// strictly in the future.
func (s *QuotaService) IsSubscriptionActive(rec *models.UserRecord) bool {
	return rec.Plan.Paid() && clock.After(rec.SubExpiresAt, clock.NowUTC(s.clock))
}

// Effective returns the tier that currently grants limits. A lapsed lite or
// pro plan is effectively free.
func (s *QuotaService) Effective(rec *models.UserRecord) models.EffectivePlan {
	if !s.IsSubscriptionActive(rec) {
		return models.EffectiveFree
	}
	if rec.Plan == models.PlanPro {
		return models.EffectivePro
	}
	return models.EffectiveLite
}

// GetLimits returns the (text, photo) monthly limits for rec
func (s *QuotaService) GetLimits(rec *models.UserRecord) (int64, int64) {
	switch s.Effective(rec) {
	case models.EffectivePro:
		return Unlimited, Unlimited
	case models.EffectiveLite:
		return s.limits.LiteText, s.limits.LitePhoto
	default:
		return s.limits.FreeText, s.limits.FreePhoto
	}
}

// CanUse reports whether rec may make one more request of kind. When not,
// the second value is the message to show the user.
func (s *QuotaService) CanUse(rec *models.UserRecord, kind models.UsageKind) (bool, string) {
	lang := rec.Prefs.Lang
	textLimit, photoLimit := s.GetLimits(rec)

	var used, limit int64
	var liteKey messages.Key
	switch kind {
	case models.UsageText:
		used, limit, liteKey = rec.TextUsed, textLimit, messages.LiteTextLimitReached
	case models.UsagePhoto:
		used, limit, liteKey = rec.PhotoUsed, photoLimit, messages.LitePhotoLimitReached
	default:
		return false, messages.Get(lang, messages.UnknownKind)
	}

	if used < limit {
		return true, ""
	}
	if s.Effective(rec) == models.EffectiveLite {
		return false, messages.Get(lang, liteKey, used, limit)
	}
	return false, s.upsell(lang)
}

func (s *QuotaService) upsell(lang string) string {
	return messages.Get(lang, messages.FreeLimitReached,
		s.pricing.LitePrice,
		s.pricing.ProPrice,
		s.limits.LiteText,
		s.limits.LitePhoto,
		s.pricing.Days,
	)
}

// IncUsage adds one to the counter of kind. It does not re-check limits;
// call it only after the metered action succeeded.
func (s *QuotaService) IncUsage(ctx context.Context, chatID int64, kind models.UsageKind) error {
	if kind.Field() == "" {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := s.userRepo.IncUsage(ctx, chatID, kind); err != nil {
		return fmt.Errorf("inc %s usage for %d: %w", kind, chatID, err)
	}
	return nil
}

// StatusText summarizes plan, expiry and usage for rec
func (s *QuotaService) StatusText(rec *models.UserRecord) string {
	lang := rec.Prefs.Lang
	textLimit, photoLimit := s.GetLimits(rec)

	switch s.Effective(rec) {
	case models.EffectivePro:
		return messages.Get(lang, messages.StatusPro, formatExpiry(rec.SubExpiresAt), rec.TextUsed, rec.PhotoUsed)
	case models.EffectiveLite:
		return messages.Get(lang, messages.StatusLite, formatExpiry(rec.SubExpiresAt),
			rec.TextUsed, textLimit, rec.PhotoUsed, photoLimit)
	default:
		return messages.Get(lang, messages.StatusFree, rec.TextUsed, textLimit, rec.PhotoUsed, photoLimit)
	}
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(ExpiryLayout)
}
