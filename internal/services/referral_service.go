package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	"github.com/ArowuTest/tutorbot-backend/internal/utils"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"go.uber.org/zap"
)

// maxRefCodeAttempts bounds re-rolls on referral code collisions.
const maxRefCodeAttempts = 10

// ReferralOutcome is the result of crediting a paid referral.
type ReferralOutcome struct {
	// Credited is true when this buyer was counted for the first time.
	Credited bool
	// Rewarded is true when the credit completed a reward batch.
	Rewarded bool
	// PaidCount is the referrer's paid referral count after the call.
	PaidCount int64
	// ReferrerID is zero when the buyer was not referred.
	ReferrerID int64
	// RewardExpiresAt is the referrer's new pro expiry when Rewarded.
	RewardExpiresAt *time.Time
}

// ReferralService tracks inviter/invitee links and pays a pro bonus for
// every batch of distinct paying referrals.
type ReferralService struct {
	userRepo repositories.UserRepository
	users    *UserService
	subs     *SubscriptionService
	cfg      config.ReferralConfig
	logger   *zap.Logger
	generate func() (string, error)
}

// NewReferralService creates a new ReferralService
func NewReferralService(
	userRepo repositories.UserRepository,
	users *UserService,
	subs *SubscriptionService,
	cfg config.ReferralConfig,
	log *zap.Logger,
) *ReferralService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReferralService{
		userRepo: userRepo,
		users:    users,
		subs:     subs,
		cfg:      cfg,
		logger:   log.With(logger.Service("referrals")),
		generate: utils.GenerateRefCode,
	}
}

// GetOrCreateRefCode returns the user's referral code, generating and
// storing one on first use.
func (s *ReferralService) GetOrCreateRefCode(ctx context.Context, chatID int64) (string, error) {
	rec, err := s.users.EnsureUser(ctx, chatID)
	if err != nil {
		return "", err
	}
	if rec.RefCode != "" {
		return rec.RefCode, nil
	}

	for attempt := 0; attempt < maxRefCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", err
		}
		if _, err := s.userRepo.FindByRefCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return "", fmt.Errorf("check ref code: %w", err)
		}

		set, err := s.userRepo.SetRefCode(ctx, chatID, code)
		if errors.Is(err, repositories.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store ref code for %d: %w", chatID, err)
		}
		if set {
			return code, nil
		}

		// Another request stored a code for this user first.
		stored, err := s.userRepo.FindByChatID(ctx, chatID)
		if err != nil {
			return "", err
		}
		if stored.RefCode != nil {
			return *stored.RefCode, nil
		}
	}
	return "", ErrRefCodeExhausted
}

// ResolveRefCode returns the chat id owning code
func (s *ReferralService) ResolveRefCode(ctx context.Context, code string) (int64, bool, error) {
	owner, err := s.userRepo.FindByRefCode(ctx, code)
	if errors.Is(err, repositories.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return owner.ChatID, true, nil
}

// SetReferrerOnce links chatID to referrerID. Self-referral and an already
// linked user return false; the first link wins and is never overwritten.
func (s *ReferralService) SetReferrerOnce(ctx context.Context, chatID, referrerID int64) (bool, error) {
	if chatID == referrerID || referrerID == 0 {
		return false, nil
	}
	if _, err := s.users.EnsureUser(ctx, chatID); err != nil {
		return false, err
	}
	linked, err := s.userRepo.SetReferrerOnce(ctx, chatID, referrerID)
	if err != nil {
		return false, fmt.Errorf("set referrer for %d: %w", chatID, err)
	}
	if !linked {
		return false, nil
	}
	if err := s.userRepo.IncReferredCount(ctx, referrerID); err != nil {
		return true, fmt.Errorf("count referral for %d: %w", referrerID, err)
	}
	s.logger.Info("referrer linked", logger.ChatID(chatID), zap.Int64("referrer_id", referrerID))
	return true, nil
}

// LinkByCode resolves a /start referral code and links chatID to its owner
func (s *ReferralService) LinkByCode(ctx context.Context, chatID int64, code string) (bool, error) {
	referrerID, ok, err := s.ResolveRefCode(ctx, code)
	if err != nil || !ok {
		return false, err
	}
	return s.SetReferrerOnce(ctx, chatID, referrerID)
}

// MarkReferralPaidIfFirst credits buyerID to its referrer at most once.
// Repeat purchases by the same buyer are not counted again.
func (s *ReferralService) MarkReferralPaidIfFirst(ctx context.Context, buyerID int64) (ReferralOutcome, error) {
	buyer, err := s.userRepo.FindByChatID(ctx, buyerID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ReferralOutcome{}, nil
	}
	if err != nil {
		return ReferralOutcome{}, err
	}
	if buyer.ReferredBy == nil {
		return ReferralOutcome{}, nil
	}

	referrerID := *buyer.ReferredBy
	added, count, err := s.userRepo.AddPaidReferral(ctx, referrerID, buyerID)
	if err != nil {
		return ReferralOutcome{}, fmt.Errorf("credit referral %d->%d: %w", buyerID, referrerID, err)
	}
	return ReferralOutcome{Credited: added, PaidCount: count, ReferrerID: referrerID}, nil
}

// ProcessReferralRewardIfNeeded credits buyerID and, when the referrer's
// paid count reaches a multiple of the batch size, extends the referrer's
// pro subscription.
func (s *ReferralService) ProcessReferralRewardIfNeeded(ctx context.Context, buyerID int64) (ReferralOutcome, error) {
	out, err := s.MarkReferralPaidIfFirst(ctx, buyerID)
	if err != nil || !out.Credited {
		return out, err
	}
	if s.cfg.RewardBatch <= 0 || out.PaidCount%s.cfg.RewardBatch != 0 {
		return out, nil
	}

	expiresAt, err := s.subs.ExtendProMonths(ctx, out.ReferrerID, s.cfg.RewardMonths)
	if err != nil {
		// The credit is already stored, so a replay will not retry the
		// reward. This entry is the record needed to grant it by hand.
		s.logger.Error("referral reward not granted",
			logger.ChatID(out.ReferrerID),
			logger.Operation("referral_reward"),
			zap.Int64("buyer_id", buyerID),
			zap.Int64("paid_count", out.PaidCount),
			zap.Int("months", s.cfg.RewardMonths),
			zap.Error(err),
		)
		return out, fmt.Errorf("reward referrer %d: %w", out.ReferrerID, err)
	}
	out.Rewarded = true
	out.RewardExpiresAt = &expiresAt
	s.logger.Info("referral reward granted",
		logger.ChatID(out.ReferrerID),
		zap.Int64("paid_count", out.PaidCount),
		zap.Time("expires_at", expiresAt),
	)
	return out, nil
}
