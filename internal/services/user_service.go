package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/clock"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"go.uber.org/zap"
)

// UserService owns the per-user document: lazy creation, self-healing
// migrations, preferences and broadcast consent.
type UserService struct {
	userRepo repositories.UserRepository
	clock    clock.Clock
	logger   *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(userRepo repositories.UserRepository, clk clock.Clock, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{
		userRepo: userRepo,
		clock:    clk,
		logger:   log.With(logger.Service("users")),
	}
}

// EnsureUser returns the user record, creating it on first access and
// applying the migrations below to existing documents. Each migration is
// written only when it changes the stored value.
//
//  1. optin backfill: an absent optin becomes true.
//  2. prefs merge: absent preference keys receive their defaults.
//  3. expiry normalization: legacy string or naive expiries are rewritten
//     as UTC dates; unparseable values become null.
//  4. monthly rollover: a stale period_month resets both counters.
func (s *UserService) EnsureUser(ctx context.Context, chatID int64) (*models.UserRecord, error) {
	now := clock.NowUTC(s.clock)
	month := clock.MonthKey(now)

	stored, err := s.userRepo.FindByChatID(ctx, chatID)
	if errors.Is(err, repositories.ErrNotFound) {
		fresh := models.NewStoredUser(chatID, now, month)
		inserted, err := s.userRepo.InsertIfAbsent(ctx, fresh)
		if err != nil {
			return nil, fmt.Errorf("ensure user %d: %w", chatID, err)
		}
		if inserted {
			s.logger.Debug("user created", logger.ChatID(chatID))
			return toRecord(fresh, models.DefaultPrefs(), nil), nil
		}
		// Created concurrently; continue with the stored document.
		stored, err = s.userRepo.FindByChatID(ctx, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", chatID, err)
	}

	if stored.OptIn == nil {
		if err := s.userRepo.SetOptIn(ctx, chatID, true); err != nil {
			return nil, fmt.Errorf("backfill optin for %d: %w", chatID, err)
		}
		optIn := true
		stored.OptIn = &optIn
	}

	prefs, complete := stored.Prefs.Resolve(models.DefaultPrefs())
	if !complete {
		if err := s.userRepo.SetPrefs(ctx, chatID, prefs); err != nil {
			return nil, fmt.Errorf("merge prefs for %d: %w", chatID, err)
		}
		stored.Prefs = models.StorePrefs(prefs)
	}

	expiresAt := clock.ToAwareUTC(stored.SubExpiresAt)
	if !clock.IsCanonical(stored.SubExpiresAt) {
		if err := s.userRepo.SetSubExpiresAt(ctx, chatID, expiresAt); err != nil {
			return nil, fmt.Errorf("normalize expiry for %d: %w", chatID, err)
		}
		s.logger.Info("normalized legacy expiry",
			logger.ChatID(chatID),
			zap.Any("raw", stored.SubExpiresAt),
			zap.Timep("normalized", expiresAt),
		)
	}

	if stored.PeriodMonth != month {
		if err := s.userRepo.ResetPeriod(ctx, chatID, month); err != nil {
			return nil, fmt.Errorf("roll over period for %d: %w", chatID, err)
		}
		stored.PeriodMonth = month
		stored.TextUsed = 0
		stored.PhotoUsed = 0
	}

	return toRecord(stored, prefs, expiresAt), nil
}

func toRecord(stored *models.StoredUser, prefs models.Prefs, expiresAt *time.Time) *models.UserRecord {
	rec := &models.UserRecord{
		ChatID:            stored.ChatID,
		CreatedAt:         stored.CreatedAt,
		Plan:              models.ParsePlan(stored.Plan),
		SubExpiresAt:      expiresAt,
		PeriodMonth:       stored.PeriodMonth,
		TextUsed:          stored.TextUsed,
		PhotoUsed:         stored.PhotoUsed,
		OptIn:             stored.OptIn == nil || *stored.OptIn,
		Prefs:             prefs,
		ReferredBy:        stored.ReferredBy,
		ReferredCount:     stored.ReferredCount,
		ReferredPaidCount: stored.ReferredPaidCount,
		ReferredPaidIDs:   stored.ReferredPaidIDs,
		Promo:             stored.Promo,
	}
	if stored.RefCode != nil {
		rec.RefCode = *stored.RefCode
	}
	return rec
}

// GetPrefs returns the resolved preferences
func (s *UserService) GetPrefs(ctx context.Context, chatID int64) (models.Prefs, error) {
	rec, err := s.EnsureUser(ctx, chatID)
	if err != nil {
		return models.Prefs{}, err
	}
	return rec.Prefs, nil
}

// SetPref sets a single preference key
func (s *UserService) SetPref(ctx context.Context, chatID int64, key string, value interface{}) error {
	return s.SetPrefs(ctx, chatID, map[string]interface{}{key: value})
}

// SetPrefs merges updates into the stored preferences; keys not present in
// updates keep their values.
func (s *UserService) SetPrefs(ctx context.Context, chatID int64, updates map[string]interface{}) error {
	fields := make(map[string]interface{}, len(updates))
	for key, value := range updates {
		v, ok := models.PrefValue(key, value)
		if !ok {
			return fmt.Errorf("%w: %s=%v", ErrInvalidPref, key, value)
		}
		fields[key] = v
	}
	if _, err := s.EnsureUser(ctx, chatID); err != nil {
		return err
	}
	if err := s.userRepo.SetPrefFields(ctx, chatID, fields); err != nil {
		return fmt.Errorf("set prefs for %d: %w", chatID, err)
	}
	return nil
}

// VoiceEnabled reports whether voice replies are on
func (s *UserService) VoiceEnabled(ctx context.Context, chatID int64) (bool, error) {
	prefs, err := s.GetPrefs(ctx, chatID)
	return prefs.Voice.Enabled, err
}

// Lang returns the interface language
func (s *UserService) Lang(ctx context.Context, chatID int64) (string, error) {
	prefs, err := s.GetPrefs(ctx, chatID)
	return prefs.Lang, err
}

// AnswerStyle returns the preferred answer style
func (s *UserService) AnswerStyle(ctx context.Context, chatID int64) (string, error) {
	prefs, err := s.GetPrefs(ctx, chatID)
	return prefs.AnswerStyle, err
}

// TeacherMode reports whether teacher mode is on
func (s *UserService) TeacherMode(ctx context.Context, chatID int64) (bool, error) {
	prefs, err := s.GetPrefs(ctx, chatID)
	return prefs.TeacherMode, err
}

// SetOptIn sets broadcast consent
func (s *UserService) SetOptIn(ctx context.Context, chatID int64, optIn bool) error {
	if _, err := s.EnsureUser(ctx, chatID); err != nil {
		return err
	}
	return s.userRepo.SetOptIn(ctx, chatID, optIn)
}

// SetOptInAll sets broadcast consent for everyone and returns the number of
// changed documents.
func (s *UserService) SetOptInAll(ctx context.Context, optIn bool) (int64, error) {
	return s.userRepo.SetOptInAll(ctx, optIn)
}

// ChatIDs lists chat ids; with optInOnly, users without an explicit opt-out
func (s *UserService) ChatIDs(ctx context.Context, optInOnly bool) ([]int64, error) {
	return s.userRepo.ListChatIDs(ctx, optInOnly)
}

// DropChat removes a user document, e.g. after the user blocked the bot
func (s *UserService) DropChat(ctx context.Context, chatID int64) error {
	if err := s.userRepo.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("drop chat %d: %w", chatID, err)
	}
	s.logger.Info("chat dropped", logger.ChatID(chatID))
	return nil
}

// Count returns the number of users
func (s *UserService) Count(ctx context.Context) (int64, error) {
	return s.userRepo.Count(ctx)
}
