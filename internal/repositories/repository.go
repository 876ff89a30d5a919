package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when a unique index rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")
)

// UserRepository defines the per-user document operations. Every mutation
// is a single-document atomic update; none of them read-modify-write the
// whole document.
type UserRepository interface {
	FindByChatID(ctx context.Context, chatID int64) (*models.StoredUser, error)
	FindByRefCode(ctx context.Context, code string) (*models.StoredUser, error)
	// InsertIfAbsent inserts user unless a document with its chat_id exists.
	InsertIfAbsent(ctx context.Context, user *models.StoredUser) (bool, error)
	Delete(ctx context.Context, chatID int64) error
	Count(ctx context.Context) (int64, error)

	SetOptIn(ctx context.Context, chatID int64, optIn bool) error
	SetOptInAll(ctx context.Context, optIn bool) (int64, error)
	// ListChatIDs returns chat ids; with optInOnly, users whose optin field
	// is absent are included.
	ListChatIDs(ctx context.Context, optInOnly bool) ([]int64, error)

	SetPrefs(ctx context.Context, chatID int64, prefs models.Prefs) error
	// SetPrefFields sets individual preference keys in one update; dotted
	// keys address nested values.
	SetPrefFields(ctx context.Context, chatID int64, fields map[string]interface{}) error

	SetSubExpiresAt(ctx context.Context, chatID int64, expiresAt *time.Time) error
	ResetPeriod(ctx context.Context, chatID int64, month string) error
	IncUsage(ctx context.Context, chatID int64, kind models.UsageKind) error

	// SetSubscription upserts plan and expiry.
	SetSubscription(ctx context.Context, chatID int64, plan models.Plan, expiresAt time.Time) error
	// SwapSubscription sets plan and expiry only while the stored plan and
	// expiry still equal prevPlan and prevExpiresAt. A nil prevExpiresAt
	// matches an unset expiry and a free prevPlan matches any stored value
	// that is not a paid plan.
	SwapSubscription(ctx context.Context, chatID int64, prevPlan models.Plan, prevExpiresAt *time.Time, plan models.Plan, expiresAt time.Time) (bool, error)
	// ApplyPromo sets plan, expiry and the promo record only if the stored
	// promo code differs from promo.Code. It reports whether it applied.
	ApplyPromo(ctx context.Context, chatID int64, plan models.Plan, promo models.Promo) (bool, error)

	// SetRefCode stores code only if the user has none yet. It returns
	// ErrDuplicateKey when another user already owns code.
	SetRefCode(ctx context.Context, chatID int64, code string) (bool, error)
	// SetReferrerOnce sets referred_by only if it is unset.
	SetReferrerOnce(ctx context.Context, chatID, referrerID int64) (bool, error)
	IncReferredCount(ctx context.Context, chatID int64) error
	// AddPaidReferral inserts buyerID into the referrer's credited set and
	// increments the paid counter in the same update. added is false when
	// buyerID was already credited; count is the counter after the call.
	AddPaidReferral(ctx context.Context, referrerID, buyerID int64) (added bool, count int64, err error)
}

// PaymentRepository defines payment ledger operations.
type PaymentRepository interface {
	// Create inserts payment unless a record with its PayID exists.
	Create(ctx context.Context, payment *models.PaymentRecord) (bool, error)
	FindByID(ctx context.Context, payID string) (*models.PaymentRecord, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.PaymentRecord, error)
	FindByChatID(ctx context.Context, chatID int64, limit int) ([]*models.PaymentRecord, error)
	// SetStatus overwrites status unconditionally and records the raw event.
	SetStatus(ctx context.Context, payID, status string, rawEvent map[string]interface{}, externalID string) error
	// MarkProcessed flips processed false->true and reports whether this
	// call performed the transition.
	MarkProcessed(ctx context.Context, payID string) (bool, error)
	// ReleaseProcessed reverts a MarkProcessed claim whose side effect failed.
	ReleaseProcessed(ctx context.Context, payID string) error
}

// HistoryRepository defines chat history operations
type HistoryRepository interface {
	Append(ctx context.Context, entry *models.HistoryEntry) error
	Recent(ctx context.Context, chatID int64, limit int) ([]*models.HistoryEntry, error)
	Clear(ctx context.Context, chatID int64) (int64, error)
}

// BookmarkRepository defines saved snippet operations
type BookmarkRepository interface {
	Create(ctx context.Context, bookmark *models.Bookmark) error
	FindByChatID(ctx context.Context, chatID int64, limit int) ([]*models.Bookmark, error)
	Delete(ctx context.Context, chatID int64, id primitive.ObjectID) error
}
