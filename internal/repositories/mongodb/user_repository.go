package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	mongoclient "github.com/ArowuTest/tutorbot-backend/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure UserRepository implements the interface
var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository handles MongoDB operations for user documents
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection(mongoclient.UsersCollection),
	}
}

// FindByChatID finds a user by chat id
func (r *UserRepository) FindByChatID(ctx context.Context, chatID int64) (*models.StoredUser, error) {
	return r.findOne(ctx, bson.M{"chat_id": chatID})
}

// FindByRefCode finds the user owning a referral code
func (r *UserRepository) FindByRefCode(ctx context.Context, code string) (*models.StoredUser, error) {
	return r.findOne(ctx, bson.M{"ref_code": code})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*models.StoredUser, error) {
	var user models.StoredUser
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// InsertIfAbsent creates the user document unless one already exists
func (r *UserRepository) InsertIfAbsent(ctx context.Context, user *models.StoredUser) (bool, error) {
	doc, err := insertDocument(user, "chat_id")
	if err != nil {
		return false, err
	}
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"chat_id": user.ChatID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// Two concurrent upserts on a unique key may race; the loser sees a
		// duplicate key error and the document exists either way.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert user %d: %w", user.ChatID, err)
	}
	return res.UpsertedCount == 1, nil
}

// Delete removes the user document
func (r *UserRepository) Delete(ctx context.Context, chatID int64) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"chat_id": chatID})
	return err
}

// Count counts all users
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

// SetOptIn sets broadcast consent for one user
func (r *UserRepository) SetOptIn(ctx context.Context, chatID int64, optIn bool) error {
	return r.set(ctx, chatID, bson.M{"optin": optIn})
}

// SetOptInAll sets broadcast consent for every user
func (r *UserRepository) SetOptInAll(ctx context.Context, optIn bool) (int64, error) {
	res, err := r.collection.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{"optin": optIn}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ListChatIDs lists chat ids, optionally only those who accept broadcasts
func (r *UserRepository) ListChatIDs(ctx context.Context, optInOnly bool) ([]int64, error) {
	filter := bson.M{}
	if optInOnly {
		filter = bson.M{"$or": bson.A{
			bson.M{"optin": true},
			bson.M{"optin": bson.M{"$exists": false}},
		}}
	}
	opts := options.Find().SetProjection(bson.M{"chat_id": 1, "_id": 0})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ChatID int64 `bson:"chat_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ChatID)
	}
	return ids, nil
}

// SetPrefs replaces the stored preference map
func (r *UserRepository) SetPrefs(ctx context.Context, chatID int64, prefs models.Prefs) error {
	return r.set(ctx, chatID, bson.M{"prefs": prefs})
}

// SetPrefFields sets individual preference keys
func (r *UserRepository) SetPrefFields(ctx context.Context, chatID int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	set := bson.M{}
	for key, value := range fields {
		set["prefs."+key] = value
	}
	return r.set(ctx, chatID, set)
}

// SetSubExpiresAt rewrites the expiry, nil stores null
func (r *UserRepository) SetSubExpiresAt(ctx context.Context, chatID int64, expiresAt *time.Time) error {
	return r.set(ctx, chatID, bson.M{"sub_expires_at": expiresAt})
}

// ResetPeriod starts a new usage period
func (r *UserRepository) ResetPeriod(ctx context.Context, chatID int64, month string) error {
	return r.set(ctx, chatID, bson.M{
		"period_month": month,
		"text_used":    0,
		"photo_used":   0,
	})
}

// IncUsage increments the counter for kind by one
func (r *UserRepository) IncUsage(ctx context.Context, chatID int64, kind models.UsageKind) error {
	field := kind.Field()
	if field == "" {
		return fmt.Errorf("unknown usage kind %q", kind)
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"chat_id": chatID}, bson.M{"$inc": bson.M{field: 1}})
	return err
}

// SetSubscription sets plan and expiry, creating a minimal document if needed
func (r *UserRepository) SetSubscription(ctx context.Context, chatID int64, plan models.Plan, expiresAt time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"plan":           string(plan),
			"sub_expires_at": expiresAt,
		},
		"$setOnInsert": bson.M{
			"text_used":           0,
			"photo_used":          0,
			"optin":               true,
			"referred_count":      0,
			"referred_paid_count": 0,
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"chat_id": chatID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set subscription for %d: %w", chatID, err)
	}
	return nil
}

// SwapSubscription sets plan and expiry if they are unchanged since the
// caller read them
func (r *UserRepository) SwapSubscription(ctx context.Context, chatID int64, prevPlan models.Plan, prevExpiresAt *time.Time, plan models.Plan, expiresAt time.Time) (bool, error) {
	filter := bson.M{"chat_id": chatID}
	if prevPlan == models.PlanFree {
		filter["plan"] = bson.M{"$nin": bson.A{string(models.PlanLite), string(models.PlanPro)}}
	} else {
		filter["plan"] = string(prevPlan)
	}
	if prevExpiresAt == nil {
		filter["sub_expires_at"] = nil
	} else {
		filter["sub_expires_at"] = prevExpiresAt.UTC()
	}
	update := bson.M{"$set": bson.M{
		"plan":           string(plan),
		"sub_expires_at": expiresAt,
	}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to swap subscription for %d: %w", chatID, err)
	}
	return res.MatchedCount == 1, nil
}

// ApplyPromo grants plan until promo.ExpiresAt unless promo.Code was already redeemed
func (r *UserRepository) ApplyPromo(ctx context.Context, chatID int64, plan models.Plan, promo models.Promo) (bool, error) {
	filter := bson.M{
		"chat_id":    chatID,
		"promo.code": bson.M{"$ne": promo.Code},
	}
	update := bson.M{"$set": bson.M{
		"plan":           string(plan),
		"sub_expires_at": promo.ExpiresAt,
		"promo":          promo,
	}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// SetRefCode stores code if the user has none
func (r *UserRepository) SetRefCode(ctx context.Context, chatID int64, code string) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"chat_id": chatID, "ref_code": nil},
		bson.M{"$set": bson.M{"ref_code": code}},
	)
	if err != nil {
		return false, mapError(err)
	}
	return res.MatchedCount == 1, nil
}

// SetReferrerOnce links the user to referrerID if no referrer is set
func (r *UserRepository) SetReferrerOnce(ctx context.Context, chatID, referrerID int64) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"chat_id": chatID, "referred_by": nil},
		bson.M{"$set": bson.M{"referred_by": referrerID}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// IncReferredCount increments the invitee counter
func (r *UserRepository) IncReferredCount(ctx context.Context, chatID int64) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"chat_id": chatID}, bson.M{"$inc": bson.M{"referred_count": 1}})
	return err
}

// AddPaidReferral credits buyerID to referrerID at most once
func (r *UserRepository) AddPaidReferral(ctx context.Context, referrerID, buyerID int64) (bool, int64, error) {
	filter := bson.M{
		"chat_id":           referrerID,
		"referred_paid_ids": bson.M{"$ne": buyerID},
	}
	update := bson.M{
		"$addToSet": bson.M{"referred_paid_ids": buyerID},
		"$inc":      bson.M{"referred_paid_count": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.StoredUser
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return true, updated.ReferredPaidCount, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, 0, err
	}

	// Already credited, or the referrer document is gone.
	current, err := r.FindByChatID(ctx, referrerID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return false, current.ReferredPaidCount, nil
}

func (r *UserRepository) set(ctx context.Context, chatID int64, fields bson.M) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"chat_id": chatID}, bson.M{"$set": fields})
	return err
}
