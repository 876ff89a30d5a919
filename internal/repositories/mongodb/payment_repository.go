package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	mongoclient "github.com/ArowuTest/tutorbot-backend/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// PaymentRepository handles MongoDB operations for the payment ledger
type PaymentRepository struct {
	collection *mongo.Collection
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{
		collection: db.Collection(mongoclient.PaymentsCollection),
	}
}

// Create inserts the payment with "set on insert" semantics; an existing
// record with the same pay id is left untouched.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.PaymentRecord) (bool, error) {
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	if payment.UpdatedAt.IsZero() {
		payment.UpdatedAt = now
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusCreated
	}

	doc, err := insertDocument(payment, "_id")
	if err != nil {
		return false, err
	}
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": payment.PayID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create payment %s: %w", payment.PayID, err)
	}
	return res.UpsertedCount == 1, nil
}

// FindByID finds a payment by pay id
func (r *PaymentRepository) FindByID(ctx context.Context, payID string) (*models.PaymentRecord, error) {
	return r.findOne(ctx, bson.M{"_id": payID})
}

// FindByExternalID finds a payment by the provider's own reference
func (r *PaymentRepository) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentRecord, error) {
	return r.findOne(ctx, bson.M{"external_id": externalID})
}

func (r *PaymentRepository) findOne(ctx context.Context, filter bson.M) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	if err := r.collection.FindOne(ctx, filter).Decode(&payment); err != nil {
		return nil, mapError(err)
	}
	return &payment, nil
}

// FindByChatID lists a user's payments, newest first
func (r *PaymentRepository) FindByChatID(ctx context.Context, chatID int64, limit int) ([]*models.PaymentRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var payments []*models.PaymentRecord
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []*models.PaymentRecord{}
	}
	return payments, nil
}

// SetStatus records the latest provider event for a payment
func (r *PaymentRepository) SetStatus(ctx context.Context, payID, status string, rawEvent map[string]interface{}, externalID string) error {
	fields := bson.M{
		"status":     status,
		"raw_event":  rawEvent,
		"updated_at": time.Now().UTC(),
	}
	if externalID != "" {
		fields["external_id"] = externalID
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": payID}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to set status of payment %s: %w", payID, err)
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// MarkProcessed flips processed to true if it is not already
func (r *PaymentRepository) MarkProcessed(ctx context.Context, payID string) (bool, error) {
	now := time.Now().UTC()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": payID, "processed": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{
			"processed":    true,
			"processed_at": now,
			"updated_at":   now,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// ReleaseProcessed clears a processed claim
func (r *PaymentRepository) ReleaseProcessed(ctx context.Context, payID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": payID},
		bson.M{
			"$set":   bson.M{"processed": false, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"processed_at": ""},
		},
	)
	return err
}
