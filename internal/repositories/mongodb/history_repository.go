package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	mongoclient "github.com/ArowuTest/tutorbot-backend/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ repositories.HistoryRepository  = (*HistoryRepository)(nil)
	_ repositories.BookmarkRepository = (*BookmarkRepository)(nil)
)

// HistoryRepository handles MongoDB operations for chat turns
type HistoryRepository struct {
	collection *mongo.Collection
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *mongo.Database) *HistoryRepository {
	return &HistoryRepository{
		collection: db.Collection(mongoclient.HistoryCollection),
	}
}

// Append stores one chat turn
func (r *HistoryRepository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

// Recent returns up to limit latest turns in chronological order
func (r *HistoryRepository) Recent(ctx context.Context, chatID int64, limit int) ([]*models.HistoryEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*models.HistoryEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Clear deletes a user's history
func (r *HistoryRepository) Clear(ctx context.Context, chatID int64) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// BookmarkRepository handles MongoDB operations for saved snippets
type BookmarkRepository struct {
	collection *mongo.Collection
}

// NewBookmarkRepository creates a new BookmarkRepository
func NewBookmarkRepository(db *mongo.Database) *BookmarkRepository {
	return &BookmarkRepository{
		collection: db.Collection(mongoclient.BookmarksCollection),
	}
}

// Create stores a bookmark
func (r *BookmarkRepository) Create(ctx context.Context, bookmark *models.Bookmark) error {
	if bookmark.ID.IsZero() {
		bookmark.ID = primitive.NewObjectID()
	}
	if bookmark.CreatedAt.IsZero() {
		bookmark.CreatedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, bookmark)
	return err
}

// FindByChatID lists bookmarks, newest first
func (r *BookmarkRepository) FindByChatID(ctx context.Context, chatID int64, limit int) ([]*models.Bookmark, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookmarks []*models.Bookmark
	if err := cursor.All(ctx, &bookmarks); err != nil {
		return nil, err
	}
	return bookmarks, nil
}

// Delete removes one of the user's bookmarks
func (r *BookmarkRepository) Delete(ctx context.Context, chatID int64, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "chat_id": chatID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
