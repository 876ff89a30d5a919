package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names shared by the repositories and the index setup.
const (
	UsersCollection     = "users"
	PaymentsCollection  = "payments"
	HistoryCollection   = "history"
	BookmarksCollection = "bookmarks"
)

// Client represents a MongoDB client
type Client struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// NewClient connects to uri and pings the primary. timeout bounds both steps;
// zero means 10 seconds.
func NewClient(ctx context.Context, uri string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &Client{
		client:  client,
		timeout: timeout,
	}, nil
}

// Database returns a database
func (c *Client) Database(name string) *mongo.Database {
	if c.db == nil || c.db.Name() != name {
		c.db = c.client.Database(name)
	}
	return c.db
}

// Ping checks the connection is still usable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Ping(ctx, nil)
}

// Disconnect disconnects from MongoDB
func (c *Client) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// IndexModels returns the indexes every collection needs, keyed by
// collection name.
func IndexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		UsersCollection: {
			{
				Keys:    bson.D{{Key: "chat_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("chat_id_unique"),
			},
			{
				// Only documents that actually carry a code take part in
				// the uniqueness check.
				Keys: bson.D{{Key: "ref_code", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("ref_code_unique").
					SetPartialFilterExpression(bson.M{"ref_code": bson.M{"$type": "string"}}),
			},
		},
		PaymentsCollection: {
			{
				Keys:    bson.D{{Key: "external_id", Value: 1}},
				Options: options.Index().SetName("external_id").SetSparse(true),
			},
			{
				Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("chat_id_created_at"),
			},
		},
		HistoryCollection: {
			{
				Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("chat_id_timestamp"),
			},
		},
		BookmarksCollection: {
			{
				Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("chat_id_created_at"),
			},
		},
	}
}

// EnsureIndexes creates the indexes returned by IndexModels. Creating an
// index that already exists with the same definition is a no-op.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, models := range IndexModels() {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
