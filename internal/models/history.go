package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat roles stored in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one chat turn. The history collection is append-only.
type HistoryEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ChatID    int64              `bson:"chat_id" json:"chatId"`
	Role      string             `bson:"role" json:"role"`
	Content   string             `bson:"content" json:"content"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Bookmark is a saved answer snippet.
type Bookmark struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ChatID    int64              `bson:"chat_id" json:"chatId"`
	Content   string             `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}
