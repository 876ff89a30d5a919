package models

import (
	"time"
)

// Well-known payment statuses. The set is open: providers may report others.
const (
	PaymentStatusCreated    = "created"
	PaymentStatusPaid       = "paid"
	PaymentStatusNotPaid    = "not_paid"
	PaymentStatusBadPayload = "bad_payload"
)

// PaymentRecord is one payment-provider transaction keyed by PayID.
type PaymentRecord struct {
	PayID       string                 `bson:"_id" json:"payId"`
	Provider    string                 `bson:"provider" json:"provider"`
	ChatID      int64                  `bson:"chat_id" json:"chatId"`
	Plan        Plan                   `bson:"plan" json:"plan"`
	Amount      float64                `bson:"amount" json:"amount"`
	Currency    string                 `bson:"currency" json:"currency"`
	Status      string                 `bson:"status" json:"status"`
	Processed   bool                   `bson:"processed" json:"processed"`
	ExternalID  string                 `bson:"external_id,omitempty" json:"externalId,omitempty"`
	RawCreate   map[string]interface{} `bson:"raw_create,omitempty" json:"rawCreate,omitempty"`
	RawEvent    map[string]interface{} `bson:"raw_event,omitempty" json:"rawEvent,omitempty"`
	CreatedAt   time.Time              `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time              `bson:"updated_at" json:"updatedAt"`
	ProcessedAt *time.Time             `bson:"processed_at,omitempty" json:"processedAt,omitempty"`
}
