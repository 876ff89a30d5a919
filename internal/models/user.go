package models

import (
	"time"
)

// Promo records the last promo code a user redeemed.
type Promo struct {
	Code        string    `bson:"code" json:"code"`
	ActivatedAt time.Time `bson:"activated_at" json:"activatedAt"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expiresAt"`
}

// StoredUser is the users collection document exactly as persisted.
// Fields that older documents may lack, or may hold in a legacy encoding,
// are pointers or interface{} so absence can be told apart from zero.
type StoredUser struct {
	ChatID            int64        `bson:"chat_id"`
	CreatedAt         time.Time    `bson:"created_at,omitempty"`
	Plan              string       `bson:"plan,omitempty"`
	SubExpiresAt      interface{}  `bson:"sub_expires_at"`
	PeriodMonth       string       `bson:"period_month,omitempty"`
	TextUsed          int64        `bson:"text_used"`
	PhotoUsed         int64        `bson:"photo_used"`
	OptIn             *bool        `bson:"optin,omitempty"`
	Prefs             *StoredPrefs `bson:"prefs,omitempty"`
	RefCode           *string      `bson:"ref_code,omitempty"`
	ReferredBy        *int64       `bson:"referred_by,omitempty"`
	ReferredCount     int64        `bson:"referred_count"`
	ReferredPaidCount int64        `bson:"referred_paid_count"`
	ReferredPaidIDs   []int64      `bson:"referred_paid_ids,omitempty"`
	Promo             *Promo       `bson:"promo,omitempty"`
}

// UserRecord is the normalized view of one chat participant handed to the
// quota and subscription logic.
type UserRecord struct {
	ChatID            int64      `json:"chatId"`
	CreatedAt         time.Time  `json:"createdAt"`
	Plan              Plan       `json:"plan"`
	SubExpiresAt      *time.Time `json:"subExpiresAt,omitempty"`
	PeriodMonth       string     `json:"periodMonth"`
	TextUsed          int64      `json:"textUsed"`
	PhotoUsed         int64      `json:"photoUsed"`
	OptIn             bool       `json:"optin"`
	Prefs             Prefs      `json:"prefs"`
	RefCode           string     `json:"refCode,omitempty"`
	ReferredBy        *int64     `json:"referredBy,omitempty"`
	ReferredCount     int64      `json:"referredCount"`
	ReferredPaidCount int64      `json:"referredPaidCount"`
	ReferredPaidIDs   []int64    `json:"referredPaidIds,omitempty"`
	Promo             *Promo     `json:"promo,omitempty"`
}

// Used returns the counter for kind.
func (u *UserRecord) Used(kind UsageKind) int64 {
	switch kind {
	case UsageText:
		return u.TextUsed
	case UsagePhoto:
		return u.PhotoUsed
	}
	return 0
}

// NewStoredUser builds the document inserted on first access.
func NewStoredUser(chatID int64, now time.Time, month string) *StoredUser {
	optIn := true
	def := DefaultPrefs()
	return &StoredUser{
		ChatID:       chatID,
		CreatedAt:    now,
		Plan:         string(PlanFree),
		SubExpiresAt: nil,
		PeriodMonth:  month,
		OptIn:        &optIn,
		Prefs:        StorePrefs(def),
	}
}

// StorePrefs converts resolved preferences to their stored shape.
func StorePrefs(p Prefs) *StoredPrefs {
	v := p.Voice
	return &StoredPrefs{
		Voice: &StoredVoicePrefs{
			Enabled: &v.Enabled,
			Auto:    &v.Auto,
			Name:    &v.Name,
			Speed:   &v.Speed,
		},
		TeacherMode: &p.TeacherMode,
		AnswerStyle: &p.AnswerStyle,
		Lang:        &p.Lang,
		Mode:        &p.Mode,
		Priority:    &p.Priority,
	}
}
