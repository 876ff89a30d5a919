package services

import "errors"

var (
	// ErrUnknownKind is returned for usage kinds other than text and photo.
	ErrUnknownKind = errors.New("unknown usage kind")
	// ErrInvalidPlan is returned when a plan cannot be granted.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrInvalidPref is returned for unknown preference keys or mistyped values.
	ErrInvalidPref = errors.New("invalid preference")
	// ErrUnknownPromo is returned when a promo code is not configured.
	ErrUnknownPromo = errors.New("unknown promo code")
	// ErrRefCodeExhausted is returned when no free referral code was found.
	ErrRefCodeExhausted = errors.New("could not allocate a unique referral code")
	// ErrInvalidCredentials is returned by operator login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingPayID is returned when a payment event carries no identifier.
	ErrMissingPayID = errors.New("payment id or order id is required")
	// ErrMissingChatID is returned when a paid event cannot be tied to a chat.
	ErrMissingChatID = errors.New("chat id is required")
	// ErrConcurrentUpdate is returned when a conditional update kept losing
	// to concurrent writers.
	ErrConcurrentUpdate = errors.New("too many concurrent updates")
)
