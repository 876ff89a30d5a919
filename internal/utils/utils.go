package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// RefCodeLength is the length of generated referral codes
const RefCodeLength = 7

const refCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateRefCode returns a random lowercase alphanumeric referral code
func GenerateRefCode() (string, error) {
	var b strings.Builder
	b.Grow(RefCodeLength)
	max := big.NewInt(int64(len(refCodeAlphabet)))
	for i := 0; i < RefCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate ref code: %w", err)
		}
		b.WriteByte(refCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// IsRefCode reports whether s has the shape of a generated referral code
func IsRefCode(s string) bool {
	if len(s) != RefCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(refCodeAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}

// ParseStartPayload extracts the referral code from a /start deep-link
// payload. Both "ref_<code>" and a bare code are accepted.
func ParseStartPayload(payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, "ref_")
	payload = strings.TrimPrefix(payload, "ref-")
	payload = strings.ToLower(payload)
	if !IsRefCode(payload) {
		return "", false
	}
	return payload, true
}

// FormatChatID renders a chat id for logs and keys
func FormatChatID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// Truncate shortens s to at most max runes, marking the cut with "…"
func Truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
