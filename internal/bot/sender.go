package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/services"
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sethvargo/go-retry"
)

// maxMessageRunes stays under Telegram's 4096 character message cap
const maxMessageRunes = 4000

type messageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// Sender delivers plain text messages through the Bot API. It implements
// services.Sender for payment notifications and broadcasts.
type Sender struct {
	api     messageSender
	backoff func() retry.Backoff
}

// NewSender creates a new Sender. Rate-limited sends are retried with
// exponential backoff.
func NewSender(api messageSender) *Sender {
	return &Sender{api: api, backoff: defaultBackoff}
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewExponential(time.Second))
}

// Send delivers text to chatID, split into several messages when long.
// A chat that blocked the bot yields an error wrapping
// services.ErrRecipientGone.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageRunes) {
		params := &tgbot.SendMessageParams{ChatID: chatID, Text: part}
		err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
			_, err := s.api.SendMessage(ctx, params)
			if err != nil && tgbot.IsTooManyRequestsError(err) {
				return retry.RetryableError(err)
			}
			return err
		})
		if err == nil {
			continue
		}
		if recipientGone(err) {
			return fmt.Errorf("send to %d: %w (%v)", chatID, services.ErrRecipientGone, err)
		}
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

func recipientGone(err error) bool {
	if errors.Is(err, tgbot.ErrorForbidden) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "forbidden")
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks as cut points.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
