package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRecipientGone is wrapped by Sender implementations when the chat can
// no longer receive messages, e.g. the user blocked the bot.
var ErrRecipientGone = errors.New("recipient gone")

// Sender delivers a text message to a chat
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// BroadcastResult summarizes a broadcast run
type BroadcastResult struct {
	Total   int   `json:"total"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// BroadcastService sends announcements to opted-in users
type BroadcastService struct {
	users       *UserService
	sender      Sender
	concurrency int
	delay       time.Duration
	logger      *zap.Logger
}

// NewBroadcastService creates a new BroadcastService
func NewBroadcastService(users *UserService, sender Sender, concurrency int, delay time.Duration, log *zap.Logger) *BroadcastService {
	if concurrency <= 0 {
		concurrency = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BroadcastService{
		users:       users,
		sender:      sender,
		concurrency: concurrency,
		delay:       delay,
		logger:      log.With(logger.Service("broadcast")),
	}
}

// Broadcast sends text to every opted-in chat. Chats that blocked the bot
// are dropped.
func (s *BroadcastService) Broadcast(ctx context.Context, text string) (*BroadcastResult, error) {
	chatIDs, err := s.users.ChatIDs(ctx, true)
	if err != nil {
		return nil, err
	}

	result := &BroadcastResult{Total: len(chatIDs)}
	var sent, failed, dropped int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, chatID := range chatIDs {
		chatID := chatID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := s.sender.Send(gctx, chatID, text)
			switch {
			case err == nil:
				atomic.AddInt64(&sent, 1)
			case errors.Is(err, ErrRecipientGone):
				atomic.AddInt64(&failed, 1)
				if dropErr := s.users.DropChat(gctx, chatID); dropErr != nil {
					s.logger.Warn("failed to drop chat", logger.ChatID(chatID), zap.Error(dropErr))
				} else {
					atomic.AddInt64(&dropped, 1)
				}
			default:
				atomic.AddInt64(&failed, 1)
				s.logger.Warn("broadcast send failed", logger.ChatID(chatID), zap.Error(err))
			}
			if s.delay > 0 {
				select {
				case <-time.After(s.delay):
				case <-gctx.Done():
				}
			}
			return nil
		})
	}
	waitErr := g.Wait()

	result.Sent = atomic.LoadInt64(&sent)
	result.Failed = atomic.LoadInt64(&failed)
	result.Dropped = atomic.LoadInt64(&dropped)
	s.logger.Info("broadcast finished",
		zap.Int("total", result.Total),
		zap.Int64("sent", result.Sent),
		zap.Int64("failed", result.Failed),
		zap.Int64("dropped", result.Dropped),
	)
	return result, waitErr
}
