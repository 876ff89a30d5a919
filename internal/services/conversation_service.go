package services

import (
	"context"
	"strings"

	"github.com/ArowuTest/tutorbot-backend/internal/clock"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationService keeps chat history and bookmarks
type ConversationService struct {
	historyRepo  repositories.HistoryRepository
	bookmarkRepo repositories.BookmarkRepository
	maxTurns     int
	clock        clock.Clock
}

// NewConversationService creates a new ConversationService. maxTurns bounds
// the history handed to the answer model.
func NewConversationService(
	historyRepo repositories.HistoryRepository,
	bookmarkRepo repositories.BookmarkRepository,
	maxTurns int,
	clk clock.Clock,
) *ConversationService {
	return &ConversationService{
		historyRepo:  historyRepo,
		bookmarkRepo: bookmarkRepo,
		maxTurns:     maxTurns,
		clock:        clk,
	}
}

// Remember appends one turn to the history
func (s *ConversationService) Remember(ctx context.Context, chatID int64, role, content string) error {
	return s.historyRepo.Append(ctx, &models.HistoryEntry{
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Timestamp: clock.NowUTC(s.clock),
	})
}

// Recent returns the last turns, oldest first
func (s *ConversationService) Recent(ctx context.Context, chatID int64) ([]*models.HistoryEntry, error) {
	return s.historyRepo.Recent(ctx, chatID, s.maxTurns)
}

// Reset clears the history
func (s *ConversationService) Reset(ctx context.Context, chatID int64) (int64, error) {
	return s.historyRepo.Clear(ctx, chatID)
}

// LastAnswer returns the most recent assistant turn
func (s *ConversationService) LastAnswer(ctx context.Context, chatID int64) (string, bool, error) {
	entries, err := s.historyRepo.Recent(ctx, chatID, s.maxTurns)
	if err != nil {
		return "", false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == models.RoleAssistant && strings.TrimSpace(entries[i].Content) != "" {
			return entries[i].Content, true, nil
		}
	}
	return "", false, nil
}

// SaveLastAnswer bookmarks the most recent assistant turn
func (s *ConversationService) SaveLastAnswer(ctx context.Context, chatID int64) (bool, error) {
	answer, ok, err := s.LastAnswer(ctx, chatID)
	if err != nil || !ok {
		return false, err
	}
	if err := s.AddBookmark(ctx, chatID, answer); err != nil {
		return false, err
	}
	return true, nil
}

// AddBookmark saves content as a bookmark
func (s *ConversationService) AddBookmark(ctx context.Context, chatID int64, content string) error {
	return s.bookmarkRepo.Create(ctx, &models.Bookmark{
		ChatID:    chatID,
		Content:   content,
		CreatedAt: clock.NowUTC(s.clock),
	})
}

// Bookmarks lists saved bookmarks, newest first
func (s *ConversationService) Bookmarks(ctx context.Context, chatID int64, limit int) ([]*models.Bookmark, error) {
	return s.bookmarkRepo.FindByChatID(ctx, chatID, limit)
}

// DeleteBookmark removes a bookmark owned by chatID
func (s *ConversationService) DeleteBookmark(ctx context.Context, chatID int64, id primitive.ObjectID) error {
	return s.bookmarkRepo.Delete(ctx, chatID, id)
}
