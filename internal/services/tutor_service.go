package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ArowuTest/tutorbot-backend/internal/messages"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/pkg/llm"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"go.uber.org/zap"
)

// Completer produces an assistant reply for a chat transcript
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Cooldown rate-limits requests per chat. Acquire returns false while the
// chat is cooling down.
type Cooldown interface {
	Acquire(ctx context.Context, chatID int64) (bool, error)
}

// Question is one metered request from a chat
type Question struct {
	ChatID int64
	Kind   models.UsageKind
	Text   string
	Image  []byte
}

// Reply is the outcome of a Question. When Blocked, Notice explains why and
// no usage was counted.
type Reply struct {
	Text    string
	Blocked bool
	Notice  string
	Lang    string
	Pro     bool
}

const (
	systemPromptRU = "Ты школьный помощник-репетитор. Отвечай на русском. " +
		"Отвечай кратко и по шагам. В задачах по точным наукам пиши ДАНО, НАЙТИ, ФОРМУЛЫ, РЕШЕНИЕ и в конце строку 'ИТОГ: ...'. " +
		"Не используй LaTeX: дроби через '/', умножение '*', степень '^'."
	systemPromptEN = "You are a school tutor. Answer in English. " +
		"Be brief and go step by step. For science problems write GIVEN, FIND, FORMULAS, SOLUTION and finish with one line 'RESULT: ...'. " +
		"Do not use LaTeX: fractions with '/', multiplication '*', powers '^'."
	teacherModeNote = "Teacher mode: explain the reasoning behind every step and end with a short check question."
	briefStyleNote  = "Give only the final answer with a one-line justification."
	photoHintRU     = "Распознай условие с фото и реши задачу по шагам в указанном формате."
	photoHintEN     = "Read the problem from the photo and solve it step by step in the given format."
)

// TutorService runs the metered question flow: cooldown, quota gate,
// answer generation, then usage accounting and history.
type TutorService struct {
	users     *UserService
	quota     *QuotaService
	convo     *ConversationService
	completer Completer
	cooldown  Cooldown
	logger    *zap.Logger
}

// NewTutorService creates a new TutorService. cooldown may be nil.
func NewTutorService(
	users *UserService,
	quota *QuotaService,
	convo *ConversationService,
	completer Completer,
	cooldown Cooldown,
	log *zap.Logger,
) *TutorService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TutorService{
		users:     users,
		quota:     quota,
		convo:     convo,
		completer: completer,
		cooldown:  cooldown,
		logger:    log.With(logger.Service("tutor")),
	}
}

// Ask answers q if the chat is within its limits
func (s *TutorService) Ask(ctx context.Context, q Question) (*Reply, error) {
	rec, err := s.users.EnsureUser(ctx, q.ChatID)
	if err != nil {
		return nil, err
	}
	lang := rec.Prefs.Lang
	reply := &Reply{Lang: lang, Pro: s.quota.Effective(rec) == models.EffectivePro}

	if allowed, msg := s.quota.CanUse(rec, q.Kind); !allowed {
		reply.Blocked = true
		reply.Notice = msg
		return reply, nil
	}

	// Quota first so a blocked request does not start a cooldown window.
	if s.cooldown != nil {
		ok, err := s.cooldown.Acquire(ctx, q.ChatID)
		if err != nil {
			// The limiter is best effort; a cache outage must not stop answers.
			s.logger.Warn("cooldown unavailable", logger.ChatID(q.ChatID), zap.Error(err))
		} else if !ok {
			reply.Blocked = true
			reply.Notice = messages.Get(lang, messages.Cooldown)
			return reply, nil
		}
	}

	history, err := s.convo.Recent(ctx, q.ChatID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	transcript := []llm.Message{llm.TextMessage(llm.RoleSystem, systemPrompt(rec.Prefs))}
	for _, turn := range history {
		transcript = append(transcript, llm.TextMessage(turn.Role, turn.Content))
	}
	userTurn := strings.TrimSpace(q.Text)
	switch q.Kind {
	case models.UsagePhoto:
		hint := userTurn
		if hint == "" {
			hint = photoHint(lang)
		}
		transcript = append(transcript, llm.ImageMessage(hint, q.Image))
		if userTurn == "" {
			userTurn = "[photo]"
		}
	default:
		transcript = append(transcript, llm.TextMessage(llm.RoleUser, userTurn))
	}

	answer, err := s.completer.Complete(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	reply.Text = answer

	if err := s.quota.IncUsage(ctx, q.ChatID, q.Kind); err != nil {
		s.logger.Error("failed to count usage", logger.ChatID(q.ChatID), zap.Error(err))
	}
	if err := s.convo.Remember(ctx, q.ChatID, models.RoleUser, userTurn); err != nil {
		s.logger.Warn("failed to store question", logger.ChatID(q.ChatID), zap.Error(err))
	}
	if err := s.convo.Remember(ctx, q.ChatID, models.RoleAssistant, answer); err != nil {
		s.logger.Warn("failed to store answer", logger.ChatID(q.ChatID), zap.Error(err))
	}
	return reply, nil
}

func systemPrompt(p models.Prefs) string {
	prompt := systemPromptRU
	if p.Lang == messages.LangEN {
		prompt = systemPromptEN
	}
	if p.TeacherMode {
		prompt += "\n" + teacherModeNote
	}
	if p.AnswerStyle == "brief" {
		prompt += "\n" + briefStyleNote
	}
	return prompt
}

func photoHint(lang string) string {
	if lang == messages.LangEN {
		return photoHintEN
	}
	return photoHintRU
}
