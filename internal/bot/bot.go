// Package bot is the Telegram chat transport. It routes commands to the
// account services and questions to the metered tutor flow.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/messages"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	pollTimeout   = 50 * time.Second
	maxPhotoBytes = 10 << 20
)

// Asker answers metered questions
type Asker interface {
	Ask(ctx context.Context, q services.Question) (*services.Reply, error)
}

// Bot wires Telegram updates to Commands and the tutor flow
type Bot struct {
	api        *tgbot.Bot
	sender     *Sender
	commands   *Commands
	tutor      Asker
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a long-polling bot. Call Start to begin receiving updates.
func New(token string, commands *Commands, tutor Asker, log *zap.Logger) (*Bot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bot{
		commands:   commands,
		tutor:      tutor,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     log.With(logger.Service("bot")),
	}

	api, err := tgbot.New(token, tgbot.WithHTTPClient(pollTimeout, b.httpClient))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	api.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return update.Message != nil
	}, b.handleMessage)

	b.api = api
	b.sender = NewSender(api)
	return b, nil
}

// Sender returns the outbound message sender
func (b *Bot) Sender() *Sender {
	return b.sender
}

// Start polls for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("telegram bot polling started")
	b.api.Start(ctx)
	b.logger.Info("telegram bot polling stopped")
}

func (b *Bot) handleMessage(ctx context.Context, api *tgbot.Bot, update *tgmodels.Update) {
	msg := update.Message
	chatID := msg.Chat.ID

	if cmd, args, ok := ParseCommand(msg.Text); ok {
		b.reply(ctx, chatID, b.commands.Handle(ctx, chatID, cmd, args))
		return
	}

	q := services.Question{ChatID: chatID, Kind: models.UsageText, Text: msg.Text}
	switch {
	case len(msg.Photo) > 0:
		image, err := b.downloadPhoto(ctx, api, largestPhoto(msg.Photo))
		if err != nil {
			b.logger.Warn("photo download failed", logger.ChatID(chatID), zap.Error(err))
			b.reply(ctx, chatID, messages.Get(messages.DefaultLang, messages.RetryLater))
			return
		}
		q.Kind = models.UsagePhoto
		q.Text = msg.Caption
		q.Image = image
	case msg.Text == "":
		return
	}

	_, _ = api.SendChatAction(ctx, &tgbot.SendChatActionParams{
		ChatID: chatID,
		Action: tgmodels.ChatActionTyping,
	})

	res, err := b.tutor.Ask(ctx, q)
	if err != nil {
		b.logger.Error("question failed", logger.ChatID(chatID), zap.String("kind", string(q.Kind)), zap.Error(err))
		b.reply(ctx, chatID, messages.Get(messages.DefaultLang, messages.RetryLater))
		return
	}
	if res.Blocked {
		b.reply(ctx, chatID, res.Notice)
		return
	}
	b.reply(ctx, chatID, res.Text)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := b.sender.Send(ctx, chatID, text); err != nil {
		b.logger.Warn("reply failed", logger.ChatID(chatID), zap.Error(err))
	}
}

func largestPhoto(sizes []tgmodels.PhotoSize) tgmodels.PhotoSize {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.FileSize > best.FileSize || (p.FileSize == best.FileSize && p.Width*p.Height > best.Width*best.Height) {
			best = p
		}
	}
	return best
}

func (b *Bot) downloadPhoto(ctx context.Context, api *tgbot.Bot, photo tgmodels.PhotoSize) ([]byte, error) {
	file, err := api.GetFile(ctx, &tgbot.GetFileParams{FileID: photo.FileID})
	if err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}

	fileURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", api.Token(), file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}
