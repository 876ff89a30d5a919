package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/messages"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/ArowuTest/tutorbot-backend/internal/utils"
	"github.com/ArowuTest/tutorbot-backend/pkg/logger"
	"go.uber.org/zap"
)

// bookmarksShown caps the /bookmarks listing
const bookmarksShown = 10

// Accounts is the user store as seen by chat commands
type Accounts interface {
	EnsureUser(ctx context.Context, chatID int64) (*models.UserRecord, error)
	SetPref(ctx context.Context, chatID int64, key string, value interface{}) error
	SetOptIn(ctx context.Context, chatID int64, optIn bool) error
}

// StatusReporter renders the plan and usage summary
type StatusReporter interface {
	StatusText(rec *models.UserRecord) string
}

// Referrals hands out referral links and attributes new users
type Referrals interface {
	GetOrCreateRefCode(ctx context.Context, chatID int64) (string, error)
	LinkByCode(ctx context.Context, chatID int64, code string) (bool, error)
}

// PromoRedeemer applies promo codes
type PromoRedeemer interface {
	RedeemPromo(ctx context.Context, chatID int64, code string) (bool, *time.Time, error)
}

// Checkouts opens payment intents
type Checkouts interface {
	CreateCheckout(ctx context.Context, chatID int64, plan models.Plan) (*services.Checkout, error)
}

// Conversations manages history and bookmarks
type Conversations interface {
	SaveLastAnswer(ctx context.Context, chatID int64) (bool, error)
	Bookmarks(ctx context.Context, chatID int64, limit int) ([]*models.Bookmark, error)
	Reset(ctx context.Context, chatID int64) (int64, error)
}

// Commands answers slash commands. Every command resolves to one reply text.
type Commands struct {
	accounts  Accounts
	status    StatusReporter
	referrals Referrals
	promos    PromoRedeemer
	checkouts Checkouts
	convo     Conversations
	pricing   config.SubscriptionConfig
	referral  config.ReferralConfig
	username  string
	logger    *zap.Logger
}

// CommandDeps groups the collaborators of Commands
type CommandDeps struct {
	Accounts  Accounts
	Status    StatusReporter
	Referrals Referrals
	Promos    PromoRedeemer
	Checkouts Checkouts
	Convo     Conversations
	Pricing   config.SubscriptionConfig
	Referral  config.ReferralConfig
	// Username is the bot's @name without the @, used in referral links.
	Username string
}

// NewCommands creates a new Commands
func NewCommands(deps CommandDeps, log *zap.Logger) *Commands {
	if log == nil {
		log = zap.NewNop()
	}
	return &Commands{
		accounts:  deps.Accounts,
		status:    deps.Status,
		referrals: deps.Referrals,
		promos:    deps.Promos,
		checkouts: deps.Checkouts,
		convo:     deps.Convo,
		pricing:   deps.Pricing,
		referral:  deps.Referral,
		username:  strings.TrimPrefix(deps.Username, "@"),
		logger:    log.With(logger.Service("bot")),
	}
}

// ParseCommand splits "/cmd@botname args" into "/cmd" and "args". ok is
// false for text that is not a command.
func ParseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, args, _ = strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args), cmd != "/"
}

// Handle runs a command for chatID and returns the reply. Unknown commands
// get the help text and never reach the metered tutor.
func (c *Commands) Handle(ctx context.Context, chatID int64, cmd, args string) string {
	rec, err := c.accounts.EnsureUser(ctx, chatID)
	if err != nil {
		c.logger.Error("failed to load user", logger.ChatID(chatID), zap.Error(err))
		return messages.Get(messages.DefaultLang, messages.RetryLater)
	}
	var reply string
	lang := rec.Prefs.Lang

	switch cmd {
	case "/start":
		reply, err = c.start(ctx, rec, args)
	case "/help":
		reply = messages.Get(lang, messages.Help)
	case "/status":
		reply = c.status.StatusText(rec)
	case "/ref":
		reply, err = c.refLink(ctx, rec)
	case "/promo":
		reply, err = c.promo(ctx, rec, args)
	case "/buy_lite":
		reply, err = c.buy(ctx, rec, models.PlanLite)
	case "/buy_pro":
		reply, err = c.buy(ctx, rec, models.PlanPro)
	case "/optin":
		err = c.accounts.SetOptIn(ctx, chatID, true)
		reply = messages.Get(lang, messages.OptedIn)
	case "/optout":
		err = c.accounts.SetOptIn(ctx, chatID, false)
		reply = messages.Get(lang, messages.OptedOut)
	case "/voice_on":
		err = c.accounts.SetPref(ctx, chatID, models.PrefVoiceEnabled, true)
		reply = messages.Get(lang, messages.VoiceOn)
	case "/voice_off":
		err = c.accounts.SetPref(ctx, chatID, models.PrefVoiceEnabled, false)
		reply = messages.Get(lang, messages.VoiceOff)
	case "/lang":
		reply, err = c.lang(ctx, rec, args)
	case "/save":
		reply, err = c.save(ctx, rec)
	case "/bookmarks":
		reply, err = c.bookmarks(ctx, rec)
	case "/reset":
		_, err = c.convo.Reset(ctx, chatID)
		reply = messages.Get(lang, messages.HistoryCleared)
	default:
		c.logger.Debug("unknown command", logger.ChatID(chatID), logger.Operation(cmd))
		reply = messages.Get(lang, messages.Help)
	}

	if err != nil {
		c.logger.Error("command failed", logger.ChatID(chatID), logger.Operation(cmd), zap.Error(err))
		return messages.Get(lang, messages.RetryLater)
	}
	return reply
}

func (c *Commands) start(ctx context.Context, rec *models.UserRecord, payload string) (string, error) {
	welcome := messages.Get(rec.Prefs.Lang, messages.Welcome)
	code, ok := utils.ParseStartPayload(payload)
	if !ok {
		return welcome, nil
	}
	linked, err := c.referrals.LinkByCode(ctx, rec.ChatID, code)
	if err != nil {
		// Attribution is best effort; the user still gets a greeting.
		c.logger.Warn("referral link failed", logger.ChatID(rec.ChatID), zap.Error(err))
		return welcome, nil
	}
	if linked {
		return welcome + "\n\n" + messages.Get(rec.Prefs.Lang, messages.ReferrerLinked), nil
	}
	return welcome, nil
}

func (c *Commands) refLink(ctx context.Context, rec *models.UserRecord) (string, error) {
	code, err := c.referrals.GetOrCreateRefCode(ctx, rec.ChatID)
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("https://t.me/%s?start=ref_%s", c.username, code)
	return messages.Get(rec.Prefs.Lang, messages.RefLink,
		link, rec.ReferredCount, rec.ReferredPaidCount, c.referral.RewardBatch, c.referral.RewardMonths), nil
}

func (c *Commands) promo(ctx context.Context, rec *models.UserRecord, args string) (string, error) {
	lang := rec.Prefs.Lang
	code := strings.TrimSpace(args)
	if code == "" {
		return messages.Get(lang, messages.PromoUsage), nil
	}
	applied, expiresAt, err := c.promos.RedeemPromo(ctx, rec.ChatID, code)
	if errors.Is(err, services.ErrUnknownPromo) {
		return messages.Get(lang, messages.PromoUnknown), nil
	}
	if err != nil {
		return "", err
	}
	until := "-"
	if expiresAt != nil {
		until = expiresAt.UTC().Format(services.ExpiryLayout)
	}
	if applied {
		return messages.Get(lang, messages.PromoActivated, until), nil
	}
	return messages.Get(lang, messages.PromoRepeated, until), nil
}

func (c *Commands) buy(ctx context.Context, rec *models.UserRecord, plan models.Plan) (string, error) {
	checkout, err := c.checkouts.CreateCheckout(ctx, rec.ChatID, plan)
	if err != nil {
		return "", err
	}
	price := c.pricing.LitePrice
	if plan == models.PlanPro {
		price = c.pricing.ProPrice
	}
	name := strings.ToUpper(string(plan))
	if checkout.URL == "" {
		return messages.Get(rec.Prefs.Lang, messages.CheckoutNoURL, name, price, checkout.Payment.PayID), nil
	}
	return messages.Get(rec.Prefs.Lang, messages.Checkout, name, price, checkout.URL), nil
}

func (c *Commands) lang(ctx context.Context, rec *models.UserRecord, args string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(args))
	if !messages.Supported(lang) || lang == "" {
		return messages.Get(rec.Prefs.Lang, messages.LangUsage), nil
	}
	if err := c.accounts.SetPref(ctx, rec.ChatID, models.PrefLang, lang); err != nil {
		return "", err
	}
	return messages.Get(lang, messages.LangChanged), nil
}

func (c *Commands) save(ctx context.Context, rec *models.UserRecord) (string, error) {
	saved, err := c.convo.SaveLastAnswer(ctx, rec.ChatID)
	if err != nil {
		return "", err
	}
	if !saved {
		return messages.Get(rec.Prefs.Lang, messages.BookmarkNothing), nil
	}
	return messages.Get(rec.Prefs.Lang, messages.BookmarkSaved), nil
}

func (c *Commands) bookmarks(ctx context.Context, rec *models.UserRecord) (string, error) {
	list, err := c.convo.Bookmarks(ctx, rec.ChatID, bookmarksShown)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return messages.Get(rec.Prefs.Lang, messages.BookmarksEmpty), nil
	}
	var sb strings.Builder
	sb.WriteString(messages.Get(rec.Prefs.Lang, messages.BookmarksHeader))
	for i, b := range list {
		fmt.Fprintf(&sb, "\n\n%d. %s", i+1, utils.Truncate(b.Content, 400))
	}
	return sb.String(), nil
}
