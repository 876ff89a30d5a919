package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/clock"
	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/repositories"
	"github.com/ArowuTest/tutorbot-backend/pkg/llm"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memUserRepo is an in-memory UserRepository. Every method holds the lock
// for its whole body, matching the single-document atomicity of Mongo.
type memUserRepo struct {
	mu    sync.Mutex
	users map[int64]*models.StoredUser
	// writes counts mutating calls so tests can assert no-op reads
	writes int
	// beforeSwap runs ahead of each SwapSubscription to inject a racing write
	beforeSwap func(chatID int64)
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int64]*models.StoredUser{}}
}

func copyUser(u *models.StoredUser) *models.StoredUser {
	c := *u
	c.ReferredPaidIDs = append([]int64(nil), u.ReferredPaidIDs...)
	if u.Promo != nil {
		p := *u.Promo
		c.Promo = &p
	}
	return &c
}

func (r *memUserRepo) put(u *models.StoredUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ChatID] = copyUser(u)
}

func (r *memUserRepo) get(chatID int64) *models.StoredUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[chatID]
	if !ok {
		return nil
	}
	return copyUser(u)
}

func (r *memUserRepo) FindByChatID(ctx context.Context, chatID int64) (*models.StoredUser, error) {
	if u := r.get(chatID); u != nil {
		return u, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *memUserRepo) FindByRefCode(ctx context.Context, code string) (*models.StoredUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.RefCode != nil && *u.RefCode == code {
			return copyUser(u), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memUserRepo) InsertIfAbsent(ctx context.Context, user *models.StoredUser) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ChatID]; ok {
		return false, nil
	}
	r.writes++
	r.users[user.ChatID] = copyUser(user)
	return true, nil
}

func (r *memUserRepo) Delete(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, chatID)
	return nil
}

func (r *memUserRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

func (r *memUserRepo) update(chatID int64, fn func(u *models.StoredUser)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[chatID]; ok {
		r.writes++
		fn(u)
	}
}

func (r *memUserRepo) SetOptIn(ctx context.Context, chatID int64, optIn bool) error {
	r.update(chatID, func(u *models.StoredUser) { u.OptIn = &optIn })
	return nil
}

func (r *memUserRepo) SetOptInAll(ctx context.Context, optIn bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		if u.OptIn == nil || *u.OptIn != optIn {
			v := optIn
			u.OptIn = &v
			n++
		}
	}
	return n, nil
}

func (r *memUserRepo) ListChatIDs(ctx context.Context, optInOnly bool) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, u := range r.users {
		if optInOnly && u.OptIn != nil && !*u.OptIn {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memUserRepo) SetPrefs(ctx context.Context, chatID int64, prefs models.Prefs) error {
	r.update(chatID, func(u *models.StoredUser) { u.Prefs = models.StorePrefs(prefs) })
	return nil
}

func (r *memUserRepo) SetPrefFields(ctx context.Context, chatID int64, fields map[string]interface{}) error {
	r.update(chatID, func(u *models.StoredUser) {
		prefs, _ := u.Prefs.Resolve(models.DefaultPrefs())
		for key, value := range fields {
			prefs.Apply(key, value)
		}
		u.Prefs = models.StorePrefs(prefs)
	})
	return nil
}

func (r *memUserRepo) SetSubExpiresAt(ctx context.Context, chatID int64, expiresAt *time.Time) error {
	r.update(chatID, func(u *models.StoredUser) {
		if expiresAt == nil {
			u.SubExpiresAt = nil
			return
		}
		u.SubExpiresAt = expiresAt.UTC()
	})
	return nil
}

func (r *memUserRepo) ResetPeriod(ctx context.Context, chatID int64, month string) error {
	r.update(chatID, func(u *models.StoredUser) {
		u.PeriodMonth = month
		u.TextUsed = 0
		u.PhotoUsed = 0
	})
	return nil
}

func (r *memUserRepo) IncUsage(ctx context.Context, chatID int64, kind models.UsageKind) error {
	r.update(chatID, func(u *models.StoredUser) {
		switch kind {
		case models.UsageText:
			u.TextUsed++
		case models.UsagePhoto:
			u.PhotoUsed++
		}
	})
	return nil
}

func (r *memUserRepo) SetSubscription(ctx context.Context, chatID int64, plan models.Plan, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	u, ok := r.users[chatID]
	if !ok {
		optIn := true
		u = &models.StoredUser{ChatID: chatID, OptIn: &optIn}
		r.users[chatID] = u
	}
	u.Plan = string(plan)
	u.SubExpiresAt = expiresAt.UTC()
	return nil
}

func (r *memUserRepo) SwapSubscription(ctx context.Context, chatID int64, prevPlan models.Plan, prevExpiresAt *time.Time, plan models.Plan, expiresAt time.Time) (bool, error) {
	if r.beforeSwap != nil {
		r.beforeSwap(chatID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[chatID]
	if !ok {
		return false, nil
	}
	if models.ParsePlan(u.Plan) != prevPlan {
		return false, nil
	}
	cur := clock.ToAwareUTC(u.SubExpiresAt)
	if (cur == nil) != (prevExpiresAt == nil) || (cur != nil && !cur.Equal(*prevExpiresAt)) {
		return false, nil
	}
	r.writes++
	u.Plan = string(plan)
	u.SubExpiresAt = expiresAt.UTC()
	return true, nil
}

func (r *memUserRepo) ApplyPromo(ctx context.Context, chatID int64, plan models.Plan, promo models.Promo) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[chatID]
	if !ok || (u.Promo != nil && u.Promo.Code == promo.Code) {
		return false, nil
	}
	r.writes++
	u.Plan = string(plan)
	u.SubExpiresAt = promo.ExpiresAt.UTC()
	p := promo
	u.Promo = &p
	return true, nil
}

func (r *memUserRepo) SetRefCode(ctx context.Context, chatID int64, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.users {
		if id != chatID && other.RefCode != nil && *other.RefCode == code {
			return false, repositories.ErrDuplicateKey
		}
	}
	u, ok := r.users[chatID]
	if !ok || u.RefCode != nil {
		return false, nil
	}
	r.writes++
	c := code
	u.RefCode = &c
	return true, nil
}

func (r *memUserRepo) SetReferrerOnce(ctx context.Context, chatID, referrerID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[chatID]
	if !ok || u.ReferredBy != nil {
		return false, nil
	}
	r.writes++
	ref := referrerID
	u.ReferredBy = &ref
	return true, nil
}

func (r *memUserRepo) IncReferredCount(ctx context.Context, chatID int64) error {
	r.update(chatID, func(u *models.StoredUser) { u.ReferredCount++ })
	return nil
}

func (r *memUserRepo) AddPaidReferral(ctx context.Context, referrerID, buyerID int64) (bool, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[referrerID]
	if !ok {
		return false, 0, nil
	}
	for _, id := range u.ReferredPaidIDs {
		if id == buyerID {
			return false, u.ReferredPaidCount, nil
		}
	}
	r.writes++
	u.ReferredPaidIDs = append(u.ReferredPaidIDs, buyerID)
	u.ReferredPaidCount++
	return true, u.ReferredPaidCount, nil
}

// memPaymentRepo is an in-memory PaymentRepository
type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.PaymentRecord
	// released records ReleaseProcessed calls
	released []string
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: map[string]*models.PaymentRecord{}}
}

func (r *memPaymentRepo) Create(ctx context.Context, payment *models.PaymentRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.PayID]; ok {
		return false, nil
	}
	c := *payment
	r.payments[payment.PayID] = &c
	return true, nil
}

func (r *memPaymentRepo) FindByID(ctx context.Context, payID string) (*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[payID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *memPaymentRepo) FindByExternalID(ctx context.Context, externalID string) (*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ExternalID != "" && p.ExternalID == externalID {
			c := *p
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memPaymentRepo) FindByChatID(ctx context.Context, chatID int64, limit int) ([]*models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PaymentRecord
	for _, p := range r.payments {
		if p.ChatID == chatID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPaymentRepo) SetStatus(ctx context.Context, payID, status string, rawEvent map[string]interface{}, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[payID]
	if !ok {
		return repositories.ErrNotFound
	}
	p.Status = status
	if rawEvent != nil {
		p.RawEvent = rawEvent
	}
	if externalID != "" {
		p.ExternalID = externalID
	}
	return nil
}

func (r *memPaymentRepo) MarkProcessed(ctx context.Context, payID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[payID]
	if !ok || p.Processed {
		return false, nil
	}
	p.Processed = true
	return true, nil
}

func (r *memPaymentRepo) ReleaseProcessed(ctx context.Context, payID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[payID]; ok {
		p.Processed = false
		p.ProcessedAt = nil
	}
	r.released = append(r.released, payID)
	return nil
}

// memHistoryRepo is an in-memory HistoryRepository and BookmarkRepository
type memHistoryRepo struct {
	mu        sync.Mutex
	entries   []*models.HistoryEntry
	bookmarks []*models.Bookmark
}

func (r *memHistoryRepo) Append(ctx context.Context, entry *models.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *entry
	r.entries = append(r.entries, &c)
	return nil
}

func (r *memHistoryRepo) Recent(ctx context.Context, chatID int64, limit int) ([]*models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.HistoryEntry
	for _, e := range r.entries {
		if e.ChatID == chatID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memHistoryRepo) Clear(ctx context.Context, chatID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var n int64
	for _, e := range r.entries {
		if e.ChatID == chatID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return n, nil
}

func (r *memHistoryRepo) Create(ctx context.Context, bookmark *models.Bookmark) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *bookmark
	c.ID = primitive.NewObjectID()
	r.bookmarks = append(r.bookmarks, &c)
	return nil
}

func (r *memHistoryRepo) FindByChatID(ctx context.Context, chatID int64, limit int) ([]*models.Bookmark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Bookmark
	for i := len(r.bookmarks) - 1; i >= 0; i-- {
		if r.bookmarks[i].ChatID == chatID {
			out = append(out, r.bookmarks[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memHistoryRepo) Delete(ctx context.Context, chatID int64, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.bookmarks {
		if b.ID == id && b.ChatID == chatID {
			r.bookmarks = append(r.bookmarks[:i], r.bookmarks[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t.UTC()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ clock.Clock = (*testClock)(nil)

var testLimits = config.LimitsConfig{FreeText: 3, FreePhoto: 2, LiteText: 300, LitePhoto: 120}

var testPricing = config.SubscriptionConfig{
	Days:        30,
	LitePrice:   "199.99 ₽",
	ProPrice:    "299.99 ₽",
	LiteAmount:  199.99,
	ProAmount:   299.99,
	Currency:    "RUB",
	CheckoutURL: "https://pay.example/checkout?plan=x",
}

// env bundles the services over in-memory repositories
type env struct {
	clock    *testClock
	users    *memUserRepo
	payments *memPaymentRepo
	history  *memHistoryRepo

	userSvc     *UserService
	quotaSvc    *QuotaService
	subSvc      *SubscriptionService
	paymentSvc  *PaymentService
	referralSvc *ReferralService
	convoSvc    *ConversationService
}

var testNow = time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

func newEnv() *env {
	e := &env{
		clock:    newTestClock(testNow),
		users:    newMemUserRepo(),
		payments: newMemPaymentRepo(),
		history:  &memHistoryRepo{},
	}
	e.userSvc = NewUserService(e.users, e.clock, nil)
	e.quotaSvc = NewQuotaService(e.users, testLimits, testPricing, e.clock)
	e.subSvc = NewSubscriptionService(e.users, e.userSvc, e.quotaSvc, map[string]int{"WELCOME": 7, "LONG": 90}, e.clock, nil)
	e.paymentSvc = NewPaymentService(e.payments, e.subSvc, testPricing, e.clock, nil)
	e.referralSvc = NewReferralService(e.users, e.userSvc, e.subSvc, config.ReferralConfig{RewardBatch: 6, RewardMonths: 1}, nil)
	e.convoSvc = NewConversationService(e.history, e.history, 12, e.clock)
	return e
}

// stubCompleter records transcripts and returns a fixed answer
type stubCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	calls   int
	lastMsg []llm.Message
}

func (c *stubCompleter) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastMsg = msgs
	return c.answer, c.err
}

// stubCooldown blocks every chat listed in blocked
type stubCooldown struct {
	blocked  map[int64]bool
	err      error
	acquired []int64
}

func (c *stubCooldown) Acquire(ctx context.Context, chatID int64) (bool, error) {
	c.acquired = append(c.acquired, chatID)
	if c.err != nil {
		return false, c.err
	}
	return !c.blocked[chatID], nil
}

// stubSender records deliveries and fails for configured chats
type stubSender struct {
	mu    sync.Mutex
	sent  []int64
	fails map[int64]error
}

func (s *stubSender) Send(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fails[chatID]; err != nil {
		return err
	}
	s.sent = append(s.sent, chatID)
	return nil
}
