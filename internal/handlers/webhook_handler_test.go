package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGranter struct {
	requests []services.GrantRequest
	seen     map[string]bool
	err      error
}

func (s *stubGranter) GrantPaidAccess(ctx context.Context, req services.GrantRequest) (services.GrantResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return services.GrantResult{}, s.err
	}
	key := req.OrderID
	if key == "" {
		key = req.PaymentID
	}
	if s.seen[key] {
		return services.GrantResult{PayID: key, ChatID: req.ChatID, Plan: req.Plan}, nil
	}
	s.seen[key] = true
	return services.GrantResult{
		Granted:   true,
		PayID:     key,
		ChatID:    req.ChatID,
		Plan:      req.Plan,
		ExpiresAt: time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC),
	}, nil
}

type stubRewarder struct {
	buyers []int64
	out    services.ReferralOutcome
}

func (s *stubRewarder) ProcessReferralRewardIfNeeded(ctx context.Context, buyerID int64) (services.ReferralOutcome, error) {
	s.buyers = append(s.buyers, buyerID)
	return s.out, nil
}

type stubLangs struct{}

func (stubLangs) Lang(ctx context.Context, chatID int64) (string, error) { return "en", nil }

type recordingSender struct {
	mu   sync.Mutex
	msgs map[int64][]string
}

func (s *recordingSender) Send(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[chatID] = append(s.msgs[chatID], text)
	return nil
}

type webhookFixture struct {
	router   *gin.Engine
	granter  *stubGranter
	rewarder *stubRewarder
	sender   *recordingSender
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		granter:  &stubGranter{seen: map[string]bool{}},
		rewarder: &stubRewarder{},
		sender:   &recordingSender{msgs: map[int64][]string{}},
	}
	cfg := config.WebhookConfig{LiteStartapp: "lite_app", ProStartapp: "pro_app", NotifyOnPayment: true}
	h := NewWebhookHandler(f.granter, f.rewarder, stubLangs{}, f.sender, cfg, 30, nil)
	f.router = gin.New()
	f.router.GET("/webhook/tribute", h.Ping)
	f.router.POST("/webhook/tribute", h.Tribute)
	return f
}

func (f *webhookFixture) post(t *testing.T, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/tribute", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestTribute_IgnoredEvents(t *testing.T) {
	f := newWebhookFixture()
	cases := []struct {
		name string
		body string
		want string
	}{
		{"test flag", `{"test":true,"paid":true,"amount":10}`, "test"},
		{"sandbox", `{"mode":"sandbox","paid":true,"amount":10}`, "test"},
		{"ping event", `{"event":"ping"}`, "test"},
		{"unpaid", `{"id":"e1","status":"pending","amount":10,"telegram_user_id":1}`, "not_paid"},
		{"zero amount", `{"id":"e1","status":"paid","amount":0,"telegram_user_id":1}`, "zero_amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := f.post(t, tc.body)
			if code != http.StatusOK || out["ignored"] != tc.want {
				t.Fatalf("expected ignored=%s, got %d %v", tc.want, code, out)
			}
		})
	}
	if len(f.granter.requests) != 0 {
		t.Fatalf("ignored events must not reach the ledger")
	}
}

func TestTribute_GrantAndReplay(t *testing.T) {
	f := newWebhookFixture()
	body := `{"id":"evt-1","payment":{"status":"succeeded","amount":"299.99","currency":"rub"},"product":{"startapp":"pro_app"},"buyer":{"telegram_id":5550001234}}`

	code, out := f.post(t, body)
	if code != http.StatusOK || out["plan"] != "pro" || out["chat_id"] != float64(5550001234) {
		t.Fatalf("unexpected response %d %v", code, out)
	}
	req := f.granter.requests[0]
	if req.ChatID != 5550001234 || req.Plan != models.PlanPro || req.PaymentID != "evt-1" || req.Amount != 299.99 || req.Currency != "RUB" {
		t.Fatalf("unexpected grant request %+v", req)
	}
	if len(f.rewarder.buyers) != 1 || f.rewarder.buyers[0] != 5550001234 {
		t.Fatalf("referral not processed: %v", f.rewarder.buyers)
	}
	if msgs := f.sender.msgs[5550001234]; len(msgs) != 1 || !strings.Contains(msgs[0], "pro") {
		t.Fatalf("buyer not notified: %v", msgs)
	}

	code, out = f.post(t, body)
	if code != http.StatusOK || out["dup"] != true {
		t.Fatalf("replay must be acknowledged as dup, got %d %v", code, out)
	}
	if len(f.rewarder.buyers) != 1 || len(f.sender.msgs[5550001234]) != 1 {
		t.Fatalf("replay must not repeat side effects")
	}
}

func TestTribute_OrderIDFillsChatAndPlan(t *testing.T) {
	f := newWebhookFixture()
	code, out := f.post(t, `{"order_id":"tg-77-lite-abc","paid":"yes","amount":199.99}`)
	if code != http.StatusOK || out["plan"] != "lite" {
		t.Fatalf("unexpected response %d %v", code, out)
	}
	req := f.granter.requests[0]
	if req.ChatID != 77 || req.Plan != models.PlanLite || req.OrderID != "tg-77-lite-abc" {
		t.Fatalf("unexpected grant request %+v", req)
	}
}

func TestTribute_ReferrerNotified(t *testing.T) {
	f := newWebhookFixture()
	exp := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	f.rewarder.out = services.ReferralOutcome{Credited: true, Rewarded: true, PaidCount: 6, ReferrerID: 9, RewardExpiresAt: &exp}

	if code, _ := f.post(t, `{"id":"e","paid":true,"amount":1,"telegram_user_id":"3","product":{"code":"lite_app"}}`); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if msgs := f.sender.msgs[9]; len(msgs) != 1 || !strings.Contains(msgs[0], "2025-11-01") {
		t.Fatalf("referrer not notified: %v", msgs)
	}
}

func TestTribute_Errors(t *testing.T) {
	f := newWebhookFixture()
	if code, _ := f.post(t, `not json`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", code)
	}
	if code, _ := f.post(t, `{"id":"e","paid":true,"amount":1}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without chat id, got %d", code)
	}

	f.granter.err = services.ErrInvalidPlan
	code, out := f.post(t, `{"id":"e","paid":true,"amount":1,"telegram_user_id":1,"startapp":"other"}`)
	if code != http.StatusOK || out["ignored"] != "unknown_startapp" {
		t.Fatalf("unknown product must be acknowledged, got %d %v", code, out)
	}
}

func TestParsePaymentEvent(t *testing.T) {
	ev := ParsePaymentEvent(map[string]interface{}{
		"invoice": map[string]interface{}{"id": float64(123), "status": "PAID", "amount": float64(5)},
		"user":    map[string]interface{}{"id": float64(42)},
		"plan":    "PRO",
	})
	if ev.EventID != "123" || !ev.Paid || ev.Amount != 5 || ev.ChatID != 42 || ev.Plan != "pro" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
