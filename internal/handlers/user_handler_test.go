package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"github.com/ArowuTest/tutorbot-backend/internal/services"
	"github.com/gin-gonic/gin"
)

type stubUsers struct {
	recs    map[int64]*models.UserRecord
	dropped []int64
}

func (s *stubUsers) EnsureUser(ctx context.Context, chatID int64) (*models.UserRecord, error) {
	rec, ok := s.recs[chatID]
	if !ok {
		rec = &models.UserRecord{ChatID: chatID, Plan: models.PlanFree, Prefs: models.DefaultPrefs(), OptIn: true}
		s.recs[chatID] = rec
	}
	return rec, nil
}

func (s *stubUsers) SetPrefs(ctx context.Context, chatID int64, updates map[string]interface{}) error {
	rec, _ := s.EnsureUser(ctx, chatID)
	for k, v := range updates {
		if !rec.Prefs.Apply(k, v) {
			return services.ErrInvalidPref
		}
	}
	return nil
}

func (s *stubUsers) SetOptIn(ctx context.Context, chatID int64, optIn bool) error {
	rec, _ := s.EnsureUser(ctx, chatID)
	rec.OptIn = optIn
	return nil
}

func (s *stubUsers) SetOptInAll(ctx context.Context, optIn bool) (int64, error) {
	return int64(len(s.recs)), nil
}

func (s *stubUsers) DropChat(ctx context.Context, chatID int64) error {
	s.dropped = append(s.dropped, chatID)
	delete(s.recs, chatID)
	return nil
}

func (s *stubUsers) Count(ctx context.Context) (int64, error) { return int64(len(s.recs)), nil }

type stubQuota struct{}

func (stubQuota) Effective(rec *models.UserRecord) models.EffectivePlan {
	return models.EffectivePlan(rec.Plan)
}
func (stubQuota) GetLimits(rec *models.UserRecord) (int64, int64) { return 3, 2 }
func (stubQuota) StatusText(rec *models.UserRecord) string       { return "status" }

type stubSubs struct {
	now time.Time
}

func (s stubSubs) SetSubscription(ctx context.Context, chatID int64, plan models.Plan, days int) (time.Time, error) {
	if !plan.Valid() {
		return time.Time{}, services.ErrInvalidPlan
	}
	return s.now.AddDate(0, 0, days), nil
}

func (s stubSubs) ExtendProMonths(ctx context.Context, chatID int64, months int) (time.Time, error) {
	return s.now.AddDate(0, 0, 30*months), nil
}

func (s stubSubs) ApplyPromocodeAccess(ctx context.Context, chatID int64, code string, days int) (bool, *time.Time, error) {
	exp := s.now.AddDate(0, 0, days)
	return code == "NEW", &exp, nil
}

type stubPayments struct{}

func (stubPayments) ListByChatID(ctx context.Context, chatID int64, limit int) ([]*models.PaymentRecord, error) {
	return nil, nil
}

func newUserRouter() (*gin.Engine, *stubUsers) {
	users := &stubUsers{recs: map[int64]*models.UserRecord{}}
	h := NewUserHandler(users, stubQuota{}, stubSubs{now: time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)}, stubPayments{})
	r := gin.New()
	r.GET("/users/count", h.GetUserCount)
	r.POST("/users/optin", h.SetOptInAll)
	r.GET("/users/:chat_id", h.GetStatus)
	r.DELETE("/users/:chat_id", h.DropChat)
	r.POST("/users/:chat_id/subscription", h.Grant)
	r.POST("/users/:chat_id/extend", h.ExtendPro)
	r.POST("/users/:chat_id/promo", h.GrantPromo)
	r.PUT("/users/:chat_id/prefs", h.UpdatePrefs)
	r.PUT("/users/:chat_id/optin", h.SetOptIn)
	r.GET("/users/:chat_id/payments", h.GetPayments)
	return r, users
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUserHandler_Status(t *testing.T) {
	r, _ := newUserRouter()

	w := do(r, http.MethodGet, "/users/42", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.ChatID != 42 || resp.TextLimit != 3 || resp.StatusText != "status" {
		t.Fatalf("unexpected status %+v", resp)
	}

	if w := do(r, http.MethodGet, "/users/abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad chat id, got %d", w.Code)
	}
}

func TestUserHandler_Grant(t *testing.T) {
	r, _ := newUserRouter()

	w := do(r, http.MethodPost, "/users/1/subscription", `{"plan":"lite","days":30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/users/1/subscription", `{"plan":"gold","days":30}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown plan, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/users/1/subscription", `{"plan":"lite","days":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero days, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/users/1/extend", `{"months":2}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for extend, got %d", w.Code)
	}

	w = do(r, http.MethodPost, "/users/1/promo", `{"code":"NEW","days":7}`)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if w.Code != http.StatusOK || out["applied"] != true {
		t.Fatalf("unexpected promo response %d %v", w.Code, out)
	}
}

func TestUserHandler_PrefsAndOptIn(t *testing.T) {
	r, users := newUserRouter()

	if w := do(r, http.MethodPut, "/users/5/prefs", `{"lang":"en","voice.enabled":true}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if p := users.recs[5].Prefs; p.Lang != "en" || !p.Voice.Enabled {
		t.Fatalf("prefs not applied: %+v", p)
	}
	if w := do(r, http.MethodPut, "/users/5/prefs", `{"nope":1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown pref, got %d", w.Code)
	}

	if w := do(r, http.MethodPut, "/users/5/optin", `{"optin":false}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if users.recs[5].OptIn {
		t.Fatalf("optin not cleared")
	}
	if w := do(r, http.MethodPut, "/users/5/optin", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without optin, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/users/optin", `{"optin":true}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for optin-all, got %d", w.Code)
	}
}

func TestUserHandler_DropAndCount(t *testing.T) {
	r, users := newUserRouter()
	do(r, http.MethodGet, "/users/1", "")
	do(r, http.MethodGet, "/users/2", "")

	w := do(r, http.MethodGet, "/users/count", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"count":2`)) {
		t.Fatalf("unexpected count response %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodDelete, "/users/1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(users.dropped) != 1 || users.dropped[0] != 1 {
		t.Fatalf("unexpected drops %v", users.dropped)
	}

	w = do(r, http.MethodGet, "/users/2/payments", "")
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("expected empty list, got %d %s", w.Code, w.Body.String())
	}
}
