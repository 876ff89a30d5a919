package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/handlers"
	"github.com/ArowuTest/tutorbot-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestRouter(db Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Webhook.APIKey = "hook-key"
	return SetupRouter(cfg, HandlerDependencies{
		AuthHandler:      handlers.NewAuthHandler(nil),
		UserHandler:      handlers.NewUserHandler(nil, nil, nil, nil),
		CheckoutHandler:  handlers.NewCheckoutHandler(nil),
		BroadcastHandler: handlers.NewBroadcastHandler(nil),
		WebhookHandler:   handlers.NewWebhookHandler(nil, nil, nil, nil, cfg.Webhook, 30, nil),
		Tokens:           jwt.NewTokenService("secret", time.Hour),
		Database:         db,
	})
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(stubPinger{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	newTestRouter(stubPinger{err: errors.New("no primary")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(nil)
	for _, path := range []string{"/api/v1/users/count", "/api/v1/users/1"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestWebhookRequiresKey(t *testing.T) {
	r := newTestRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/tribute", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook/tribute", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ping must be open, got %d", w.Code)
	}
}
