package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"42"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key", "test-model", time.Second, false)
	answer, err := c.Complete(context.Background(), []Message{
		TextMessage(RoleSystem, "be brief"),
		TextMessage(RoleUser, "6*7?"),
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if answer != "42" {
		t.Fatalf("expected 42, got %q", answer)
	}
}

func TestClient_CompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "m", time.Second, false)
	_, err := c.Complete(context.Background(), []Message{TextMessage(RoleUser, "hi")})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestClient_Mock(t *testing.T) {
	c := NewClient("", "", "m", 0, true)
	answer, err := c.Complete(context.Background(), []Message{
		TextMessage(RoleUser, "first"),
		TextMessage(RoleAssistant, "reply"),
		ImageMessage("solve this", []byte{0xff, 0xd8}),
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if !strings.Contains(answer, "solve this") {
		t.Fatalf("mock answer should echo the last question, got %q", answer)
	}
}
