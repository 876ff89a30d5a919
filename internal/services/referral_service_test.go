package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/config"
	"github.com/ArowuTest/tutorbot-backend/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetOrCreateRefCode(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	codes := []string{"taken01", "taken01", "fresh02"}
	e.referralSvc.generate = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	owner := "taken01"
	e.users.put(&models.StoredUser{ChatID: 99, RefCode: &owner})

	code, err := e.referralSvc.GetOrCreateRefCode(ctx, 1)
	if err != nil {
		t.Fatalf("GetOrCreateRefCode returned error: %v", err)
	}
	if code != "fresh02" {
		t.Fatalf("expected collision to be skipped, got %q", code)
	}
	again, err := e.referralSvc.GetOrCreateRefCode(ctx, 1)
	if err != nil || again != code {
		t.Fatalf("code must be stable, got %q %v", again, err)
	}

	id, ok, err := e.referralSvc.ResolveRefCode(ctx, "fresh02")
	if err != nil || !ok || id != 1 {
		t.Fatalf("ResolveRefCode = %d %v %v", id, ok, err)
	}
	if _, ok, _ := e.referralSvc.ResolveRefCode(ctx, "missing"); ok {
		t.Fatalf("unknown code must not resolve")
	}
}

func TestGetOrCreateRefCode_Exhausted(t *testing.T) {
	e := newEnv()
	owner := "same"
	e.users.put(&models.StoredUser{ChatID: 99, RefCode: &owner})
	e.referralSvc.generate = func() (string, error) { return "same", nil }

	if _, err := e.referralSvc.GetOrCreateRefCode(context.Background(), 1); err != ErrRefCodeExhausted {
		t.Fatalf("expected ErrRefCodeExhausted, got %v", err)
	}
}

func TestSetReferrerOnce(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	if ok, _ := e.referralSvc.SetReferrerOnce(ctx, 5, 5); ok {
		t.Fatalf("self-referral must be rejected")
	}
	ok, err := e.referralSvc.SetReferrerOnce(ctx, 5, 1)
	if err != nil || !ok {
		t.Fatalf("first link must succeed, got %v %v", ok, err)
	}
	if ok, _ := e.referralSvc.SetReferrerOnce(ctx, 5, 2); ok {
		t.Fatalf("second link must be rejected")
	}
	if ref := e.users.get(5).ReferredBy; ref == nil || *ref != 1 {
		t.Fatalf("first referrer must win, got %v", ref)
	}
}

func TestReferralRewardBatch(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	const referrer int64 = 1

	code, err := e.referralSvc.GetOrCreateRefCode(ctx, referrer)
	if err != nil {
		t.Fatalf("GetOrCreateRefCode returned error: %v", err)
	}

	for buyer := int64(11); buyer <= 16; buyer++ {
		linked, err := e.referralSvc.LinkByCode(ctx, buyer, code)
		if err != nil || !linked {
			t.Fatalf("LinkByCode(%d) = %v %v", buyer, linked, err)
		}
		res, err := e.paymentSvc.GrantPaidAccess(ctx, GrantRequest{
			ChatID:    buyer,
			Plan:      models.PlanLite,
			PaymentID: fmt.Sprintf("pay-%d", buyer),
		})
		if err != nil || !res.Granted {
			t.Fatalf("GrantPaidAccess(%d) = %+v %v", buyer, res, err)
		}
		out, err := e.referralSvc.ProcessReferralRewardIfNeeded(ctx, buyer)
		if err != nil {
			t.Fatalf("ProcessReferralRewardIfNeeded(%d) returned error: %v", buyer, err)
		}
		if !out.Credited || out.ReferrerID != referrer || out.PaidCount != buyer-10 {
			t.Fatalf("unexpected outcome for %d: %+v", buyer, out)
		}
		if out.Rewarded != (buyer == 16) {
			t.Fatalf("reward must fire only on the sixth buyer, got %+v", out)
		}
	}

	rec, _ := e.userSvc.EnsureUser(ctx, referrer)
	if rec.ReferredCount != 6 || rec.ReferredPaidCount != 6 {
		t.Fatalf("unexpected counters %d/%d", rec.ReferredCount, rec.ReferredPaidCount)
	}
	if rec.Plan != models.PlanPro || !rec.SubExpiresAt.Equal(testNow.Add(30*day)) {
		t.Fatalf("referrer must hold a month of pro, got %s %v", rec.Plan, rec.SubExpiresAt)
	}

	// A repeat purchase by a credited buyer is not counted again.
	out, err := e.referralSvc.ProcessReferralRewardIfNeeded(ctx, 16)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if out.Credited || out.Rewarded || out.PaidCount != 6 {
		t.Fatalf("replay must not credit, got %+v", out)
	}
	rec, _ = e.userSvc.EnsureUser(ctx, referrer)
	if !rec.SubExpiresAt.Equal(testNow.Add(30 * day)) {
		t.Fatalf("replay extended the reward to %v", rec.SubExpiresAt)
	}
}

func TestReferralReward_FailureIsLogged(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewReferralService(e.users, e.userSvc, e.subSvc,
		config.ReferralConfig{RewardBatch: 6, RewardMonths: 1}, zap.New(core))

	const referrer, buyer int64 = 1, 20
	ref := referrer
	e.users.put(&models.StoredUser{ChatID: referrer, ReferredCount: 6, ReferredPaidCount: 5,
		ReferredPaidIDs: []int64{11, 12, 13, 14, 15}})
	e.users.put(&models.StoredUser{ChatID: buyer, ReferredBy: &ref})

	// Every subscription write for the referrer loses a race.
	bump := testNow
	e.users.beforeSwap = func(chatID int64) {
		bump = bump.Add(time.Hour)
		next := bump
		e.users.update(chatID, func(u *models.StoredUser) {
			u.Plan = string(models.PlanPro)
			u.SubExpiresAt = next
		})
	}

	out, err := svc.ProcessReferralRewardIfNeeded(ctx, buyer)
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if !out.Credited || out.Rewarded || out.PaidCount != 6 {
		t.Fatalf("expected credit without reward, got %+v", out)
	}

	entries := logs.FilterMessage("referral reward not granted").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if entries[0].Level != zapcore.ErrorLevel || fields["chat_id"] != referrer || fields["paid_count"] != int64(6) {
		t.Fatalf("unexpected log entry %v %v", entries[0].Level, fields)
	}
}

func TestMarkReferralPaidIfFirst_Unreferred(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	if _, err := e.userSvc.EnsureUser(ctx, 3); err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	out, err := e.referralSvc.MarkReferralPaidIfFirst(ctx, 3)
	if err != nil || out.Credited || out.ReferrerID != 0 {
		t.Fatalf("unreferred buyer must be a no-op, got %+v %v", out, err)
	}
	out, err = e.referralSvc.MarkReferralPaidIfFirst(ctx, 404)
	if err != nil || out.Credited {
		t.Fatalf("unknown buyer must be a no-op, got %+v %v", out, err)
	}
}
