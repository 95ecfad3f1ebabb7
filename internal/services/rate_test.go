package services

import (
	"math"
	"testing"
	"time"

	"minetap/internal/models"
)

func TestMiningRate(t *testing.T) {
	cases := []struct {
		baseReward float64
		referrals  int
		want       float64
	}{
		{20, 0, 20},
		{20, 1, 22},
		{20, 3, 26},
		{20, 10, 40},
		{20, 25, 70},
		{50, 2, 60},
	}

	for _, c := range cases {
		got := MiningRate(c.baseReward, c.referrals)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("MiningRate(%v, %d) = %v, want %v", c.baseReward, c.referrals, got, c.want)
		}
	}
}

func TestRoundClaim(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{13.98264, 13.9826},
		{13.98265, 13.9827},
		{13.98266, 13.9827},
		{20, 20},
		{0, 0},
		{0.00004, 0},
		{0.00005, 0.0001},
	}

	for _, c := range cases {
		if got := RoundClaim(c.in); got != c.want {
			t.Errorf("RoundClaim(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestReferralBonusOf(t *testing.T) {
	// 2 hours at 22/cycle with base 20: bonus is 2/22 of the amount
	amount := 22.0 / 3
	bonus := ReferralBonusOf(amount, 22, 20)
	want := amount * 2 / 22
	if math.Abs(bonus-want) > 1e-9 {
		t.Errorf("ReferralBonusOf = %v, want %v", bonus, want)
	}

	if got := ReferralBonusOf(10, 20, 20); got != 0 {
		t.Errorf("no boost should mean no bonus, got %v", got)
	}
	if got := ReferralBonusOf(10, 0, 20); got != 0 {
		t.Errorf("zero rate should mean no bonus, got %v", got)
	}
	if got := ReferralBonusOf(10, 18, 20); got != 0 {
		t.Errorf("rate below base should clamp to zero, got %v", got)
	}
}

func newRateTestSession(rate float64) *models.MiningSession {
	started := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &models.MiningSession{
		ID:          "rate-test",
		UserID:      1,
		BaseReward:  20,
		CurrentRate: rate,
		StartedAt:   started,
		EndsAt:      started.Add(6 * time.Hour),
		LastUpdate:  started,
		Duration:    21600,
		IsActive:    true,
	}
}

func TestRefreshSessionRateLiveSession(t *testing.T) {
	s := newRateTestSession(20)

	completed := refreshSessionRate(s, s.StartedAt.Add(time.Hour), 3)
	if completed {
		t.Error("re-rating a live session must not report completion")
	}
	if s.CurrentRate != 26 {
		t.Errorf("rate = %v, want 26", s.CurrentRate)
	}
	// accrual settles at the old rate before the new one applies
	if math.Abs(s.TotalMined-20.0/6) > 1e-9 {
		t.Errorf("total mined = %v, want %v", s.TotalMined, 20.0/6)
	}
}

func TestRefreshSessionRateFinalizesExpired(t *testing.T) {
	s := newRateTestSession(22)

	completed := refreshSessionRate(s, s.StartedAt.Add(7*time.Hour), 5)
	if !completed {
		t.Fatal("re-rating an expired session must report the completion transition")
	}
	if s.IsActive || !s.IsCompleted {
		t.Errorf("unexpected flags: active=%v completed=%v", s.IsActive, s.IsCompleted)
	}
	if s.CurrentRate != 22 {
		t.Errorf("completed session rate changed to %v", s.CurrentRate)
	}
	if math.Abs(s.TotalMined-22) > 1e-9 {
		t.Errorf("total mined = %v, want 22", s.TotalMined)
	}

	if refreshSessionRate(s, s.StartedAt.Add(8*time.Hour), 5) {
		t.Error("completion must be reported exactly once")
	}
}

func TestRateDrifted(t *testing.T) {
	if rateDrifted(22, 22) {
		t.Error("identical rates must not count as drift")
	}
	if rateDrifted(22, 22+1e-12) {
		t.Error("sub-epsilon difference must not count as drift")
	}
	if !rateDrifted(22, 24) {
		t.Error("a stale rate must count as drift")
	}
	if !rateDrifted(24, 22) {
		t.Error("drift is symmetric")
	}
}
