package models

import (
	"math"
	"testing"
	"time"
)

func newTestSession(rate float64) *MiningSession {
	started := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &MiningSession{
		ID:          "test-session",
		UserID:      1,
		BaseReward:  20,
		CurrentRate: rate,
		StartedAt:   started,
		EndsAt:      started.Add(6 * time.Hour),
		LastUpdate:  started,
		Duration:    int64((6 * time.Hour).Seconds()),
		IsActive:    true,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAccrueProportional(t *testing.T) {
	s := newTestSession(20)

	s.Accrue(s.StartedAt.Add(3 * time.Hour))
	if !almostEqual(s.TotalMined, 10) {
		t.Errorf("expected 10 after half the cycle, got %v", s.TotalMined)
	}
	if s.IsCompleted {
		t.Error("session should not complete mid-cycle")
	}
}

func TestAccrueIdempotentWithinSameInstant(t *testing.T) {
	s := newTestSession(20)
	at := s.StartedAt.Add(2 * time.Hour)

	s.Accrue(at)
	mined := s.TotalMined
	s.Accrue(at)
	if s.TotalMined != mined {
		t.Errorf("re-accruing at the same instant changed total: %v -> %v", mined, s.TotalMined)
	}
}

func TestAccrueIntervalAdditivity(t *testing.T) {
	whole := newTestSession(20)
	whole.Accrue(whole.StartedAt.Add(5 * time.Hour))

	split := newTestSession(20)
	split.Accrue(split.StartedAt.Add(1 * time.Hour))
	split.Accrue(split.StartedAt.Add(2 * time.Hour))
	split.Accrue(split.StartedAt.Add(5 * time.Hour))

	if !almostEqual(whole.TotalMined, split.TotalMined) {
		t.Errorf("split accrual diverged: %v vs %v", whole.TotalMined, split.TotalMined)
	}
}

func TestAccrueRateChangeMidSession(t *testing.T) {
	// one hour at 20/cycle, one hour at 22/cycle
	s := newTestSession(20)
	s.Accrue(s.StartedAt.Add(1 * time.Hour))
	s.CurrentRate = 22
	s.Accrue(s.StartedAt.Add(2 * time.Hour))

	want := 20.0/6 + 22.0/6
	if !almostEqual(s.TotalMined, want) {
		t.Errorf("expected %v, got %v", want, s.TotalMined)
	}
}

func TestAccrueClampsAtSessionEnd(t *testing.T) {
	s := newTestSession(20)

	completed := s.Accrue(s.EndsAt.Add(48 * time.Hour))
	if !completed {
		t.Error("expected active -> completed transition")
	}
	if !almostEqual(s.TotalMined, 20) {
		t.Errorf("late accrual must cap at the full cycle, got %v", s.TotalMined)
	}
	if !s.LastUpdate.Equal(s.EndsAt) {
		t.Errorf("last_update must clamp to ends_at, got %v", s.LastUpdate)
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(s.EndsAt) {
		t.Errorf("completed_at must be ends_at, got %v", s.CompletedAt)
	}
	if s.IsActive || !s.IsCompleted {
		t.Errorf("unexpected flags: active=%v completed=%v", s.IsActive, s.IsCompleted)
	}
}

func TestAccrueCompletesExactlyAtEnd(t *testing.T) {
	s := newTestSession(20)

	completed := s.Accrue(s.EndsAt)
	if !completed {
		t.Error("session reaching ends_at must complete")
	}
	if !almostEqual(s.TotalMined, 20) {
		t.Errorf("full cycle should yield the full rate, got %v", s.TotalMined)
	}
}

func TestAccrueCompletedOnlyOnce(t *testing.T) {
	s := newTestSession(20)

	if !s.Accrue(s.EndsAt.Add(time.Minute)) {
		t.Fatal("first accrual past ends_at must report completion")
	}
	if s.Accrue(s.EndsAt.Add(2 * time.Minute)) {
		t.Error("second accrual must not report completion again")
	}
	if !almostEqual(s.TotalMined, 20) {
		t.Errorf("total must stay capped, got %v", s.TotalMined)
	}
}

func TestAccrueMonotonic(t *testing.T) {
	s := newTestSession(26)
	prev := s.TotalMined
	for i := 1; i <= 8; i++ {
		s.Accrue(s.StartedAt.Add(time.Duration(i) * time.Hour))
		if s.TotalMined < prev {
			t.Fatalf("total_mined decreased at hour %d: %v -> %v", i, prev, s.TotalMined)
		}
		if s.LastUpdate.After(s.EndsAt) {
			t.Fatalf("last_update past ends_at: %v", s.LastUpdate)
		}
		prev = s.TotalMined
	}
}

func TestAccrueIgnoresClockGoingBackwards(t *testing.T) {
	s := newTestSession(20)
	s.Accrue(s.StartedAt.Add(3 * time.Hour))
	mined := s.TotalMined

	s.Accrue(s.StartedAt.Add(1 * time.Hour))
	if s.TotalMined != mined {
		t.Errorf("accrual with an earlier timestamp changed total: %v -> %v", mined, s.TotalMined)
	}
	if !s.LastUpdate.Equal(s.StartedAt.Add(3 * time.Hour)) {
		t.Errorf("last_update must not move backwards, got %v", s.LastUpdate)
	}
}

func TestTimeRemaining(t *testing.T) {
	s := newTestSession(20)

	if got := s.TimeRemaining(s.StartedAt.Add(4 * time.Hour)); got != 2*time.Hour {
		t.Errorf("expected 2h remaining, got %v", got)
	}
	if got := s.TimeRemaining(s.EndsAt.Add(time.Hour)); got != 0 {
		t.Errorf("expected 0 after expiry, got %v", got)
	}
}

func TestExpiryAndRemainingAgree(t *testing.T) {
	// stats built from one timestamp must never say "not mining" and
	// "nothing to claim" at once; the two predicates agree at any instant
	s := newTestSession(20)
	for _, d := range []time.Duration{-time.Second, 0, time.Second} {
		now := s.EndsAt.Add(d)
		if s.Expired(now) != (s.TimeRemaining(now) == 0) {
			t.Errorf("expiry and remaining disagree at endsAt%+v", d)
		}
	}
}

func TestExpired(t *testing.T) {
	s := newTestSession(20)

	if s.Expired(s.EndsAt.Add(-time.Second)) {
		t.Error("session should not be expired before ends_at")
	}
	if !s.Expired(s.EndsAt) {
		t.Error("session is expired exactly at ends_at")
	}
	if !s.Expired(s.EndsAt.Add(time.Second)) {
		t.Error("session is expired after ends_at")
	}
}
