package models

import (
	"time"

	"github.com/uptrace/bun"
)

type MiningSession struct {
	bun.BaseModel `bun:"table:mining_session"`
	ID            string     `bun:"id,pk" json:"id"`
	UserID        int64      `bun:"user_id" json:"user_id"`
	BaseReward    float64    `bun:"base_reward" json:"base_reward"`
	CurrentRate   float64    `bun:"current_rate" json:"current_rate"`
	TotalMined    float64    `bun:"total_mined" json:"total_mined"`
	StartedAt     time.Time  `bun:"started_at" json:"started_at"`
	EndsAt        time.Time  `bun:"ends_at" json:"ends_at"`
	LastUpdate    time.Time  `bun:"last_update" json:"last_update"`
	CompletedAt   *time.Time `bun:"completed_at" json:"completed_at"`
	Duration      int64      `bun:"duration" json:"duration"`
	IsActive      bool       `bun:"is_active" json:"is_active"`
	IsCompleted   bool       `bun:"is_completed" json:"is_completed"`
	IsClaimed     bool       `bun:"is_claimed" json:"is_claimed"`
}

// AccrualWindowEnd clamps now to the session end so accrual never extends
// past ends_at.
func (s *MiningSession) AccrualWindowEnd(now time.Time) time.Time {
	if now.After(s.EndsAt) {
		return s.EndsAt
	}
	return now
}

func (s *MiningSession) Expired(now time.Time) bool {
	return !now.Before(s.EndsAt)
}

// Accrue advances total_mined up to min(now, ends_at) at the current rate
// and moves last_update forward. Time before last_update is already
// accounted for and is never counted again. Returns true when this call
// transitioned the session from active to completed.
func (s *MiningSession) Accrue(now time.Time) bool {
	end := s.AccrualWindowEnd(now)
	elapsed := end.Sub(s.LastUpdate).Seconds()
	if elapsed > 0 && s.Duration > 0 {
		s.TotalMined += s.CurrentRate * elapsed / float64(s.Duration)
		s.LastUpdate = end
	}

	if s.IsActive && s.Expired(now) {
		s.IsActive = false
		s.IsCompleted = true
		completedAt := s.EndsAt
		s.CompletedAt = &completedAt
		return true
	}

	return false
}

func (s *MiningSession) TimeRemaining(now time.Time) time.Duration {
	if s.Expired(now) {
		return 0
	}
	return s.EndsAt.Sub(now)
}

// MiningClaim is the append-only ledger row written exactly once per
// claimed session.
type MiningClaim struct {
	bun.BaseModel `bun:"table:mining_claim"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64     `bun:"user_id" json:"user_id"`
	SessionID     string    `bun:"session_id" json:"session_id"`
	Amount        float64   `bun:"amount" json:"amount"`
	MiningRate    float64   `bun:"mining_rate" json:"mining_rate"`
	ReferralBonus float64   `bun:"referral_bonus" json:"referral_bonus"`
	ClaimedAt     time.Time `bun:"claimed_at" json:"claimed_at"`
}

type MiningStats struct {
	IsMining          bool       `json:"is_mining"`
	CurrentRate       float64    `json:"current_rate"`
	ReadyToClaim      float64    `json:"ready_to_claim"`
	TimeRemaining     int64      `json:"time_remaining"`
	StartedAt         *time.Time `json:"started_at"`
	TotalEarned       float64    `json:"total_earned"`
	CompletedSessions int64      `json:"completed_sessions"`
	ActiveReferrals   int        `json:"active_referrals"`
}

type MiningClaimResult struct {
	Amount      float64        `json:"amount"`
	TotalPoints float64        `json:"total_points"`
	NextSession *MiningSession `json:"next_session"`
}

type RateUpdate struct {
	NewRate         float64 `json:"new_rate"`
	ActiveReferrals int     `json:"active_referrals"`
}
