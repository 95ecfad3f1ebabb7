package services

import (
	"math"
	"time"

	"minetap/internal/models"
)

// MiningRate is the effective per-cycle rate for a session: the base
// reward plus 10% of it per active referral. Unbounded on purpose; there
// is no cap on how many invitees can mine at once.
func MiningRate(baseReward float64, activeReferrals int) float64 {
	return baseReward + baseReward*float64(activeReferrals)*REFERRAL_BONUS_RATE
}

// RoundClaim rounds a mined amount to the fixed claim precision. The
// ledger row, the points increment and the balance increment all use this
// one value.
func RoundClaim(amount float64) float64 {
	pow := math.Pow(10, float64(CLAIM_AMOUNT_DECIMALS))
	return math.Round(amount*pow) / pow
}

// ReferralBonusOf splits out the part of a claim attributable to the
// referral boost, never below zero.
func ReferralBonusOf(amount, miningRate, baseReward float64) float64 {
	if miningRate <= baseReward || miningRate == 0 {
		return 0
	}

	bonus := amount * (miningRate - baseReward) / miningRate
	if bonus < 0 {
		return 0
	}
	return bonus
}

func rateDrifted(stored, computed float64) bool {
	return math.Abs(stored-computed) > RATE_DRIFT_EPSILON
}

// refreshSessionRate settles accrual at the old rate, then applies the
// recomputed rate only while the session is still running. Returns true
// when this call completed the session; callers must fire the completion
// side effects in that case, whoever they are.
func refreshSessionRate(session *models.MiningSession, now time.Time, activeReferrals int) bool {
	completed := session.Accrue(now)
	if session.IsActive {
		session.CurrentRate = MiningRate(session.BaseReward, activeReferrals)
	}

	return completed
}
