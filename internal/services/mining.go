package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"minetap/internal/datastore"
	"minetap/internal/datastore/redis_store"
	"minetap/internal/models"
	"minetap/internal/pkg/caching"

	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

type ServiceMining struct {
	container          *do.Injector
	redisDB            redis.UniversalClient
	rs                 *redsync.Redsync
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache

	serviceConfig *ServiceConfig
	bot           *Bot
}

func NewServiceMining(container *do.Injector) (*ServiceMining, error) {
	redisDB, err := do.InvokeNamed[redis.UniversalClient](container, "redis-db")
	if err != nil {
		return nil, err
	}

	rs, err := do.Invoke[*redsync.Redsync](container)
	if err != nil {
		return nil, err
	}

	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	readonlyCache, err := do.Invoke[caching.ReadOnlyCache](container)
	if err != nil {
		return nil, err
	}

	serviceConfig, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	bot, err := do.Invoke[*Bot](container)
	if err != nil {
		return nil, err
	}

	return &ServiceMining{container, redisDB, rs, postgresDB, readonlyPostgresDB, cache, readonlyCache, serviceConfig, bot}, nil
}

func (service *ServiceMining) baseReward(ctx context.Context) float64 {
	v, _ := service.serviceConfig.GetFloatConfig(ctx, CONFIG_MINING_BASE_REWARD, DEFAULT_BASE_REWARD)
	return v
}

func (service *ServiceMining) sessionDuration(ctx context.Context) time.Duration {
	hours, err := service.serviceConfig.GetIntConfig(ctx, CONFIG_MINING_DURATION_HOURS, 0)
	if err != nil || hours <= 0 {
		return DEFAULT_MINING_DURATION
	}
	return time.Duration(hours) * time.Hour
}

func (service *ServiceMining) newSession(userID int64, baseReward float64, duration time.Duration, activeReferrals int, startedAt time.Time) *models.MiningSession {
	return &models.MiningSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		BaseReward:  baseReward,
		CurrentRate: MiningRate(baseReward, activeReferrals),
		TotalMined:  0,
		StartedAt:   startedAt,
		EndsAt:      startedAt.Add(duration),
		LastUpdate:  startedAt,
		Duration:    int64(duration.Seconds()),
		IsActive:    true,
	}
}

// StartMining opens a new session for the user. Fails with ErrAlreadyMining
// when an unexpired session exists; an expired one is finalized first (lazy
// completion) and does not block the start.
func (service *ServiceMining) StartMining(ctx context.Context, user *models.User) (*models.MiningSession, error) {
	mutex := service.rs.NewMutex(LockKeyUserMining(user.ID))
	if err := mutex.TryLock(); err != nil {
		return nil, errorx.Wrap(ErrMiningLocked, errorx.Invalid)
	}

	// nolint:errcheck
	defer mutex.Unlock()

	baseReward := service.baseReward(ctx)
	duration := service.sessionDuration(ctx)

	var session *models.MiningSession
	var finalized *models.MiningSession

	err := service.postgresDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()

		current, err := datastore.GetActiveMiningSessionForUpdate(ctx, tx, user.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if current != nil {
			if !current.Expired(now) {
				return errorx.Wrap(ErrAlreadyMining, errorx.Invalid)
			}

			current.Accrue(now)
			if err := datastore.UpdateMiningSessionProgress(ctx, tx, current); err != nil {
				return err
			}
			finalized = current
		}

		activeReferrals, err := datastore.CountActiveReferrals(ctx, tx, user.ID, duration, now)
		if err != nil {
			return err
		}

		session = service.newSession(user.ID, baseReward, duration, activeReferrals, now)
		return datastore.InsertMiningSession(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}

	service.clearMiningCaches(ctx, user.ID)
	service.enqueueReferralEvent(ctx, user.ID, models.ReferralEventStart)
	if finalized != nil {
		service.notifyMiningComplete(user.ID)
	}

	return session, nil
}

// AccrueSession progresses one session up to now inside a row lock. The
// same clamped math runs no matter who calls: stats reads, the referral
// worker or the reconciler.
func (service *ServiceMining) AccrueSession(ctx context.Context, sessionID string) (*models.MiningSession, error) {
	var session *models.MiningSession
	var completed bool

	err := service.postgresDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		session, err = datastore.GetMiningSessionForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		completed = session.Accrue(time.Now())
		return datastore.UpdateMiningSessionProgress(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}

	if completed {
		service.clearMiningCaches(ctx, session.UserID)
		service.enqueueReferralEvent(ctx, session.UserID, models.ReferralEventComplete)
		service.notifyMiningComplete(session.UserID)
	}

	return session, nil
}

// GetMiningStats finalizes any expired session before reporting, so a
// session whose ends_at passed between read and response never shows up
// as still mining.
func (service *ServiceMining) GetMiningStats(ctx context.Context, userID int64) (*models.MiningStats, error) {
	callback := func() (*models.MiningStats, error) {
		return service.buildMiningStats(ctx, userID)
	}

	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyMiningStats(userID), CACHE_TTL_5_SECONDS, callback)
}

func (service *ServiceMining) buildMiningStats(ctx context.Context, userID int64) (*models.MiningStats, error) {
	now := time.Now()

	active, err := datastore.GetActiveMiningSession(ctx, service.postgresDB, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// one timestamp decides expiry for the whole read; an expired session
	// is finalized before claimables are computed so the response never
	// shows isMining=false with readyToClaim=0 for a finished session
	if active != nil && active.Expired(now) {
		if _, err := service.AccrueSession(ctx, active.ID); err != nil {
			return nil, err
		}
		active = nil
	}

	stats := &models.MiningStats{}

	if active != nil {
		startedAt := active.StartedAt
		stats.IsMining = true
		stats.CurrentRate = active.CurrentRate
		stats.TimeRemaining = int64(active.TimeRemaining(now).Seconds())
		stats.StartedAt = &startedAt
	}

	claimable, err := datastore.GetClaimableMiningSession(ctx, service.postgresDB, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if claimable != nil {
		finalized := *claimable
		finalized.Accrue(now)
		stats.ReadyToClaim = RoundClaim(finalized.TotalMined)
	}

	user, err := datastore.FindUserByID(ctx, service.postgresDB, userID)
	if err != nil {
		return nil, err
	}
	stats.TotalEarned = user.MiningBalance
	stats.CompletedSessions = user.TotalMiningSessions

	activeReferrals, err := datastore.CountActiveReferrals(ctx, service.readonlyPostgresDB, userID, service.sessionDuration(ctx), now)
	if err != nil {
		log.Println("count active referrals:", err)
	}
	stats.ActiveReferrals = activeReferrals

	return stats, nil
}

// ClaimMining settles the completed session and opens the next one in a
// single transaction; there is no externally visible gap without a
// session between the two.
func (service *ServiceMining) ClaimMining(ctx context.Context, user *models.User) (*models.MiningClaimResult, error) {
	mutex := service.rs.NewMutex(LockKeyUserMining(user.ID))
	if err := mutex.TryLock(); err != nil {
		return nil, errorx.Wrap(ErrMiningLocked, errorx.Invalid)
	}

	// nolint:errcheck
	defer mutex.Unlock()

	baseReward := service.baseReward(ctx)
	duration := service.sessionDuration(ctx)

	var result *models.MiningClaimResult

	err := service.postgresDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		claimedAt := time.Now()

		session, err := datastore.GetClaimableMiningSessionForUpdate(ctx, tx, user.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return errorx.Wrap(ErrNoCompletedSession, errorx.NotExist)
		}
		if err != nil {
			return err
		}

		// finalize any tail the completion sweep did not reach
		session.Accrue(claimedAt)

		claimed, err := datastore.MarkMiningSessionClaimed(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return errorx.Wrap(ErrNoCompletedSession, errorx.NotExist)
		}

		if err := datastore.UpdateMiningSessionProgress(ctx, tx, session); err != nil {
			return err
		}

		amount := RoundClaim(session.TotalMined)
		claim := &models.MiningClaim{
			UserID:        user.ID,
			SessionID:     session.ID,
			Amount:        amount,
			MiningRate:    session.CurrentRate,
			ReferralBonus: RoundClaim(ReferralBonusOf(amount, session.CurrentRate, session.BaseReward)),
			ClaimedAt:     claimedAt,
		}
		if err := datastore.InsertMiningClaim(ctx, tx, claim); err != nil {
			return err
		}

		totalPoints, err := datastore.ApplyMiningClaim(ctx, tx, user.ID, amount)
		if err != nil {
			return err
		}

		activeReferrals, err := datastore.CountActiveReferrals(ctx, tx, user.ID, duration, claimedAt)
		if err != nil {
			return err
		}

		next := service.newSession(user.ID, baseReward, duration, activeReferrals, claimedAt)
		if err := datastore.InsertMiningSession(ctx, tx, next); err != nil {
			return err
		}

		result = &models.MiningClaimResult{
			Amount:      amount,
			TotalPoints: totalPoints,
			NextSession: next,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// cache refresh happens before the handler responds; notifications
	// and propagation stay fire-and-forget
	service.clearMiningCaches(ctx, user.ID)
	service.updatePointsLeaderboard(ctx, user, result.TotalPoints)
	service.enqueueReferralEvent(ctx, user.ID, models.ReferralEventClaim)
	service.notifyClaim(user.ID, result.Amount)

	return result, nil
}

// UpdateMiningRate re-derives the rate of the user's active session from a
// fresh referral snapshot, settling accrual at the old rate first so the
// change only applies to time going forward.
func (service *ServiceMining) UpdateMiningRate(ctx context.Context, userID int64) (*models.RateUpdate, error) {
	duration := service.sessionDuration(ctx)

	var update *models.RateUpdate
	var completed bool

	err := service.postgresDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()

		session, err := datastore.GetActiveMiningSessionForUpdate(ctx, tx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return errorx.Wrap(ErrNoActiveSession, errorx.NotExist)
		}
		if err != nil {
			return err
		}

		activeReferrals, err := datastore.CountActiveReferrals(ctx, tx, userID, duration, now)
		if err != nil {
			return err
		}

		completed = refreshSessionRate(session, now, activeReferrals)

		if err := datastore.UpdateMiningSessionProgress(ctx, tx, session); err != nil {
			return err
		}

		update = &models.RateUpdate{
			NewRate:         session.CurrentRate,
			ActiveReferrals: activeReferrals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	service.clearMiningCaches(ctx, userID)

	// a re-rate can be what finalizes an expired session; the completion
	// side effects fire no matter which caller got there first
	if completed {
		service.enqueueReferralEvent(ctx, userID, models.ReferralEventComplete)
		service.notifyMiningComplete(userID)
	}

	return update, nil
}

// GetClaimHistory pages the user's claim ledger, newest first.
func (service *ServiceMining) GetClaimHistory(ctx context.Context, userID int64, page, limit int) ([]*models.MiningClaim, float64, error) {
	claims, err := datastore.GetUserClaims(ctx, service.readonlyPostgresDB, userID, limit, page*limit)
	if err != nil {
		return nil, 0, err
	}

	total, err := datastore.GetUserTotalClaimed(ctx, service.readonlyPostgresDB, userID)
	if err != nil {
		return nil, 0, err
	}

	return claims, total, nil
}

func (service *ServiceMining) updatePointsLeaderboard(ctx context.Context, user *models.User, points float64) {
	_, err := redis_store.SetLeaderboard(ctx, service.redisDB, LEADERBOARD_POINTS, &models.LeaderboardItem{
		UserId: user.ID,
		Score:  points,
	})
	if err != nil {
		log.Println("update points leaderboard:", err)
	}
}

func (service *ServiceMining) enqueueReferralEvent(ctx context.Context, userID int64, reason string) {
	err := redis_store.PushReferralEvent(ctx, service.redisDB, &models.ReferralEvent{
		UserID: userID,
		Reason: reason,
		At:     time.Now(),
	})
	if err != nil {
		// best-effort; the reconciler converges missed updates
		log.Println("enqueue referral event:", "user:", userID, "reason:", reason, err)
	}
}

func (service *ServiceMining) notifyMiningComplete(userID int64) {
	go func() {
		if err := service.bot.SendMiningCompleteMsg(userID); err != nil {
			log.Println(err)
		}
	}()
}

func (service *ServiceMining) notifyClaim(userID int64, amount float64) {
	go func() {
		if err := service.bot.SendClaimMsg(userID, amount); err != nil {
			log.Println(err)
		}
	}()
}

func (service *ServiceMining) clearMiningCaches(ctx context.Context, userID int64) {
	if err := service.cache.Delete(ctx, DBKeyMiningStats(userID)); err != nil {
		log.Println(err)
	}

	if err := service.cache.Delete(ctx, DBKeyMe(userID)); err != nil {
		log.Println(err)
	}

	if err := service.cache.Delete(ctx, DBKeyUser(userID)); err != nil {
		log.Println(err)
	}
}
