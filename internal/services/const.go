package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrAlreadyMining = errors.New("already mining")
var ErrNoCompletedSession = errors.New("no completed session to claim")
var ErrNoActiveSession = errors.New("no active mining session")
var ErrMiningLocked = errors.New("mining operation locked")

const (
	CONFIG_SERVER_MODE             = "SERVER_MODE"
	CONFIG_MINING_BASE_REWARD      = "MINING_BASE_REWARD"
	CONFIG_MINING_DURATION_HOURS   = "MINING_DURATION_HOURS"
	CONFIG_CRONJOB_TIME_RECONCILE  = "CRONJOB_TIME_RECONCILE"
	CONFIG_POINTS_LEADERBOARD_SIZE = "POINTS_LEADERBOARD_SIZE"

	SERVER_MODE_DEVELOPMENT = "development"
	SERVER_MODE_STAGING     = "staging"
	SERVER_MODE_PRODUCTION  = "production"

	LEADERBOARD_POINTS = "points"

	// 20 token-units per full 6-hour cycle, +10% per active referral.
	// Stored per session so old sessions replay correctly if these change.
	DEFAULT_BASE_REWARD          = 20.0
	DEFAULT_MINING_DURATION      = 6 * time.Hour
	REFERRAL_BONUS_RATE          = 0.10
	CLAIM_AMOUNT_DECIMALS        = 4
	RATE_DRIFT_EPSILON           = 1e-9
	RECONCILE_PAGE_SIZE          = 100
	POINTS_LEADERBOARD_SIZE      = 20
	REFERRAL_WORKER_POP_TIMEOUT  = 5 * time.Second
	DEFAULT_CRON_TIME_RECONCILE  = "@every 10m"
	MINING_RATE_LIMIT_PER_MINUTE = 30

	CACHE_TTL_5_SECONDS  = 5 * time.Second
	CACHE_TTL_15_SECONDS = 15 * time.Second
	CACHE_TTL_1_MIN      = 1 * time.Minute
	CACHE_TTL_5_MINS     = 5 * time.Minute
	CACHE_TTL_1_HOUR     = 1 * time.Hour
)

func LockKeyUserMining(userID int64) string {
	return fmt.Sprintf("lock:user-mining:%d", userID)
}

func LockKeyReconciler() string {
	return "lock:mining-reconciler"
}

// db
func DBKeyUser(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

func DBKeyMe(userID int64) string {
	return fmt.Sprintf("me:%d", userID)
}

func DBKeyConfig(key string) string {
	return fmt.Sprintf("config:%s", strings.ToLower(key))
}

func DBKeyMiningStats(userID int64) string {
	return fmt.Sprintf("mining:stats:%d", userID)
}

func DBKeyUserByRefCode(refCode string) string {
	return fmt.Sprintf("user:by_ref_code:%s", refCode)
}

func DBKeyUserFriendList(userID int64, page int, limit int) string {
	return fmt.Sprintf("user_friend_list:%d:%d:%d", userID, page, limit)
}

func DBKeyFriendCount(userID int64) string {
	return fmt.Sprintf("friend_count:%d", userID)
}

func DBKeyLeaderboardByUser(name string, userID int64, limit int) string {
	return fmt.Sprintf("leaderboard_by_user:%s:%d:%d", name, userID, limit)
}

func LimitKeyUserMining(userID int64) string {
	return fmt.Sprintf("limit:user-mining:%d", userID)
}
