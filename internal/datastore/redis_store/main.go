package redis_store

import (
	"context"
	"strconv"
	"time"

	"minetap/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const referralEventQueue = "mining:referral_events"

func dbKeyLeaderboard(name string) string {
	return "leaderboard:" + name
}

func SetLeaderboard(ctx context.Context, cmd redis.Cmdable, name string, v *models.LeaderboardItem) (*models.LeaderboardItem, error) {
	err := cmd.ZAdd(ctx, dbKeyLeaderboard(name), redis.Z{
		Score:  v.Score,
		Member: v.UserId,
	}).Err()
	if err != nil {
		return nil, err
	}

	return v, nil
}

func GetLeaderboard(ctx context.Context, cmd redis.Cmdable, name string, num int) ([]*models.LeaderboardItem, error) {
	items, err := cmd.ZRevRangeWithScores(ctx, dbKeyLeaderboard(name), 0, int64(num-1)).Result()
	if err != nil {
		return nil, err
	}

	var results []*models.LeaderboardItem
	for i, item := range items {
		id, _ := strconv.ParseInt(item.Member.(string), 10, 64)
		results = append(results, &models.LeaderboardItem{
			UserId: id,
			Score:  item.Score,
			Rank:   i + 1,
		})
	}

	return results, nil
}

func GetRank(ctx context.Context, cmd redis.Cmdable, name string, userID int64) (int64, error) {
	rank, err := cmd.ZRevRank(ctx, dbKeyLeaderboard(name), strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		return -1, err
	}

	return rank, nil
}

func GetScore(ctx context.Context, cmd redis.Cmdable, name string, userID int64) (float64, error) {
	return cmd.ZScore(ctx, dbKeyLeaderboard(name), strconv.FormatInt(userID, 10)).Result()
}

// PushReferralEvent appends a status-change event to the outbox list.
// Delivery is best-effort; the reconciler corrects anything the worker
// misses.
func PushReferralEvent(ctx context.Context, cmd redis.Cmdable, event *models.ReferralEvent) error {
	b, err := msgpack.Marshal(event)
	if err != nil {
		return err
	}

	return cmd.LPush(ctx, referralEventQueue, b).Err()
}

// PopReferralEvent blocks up to timeout waiting for the next event.
// Returns nil, nil on timeout.
func PopReferralEvent(ctx context.Context, cmd redis.Cmdable, timeout time.Duration) (*models.ReferralEvent, error) {
	vs, err := cmd.BRPop(ctx, timeout, referralEventQueue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var event models.ReferralEvent
	err = msgpack.Unmarshal([]byte(vs[1]), &event)
	if err != nil {
		return nil, err
	}

	return &event, nil
}
