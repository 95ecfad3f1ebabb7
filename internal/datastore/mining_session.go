package datastore

import (
	"context"
	"time"

	"minetap/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableMiningSession(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.MiningSession)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.MiningSession)(nil)).Index("index_mining_session_user_active").IfNotExists().Column("user_id", "is_active").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.MiningSession)(nil)).Index("index_mining_session_claimable").IfNotExists().Column("is_completed", "is_claimed").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.MiningSession)(nil)).Index("index_mining_session_started_at").IfNotExists().Column("started_at").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertMiningSession(ctx context.Context, db bun.IDB, session *models.MiningSession) error {
	_, err := db.NewInsert().Model(session).Exec(ctx)
	return err
}

func GetActiveMiningSession(ctx context.Context, db bun.IDB, userID int64) (*models.MiningSession, error) {
	var session models.MiningSession
	err := db.NewSelect().Model(&session).
		Where("user_id = ?", userID).
		Where("is_active = true").
		Order("started_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetActiveMiningSessionForUpdate locks the user's active session row for
// the duration of the surrounding transaction.
func GetActiveMiningSessionForUpdate(ctx context.Context, tx bun.Tx, userID int64) (*models.MiningSession, error) {
	var session models.MiningSession
	err := tx.NewSelect().Model(&session).
		Where("user_id = ?", userID).
		Where("is_active = true").
		Order("started_at DESC").
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func GetMiningSessionForUpdate(ctx context.Context, tx bun.Tx, sessionID string) (*models.MiningSession, error) {
	var session models.MiningSession
	err := tx.NewSelect().Model(&session).
		Where("id = ?", sessionID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func GetClaimableMiningSessionForUpdate(ctx context.Context, tx bun.Tx, userID int64) (*models.MiningSession, error) {
	var session models.MiningSession
	err := tx.NewSelect().Model(&session).
		Where("user_id = ?", userID).
		Where("is_completed = true").
		Where("is_claimed = false").
		Order("ends_at DESC").
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func GetClaimableMiningSession(ctx context.Context, db bun.IDB, userID int64) (*models.MiningSession, error) {
	var session models.MiningSession
	err := db.NewSelect().Model(&session).
		Where("user_id = ?", userID).
		Where("is_completed = true").
		Where("is_claimed = false").
		Order("ends_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateMiningSessionProgress persists the fields the accrual path is
// allowed to mutate.
func UpdateMiningSessionProgress(ctx context.Context, db bun.IDB, session *models.MiningSession) error {
	_, err := db.NewUpdate().Model(session).
		Set("total_mined = ?", session.TotalMined).
		Set("last_update = ?", session.LastUpdate).
		Set("current_rate = ?", session.CurrentRate).
		Set("is_active = ?", session.IsActive).
		Set("is_completed = ?", session.IsCompleted).
		Set("completed_at = ?", session.CompletedAt).
		WherePK().
		Exec(ctx)
	return err
}

// MarkMiningSessionClaimed flips is_claimed with a conditional update so a
// racing second claim affects zero rows.
func MarkMiningSessionClaimed(ctx context.Context, tx bun.Tx, sessionID string) (bool, error) {
	res, err := tx.NewUpdate().Model((*models.MiningSession)(nil)).
		Set("is_claimed = true").
		Where("id = ?", sessionID).
		Where("is_completed = true").
		Where("is_claimed = false").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// CountActiveReferrals counts invitees of userID whose own session is
// active and started within the given window. One consistent snapshot per
// call; callers must not recount mid-operation.
func CountActiveReferrals(ctx context.Context, db bun.IDB, userID int64, window time.Duration, now time.Time) (int, error) {
	count, err := db.NewSelect().
		TableExpr("mining_session ms").
		Join("JOIN \"user\" u ON u.id = ms.user_id").
		Where("u.referred_by = ?", userID).
		Where("ms.is_active = true").
		Where("ms.started_at > ?", now.Add(-window)).
		Count(ctx)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// ListActiveMiningSessions pages by keyset on (started_at, id). Offset
// paging would skip rows here: sweeps deactivate sessions mid-iteration
// and shift the remaining ones left.
func ListActiveMiningSessions(ctx context.Context, db bun.IDB, limit int, afterStartedAt time.Time, afterID string) ([]*models.MiningSession, error) {
	var sessions []*models.MiningSession
	err := db.NewSelect().Model(&sessions).
		Where("is_active = true").
		Where("(started_at, id) > (?, ?)", afterStartedAt, afterID).
		OrderExpr("started_at ASC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}
