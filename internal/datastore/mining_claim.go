package datastore

import (
	"context"

	"minetap/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableMiningClaim(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.MiningClaim)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.MiningClaim)(nil)).Index("index_mining_claim_user_id").IfNotExists().Column("user_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.MiningClaim)(nil)).Index("index_mining_claim_session_id").IfNotExists().Column("session_id").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertMiningClaim(ctx context.Context, db bun.IDB, claim *models.MiningClaim) error {
	_, err := db.NewInsert().Model(claim).Exec(ctx)
	return err
}

func GetUserTotalClaimed(ctx context.Context, db bun.IDB, userID int64) (float64, error) {
	var total float64
	err := db.NewSelect().Model((*models.MiningClaim)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(ctx, &total)
	if err != nil {
		return 0, err
	}

	return total, nil
}

func GetUserClaims(ctx context.Context, db bun.IDB, userID int64, limit, offset int) ([]*models.MiningClaim, error) {
	var claims []*models.MiningClaim
	err := db.NewSelect().Model(&claims).
		Where("user_id = ?", userID).
		Order("claimed_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return claims, nil
}
