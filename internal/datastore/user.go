package datastore

import (
	"context"
	"strings"

	"minetap/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableUser(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.User)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.User)(nil)).Index("index_user_ref_code").IfNotExists().Column("ref_code").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.User)(nil)).Index("index_user_referred_by").IfNotExists().Column("referred_by").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewRaw(`
		alter table "user"
			alter column created_at set default current_timestamp;
		alter table "user"
			add if not exists points double precision default 0;
		alter table "user"
			add if not exists mining_balance double precision default 0;
		alter table "user"
			add if not exists total_mining_sessions bigint default 0;`).Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func FindUserByID(ctx context.Context, db bun.IDB, userID int64) (*models.User, error) {
	var user models.User
	err := db.NewSelect().Model(&user).Where("id = ?", userID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func CreateUser(ctx context.Context, db bun.IDB, user *models.User) (*models.User, error) {
	_, err := db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func UpdateUserProfile(ctx context.Context, db bun.IDB, user *models.User) (*models.User, error) {
	_, err := db.NewUpdate().Model(user).
		Set("username = ?", user.Username).
		Set("first_name = ?", user.FirstName).
		Set("last_name = ?", user.LastName).
		Set("photo_url = ?", user.PhotoURL).WherePK().Exec(ctx)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func GetUserByRefCode(ctx context.Context, db bun.IDB, refCode string) (*models.User, error) {
	var user models.User
	err := db.NewSelect().Model(&user).
		Where("ref_code = ?", strings.ToLower(refCode)).
		WhereOr("cast(id as text) = ?", refCode).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func AddReferral(ctx context.Context, db *bun.DB, inviteeID int64, referrerID int64) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("referred_by = ?", referrerID).
			Where("id = ?", inviteeID).
			Where("referred_by is null").Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("total_invites = total_invites + 1").
			Where("id = ?", referrerID).
			Exec(ctx); err != nil {
			return err
		}

		return nil
	})
}

// ApplyMiningClaim credits the rounded claim amount to points and mining
// balance in one statement; both move by exactly the same value. Returns
// the points total after the credit so callers never mix in a stale read
// from outside the transaction.
func ApplyMiningClaim(ctx context.Context, tx bun.Tx, userID int64, amount float64) (float64, error) {
	var points float64
	err := tx.NewUpdate().
		Model((*models.User)(nil)).
		Set("points = points + ?", amount).
		Set("mining_balance = mining_balance + ?", amount).
		Set("total_mining_sessions = total_mining_sessions + 1").
		Where("id = ?", userID).
		Returning("points").
		Scan(ctx, &points)
	if err != nil {
		return 0, err
	}

	return points, nil
}

func CountInviteesByUserID(ctx context.Context, db bun.IDB, userID int64) (int, error) {
	count, err := db.NewSelect().Model((*models.User)(nil)).Where("referred_by = ?", userID).Count(ctx)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func GetUserFriendListPaging(ctx context.Context, db bun.IDB, userID int64, limit, offset int) ([]*models.Friend, error) {
	var friends []*models.Friend

	err := db.NewSelect().
		ColumnExpr("ur.id, ur.first_name, ur.last_name, ur.username, ms.id is not null as is_mining").
		TableExpr("\"user\" ur").
		Join("LEFT JOIN mining_session ms ON ms.user_id = ur.id AND ms.is_active = true").
		Where("ur.referred_by = ?", userID).
		Order("is_mining DESC").
		Order("ur.created_at ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx, &friends)
	if err != nil {
		return nil, err
	}

	return friends, nil
}
