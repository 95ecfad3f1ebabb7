package datastore

import (
	"context"
	"math"
	"testing"

	"minetap/internal/models"

	"github.com/uptrace/bun"
)

func applyClaim(t *testing.T, db *bun.DB, userID int64, amount float64) float64 {
	t.Helper()

	var total float64
	err := db.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		total, err = ApplyMiningClaim(ctx, tx, userID, amount)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	return total
}

func TestApplyMiningClaimReturnsFreshTotal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, db, &models.User{ID: 1, Points: 5}); err != nil {
		t.Fatal(err)
	}

	// back-to-back claims: the second total must include the first credit
	// even when the caller still holds a user row read before both
	if got := applyClaim(t, db, 1, 2.5); math.Abs(got-7.5) > 1e-9 {
		t.Errorf("first claim total = %v, want 7.5", got)
	}
	if got := applyClaim(t, db, 1, 1.25); math.Abs(got-8.75) > 1e-9 {
		t.Errorf("second claim total = %v, want 8.75", got)
	}

	user, err := FindUserByID(ctx, db, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(user.Points-8.75) > 1e-9 {
		t.Errorf("stored points = %v, want 8.75", user.Points)
	}
	if math.Abs(user.MiningBalance-3.75) > 1e-9 {
		t.Errorf("mining balance = %v, want 3.75", user.MiningBalance)
	}
	if user.TotalMiningSessions != 2 {
		t.Errorf("total mining sessions = %d, want 2", user.TotalMiningSessions)
	}
}

func TestAddReferralOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, db, &models.User{ID: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateUser(ctx, db, &models.User{ID: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateUser(ctx, db, &models.User{ID: 3}); err != nil {
		t.Fatal(err)
	}

	if err := AddReferral(ctx, db, 2, 1); err != nil {
		t.Fatal(err)
	}
	// the referred_by is null guard keeps the first referrer
	if err := AddReferral(ctx, db, 2, 3); err != nil {
		t.Fatal(err)
	}

	invitee, err := FindUserByID(ctx, db, 2)
	if err != nil {
		t.Fatal(err)
	}
	if invitee.ReferredBy == nil || *invitee.ReferredBy != 1 {
		t.Errorf("referred_by = %v, want 1", invitee.ReferredBy)
	}
}
