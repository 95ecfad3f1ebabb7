package datastore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"minetap/internal/models"

	"github.com/uptrace/bun"
)

func TestListActiveMiningSessionsKeysetPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s := &models.MiningSession{
			ID:          fmt.Sprintf("session-%d", i),
			UserID:      int64(i + 1),
			BaseReward:  20,
			CurrentRate: 20,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			EndsAt:      base.Add(6 * time.Hour),
			LastUpdate:  base.Add(time.Duration(i) * time.Minute),
			Duration:    21600,
			IsActive:    true,
		}
		if err := InsertMiningSession(ctx, db, s); err != nil {
			t.Fatal(err)
		}
	}

	// deactivate every row the sweep visits, as a reconcile pass does;
	// keyset paging must still visit each session exactly once
	visited := map[string]int{}
	var cursorStartedAt time.Time
	var cursorID string
	for {
		page, err := ListActiveMiningSessions(ctx, db, 2, cursorStartedAt, cursorID)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) == 0 {
			break
		}

		last := page[len(page)-1]
		cursorStartedAt, cursorID = last.StartedAt, last.ID

		for _, s := range page {
			visited[s.ID]++
			s.IsActive = false
			s.IsCompleted = true
			if err := UpdateMiningSessionProgress(ctx, db, s); err != nil {
				t.Fatal(err)
			}
		}
	}

	if len(visited) != 5 {
		t.Fatalf("visited %d sessions, want 5", len(visited))
	}
	for id, n := range visited {
		if n != 1 {
			t.Errorf("session %s visited %d times", id, n)
		}
	}
}

func TestMarkMiningSessionClaimedOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	started := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	completedAt := started.Add(6 * time.Hour)
	s := &models.MiningSession{
		ID:          "claimable",
		UserID:      7,
		BaseReward:  20,
		CurrentRate: 20,
		TotalMined:  20,
		StartedAt:   started,
		EndsAt:      completedAt,
		LastUpdate:  completedAt,
		CompletedAt: &completedAt,
		Duration:    21600,
		IsCompleted: true,
	}
	if err := InsertMiningSession(ctx, db, s); err != nil {
		t.Fatal(err)
	}

	markClaimed := func() bool {
		var claimed bool
		err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			claimed, err = MarkMiningSessionClaimed(ctx, tx, "claimable")
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		return claimed
	}

	if !markClaimed() {
		t.Fatal("first claim must succeed")
	}
	if markClaimed() {
		t.Error("second claim must affect zero rows")
	}
}
