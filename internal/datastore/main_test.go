package datastore

import (
	"context"
	"database/sql"
	"testing"

	"minetap/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// one connection, or each pool conn gets its own empty :memory: db
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.MiningSession)(nil),
		(*models.MiningClaim)(nil),
		(*models.Config)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatal(err)
		}
	}

	return db
}
