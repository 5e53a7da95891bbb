//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/freeeve/starlane/internal/repository/repotest"
	"github.com/freeeve/starlane/internal/testutil"
)

func TestStore(t *testing.T) {
	db := testutil.SetupDB(t)
	repotest.Run(t, NewStore(db), func(t *testing.T) { testutil.CleanupDB(t, db) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testutil.SetupDB(t)
	for range 2 {
		if err := Migrate(context.Background(), db); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
}

func TestCreateRejectsDuplicateFaction(t *testing.T) {
	db := testutil.SetupDB(t)
	testutil.CleanupDB(t, db)

	g := repotest.NewGame("Twins")
	g.Players[1].Faction = g.Players[0].Faction
	if _, err := NewGameRepo(db).Create(context.Background(), g); err == nil {
		t.Fatal("two seats may not share a faction")
	}
	active, err := NewGameRepo(db).ListActive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Error("failed create should roll back the game row")
	}
}
