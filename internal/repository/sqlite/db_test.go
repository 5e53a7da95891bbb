package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/freeeve/starlane/internal/repository/repotest"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "starlane.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore(t *testing.T) {
	db := openTest(t)
	repotest.Run(t, db, func(t *testing.T) {
		t.Helper()
		if _, err := db.conn.Exec(`DELETE FROM orders; DELETE FROM phases; DELETE FROM game_players; DELETE FROM games;`); err != nil {
			t.Fatalf("reset: %v", err)
		}
	})
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	g, err := db.Create(context.Background(), repotest.NewGame("Persisted"))
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	found, err := db.FindByID(context.Background(), g.ID)
	if err != nil || found == nil || len(found.Players) != 2 {
		t.Errorf("game lost across reopen: %+v, %v", found, err)
	}
}

func TestTimesUseInjectedClock(t *testing.T) {
	db := openTest(t)
	fixed := time.Date(2031, 3, 4, 5, 6, 7, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	g, err := db.Create(context.Background(), repotest.NewGame("Clock"))
	if err != nil {
		t.Fatal(err)
	}
	if !g.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %s", g.CreatedAt)
	}
	if err := db.SetFinished(context.Background(), g.ID, ""); err != nil {
		t.Fatal(err)
	}
	found, _ := db.FindByID(context.Background(), g.ID)
	if found.FinishedAt == nil || !found.FinishedAt.Equal(fixed) || found.Winner != "" {
		t.Errorf("finished game = %+v", found)
	}
}

func TestDuplicateFactionRollsBack(t *testing.T) {
	db := openTest(t)
	g := repotest.NewGame("Twins")
	g.Players[1].Faction = g.Players[0].Faction
	if _, err := db.Create(context.Background(), g); err == nil {
		t.Fatal("two seats may not share a faction")
	}
	active, err := db.ListActive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("failed create left %d games behind", len(active))
	}
}
