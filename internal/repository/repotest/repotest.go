// Package repotest holds behaviour tests shared by every repository.Store
// backend.
package repotest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/freeeve/starlane/internal/model"
	"github.com/freeeve/starlane/internal/repository"
)

// NewGame returns a two-seat game ready for Create.
func NewGame(name string) *model.Game {
	return &model.Game{
		Name:             name,
		MapName:          "default",
		MovementDuration: "24h0m0s",
		RetreatDuration:  "12h0m0s",
		BuildDuration:    "12h0m0s",
		Players: []model.GamePlayer{
			{UserID: "user-terran", Faction: "terran"},
			{UserID: "user-zenari", Faction: "zenari"},
		},
	}
}

// Run exercises store through the full game and phase lifecycle. reset is
// called before each subtest to give it an empty store.
func Run(t *testing.T, store repository.Store, reset func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s repository.Store)
	}{
		{"CreateAndFind", testCreateAndFind},
		{"FindMissing", testFindMissing},
		{"ListActiveAndFinish", testListActiveAndFinish},
		{"PhaseLifecycle", testPhaseLifecycle},
		{"ResolveOnce", testResolveOnce},
		{"Orders", testOrders},
		{"ListExpired", testListExpired},
		{"ListPhasesOrder", testListPhasesOrder},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reset(t)
			tc.fn(t, store)
		})
	}
}

func create(t *testing.T, s repository.Store, name string) *model.Game {
	t.Helper()
	g, err := s.Create(context.Background(), NewGame(name))
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return g
}

func testCreateAndFind(t *testing.T, s repository.Store) {
	ctx := context.Background()
	g := create(t, s, "Orion Arm")
	if g.ID == "" || g.Status != model.StatusActive {
		t.Fatalf("unexpected created game: %+v", g)
	}

	found, err := s.FindByID(ctx, g.ID)
	if err != nil || found == nil {
		t.Fatalf("FindByID: %v, %v", found, err)
	}
	if found.Name != "Orion Arm" || found.MapName != "default" || found.MovementDuration != "24h0m0s" {
		t.Errorf("round trip lost fields: %+v", found)
	}
	if len(found.Players) != 2 || found.Players[0].Faction != "terran" || found.Players[1].UserID != "user-zenari" {
		t.Errorf("players = %+v", found.Players)
	}
	if found.FactionOf("user-zenari") != "zenari" {
		t.Error("FactionOf should find the seated faction")
	}
}

func testFindMissing(t *testing.T, s repository.Store) {
	ctx := context.Background()
	g, err := s.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
	if err != nil || g != nil {
		t.Errorf("missing game: %v, %v", g, err)
	}
	p, err := s.CurrentPhase(ctx, "00000000-0000-0000-0000-000000000000")
	if err != nil || p != nil {
		t.Errorf("missing phase: %v, %v", p, err)
	}
}

func testListActiveAndFinish(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := create(t, s, "A")
	b := create(t, s, "B")
	if err := s.SetFinished(ctx, a.ID, "terran"); err != nil {
		t.Fatalf("SetFinished: %v", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].ID != b.ID || len(active[0].Players) != 2 {
		t.Errorf("active = %+v", active)
	}
	done, _ := s.FindByID(ctx, a.ID)
	if done.Status != model.StatusFinished || done.Winner != "terran" || done.FinishedAt == nil {
		t.Errorf("finished game = %+v", done)
	}
}

var board = json.RawMessage(`{"year":1,"season":"spring","phase":"movement","units":[],"ownership":[]}`)

func testPhaseLifecycle(t *testing.T, s repository.Store) {
	ctx := context.Background()
	g := create(t, s, "Lifecycle")
	deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	p, err := s.CreatePhase(ctx, g.ID, 1, "spring", "movement", board, deadline)
	if err != nil {
		t.Fatalf("CreatePhase: %v", err)
	}
	if p.ID == "" || !p.Deadline.Equal(deadline) || p.ResolvedAt != nil {
		t.Errorf("created phase = %+v", p)
	}

	cur, err := s.CurrentPhase(ctx, g.ID)
	if err != nil || cur == nil || cur.ID != p.ID {
		t.Fatalf("CurrentPhase = %v, %v", cur, err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(cur.BoardBefore, &decoded); err != nil || decoded["season"] != "spring" {
		t.Errorf("board_before did not round trip: %s", cur.BoardBefore)
	}

	results := json.RawMessage(`[{"kind":"held","faction":"terran","unit":"ground","from":"n0"}]`)
	if err := s.ResolvePhase(ctx, p.ID, "res-1", board, results); err != nil {
		t.Fatalf("ResolvePhase: %v", err)
	}
	if cur, _ := s.CurrentPhase(ctx, g.ID); cur != nil {
		t.Error("resolved phase should no longer be current")
	}

	got, err := s.FindPhase(ctx, p.ID)
	if err != nil || got == nil {
		t.Fatalf("FindPhase: %v, %v", got, err)
	}
	if got.ResolvedAt == nil || got.ResolutionID != "res-1" || len(got.BoardAfter) == 0 {
		t.Errorf("resolved phase = %+v", got)
	}
	var log []map[string]any
	if err := json.Unmarshal(got.Results, &log); err != nil || len(log) != 1 || log[0]["kind"] != "held" {
		t.Errorf("results did not round trip: %s", got.Results)
	}
}

func testResolveOnce(t *testing.T, s repository.Store) {
	ctx := context.Background()
	g := create(t, s, "Once")
	p, _ := s.CreatePhase(ctx, g.ID, 1, "spring", "movement", board, time.Now().Add(time.Hour))
	if err := s.ResolvePhase(ctx, p.ID, "first", board, nil); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := s.ResolvePhase(ctx, p.ID, "second", board, nil); err == nil {
		t.Error("second resolve should fail")
	}
	got, _ := s.FindPhase(ctx, p.ID)
	if got.ResolutionID != "first" {
		t.Errorf("resolution id overwritten: %q", got.ResolutionID)
	}
}

func testOrders(t *testing.T, s repository.Store) {
	ctx := context.Background()
	g := create(t, s, "Orders")
	p, _ := s.CreatePhase(ctx, g.ID, 1, "spring", "movement", board, time.Now().Add(time.Hour))

	if err := s.SaveOrders(ctx, nil); err != nil {
		t.Errorf("saving no orders: %v", err)
	}
	err := s.SaveOrders(ctx, []model.Order{
		{PhaseID: p.ID, Faction: "zenari", Text: "G sol H", Result: "held"},
		{PhaseID: p.ID, Faction: "terran", Text: "G terra - luna", Result: "move_succeeded"},
		{PhaseID: p.ID, Faction: "terran", Text: "M terra/o H"},
	})
	if err != nil {
		t.Fatalf("SaveOrders: %v", err)
	}
	orders, err := s.OrdersByPhase(ctx, p.ID)
	if err != nil {
		t.Fatalf("OrdersByPhase: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("got %d orders", len(orders))
	}
	if orders[0].Faction != "terran" || orders[2].Faction != "zenari" {
		t.Errorf("orders should be grouped by faction: %+v", orders)
	}
	if orders[2].Result != "held" || orders[2].ID == "" {
		t.Errorf("order lost fields: %+v", orders[2])
	}
}

func testListExpired(t *testing.T, s repository.Store) {
	ctx := context.Background()
	late := create(t, s, "Late")
	onTime := create(t, s, "OnTime")
	over := create(t, s, "Over")

	past := time.Now().Add(-time.Minute)
	if _, err := s.CreatePhase(ctx, late.ID, 1, "spring", "movement", board, past); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreatePhase(ctx, onTime.ID, 1, "spring", "movement", board, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreatePhase(ctx, over.ID, 1, "spring", "movement", board, past); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFinished(ctx, over.ID, ""); err != nil {
		t.Fatal(err)
	}

	expired, err := s.ListExpired(ctx)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(expired) != 1 || expired[0].GameID != late.ID {
		t.Errorf("expired = %+v", expired)
	}
}

func testListPhasesOrder(t *testing.T, s repository.Store) {
	ctx := context.Background()
	g := create(t, s, "History")
	dl := time.Now().Add(time.Hour)
	for _, p := range []struct {
		year          int
		season, phase string
	}{
		{1, "fall", "build"},
		{1, "spring", "movement"},
		{2, "spring", "movement"},
		{1, "fall", "movement"},
		{1, "spring", "retreat"},
	} {
		if _, err := s.CreatePhase(ctx, g.ID, p.year, p.season, p.phase, board, dl); err != nil {
			t.Fatal(err)
		}
	}
	phases, err := s.ListPhases(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListPhases: %v", err)
	}
	var got []string
	for _, p := range phases {
		got = append(got, p.Season+"/"+p.PhaseType)
	}
	want := []string{"spring/movement", "spring/retreat", "fall/movement", "fall/build", "spring/movement"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
