package starlane

import (
	"testing"
)

const (
	red   Faction = "red"
	blue  Faction = "blue"
	green Faction = "green"
)

// testMapData is a six-node map small enough to reason about by hand.
// Lanes: a-b, b-c, b-d, c-d, d-e, a-x, x-e, plus the vertical lane c-x.
// b, c and d form a triangle; a is not adjacent to e, so a ground unit
// needs a convoy along a~x and x~e.
func testMapData() MapData {
	return MapData{
		Name: "test",
		Nodes: []NodeSpec{
			{Name: "a", SupplyCenter: true, Home: red},
			{Name: "b", SupplyCenter: true, Home: red},
			{Name: "c", SupplyCenter: true},
			{Name: "d", SupplyCenter: true, Home: blue},
			{Name: "e", SupplyCenter: true, Home: blue},
			{Name: "x"},
		},
		Lanes: [][2]string{
			{"a", "b"}, {"b", "c"}, {"b", "d"}, {"c", "d"}, {"d", "e"}, {"a", "x"}, {"x", "e"},
		},
		VerticalLanes: [][2]string{{"c", "x"}},
	}
}

type fixture struct {
	t    *testing.T
	topo *Topology
	b    *Board
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	topo, err := NewTopology(testMapData())
	if err != nil {
		t.Fatalf("NewTopology: %v", err)
	}
	b := NewBoard()
	b.Year, b.Season, b.Phase = 1, Spring, PhaseMovement
	for _, n := range topo.SupplyCenters() {
		b.Ownership[n] = Neutral
	}
	return &fixture{t: t, topo: topo, b: b}
}

func (f *fixture) pos(s string) Position {
	f.t.Helper()
	p, err := f.topo.ParsePosition(s)
	if err != nil {
		f.t.Fatalf("ParsePosition(%q): %v", s, err)
	}
	return p
}

// place puts a unit of the kind the position holds.
func (f *fixture) place(s string, owner Faction) *fixture {
	f.t.Helper()
	p := f.pos(s)
	f.b.Place(p, Unit{Owner: owner, Kind: occupantKind(p)})
	return f
}

func (f *fixture) order(owner Faction, text string) Order {
	f.t.Helper()
	o, err := ParseOrder(owner, text, f.topo)
	if err != nil {
		f.t.Fatalf("ParseOrder(%q): %v", text, err)
	}
	return o
}

func (f *fixture) adjudicate(mods *Modifiers, orders ...Order) Log {
	f.t.Helper()
	return Adjudicate(orders, f.b, f.topo, mods)
}

// owners returns the owners of the units at s, in board order.
func (f *fixture) owners(s string) []Faction {
	f.t.Helper()
	var out []Faction
	for _, u := range f.b.UnitsAt(f.pos(s)) {
		out = append(out, u.Owner)
	}
	return out
}

func (f *fixture) expectOwners(s string, want ...Faction) {
	f.t.Helper()
	got := f.owners(s)
	if len(got) != len(want) {
		f.t.Fatalf("units at %s: got %v, want %v", s, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			f.t.Fatalf("units at %s: got %v, want %v", s, got, want)
		}
	}
}

func (f *fixture) expectEmpty(s string) {
	f.t.Helper()
	if f.b.Occupied(f.pos(s)) {
		f.t.Fatalf("expected %s empty, found %v", s, f.owners(s))
	}
}

// outcome returns the first record of the unit starting at s that describes
// what happened to its order.
func (f *fixture) outcome(log Log, s string) Result {
	f.t.Helper()
	for _, r := range log.For(f.pos(s)) {
		switch r.Kind {
		case ResultHeld, ResultMoveSucceeded, ResultMoveFailed, ResultSupportCut, ResultConvoyBroken:
			return r
		}
	}
	f.t.Fatalf("no outcome for %s in %v", s, log)
	return Result{}
}
