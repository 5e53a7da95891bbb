package starlane

import (
	"errors"
	"testing"
)

// dislodge sets up blue's unit at b dislodged by red from a. Its only retreat
// option is d.
func dislodge(t *testing.T) *fixture {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("b", blue).place("b/o", blue)
	f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
	)
	if len(f.b.Dislodged) != 1 {
		t.Fatalf("setup: expected one dislodgement, got %v", f.b.Dislodged)
	}
	return f
}

func TestAttemptRetreat(t *testing.T) {
	f := dislodge(t)

	res := AttemptRetreat(f.b, nil, blue, f.pos("b"), f.pos("d"))
	if res.Kind != ResultRetreatSucceeded {
		t.Fatalf("got %s (%s), want retreat_succeeded", res.Kind, res.Reason)
	}
	f.expectOwners("d", blue)
	if len(f.b.Dislodged) != 0 {
		t.Error("dislodgement should be cleared after retreating")
	}
}

func TestAttemptRetreatRejections(t *testing.T) {
	tests := []struct {
		name  string
		owner Faction
		from  string
		to    string
		setup func(f *fixture)
		want  Reason
	}{
		{"attacker origin", blue, "b", "a", nil, ReasonNotAnOption},
		{"not adjacent", blue, "b", "e", nil, ReasonNotAnOption},
		{"wrong owner", red, "b", "d", nil, ReasonNoDislodgement},
		{"nothing dislodged there", blue, "c", "d", nil, ReasonNoDislodgement},
		{"filled since adjudication", blue, "b", "d", func(f *fixture) { f.place("d", green) }, ReasonOccupied},
		{"no options", blue, "b", "d", func(f *fixture) { f.b.Dislodged[0].Options = nil }, ReasonNoOptions},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := dislodge(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			res := AttemptRetreat(f.b, nil, tc.owner, f.pos(tc.from), f.pos(tc.to))
			if res.Kind != ResultRetreatFailed || res.Reason != tc.want {
				t.Errorf("got %s (%s), want retreat_failed (%s)", res.Kind, res.Reason, tc.want)
			}
			if tc.want != ReasonNoDislodgement && len(f.b.Dislodged) != 1 {
				t.Error("a failed retreat must leave the dislodgement for disbanding")
			}
		})
	}
}

func TestNoOptionsMeansDisband(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("b", blue).place("d", blue)
	f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
		f.order(blue, "G d S G b H"),
	)
	if len(f.b.Dislodged) != 1 || len(f.b.Dislodged[0].Options) != 0 {
		t.Fatalf("setup: expected a dislodgement with no options, got %v", f.b.Dislodged)
	}

	for _, to := range []string{"a", "c", "d"} {
		if res := AttemptRetreat(f.b, nil, blue, f.pos("b"), f.pos(to)); res.Kind == ResultRetreatSucceeded {
			t.Errorf("retreat to %s should not succeed", to)
		}
	}
	log := ResolveRetreats(nil, f.b, nil)
	if !log.Has(ResultDisbanded, f.pos("b")) || len(f.b.Dislodged) != 0 {
		t.Errorf("unit should be disbanded: %v", log)
	}
}

func TestDisbandDislodged(t *testing.T) {
	f := dislodge(t)
	if res := DisbandDislodged(f.b, blue, f.pos("b")); res.Kind != ResultDisbanded {
		t.Errorf("got %s, want disbanded", res.Kind)
	}
	if len(f.b.Dislodged) != 0 || f.b.UnitCount(blue) != 1 {
		t.Error("disbanding should clear the record without placing the unit")
	}
	if res := DisbandDislodged(f.b, blue, f.pos("b")); res.Reason != ReasonNoDislodgement {
		t.Errorf("second disband: got %s (%s)", res.Kind, res.Reason)
	}
}

func TestResolveRetreats(t *testing.T) {
	f := newFixture(t)
	// Two blue lane units dislodged together from a~b by a supported attack.
	f.place("a~b", blue).place("a~b", blue).place("b/o", red).place("b~c", red)
	f.adjudicate(nil,
		f.order(red, "M b/o - a~b"),
		f.order(red, "M b~c S M b/o - a~b"),
	)
	if len(f.b.Dislodged) != 2 {
		t.Fatalf("setup: expected two dislodgements, got %v", f.b.Dislodged)
	}

	log := ResolveRetreats([]RetreatOrder{
		{Faction: blue, From: f.pos("a~b"), To: f.pos("a/o")},
		{Faction: blue, From: f.pos("a~b"), To: f.pos("a~x")},
		{Faction: blue, From: f.pos("a~b"), To: f.pos("b~d")}, // surplus
		{Faction: green, From: f.pos("c"), To: f.pos("d")},    // nothing there
	}, f.b, nil)

	f.expectOwners("a/o", blue)
	f.expectOwners("a~x", blue)
	f.expectEmpty("b~d")
	if n := len(log.Filter(ResultRetreatSucceeded)); n != 2 {
		t.Errorf("expected two successful retreats, got %v", log)
	}
	if n := len(log.Filter(ResultRetreatFailed)); n != 2 {
		t.Errorf("expected two rejected orders, got %v", log)
	}
	if len(f.b.Dislodged) != 0 {
		t.Error("no dislodgement may remain after resolution")
	}
}

func TestResolveRetreatsConflictDisbandsBoth(t *testing.T) {
	f := newFixture(t)
	f.b.Dislodged = []Dislodgement{
		{Unit: Unit{red, Ground}, From: f.pos("b"), AttackerFrom: f.pos("a"), Options: []Position{f.pos("c")}},
		{Unit: Unit{blue, Ground}, From: f.pos("d"), AttackerFrom: f.pos("e"), Options: []Position{f.pos("c")}},
	}

	log := ResolveRetreats([]RetreatOrder{
		{Faction: red, From: f.pos("b"), To: f.pos("c")},
		{Faction: blue, From: f.pos("d"), To: f.pos("c")},
	}, f.b, nil)

	f.expectEmpty("c")
	if n := len(log.Filter(ResultDisbanded)); n != 2 {
		t.Errorf("both units should be disbanded: %v", log)
	}
	for _, r := range log.Filter(ResultRetreatFailed) {
		if r.Reason != ReasonBounced {
			t.Errorf("unexpected reason %s", r.Reason)
		}
	}
}

func TestResolveRetreatsSharedLane(t *testing.T) {
	allies := &Modifiers{Allies: func(a, b Faction) bool { return true }}
	tests := []struct {
		name     string
		first    Faction
		second   Faction
		occupant Faction
		mods     *Modifiers
		want     []Faction
	}{
		{name: "same faction", first: red, second: red, want: []Faction{red, red}},
		{name: "allies", first: red, second: blue, mods: allies, want: []Faction{red, blue}},
		{name: "enemies", first: red, second: blue},
		{name: "lane already half full", first: red, second: red, occupant: red},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.occupant != Neutral {
				f.place("c~d", tc.occupant)
			}
			f.b.Dislodged = []Dislodgement{
				{Unit: Unit{tc.first, Mobile}, From: f.pos("b~d"), Options: []Position{f.pos("c~d")}},
				{Unit: Unit{tc.second, Mobile}, From: f.pos("b~d"), Options: []Position{f.pos("c~d")}},
			}

			log := ResolveRetreats([]RetreatOrder{
				{Faction: tc.first, From: f.pos("b~d"), To: f.pos("c~d")},
				{Faction: tc.second, From: f.pos("b~d"), To: f.pos("c~d")},
			}, f.b, tc.mods)

			want := tc.want
			if tc.occupant != Neutral {
				want = []Faction{tc.occupant}
			}
			f.expectOwners("c~d", want...)
			if n := len(log.Filter(ResultRetreatSucceeded)); n != len(tc.want) {
				t.Errorf("expected %d successful retreats, got %v", len(tc.want), log)
			}
			if len(tc.want) == 0 && len(log.Filter(ResultDisbanded)) != 2 {
				t.Errorf("both units should be disbanded: %v", log)
			}
		})
	}
}

func TestResolveRetreatsUnorderedAndExplicitDisband(t *testing.T) {
	f := newFixture(t)
	f.b.Dislodged = []Dislodgement{
		{Unit: Unit{red, Ground}, From: f.pos("b"), Options: []Position{f.pos("c")}},
		{Unit: Unit{blue, Ground}, From: f.pos("d"), Options: []Position{f.pos("e")}},
	}

	log := ResolveRetreats([]RetreatOrder{{Faction: blue, From: f.pos("d")}}, f.b, nil)

	if n := len(log.Filter(ResultDisbanded)); n != 2 {
		t.Errorf("expected both units disbanded, got %v", log)
	}
	f.expectEmpty("c")
	f.expectEmpty("e")
}

func TestValidateRetreatOrder(t *testing.T) {
	f := dislodge(t)
	tests := []struct {
		name  string
		order RetreatOrder
		want  error
	}{
		{"to option", RetreatOrder{Faction: blue, From: f.pos("b"), To: f.pos("d")}, nil},
		{"disband", RetreatOrder{Faction: blue, From: f.pos("b")}, nil},
		{"not an option", RetreatOrder{Faction: blue, From: f.pos("b"), To: f.pos("a")}, ErrNotRetreatOption},
		{"not dislodged", RetreatOrder{Faction: blue, From: f.pos("b/o"), To: f.pos("b~d")}, ErrNoUnit},
		{"someone else's unit", RetreatOrder{Faction: red, From: f.pos("b"), To: f.pos("d")}, ErrNoUnit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRetreatOrder(tc.order, f.b)
			if tc.want == nil && err != nil || tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
	if len(f.b.Dislodged) != 1 {
		t.Error("validation must not change the board")
	}
}
