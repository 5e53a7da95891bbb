package starlane

import (
	"bytes"
	"encoding/json"
	"slices"
	"testing"
)

// --- Basic movement ---

func TestMoveIntoEmptyNode(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("d", blue)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(blue, "G d H"),
	)

	f.expectEmpty("a")
	f.expectOwners("b", red)
	if n := len(log.Filter(ResultMoveSucceeded)); n != 1 {
		t.Errorf("expected one move_succeeded entry, got %d: %v", n, log)
	}
	if r := f.outcome(log, "d"); r.Kind != ResultHeld {
		t.Errorf("d: got %s, want held", r.Kind)
	}
}

func TestUnorderedUnitsHold(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("a~b", blue)

	log := f.adjudicate(nil)

	if len(log) != 2 || len(log.Filter(ResultHeld)) != 2 {
		t.Errorf("expected two held entries, got %v", log)
	}
}

func TestMoveIntoFriendlyNodeFails(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("b", red)

	log := f.adjudicate(nil, f.order(red, "G a - b"))

	if r := f.outcome(log, "a"); r.Kind != ResultMoveFailed || r.Reason != ReasonFriendlyOccupied {
		t.Errorf("got %s (%s), want move_failed (friendly occupied)", r.Kind, r.Reason)
	}
	f.expectOwners("a", red)
	f.expectOwners("b", red)
}

// --- Strength and defense ---

func TestEqualStrengthBounces(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("b", blue).place("b/o", blue)

	log := f.adjudicate(nil, f.order(red, "G a - b"))

	if r := f.outcome(log, "a"); r.Reason != ReasonBounced {
		t.Errorf("got %s (%s), want bounce", r.Kind, r.Reason)
	}
	f.expectOwners("a", red)
	f.expectOwners("b", blue)
}

func TestUncoveredGroundUnitIsWeaker(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("b", blue).place("b/o", green)

	log := f.adjudicate(nil, f.order(red, "G a - b"))

	// An enemy in orbit does not cover the defender.
	f.expectOwners("b", red)
	if !log.Has(ResultDislodged, f.pos("b")) {
		t.Errorf("expected blue to be dislodged: %v", log)
	}
}

func TestOrbitCoverUsesTurnStartPlacement(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("b", blue).place("b/o", blue)

	// The covering unit leaves this turn but still counts.
	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(blue, "M b/o - b~c"),
	)

	if r := f.outcome(log, "a"); r.Kind != ResultMoveFailed {
		t.Errorf("got %s, want move_failed", r.Kind)
	}
	f.expectOwners("b", blue)
	f.expectOwners("b~c", blue)
}

func TestSupportedAttackDislodges(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("b", blue).place("b/o", blue)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
	)

	f.expectEmpty("a")
	f.expectOwners("b", red)
	if len(f.b.Dislodged) != 1 {
		t.Fatalf("expected one dislodgement, got %v", f.b.Dislodged)
	}
	d := f.b.Dislodged[0]
	if d.Unit.Owner != blue || d.From != f.pos("b") || d.AttackerFrom != f.pos("a") {
		t.Errorf("unexpected dislodgement %+v", d)
	}
	// a is the attacker's origin and c is occupied.
	if !slices.Equal(d.Options, []Position{f.pos("d")}) {
		t.Errorf("options = %v, want [d]", d.Options)
	}
	if !log.Has(ResultDislodged, f.pos("b")) {
		t.Error("log should record the dislodgement")
	}
}

func TestSupportedAttackBeatsUncoveredDefenderWithHoldSupport(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("b", blue).place("d", blue)

	// Defender: 1 base, -1 uncovered, +1 hold support = 1. Attacker: 2.
	f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
		f.order(blue, "G d S G b H"),
	)

	f.expectOwners("b", red)
	if len(f.b.Dislodged) != 1 {
		t.Fatalf("expected one dislodgement, got %v", f.b.Dislodged)
	}
	if opts := f.b.Dislodged[0].Options; len(opts) != 0 {
		t.Errorf("every retreat is blocked, got options %v", opts)
	}
}

func TestHoldSupportRepelsAttack(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("b", blue).place("b/o", blue).place("d", blue)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
		f.order(blue, "G d S G b H"),
	)

	if r := f.outcome(log, "a"); r.Reason != ReasonBounced {
		t.Errorf("got %s (%s), want bounce", r.Kind, r.Reason)
	}
	f.expectOwners("b", blue)
}

func TestAttackAndDefenseBonuses(t *testing.T) {
	tests := []struct {
		name string
		mods *Modifiers
		take bool
	}{
		{"no bonus", nil, false},
		{"attack bonus", &Modifiers{AttackBonus: map[Faction]int{red: 1}}, true},
		{"bonuses cancel", &Modifiers{AttackBonus: map[Faction]int{red: 1}, DefenseBonus: map[Faction]int{blue: 1}}, false},
		{"defense penalty", &Modifiers{DefenseBonus: map[Faction]int{blue: -1}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.place("a", red).place("b", blue).place("b/o", blue)
			f.adjudicate(tc.mods, f.order(red, "G a - b"))
			got := f.owners("b")[0] == red
			if got != tc.take {
				t.Errorf("attacker took b = %v, want %v", got, tc.take)
			}
		})
	}
}

func TestSharedLaneDefendsWithBestBonus(t *testing.T) {
	for _, holder := range []Faction{red, blue} {
		t.Run(string(holder), func(t *testing.T) {
			f := newFixture(t)
			f.place("b~d", red).place("b~d", blue).place("b/o", green).place("b~c", green)
			mods := &Modifiers{
				Allies:       func(a, b Faction) bool { return a != green && b != green },
				DefenseBonus: map[Faction]int{holder: 1},
			}

			f.adjudicate(mods,
				f.order(green, "M b/o - b~d"),
				f.order(green, "M b~c S M b/o - b~d"),
			)

			f.expectOwners("b~d", red, blue)
			f.expectOwners("b/o", green)
		})
	}
}

// --- Contests ---

func TestThreeWayBounceOnEmptyNode(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", blue).place("d", green)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(blue, "G c - b"),
		f.order(green, "G d - b"),
	)

	f.expectEmpty("b")
	f.expectOwners("a", red)
	f.expectOwners("c", blue)
	f.expectOwners("d", green)
	failed := log.Filter(ResultMoveFailed)
	if len(failed) != 3 {
		t.Fatalf("expected three failed moves, got %v", log)
	}
	for _, r := range failed {
		if r.Reason != ReasonBounced {
			t.Errorf("%s: reason %s, want bounced", r.From, r.Reason)
		}
	}
}

func TestStrongestContenderWins(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", blue).place("d", blue)

	f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(blue, "G c - b"),
		f.order(blue, "G d S G c - b"),
	)

	f.expectOwners("b", blue)
	f.expectOwners("a", red)
	f.expectEmpty("c")
}

func TestSwapFailsRegardlessOfStrength(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("b", blue)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
		f.order(blue, "G b - a"),
	)

	for _, at := range []string{"a", "b"} {
		if r := f.outcome(log, at); r.Kind != ResultMoveFailed || r.Reason != ReasonSwap {
			t.Errorf("%s: got %s (%s), want swap failure", at, r.Kind, r.Reason)
		}
	}
	f.expectOwners("a", red)
	f.expectOwners("b", blue)
	if len(f.b.Dislodged) != 0 {
		t.Errorf("a swap dislodges nothing, got %v", f.b.Dislodged)
	}
}

func TestRotationSucceeds(t *testing.T) {
	f := newFixture(t)
	f.place("b", red).place("c", red).place("d", blue)

	f.adjudicate(nil,
		f.order(red, "G b - c"),
		f.order(red, "G c - d"),
		f.order(blue, "G d - b"),
	)

	f.expectOwners("b", blue)
	f.expectOwners("c", red)
	f.expectOwners("d", red)
}

func TestFailedMoverDefendsItsOrigin(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("b", blue).place("b/o", blue).place("c", green).place("c/o", green)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(blue, "G b - c"),
	)

	// blue bounces off c and stays, so red meets a covered defender.
	if r := f.outcome(log, "b"); r.Reason != ReasonBounced {
		t.Errorf("b: got %s (%s), want bounce", r.Kind, r.Reason)
	}
	if r := f.outcome(log, "a"); r.Reason != ReasonBounced {
		t.Errorf("a: got %s (%s), want bounce", r.Kind, r.Reason)
	}
	f.expectOwners("a", red)
	f.expectOwners("b", blue)
	f.expectOwners("c", green)
}

func TestFailedMoverCanStillBeDislodged(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("b", blue).place("c", green).place("c/o", green)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(blue, "G b - c"),
	)

	f.expectOwners("b", red)
	if r := f.outcome(log, "b"); r.Kind != ResultMoveFailed {
		t.Errorf("b: got %s, want move_failed", r.Kind)
	}
	if !log.Has(ResultDislodged, f.pos("b")) {
		t.Error("uncovered blue should be dislodged after its move failed")
	}
}

// --- Support cutting ---

func TestSupportCutByAttack(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("c/o", red).place("b", blue).place("b/o", blue).place("d", blue)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
		f.order(blue, "G d - c"),
	)

	if !log.Has(ResultSupportCut, f.pos("c")) {
		t.Errorf("support at c should be cut: %v", log)
	}
	f.expectOwners("b", blue)
	f.expectOwners("c", red)
}

func TestSupportNotCutFromSupportedDestination(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("c/o", red).place("b", blue).place("b/o", blue)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
		f.order(blue, "G b - c"),
	)

	if log.Has(ResultSupportCut, f.pos("c")) {
		t.Error("an attack from the supported destination must not cut the support")
	}
	f.expectOwners("b", red)
	f.expectOwners("c", red)
	if len(f.b.Dislodged) != 1 || f.b.Dislodged[0].Unit.Owner != blue {
		t.Errorf("expected blue dislodged, got %v", f.b.Dislodged)
	}
}

func TestSupportCutByOwnFaction(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("d", red).place("b", blue).place("b/o", blue)

	log := f.adjudicate(nil,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
		f.order(red, "G d - c"),
	)

	if !log.Has(ResultSupportCut, f.pos("c")) {
		t.Errorf("any move into the supporter cuts it: %v", log)
	}
	f.expectOwners("b", blue)
}

func TestSabotagedSupportCountsForNothing(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("b", blue).place("b/o", blue)
	mods := &Modifiers{Sabotaged: map[SupportKey]bool{{Faction: red, Location: f.pos("c")}: true}}

	f.adjudicate(mods,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
	)

	f.expectOwners("b", blue)
	f.expectOwners("a", red)
}

// --- Protection ---

func TestProtectedPositionInvokesImmunity(t *testing.T) {
	f := newFixture(t)
	f.place("a", red).place("c", red).place("b", blue).place("b/o", blue)
	mods := &Modifiers{Protected: map[Position]bool{f.pos("b"): true}}

	log := f.adjudicate(mods,
		f.order(red, "G a - b"),
		f.order(red, "G c S G a - b"),
	)

	if r := f.outcome(log, "a"); r.Reason != ReasonImmune {
		t.Errorf("got %s (%s), want immune failure", r.Kind, r.Reason)
	}
	if !log.Has(ResultImmunityInvoked, f.pos("b")) {
		t.Errorf("expected immunity record at b: %v", log)
	}
	if log.Has(ResultDislodged, f.pos("b")) || len(f.b.Dislodged) != 0 {
		t.Error("protected unit must not be dislodged")
	}
	f.expectOwners("b", blue)
}

func TestProtectionDoesNotBlockEmptyDestination(t *testing.T) {
	f := newFixture(t)
	f.place("a", red)
	mods := &Modifiers{Protected: map[Position]bool{f.pos("b"): true}}

	f.adjudicate(mods, f.order(red, "G a - b"))

	f.expectOwners("b", red)
}

// --- Convoys ---

func convoyFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.place("a", red).place("a~x", red).place("x~e", red)
	return f
}

func TestConvoyCarriesGroundUnit(t *testing.T) {
	f := convoyFixture(t)

	log := f.adjudicate(nil,
		f.order(red, "G a - e via convoy"),
		f.order(red, "M a~x C G a - e"),
		f.order(red, "M x~e C G a - e"),
	)

	f.expectEmpty("a")
	f.expectOwners("e", red)
	if r := f.outcome(log, "a"); r.Kind != ResultMoveSucceeded {
		t.Errorf("got %s, want move_succeeded", r.Kind)
	}
}

func TestConvoyBrokenByBouncedAttack(t *testing.T) {
	f := convoyFixture(t)
	f.place("x/o", blue)

	log := f.adjudicate(nil,
		f.order(red, "G a - e via convoy"),
		f.order(red, "M a~x C G a - e"),
		f.order(red, "M x~e C G a - e"),
		f.order(blue, "M x/o - a~x"),
	)

	if r := f.outcome(log, "x/o"); r.Kind != ResultMoveFailed {
		t.Fatalf("the attack on the convoy should itself bounce, got %s", r.Kind)
	}
	if r := f.outcome(log, "a"); r.Kind != ResultMoveFailed || r.Reason != ReasonConvoyBroken {
		t.Errorf("got %s (%s), want convoy broken", r.Kind, r.Reason)
	}
	if !log.Has(ResultConvoyBroken, f.pos("a~x")) {
		t.Errorf("expected convoy_broken for a~x: %v", log)
	}
	f.expectOwners("a", red)
	f.expectEmpty("e")
}

func TestConvoyNotBrokenByAlly(t *testing.T) {
	f := convoyFixture(t)
	f.place("x/o", blue)
	mods := &Modifiers{Allies: func(a, b Faction) bool { return true }}

	f.adjudicate(mods,
		f.order(red, "G a - e via convoy"),
		f.order(red, "M a~x C G a - e"),
		f.order(red, "M x~e C G a - e"),
		f.order(blue, "M x/o - a~x"),
	)

	f.expectOwners("e", red)
	f.expectOwners("a~x", red, blue)
}

func TestConvoyWithGapFails(t *testing.T) {
	f := convoyFixture(t)

	log := f.adjudicate(nil,
		f.order(red, "G a - e via convoy"),
		f.order(red, "M a~x C G a - e"),
	)

	if r := f.outcome(log, "a"); r.Reason != ReasonConvoyBroken {
		t.Errorf("got %s (%s), want convoy broken", r.Kind, r.Reason)
	}
	f.expectOwners("a", red)
}

func TestBrokenConvoyMoveCutsNothing(t *testing.T) {
	f := convoyFixture(t)
	f.place("c", red).place("d", blue).place("e", blue)

	// No convoy orders: the move from a is discarded and must not cut e's support.
	f.adjudicate(nil,
		f.order(red, "G a - e via convoy"),
		f.order(red, "G c - d"),
		f.order(blue, "G e S G d H"),
	)

	f.expectOwners("d", blue)
	f.expectOwners("c", red)
	f.expectOwners("a", red)
}

// --- Edges ---

func TestFriendlyEdgeJoin(t *testing.T) {
	f := newFixture(t)
	f.place("a~b", red).place("a/o", red)

	log := f.adjudicate(nil, f.order(red, "M a/o - a~b"))

	if r := f.outcome(log, "a/o"); r.Kind != ResultMoveSucceeded {
		t.Errorf("got %s (%s), want move_succeeded", r.Kind, r.Reason)
	}
	f.expectOwners("a~b", red, red)
	if len(f.b.Dislodged) != 0 {
		t.Error("joining an ally dislodges nothing")
	}
}

func TestEdgeJoinOverCapacityFails(t *testing.T) {
	f := newFixture(t)
	f.place("a~b", red).place("a~b", red).place("b/o", red)

	log := f.adjudicate(nil, f.order(red, "M b/o - a~b"))

	if r := f.outcome(log, "b/o"); r.Reason != ReasonCapacity {
		t.Errorf("got %s (%s), want capacity failure", r.Kind, r.Reason)
	}
	f.expectOwners("a~b", red, red)
}

func TestTwoMoversIntoAlliedEdgeBounce(t *testing.T) {
	f := newFixture(t)
	f.place("a~b", red).place("a/o", red).place("b/o", blue)

	f.adjudicate(nil,
		f.order(red, "M a/o - a~b"),
		f.order(blue, "M b/o - a~b"),
	)

	f.expectOwners("a~b", red)
	f.expectOwners("a/o", red)
	f.expectOwners("b/o", blue)
}

func TestEnemyTakingEdgeDislodgesBothDefenders(t *testing.T) {
	f := newFixture(t)
	f.place("a~b", red).place("a~b", red).place("b/o", blue).place("b~c", blue)

	log := f.adjudicate(nil,
		f.order(blue, "M b/o - a~b"),
		f.order(blue, "M b~c S M b/o - a~b"),
	)

	f.expectOwners("a~b", blue)
	if n := len(log.Filter(ResultDislodged)); n != 2 {
		t.Fatalf("expected two dislodged entries, got %v", log)
	}
	if len(f.b.Dislodged) != 2 {
		t.Fatalf("expected two dislodgement records, got %v", f.b.Dislodged)
	}
	want := []Position{f.pos("a/o"), f.pos("a~x"), f.pos("b~d")}
	for _, d := range f.b.Dislodged {
		if !slices.Equal(d.Options, want) {
			t.Errorf("options = %v, want %v", d.Options, want)
		}
	}
}

func TestEdgeOverflowIsEvicted(t *testing.T) {
	f := newFixture(t)
	f.place("a~b", red).place("a~b", red).place("a~b", red).place("a~x", red).place("a~x", blue)

	log := f.adjudicate(nil)

	overflow := log.Filter(ResultEdgeOverflow)
	if len(overflow) != 2 {
		t.Fatalf("expected two overflow records, got %v", log)
	}
	f.expectOwners("a~b", red, red)
	f.expectOwners("a~x", red)
	if overflow[1].Faction != blue {
		t.Errorf("the non-allied unit should be evicted, got %v", overflow[1])
	}
}

// --- Bookkeeping ---

func TestInvalidOrderIsVoidedAndUnitHolds(t *testing.T) {
	f := newFixture(t)
	f.place("a", red)

	log := f.adjudicate(nil,
		Move(red, f.pos("a"), f.pos("d")),
		Hold(blue, f.pos("c")),
	)

	voids := log.Filter(ResultVoid)
	if len(voids) != 2 {
		t.Fatalf("expected two void records, got %v", log)
	}
	if r := f.outcome(log, "a"); r.Kind != ResultHeld {
		t.Errorf("got %s, want held", r.Kind)
	}
}

func TestSameFactionUnitsOnEdgeBindInOrder(t *testing.T) {
	f := newFixture(t)
	f.place("a~b", red).place("a~b", red)

	f.adjudicate(nil,
		f.order(red, "M a~b - a/o"),
		f.order(red, "M a~b - b/o"),
	)

	f.expectEmpty("a~b")
	f.expectOwners("a/o", red)
	f.expectOwners("b/o", red)
}

func TestAdjudicateClearsPreviousDislodgements(t *testing.T) {
	f := newFixture(t)
	f.place("a", red)
	f.b.Dislodged = []Dislodgement{{Unit: Unit{blue, Ground}, From: f.pos("c")}}

	f.adjudicate(nil)

	if len(f.b.Dislodged) != 0 {
		t.Errorf("stale dislodgements survived: %v", f.b.Dislodged)
	}
}

func TestResultsIndependentOfSubmissionOrder(t *testing.T) {
	build := func() (*fixture, []Order) {
		f := newFixture(t)
		f.place("a", red).place("c", red).place("b", blue).place("d", green).place("a~b", blue)
		return f, []Order{
			f.order(red, "G a - b"),
			f.order(red, "G c S G a - b"),
			f.order(green, "G d - c"),
			f.order(blue, "M a~b - a/o"),
			f.order(blue, "G b H"),
		}
	}

	f1, orders := build()
	log1 := f1.adjudicate(nil, orders...)

	f2, orders := build()
	slices.Reverse(orders)
	log2 := f2.adjudicate(nil, orders...)

	j1, _ := json.Marshal(log1)
	j2, _ := json.Marshal(log2)
	if !bytes.Equal(j1, j2) {
		t.Errorf("log depends on submission order:\n%s\n%s", j1, j2)
	}
	b1, _ := json.Marshal(f1.b)
	b2, _ := json.Marshal(f2.b)
	if !bytes.Equal(b1, b2) {
		t.Errorf("board depends on submission order:\n%s\n%s", b1, b2)
	}
}

func TestBoardRoundTripGivesIdenticalResults(t *testing.T) {
	m := DefaultMap()
	b := NewInitialBoard(m)
	orders, err := ParseOrders(`
terran: G sol - capella
terran: G mars - lyra
terran: M ceres/o - ceres~mira
zenari: G zen - capella
zenari: G altair - lyra
korth:  G korth - arcturus
velari: G velar - castor
`, m)
	if err != nil {
		t.Fatalf("ParseOrders: %v", err)
	}

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Board
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	log1, _ := json.Marshal(Adjudicate(orders, b, m, nil))
	log2, _ := json.Marshal(Adjudicate(orders, &restored, m, nil))
	if !bytes.Equal(log1, log2) {
		t.Errorf("logs differ after round trip:\n%s\n%s", log1, log2)
	}
	after1, _ := json.Marshal(b)
	after2, _ := json.Marshal(&restored)
	if !bytes.Equal(after1, after2) {
		t.Errorf("boards differ after round trip")
	}
}
