package starlane

import (
	"math/rand"
	"slices"
	"testing"
)

// FuzzAdjudicate checks board invariants after random movement and retreat
// phases on the default map.
func FuzzAdjudicate(f *testing.F) {
	f.Add(int64(42))
	f.Add(int64(123456))
	f.Add(int64(0))

	f.Fuzz(func(t *testing.T, seed int64) {
		rng := rand.New(rand.NewSource(seed))
		m := DefaultMap()
		b := NewInitialBoard(m)

		for turn := 0; turn < 6; turn++ {
			units := b.Units()
			var orders []Order
			for _, pu := range units {
				orders = append(orders, randomOrder(rng, pu, units, m))
			}
			rng.Shuffle(len(orders), func(i, j int) { orders[i], orders[j] = orders[j], orders[i] })

			log := Adjudicate(orders, b, m, nil)
			overflow := len(log.Filter(ResultEdgeOverflow))
			if got := len(b.Units()) + len(b.Dislodged) + overflow; got != len(units) {
				t.Fatalf("turn %d: %d units before, %d after", turn, len(units), got)
			}
			for _, d := range b.Dislodged {
				if slices.Contains(d.Options, d.AttackerFrom) {
					t.Fatalf("turn %d: retreat options of %v include the attacker origin", turn, d.From)
				}
			}
			checkOccupancy(t, b)

			var retreats []RetreatOrder
			for _, d := range b.Dislodged {
				o := RetreatOrder{Faction: d.Unit.Owner, From: d.From}
				if len(d.Options) > 0 && rng.Intn(4) > 0 {
					o.To = d.Options[rng.Intn(len(d.Options))]
				}
				retreats = append(retreats, o)
			}
			ResolveRetreats(retreats, b, nil)
			if len(b.Dislodged) != 0 {
				t.Fatalf("turn %d: dislodgements survived the retreat phase", turn)
			}
			checkOccupancy(t, b)
		}
	})
}

func checkOccupancy(t *testing.T, b *Board) {
	t.Helper()
	for _, p := range b.Positions() {
		us := b.UnitsAt(p)
		limit := 1
		if p.Kind == PosEdge {
			limit = 2
		}
		if len(us) > limit {
			t.Fatalf("%v holds %d units", p, len(us))
		}
		for _, u := range us {
			if !p.Accepts(u.Kind) {
				t.Fatalf("%s unit at %v", u.Kind, p)
			}
			if u.Owner != us[0].Owner {
				t.Fatalf("hostile units share %v", p)
			}
		}
	}
}

func randomOrder(rng *rand.Rand, pu PlacedUnit, units []PlacedUnit, m *Topology) Order {
	at, f := pu.Position, pu.Owner
	dests := m.ValidDestinations(at, pu.Kind)
	pick := func(ps []Position) Position { return ps[rng.Intn(len(ps))] }

	switch rng.Intn(5) {
	case 1:
		if len(dests) > 0 {
			return Move(f, at, pick(dests))
		}
	case 2:
		other := units[rng.Intn(len(units))]
		if other.Position == at || !m.CanSupport(at, other.Position, pu.Kind) {
			break
		}
		if rng.Intn(2) == 0 {
			return SupportHold(f, at, other.Position)
		}
		if next := m.ValidDestinations(other.Position, other.Kind); len(next) > 0 {
			return SupportMove(f, at, other.Position, pick(next))
		}
	case 3:
		node := NodePos(NodeID(rng.Intn(m.NodeCount())))
		if pu.Kind == Ground {
			return ConvoyedMove(f, at, node)
		}
		if at.Kind == PosEdge {
			return Convoy(f, at, NodePos(at.A), node)
		}
	case 4:
		// Deliberately bogus target; must be voided.
		return Move(f, at, NodePos(NodeID(rng.Intn(m.NodeCount()))))
	}
	return Hold(f, at)
}
