package starlane

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Season represents a game season.
type Season string

const (
	Spring Season = "spring"
	Fall   Season = "fall"
)

// PhaseType represents the type of game phase.
type PhaseType string

const (
	PhaseMovement PhaseType = "movement"
	PhaseRetreat  PhaseType = "retreat"
	PhaseBuild    PhaseType = "build"
)

// Dislodgement records a unit forced out of From, pending retreat or disband.
type Dislodgement struct {
	Unit         Unit       `json:"unit"`
	From         Position   `json:"from"`
	AttackerFrom Position   `json:"attacker_from"`
	Options      []Position `json:"options"`
}

// AllyFunc reports whether two different factions are allied.
type AllyFunc func(a, b Faction) bool

// Board is the mutable, turn-indexed snapshot of a game. A Board must not be
// mutated by two callers at once; adjudication mutates it in place.
type Board struct {
	Year      int
	Season    Season
	Phase     PhaseType
	Ownership map[NodeID]Faction // supply-bearing node -> owner (Neutral if unowned)
	Dislodged []Dislodgement     // valid between adjudication and retreat resolution

	units map[Position][]Unit
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{
		Ownership: make(map[NodeID]Faction),
		units:     make(map[Position][]Unit),
	}
}

// UnitAt returns the first unit at p, or nil if p is empty.
func (b *Board) UnitAt(p Position) *Unit {
	us := b.units[p]
	if len(us) == 0 {
		return nil
	}
	u := us[0]
	return &u
}

// UnitsAt returns a copy of every unit at p (at most two, on an edge).
func (b *Board) UnitsAt(p Position) []Unit {
	return slices.Clone(b.units[p])
}

// Occupied reports whether any unit stands at p.
func (b *Board) Occupied(p Position) bool {
	return len(b.units[p]) > 0
}

// Place puts a unit at p. Edges append; nodes and orbits replace.
func (b *Board) Place(p Position, u Unit) {
	if p.Kind == PosEdge {
		b.units[p] = append(b.units[p], u)
		return
	}
	b.units[p] = []Unit{u}
}

// Remove takes a unit off p and returns it. On an edge it removes the entry
// owned by owner, or the first entry when owner is Neutral or unmatched.
// The key is deleted once empty.
func (b *Board) Remove(p Position, owner Faction) (Unit, bool) {
	us := b.units[p]
	if len(us) == 0 {
		return Unit{}, false
	}
	idx := 0
	if owner != Neutral {
		if i := slices.IndexFunc(us, func(u Unit) bool { return u.Owner == owner }); i >= 0 {
			idx = i
		}
	}
	u := us[idx]
	us = slices.Delete(slices.Clone(us), idx, idx+1)
	if len(us) == 0 {
		delete(b.units, p)
	} else {
		b.units[p] = us
	}
	return u, true
}

// CanAccept reports whether u may be placed at p: the position kind fits the
// unit kind, there is spare capacity, and on an edge any existing occupant is
// the same faction or allied through allies.
func (b *Board) CanAccept(p Position, u Unit, allies AllyFunc) bool {
	if !p.Accepts(u.Kind) {
		return false
	}
	us := b.units[p]
	if len(us) >= p.Capacity() {
		return false
	}
	for _, other := range us {
		if !allied(other.Owner, u.Owner, allies) {
			return false
		}
	}
	return true
}

func allied(a, b Faction, allies AllyFunc) bool {
	if a == b {
		return true
	}
	return allies != nil && allies(a, b) && allies(b, a)
}

// PlacedUnit pairs a unit with its position.
type PlacedUnit struct {
	Position Position `json:"position"`
	Unit
}

// Units returns every unit on the board in canonical position order.
func (b *Board) Units() []PlacedUnit {
	var out []PlacedUnit
	for _, p := range b.Positions() {
		for _, u := range b.units[p] {
			out = append(out, PlacedUnit{Position: p, Unit: u})
		}
	}
	return out
}

// Positions returns every occupied position in canonical order.
func (b *Board) Positions() []Position {
	ps := make([]Position, 0, len(b.units))
	for p := range b.units {
		ps = append(ps, p)
	}
	slices.SortFunc(ps, comparePositions)
	return ps
}

func comparePositions(p, q Position) int {
	if p.Less(q) {
		return -1
	}
	if q.Less(p) {
		return 1
	}
	return 0
}

// UnitsOf returns all units belonging to the given faction.
func (b *Board) UnitsOf(f Faction) []PlacedUnit {
	var out []PlacedUnit
	for _, pu := range b.Units() {
		if pu.Owner == f {
			out = append(out, pu)
		}
	}
	return out
}

// UnitCount returns the number of units belonging to the given faction.
func (b *Board) UnitCount(f Faction) int {
	count := 0
	for _, us := range b.units {
		for _, u := range us {
			if u.Owner == f {
				count++
			}
		}
	}
	return count
}

// SupplyCenterCount returns the number of supply centers owned by the given faction.
func (b *Board) SupplyCenterCount(f Faction) int {
	count := 0
	for _, owner := range b.Ownership {
		if owner == f {
			count++
		}
	}
	return count
}

// IsEliminated reports whether a faction has neither units nor supply centers.
func (b *Board) IsEliminated(f Faction) bool {
	return b.UnitCount(f) == 0 && b.SupplyCenterCount(f) == 0
}

// DislodgedAt returns the pending dislodgement of owner's unit at from.
func (b *Board) DislodgedAt(from Position, owner Faction) (*Dislodgement, int) {
	for i := range b.Dislodged {
		d := &b.Dislodged[i]
		if d.From == from && (owner == Neutral || d.Unit.Owner == owner) {
			return d, i
		}
	}
	return nil, -1
}

// snapshot returns an independent copy of the unit placements.
func (b *Board) snapshot() map[Position][]Unit {
	c := make(map[Position][]Unit, len(b.units))
	for p, us := range b.units {
		c[p] = slices.Clone(us)
	}
	return c
}

// Clone returns a deep copy. Mutations to the clone do not affect the
// original, which speculative searches rely on.
func (b *Board) Clone() *Board {
	c := &Board{
		Year:      b.Year,
		Season:    b.Season,
		Phase:     b.Phase,
		Ownership: make(map[NodeID]Faction, len(b.Ownership)),
		units:     b.snapshot(),
	}
	for k, v := range b.Ownership {
		c.Ownership[k] = v
	}
	if b.Dislodged != nil {
		c.Dislodged = make([]Dislodgement, len(b.Dislodged))
		for i, d := range b.Dislodged {
			d.Options = slices.Clone(d.Options)
			c.Dislodged[i] = d
		}
	}
	return c
}

type ownershipEntry struct {
	Node  NodeID  `json:"node"`
	Owner Faction `json:"owner"`
}

type boardJSON struct {
	Year      int              `json:"year"`
	Season    Season           `json:"season"`
	Phase     PhaseType        `json:"phase"`
	Units     []PlacedUnit     `json:"units"`
	Ownership []ownershipEntry `json:"ownership"`
	Dislodged []Dislodgement   `json:"dislodged,omitempty"`
}

// MarshalJSON encodes the board with units and ownership in canonical order,
// so equal boards always encode to identical bytes.
func (b *Board) MarshalJSON() ([]byte, error) {
	own := make([]ownershipEntry, 0, len(b.Ownership))
	for n, f := range b.Ownership {
		own = append(own, ownershipEntry{Node: n, Owner: f})
	}
	slices.SortFunc(own, func(x, y ownershipEntry) int { return int(x.Node) - int(y.Node) })
	units := b.Units()
	if units == nil {
		units = []PlacedUnit{}
	}
	return json.Marshal(boardJSON{
		Year:      b.Year,
		Season:    b.Season,
		Phase:     b.Phase,
		Units:     units,
		Ownership: own,
		Dislodged: b.Dislodged,
	})
}

// UnmarshalJSON reconstructs a board encoded by MarshalJSON.
func (b *Board) UnmarshalJSON(data []byte) error {
	var raw boardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode board: %w", err)
	}
	nb := NewBoard()
	nb.Year, nb.Season, nb.Phase = raw.Year, raw.Season, raw.Phase
	for _, pu := range raw.Units {
		if !pu.Position.Accepts(pu.Kind) {
			return fmt.Errorf("decode board: %s unit at %s position", pu.Kind, pu.Position.Kind)
		}
		nb.Place(pu.Position, pu.Unit)
	}
	for _, o := range raw.Ownership {
		nb.Ownership[o.Node] = o.Owner
	}
	nb.Dislodged = raw.Dislodged
	*b = *nb
	return nil
}
