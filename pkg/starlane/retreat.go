package starlane

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotRetreatOption is returned for a retreat to a position the unit was not offered.
var ErrNotRetreatOption = errors.New("not a retreat option")

// RetreatOrder directs one dislodged unit during the retreat phase.
// A zero To disbands the unit.
type RetreatOrder struct {
	Faction Faction  `json:"faction"`
	From    Position `json:"from"`
	To      Position `json:"to,omitzero"`
}

// IsDisband reports whether the order gives the unit up instead of moving it.
func (o RetreatOrder) IsDisband() bool { return o.To.IsZero() }

// ValidateRetreatOrder checks a retreat order against the pending
// dislodgements without changing the board. It cannot see conflicts with other
// retreats; those are settled by ResolveRetreats.
func ValidateRetreatOrder(o RetreatOrder, b *Board) error {
	d, _ := b.DislodgedAt(o.From, o.Faction)
	if d == nil {
		return fmt.Errorf("retreat from %s: %w", o.From, ErrNoUnit)
	}
	if !o.IsDisband() && !slices.Contains(d.Options, o.To) {
		return fmt.Errorf("retreat %s -> %s: %w", o.From, o.To, ErrNotRetreatOption)
	}
	return nil
}

// AttemptRetreat moves owner's unit dislodged from `from` to `to`. It succeeds
// only if `to` is one of the options recorded at dislodgement and the board can
// still accept the unit there, since an earlier retreat this phase may have
// taken the spot. On success the dislodgement record is cleared; on failure it
// is left for the caller to disband.
func AttemptRetreat(b *Board, mods *Modifiers, owner Faction, from, to Position) Result {
	d, idx := b.DislodgedAt(from, owner)
	if d == nil {
		return Result{Kind: ResultRetreatFailed, Faction: owner, From: from, To: to, Reason: ReasonNoDislodgement}
	}
	res := Result{Faction: owner, Unit: d.Unit.Kind, From: from, To: to}
	switch {
	case len(d.Options) == 0:
		res.Kind, res.Reason = ResultRetreatFailed, ReasonNoOptions
	case !slices.Contains(d.Options, to):
		res.Kind, res.Reason = ResultRetreatFailed, ReasonNotAnOption
	case !b.CanAccept(to, d.Unit, mods.allyFunc()):
		res.Kind, res.Reason = ResultRetreatFailed, ReasonOccupied
	default:
		b.Place(to, d.Unit)
		b.Dislodged = slices.Delete(b.Dislodged, idx, idx+1)
		res.Kind = ResultRetreatSucceeded
	}
	return res
}

// DisbandDislodged removes owner's dislodged unit at from without placing it.
func DisbandDislodged(b *Board, owner Faction, from Position) Result {
	d, idx := b.DislodgedAt(from, owner)
	if d == nil {
		return Result{Kind: ResultRetreatFailed, Faction: owner, From: from, Reason: ReasonNoDislodgement}
	}
	res := Result{Kind: ResultDisbanded, Faction: owner, Unit: d.Unit.Kind, From: from}
	b.Dislodged = slices.Delete(b.Dislodged, idx, idx+1)
	return res
}

// ResolveRetreats applies a whole retreat phase. Dislodged units are handled
// in canonical order. Units that were given no order, ordered to disband, or
// whose retreat fails are disbanded. Units retreating to the same position are
// all disbanded unless they fit there together, which only a lane shared by
// one faction or its allies allows. Afterwards no dislodgement remains on the
// board.
func ResolveRetreats(orders []RetreatOrder, b *Board, mods *Modifiers) Log {
	var log Log

	type key struct {
		from Position
		f    Faction
	}
	pending := slices.Clone(b.Dislodged)
	slices.SortStableFunc(pending, func(x, y Dislodgement) int {
		if c := comparePositions(x.From, y.From); c != 0 {
			return c
		}
		return strings.Compare(string(x.Unit.Owner), string(y.Unit.Owner))
	})
	waiting := make(map[key]int)
	for _, d := range pending {
		waiting[key{d.From, d.Unit.Owner}]++
	}

	// Bind orders to dislodgements in submission order; the rest are void.
	chosen := make(map[key][]RetreatOrder)
	for _, o := range orders {
		k := key{o.From, o.Faction}
		if len(chosen[k]) >= waiting[k] {
			reason := ReasonNoDislodgement
			if waiting[k] > 0 {
				reason = ReasonExcess
			}
			log.add(Result{Kind: ResultRetreatFailed, Faction: o.Faction, From: o.From, To: o.To, Reason: reason})
			continue
		}
		chosen[k] = append(chosen[k], o)
	}

	heading := make(map[Position][]Faction)
	for _, os := range chosen {
		for _, o := range os {
			if !o.IsDisband() {
				heading[o.To] = append(heading[o.To], o.Faction)
			}
		}
	}
	contested := make(map[Position]bool)
	for to, owners := range heading {
		contested[to] = !canShare(b, mods, to, owners)
	}

	for _, d := range pending {
		k := key{d.From, d.Unit.Owner}
		queue := chosen[k]
		if len(queue) == 0 {
			log.add(DisbandDislodged(b, d.Unit.Owner, d.From))
			continue
		}
		o := queue[0]
		chosen[k] = queue[1:]

		if o.IsDisband() {
			log.add(DisbandDislodged(b, d.Unit.Owner, d.From))
			continue
		}
		if contested[o.To] {
			log.add(Result{Kind: ResultRetreatFailed, Faction: o.Faction, Unit: d.Unit.Kind, From: o.From, To: o.To, Reason: ReasonBounced})
			log.add(DisbandDislodged(b, d.Unit.Owner, d.From))
			continue
		}
		res := AttemptRetreat(b, mods, o.Faction, o.From, o.To)
		log.add(res)
		if res.Kind != ResultRetreatSucceeded {
			log.add(DisbandDislodged(b, d.Unit.Owner, d.From))
		}
	}

	b.Dislodged = nil
	return log
}

// canShare reports whether retreats by owners can all land at to alongside
// whatever already stands there.
func canShare(b *Board, mods *Modifiers, to Position, owners []Faction) bool {
	if len(owners) == 1 {
		return true
	}
	if to.Kind != PosEdge || len(b.UnitsAt(to))+len(owners) > to.Capacity() {
		return false
	}
	for i, a := range owners {
		for _, c := range owners[i+1:] {
			if !mods.Allied(a, c) {
				return false
			}
		}
	}
	return true
}
