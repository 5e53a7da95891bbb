package starlane

import (
	"slices"
	"strings"
)

// Adjudicate resolves one movement phase. Every order is resolved against the
// same pre-turn state and the outcome is applied to b in place.
//
// Orders are expected to have passed ValidateOrder. Any that fail it again here
// are voided and their units hold; units without an order hold implicitly.
// Adjudicate never fails: bounces, broken convoys and swaps are ordinary
// entries in the returned log.
func Adjudicate(orders []Order, b *Board, t *Topology, mods *Modifiers) Log {
	r := newResolver(orders, b, t, mods)
	r.checkConvoys()
	r.computeStrengths()
	r.resolveMoves()
	r.apply()
	r.report()
	r.enforceEdgeCapacity()
	return r.log
}

// entry is one unit and the order bound to it for this turn.
type entry struct {
	at    Position
	unit  Unit
	order Order

	strength     int
	failed       bool
	reason       Reason
	cut          bool // support only
	convoyBroken bool // convoy only
	dislodged    bool
	attacker     Position // origin of the move that dislodged this unit
}

func (e *entry) isMove() bool { return e.order.Type == OrderMove }

// moving reports whether the unit is still expected to leave its position.
func (e *entry) moving() bool { return e.isMove() && !e.failed }

func (e *entry) fail(reason Reason) {
	if !e.failed {
		e.failed, e.reason = true, reason
	}
}

type resolver struct {
	b      *Board
	t      *Topology
	mods   *Modifiers
	allies AllyFunc
	before map[Position][]Unit

	entries  []*entry              // canonical order: position, then faction
	at       map[Position][]*entry // entries by starting position
	byTarget map[Position][]*entry // surviving moves by destination
	targets  []Position            // keys of byTarget, sorted
	winners  map[Position]*entry   // unique strongest mover per destination
	log      Log
}

func newResolver(orders []Order, b *Board, t *Topology, mods *Modifiers) *resolver {
	b.Dislodged = nil
	r := &resolver{
		b:        b,
		t:        t,
		mods:     mods,
		allies:   mods.allyFunc(),
		before:   b.snapshot(),
		at:       make(map[Position][]*entry),
		byTarget: make(map[Position][]*entry),
		winners:  make(map[Position]*entry),
	}
	r.bind(orders)
	return r
}

// bind pairs each unit with the first unused order addressed to its location
// by its owner. Same-faction units sharing a lane take orders in submission
// order.
func (r *resolver) bind(orders []Order) {
	type slot struct {
		at Position
		f  Faction
	}
	pending := make(map[slot][]Order)
	for _, o := range orders {
		k := slot{o.Location, o.Faction}
		pending[k] = append(pending[k], o)
	}

	for _, p := range r.b.Positions() {
		units := slices.Clone(r.b.units[p])
		slices.SortStableFunc(units, func(x, y Unit) int {
			return strings.Compare(string(x.Owner), string(y.Owner))
		})
		for _, u := range units {
			e := &entry{at: p, unit: u, order: Hold(u.Owner, p)}
			k := slot{p, u.Owner}
			if queue := pending[k]; len(queue) > 0 {
				o := queue[0]
				pending[k] = queue[1:]
				if err := ValidateOrder(o, r.b, r.t, r.mods); err != nil {
					r.log.add(Result{Kind: ResultVoid, Faction: o.Faction, Unit: u.Kind, From: p, To: o.Target, Reason: ReasonInvalid})
				} else {
					e.order = o
				}
			}
			r.entries = append(r.entries, e)
			r.at[p] = append(r.at[p], e)
		}
	}

	// Orders left over address units that do not exist.
	for _, o := range orders {
		k := slot{o.Location, o.Faction}
		queue := pending[k]
		if len(queue) == 0 || queue[0] != o {
			continue
		}
		pending[k] = queue[1:]
		reason := ReasonInvalid
		if _, ok := unitOf(r.b, o.Location, o.Faction); ok {
			reason = ReasonExcess
		}
		r.log.add(Result{Kind: ResultVoid, Faction: o.Faction, From: o.Location, To: o.Target, Reason: reason})
	}
}

func (r *resolver) allied(a, b Faction) bool {
	return allied(a, b, r.allies)
}

// checkConvoys discards convoyed moves whose chain does not connect. A lane
// counts toward the chain only if a convoy order claims this exact move and no
// enemy of the convoying unit moves against it, whatever that attack's outcome.
func (r *resolver) checkConvoys() {
	for _, m := range r.entries {
		if !m.isMove() || !m.order.ViaConvoy {
			continue
		}
		claimed := make(map[Position]bool)
		broken := make(map[Position]bool)
		for _, c := range r.entries {
			if c.order.Type != OrderConvoy || c.order.AuxFrom != m.at || c.order.AuxTo != m.order.Target {
				continue
			}
			claimed[c.at] = true
			if r.attackedByEnemy(c) {
				c.convoyBroken = true
				broken[c.at] = true
			}
		}
		for e := range broken {
			delete(claimed, e)
		}
		if !chainConnects(r.t, claimed, m.at.A, m.order.Target.A) {
			m.fail(ReasonConvoyBroken)
		}
	}
}

func (r *resolver) attackedByEnemy(c *entry) bool {
	for _, m := range r.entries {
		if m.isMove() && m.order.Target == c.at && !r.allied(m.unit.Owner, c.unit.Owner) {
			return true
		}
	}
	return false
}

// computeStrengths marks cut supports and sums the strength of every surviving
// move. Discarded convoy moves neither cut nor count.
func (r *resolver) computeStrengths() {
	for _, s := range r.entries {
		if s.order.Type != OrderSupport {
			continue
		}
		for _, m := range r.entries {
			if m.moving() && m.order.Target == s.at && m.at != s.order.AuxTo {
				s.cut = true
				break
			}
		}
	}

	for _, m := range r.entries {
		if !m.moving() {
			continue
		}
		m.strength = 1 + r.mods.attackBonus(m.unit.Owner) + r.supportFor(m.at, m.order.Target)
		d := m.order.Target
		if _, ok := r.byTarget[d]; !ok {
			r.targets = append(r.targets, d)
		}
		r.byTarget[d] = append(r.byTarget[d], m)
	}
	slices.SortFunc(r.targets, comparePositions)
}

// supportFor counts live supports for the move from -> to. A zero from counts
// support-holds of to.
func (r *resolver) supportFor(from, to Position) int {
	n := 0
	for _, s := range r.entries {
		if s.order.Type != OrderSupport || s.cut {
			continue
		}
		if s.order.AuxFrom != from || s.order.AuxTo != to {
			continue
		}
		if r.mods.isSabotaged(s.unit.Owner, s.at) {
			continue
		}
		n++
	}
	return n
}

// resolveMoves settles every contest. Failures only ever accumulate: a failed
// mover turns back into a holder at its origin, which can only strengthen the
// defense there, so repeating until nothing changes terminates.
func (r *resolver) resolveMoves() {
	for _, d := range r.targets {
		group := r.byTarget[d]
		best, tied := group[0], false
		for _, m := range group[1:] {
			switch {
			case m.strength > best.strength:
				best, tied = m, false
			case m.strength == best.strength:
				tied = true
			}
		}
		for _, m := range group {
			if tied || m != best {
				m.fail(ReasonBounced)
			}
		}
		if !tied {
			r.winners[d] = best
		}
	}

	for {
		for r.contestPass() {
		}
		if !r.failSwaps() {
			return
		}
	}
}

func (r *resolver) contestPass() bool {
	changed := false
	for _, d := range r.targets {
		w := r.winners[d]
		if w == nil || w.failed {
			continue
		}
		if reason, ok := r.contest(d, w); !ok {
			w.fail(reason)
			changed = true
		}
	}
	return changed
}

// staying returns the units at p that are not leaving it.
func (r *resolver) staying(p Position) []*entry {
	var out []*entry
	for _, o := range r.at[p] {
		if !o.moving() {
			out = append(out, o)
		}
	}
	return out
}

// contest decides whether the strongest mover w takes d given who currently
// stays there.
func (r *resolver) contest(d Position, w *entry) (Reason, bool) {
	staying := r.staying(d)
	if len(staying) == 0 {
		if w.strength > 0 {
			return ReasonNone, true
		}
		return ReasonBounced, false
	}

	friendly := 0
	for _, o := range staying {
		if r.allied(o.unit.Owner, w.unit.Owner) {
			friendly++
		}
	}
	if friendly > 0 {
		if d.Kind == PosEdge && friendly == len(staying) && len(r.byTarget[d]) == 1 {
			if len(staying) < d.Capacity() {
				return ReasonNone, true
			}
			return ReasonCapacity, false
		}
		return ReasonFriendlyOccupied, false
	}

	if w.strength <= r.defense(d, staying) {
		return ReasonBounced, false
	}
	if r.mods.isProtected(d) {
		return ReasonImmune, false
	}
	return ReasonNone, true
}

// defense is the hold strength of the units staying at d. Allied units
// sharing a lane defend with the best bonus among them.
func (r *resolver) defense(d Position, staying []*entry) int {
	holder := staying[0].unit
	def := 1
	if d.Kind == PosNode && holder.Kind == Ground && !r.orbitCovered(d.A, holder.Owner) {
		def--
	}
	bonus := r.mods.defenseBonus(holder.Owner)
	for _, o := range staying[1:] {
		bonus = max(bonus, r.mods.defenseBonus(o.unit.Owner))
	}
	def += bonus
	def += r.supportFor(Position{}, d)
	return max(def, 0)
}

// orbitCovered reports whether a friendly mobile unit sat in n's orbit at the
// start of the turn.
func (r *resolver) orbitCovered(n NodeID, f Faction) bool {
	for _, u := range r.before[OrbitPos(n)] {
		if u.Kind == Mobile && r.allied(u.Owner, f) {
			return true
		}
	}
	return false
}

// failSwaps fails both halves of every head-to-head exchange still standing.
func (r *resolver) failSwaps() bool {
	found := false
	for _, m := range r.entries {
		if !m.moving() {
			continue
		}
		for _, o := range r.at[m.order.Target] {
			if o != m && o.moving() && o.order.Target == m.at {
				m.fail(ReasonSwap)
				o.fail(ReasonSwap)
				found = true
				break
			}
		}
	}
	return found
}

// apply lifts every successful mover, removes the units they dislodge and only
// then places the movers, so no outcome depends on application order.
func (r *resolver) apply() {
	var movers []*entry
	for _, e := range r.entries {
		if e.moving() {
			movers = append(movers, e)
		}
	}

	picked := make([]Unit, len(movers))
	for i, m := range movers {
		picked[i], _ = r.b.Remove(m.at, m.unit.Owner)
	}

	for _, m := range movers {
		for _, o := range r.staying(m.order.Target) {
			if r.allied(o.unit.Owner, m.unit.Owner) {
				continue
			}
			o.dislodged = true
			o.attacker = m.at
			r.b.Remove(o.at, o.unit.Owner)
		}
	}

	for i, m := range movers {
		r.b.Place(m.order.Target, picked[i])
	}

	for _, e := range r.entries {
		if !e.dislodged {
			continue
		}
		r.b.Dislodged = append(r.b.Dislodged, Dislodgement{
			Unit:         e.unit,
			From:         e.at,
			AttackerFrom: e.attacker,
			Options:      r.retreatOptions(e),
		})
	}
}

// retreatOptions lists where a dislodged unit could go, evaluated against the
// board after all moves have landed.
func (r *resolver) retreatOptions(e *entry) []Position {
	opts := []Position{}
	for _, p := range r.t.ValidDestinations(e.at, e.unit.Kind) {
		if p == e.attacker || !r.b.CanAccept(p, e.unit, r.allies) {
			continue
		}
		opts = append(opts, p)
	}
	return opts
}

func (r *resolver) report() {
	for _, e := range r.entries {
		base := Result{Faction: e.unit.Owner, Unit: e.unit.Kind, From: e.at}
		switch {
		case e.isMove() && e.failed:
			res := base
			res.Kind, res.To, res.Reason = ResultMoveFailed, e.order.Target, e.reason
			r.log.add(res)
			if e.reason == ReasonImmune {
				for _, o := range r.staying(e.order.Target) {
					r.log.add(Result{Kind: ResultImmunityInvoked, Faction: o.unit.Owner, Unit: o.unit.Kind, From: o.at, To: e.at, Reason: ReasonImmune})
				}
			}
		case e.isMove():
			res := base
			res.Kind, res.To = ResultMoveSucceeded, e.order.Target
			r.log.add(res)
		case e.cut:
			res := base
			res.Kind, res.To = ResultSupportCut, e.order.AuxTo
			r.log.add(res)
		case e.convoyBroken:
			res := base
			res.Kind, res.To, res.Reason = ResultConvoyBroken, e.order.AuxTo, ReasonConvoyBroken
			r.log.add(res)
		case !e.dislodged:
			res := base
			res.Kind = ResultHeld
			r.log.add(res)
		}
		if e.dislodged {
			res := base
			res.Kind, res.To = ResultDislodged, e.attacker
			r.log.add(res)
		}
	}
}

// enforceEdgeCapacity evicts units beyond a lane's capacity, and any unit not
// allied with those already kept there. Adjudication should never produce such
// a lane; the pass keeps a corrupted board playable.
func (r *resolver) enforceEdgeCapacity() {
	for _, p := range r.b.Positions() {
		if p.Kind != PosEdge {
			continue
		}
		us := r.b.units[p]
		kept := make([]Unit, 0, len(us))
		for _, u := range us {
			fits := len(kept) < p.Capacity()
			for _, k := range kept {
				if !r.allied(k.Owner, u.Owner) {
					fits = false
				}
			}
			if fits {
				kept = append(kept, u)
				continue
			}
			r.log.add(Result{Kind: ResultEdgeOverflow, Faction: u.Owner, Unit: u.Kind, From: p, Reason: ReasonCapacity})
		}
		if len(kept) < len(us) {
			r.b.units[p] = kept
		}
	}
}
