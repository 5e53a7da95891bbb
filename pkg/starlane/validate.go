package starlane

import (
	"errors"
	"fmt"
)

// Rejection reasons. A *ValidationError wraps exactly one of these.
var (
	ErrNoUnit            = errors.New("no unit")
	ErrFrozen            = errors.New("frozen")
	ErrNotAdjacent       = errors.New("not adjacent")
	ErrWrongPositionKind = errors.New("wrong position kind")
	ErrBadSupport        = errors.New("malformed support")
	ErrBadConvoy         = errors.New("malformed convoy")
	ErrUnknownOrder      = errors.New("unknown order type")
)

// ValidationError describes why an order is invalid.
type ValidationError struct {
	Order   Order
	Reason  error
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.Order.Describe(), e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func reject(o Order, reason error, format string, args ...any) error {
	return &ValidationError{Order: o, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ValidateOrder checks whether an order is legal given the board, the map and
// the phase's modifiers. It never mutates the board and is safe to call per
// order in any sequence. Returns nil if valid, or a *ValidationError.
func ValidateOrder(o Order, b *Board, t *Topology, mods *Modifiers) error {
	if !t.Contains(o.Location) {
		return reject(o, ErrNoUnit, "no such position %s", o.Location)
	}
	unit, ok := unitOf(b, o.Location, o.Faction)
	if !ok {
		if other := b.UnitAt(o.Location); other != nil {
			return reject(o, ErrNoUnit, "unit at %s belongs to %s, not %s",
				t.PositionName(o.Location), other.Owner, o.Faction)
		}
		return reject(o, ErrNoUnit, "no unit at %s", t.PositionName(o.Location))
	}
	if mods.isFrozen(o.Location) {
		return reject(o, ErrFrozen, "%s is frozen", t.PositionName(o.Location))
	}

	switch o.Type {
	case OrderHold:
		return nil
	case OrderMove:
		if mods.isFrozen(o.Target) {
			return reject(o, ErrFrozen, "%s is frozen", t.PositionName(o.Target))
		}
		return validateMove(o, unit, b, t)
	case OrderSupport:
		return validateSupport(o, unit, t)
	case OrderConvoy:
		return validateConvoy(o, unit, t)
	default:
		return reject(o, ErrUnknownOrder, "order type %d", int(o.Type))
	}
}

func unitOf(b *Board, at Position, f Faction) (Unit, bool) {
	for _, u := range b.units[at] {
		if u.Owner == f {
			return u, true
		}
	}
	return Unit{}, false
}

func validateMove(o Order, u Unit, b *Board, t *Topology) error {
	if !t.Contains(o.Target) {
		return reject(o, ErrNotAdjacent, "no such position %s", o.Target)
	}
	if !o.Target.Accepts(u.Kind) {
		return reject(o, ErrWrongPositionKind, "%s unit cannot occupy %s position %s",
			u.Kind, o.Target.Kind, t.PositionName(o.Target))
	}
	if o.ViaConvoy {
		if u.Kind != Ground {
			return reject(o, ErrBadConvoy, "only ground units can be convoyed")
		}
		if o.Target == o.Location || !canBeConvoyed(o.Location, o.Target, b, t) {
			return reject(o, ErrNotAdjacent, "no convoy route from %s to %s",
				t.PositionName(o.Location), t.PositionName(o.Target))
		}
		return nil
	}
	if !t.IsAdjacent(o.Location, o.Target, u.Kind) {
		return reject(o, ErrNotAdjacent, "cannot move from %s to %s",
			t.PositionName(o.Location), t.PositionName(o.Target))
	}
	return nil
}

func validateSupport(o Order, u Unit, t *Topology) error {
	if o.AuxTo.IsZero() {
		return reject(o, ErrBadSupport, "support has no target")
	}
	if !o.AuxFrom.IsZero() && o.AuxFrom == o.AuxTo {
		return reject(o, ErrBadSupport, "supported move goes nowhere")
	}
	if o.AuxTo == o.Location {
		return reject(o, ErrBadSupport, "unit cannot support itself")
	}
	if !t.CanSupport(o.Location, o.AuxTo, u.Kind) {
		return reject(o, ErrBadSupport, "cannot support into %s from %s",
			t.PositionName(o.AuxTo), t.PositionName(o.Location))
	}
	return nil
}

func validateConvoy(o Order, u Unit, t *Topology) error {
	if u.Kind != Mobile {
		return reject(o, ErrBadConvoy, "only mobile units can convoy")
	}
	if o.Location.Kind != PosEdge {
		return reject(o, ErrBadConvoy, "convoying unit must be on a lane")
	}
	if o.AuxFrom.Kind != PosNode || o.AuxTo.Kind != PosNode || o.AuxFrom == o.AuxTo {
		return reject(o, ErrBadConvoy, "convoy must carry between two nodes")
	}
	if !t.Contains(o.AuxFrom) || !t.Contains(o.AuxTo) {
		return reject(o, ErrBadConvoy, "convoy endpoints are not on the map")
	}
	return nil
}

// ValidateAndDefaultOrders filters submitted orders down to the legal ones.
// Invalid orders, and orders beyond the number of units a faction has at a
// location, are dropped and reported as void; their units fall back to the
// adjudicator's implicit hold.
func ValidateAndDefaultOrders(orders []Order, b *Board, t *Topology, mods *Modifiers) ([]Order, Log) {
	type slot struct {
		at Position
		f  Faction
	}
	used := make(map[slot]int)
	var valid []Order
	var voids Log

	for _, o := range orders {
		if err := ValidateOrder(o, b, t, mods); err != nil {
			voids.add(Result{Kind: ResultVoid, Faction: o.Faction, From: o.Location, To: o.Target, Reason: ReasonInvalid})
			continue
		}
		k := slot{o.Location, o.Faction}
		owned := 0
		for _, u := range b.units[o.Location] {
			if u.Owner == o.Faction {
				owned++
			}
		}
		if used[k] >= owned {
			voids.add(Result{Kind: ResultVoid, Faction: o.Faction, From: o.Location, To: o.Target, Reason: ReasonExcess})
			continue
		}
		used[k]++
		valid = append(valid, o)
	}
	return valid, voids
}
