package starlane

import (
	"errors"
	"fmt"
	"slices"
)

// BuildOrderType represents a build-phase order.
type BuildOrderType int

const (
	BuildUnit   BuildOrderType = iota // Build a new unit
	DisbandUnit                       // Disband an existing unit
	WaiveBuild                        // Voluntarily skip a build
)

func (t BuildOrderType) String() string {
	switch t {
	case BuildUnit:
		return "build"
	case DisbandUnit:
		return "disband"
	case WaiveBuild:
		return "waive"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t BuildOrderType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *BuildOrderType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "build":
		*t = BuildUnit
	case "disband":
		*t = DisbandUnit
	case "waive":
		*t = WaiveBuild
	default:
		return fmt.Errorf("unknown build order type %q", text)
	}
	return nil
}

// BuildOrder represents an order given during the build/disband phase.
type BuildOrder struct {
	Faction  Faction        `json:"faction"`
	Type     BuildOrderType `json:"type"`
	Kind     UnitKind       `json:"kind"`              // Unit kind to build
	Location Position       `json:"location,omitzero"` // Build site, or unit to disband
}

var (
	ErrNoBuilds     = errors.New("no builds owed")
	ErrNoDisbands   = errors.New("no disbands owed")
	ErrNotBuildSite = errors.New("not a build site")
	ErrOccupied     = errors.New("occupied")
)

// BuildsOwed returns owned supply centers minus units. Positive means the
// faction may build, negative means it must disband.
func BuildsOwed(b *Board, f Faction) int {
	return b.SupplyCenterCount(f) - b.UnitCount(f)
}

// BuildSlots lists the empty positions where a faction may place new units.
type BuildSlots struct {
	Nodes  []Position `json:"nodes"`  // Ground-buildable
	Orbits []Position `json:"orbits"` // Mobile-buildable
}

// Empty reports whether no build location is available.
func (s BuildSlots) Empty() bool { return len(s.Nodes) == 0 && len(s.Orbits) == 0 }

// AvailableBuildLocations returns the empty surface and orbit slots of f's home
// nodes that f currently owns.
func AvailableBuildLocations(b *Board, t *Topology, f Faction) BuildSlots {
	slots := BuildSlots{Nodes: []Position{}, Orbits: []Position{}}
	for _, n := range t.HomeNodes(f) {
		if b.Ownership[n] != f {
			continue
		}
		if p := NodePos(n); !b.Occupied(p) {
			slots.Nodes = append(slots.Nodes, p)
		}
		if p := OrbitPos(n); !b.Occupied(p) {
			slots.Orbits = append(slots.Orbits, p)
		}
	}
	return slots
}

// Build places a new unit of kind for f at p.
func Build(b *Board, t *Topology, f Faction, p Position, kind UnitKind) error {
	if BuildsOwed(b, f) <= 0 {
		return fmt.Errorf("build %s: %w", t.PositionName(p), ErrNoBuilds)
	}
	if !p.Accepts(kind) {
		return fmt.Errorf("build %s at %s: %w", kind, p.Kind, ErrWrongPositionKind)
	}
	if !t.Contains(p) || p.Kind == PosEdge || t.Node(p.A).Home != f {
		return fmt.Errorf("build %s: %w", t.PositionName(p), ErrNotBuildSite)
	}
	if b.Ownership[p.A] != f {
		return fmt.Errorf("build %s: home node not owned: %w", t.PositionName(p), ErrNotBuildSite)
	}
	if b.Occupied(p) {
		return fmt.Errorf("build %s: %w", t.PositionName(p), ErrOccupied)
	}
	b.Place(p, Unit{Owner: f, Kind: kind})
	return nil
}

// Disband removes f's unit at p during the build phase.
func Disband(b *Board, f Faction, p Position) error {
	if BuildsOwed(b, f) >= 0 {
		return fmt.Errorf("disband %s: %w", p, ErrNoDisbands)
	}
	if _, ok := unitOf(b, p, f); !ok {
		return fmt.Errorf("disband %s: %w", p, ErrNoUnit)
	}
	b.Remove(p, f)
	return nil
}

// ValidateBuildOrder reports whether o would be accepted on the current board.
// The board is not changed.
func ValidateBuildOrder(o BuildOrder, b *Board, t *Topology) error {
	switch o.Type {
	case WaiveBuild:
		if BuildsOwed(b, o.Faction) <= 0 {
			return fmt.Errorf("waive: %w", ErrNoBuilds)
		}
		return nil
	case BuildUnit:
		return Build(b.Clone(), t, o.Faction, o.Location, o.Kind)
	case DisbandUnit:
		return Disband(b.Clone(), o.Faction, o.Location)
	}
	return fmt.Errorf("build order type %d: %w", o.Type, ErrUnknownOrder)
}

// UpdateOwnership assigns every supply center to the faction of the ground
// unit standing on it. Unoccupied centers keep their owner. Idempotent.
func UpdateOwnership(b *Board, t *Topology) {
	for _, n := range t.SupplyCenters() {
		if u := b.UnitAt(NodePos(n)); u != nil && u.Kind == Ground {
			b.Ownership[n] = u.Owner
		}
	}
}

// ResolveBuildOrders applies a build phase. Each faction's orders are taken in
// submission order up to the number of adjustments it owes. A faction that
// disbands too few units loses the ones furthest from home (civil disorder).
func ResolveBuildOrders(orders []BuildOrder, b *Board, t *Topology) Log {
	var log Log

	byFaction := make(map[Faction][]BuildOrder)
	for _, o := range orders {
		byFaction[o.Faction] = append(byFaction[o.Faction], o)
	}

	for _, f := range t.Factions() {
		owed := BuildsOwed(b, f)
		submitted := byFaction[f]
		delete(byFaction, f)

		switch {
		case owed > 0:
			resolveBuilds(&log, f, owed, submitted, b, t)
		case owed < 0:
			disbanded := resolveDisbands(&log, f, -owed, submitted, b)
			if disbanded < -owed {
				civilDisorder(&log, f, -owed-disbanded, b, t)
			}
		default:
			for _, o := range submitted {
				log.add(buildResult(o, ResultBuildFailed, ReasonExcess))
			}
		}
	}

	// Orders from factions that have no home on this map.
	var strays []Faction
	for f := range byFaction {
		strays = append(strays, f)
	}
	slices.Sort(strays)
	for _, f := range strays {
		for _, o := range byFaction[f] {
			log.add(buildResult(o, ResultBuildFailed, ReasonInvalid))
		}
	}
	return log
}

func buildResult(o BuildOrder, kind ResultKind, reason Reason) Result {
	return Result{Kind: kind, Faction: o.Faction, Unit: o.Kind, From: o.Location, Reason: reason}
}

func resolveBuilds(log *Log, f Faction, owed int, submitted []BuildOrder, b *Board, t *Topology) {
	used := 0
	for _, o := range submitted {
		switch {
		case o.Type == DisbandUnit:
			log.add(buildResult(o, ResultBuildFailed, ReasonInvalid))
		case used >= owed:
			log.add(buildResult(o, ResultBuildFailed, ReasonExcess))
		case o.Type == WaiveBuild:
			log.add(buildResult(o, ResultWaived, ReasonNone))
			used++
		default:
			if err := Build(b, t, f, o.Location, o.Kind); err != nil {
				log.add(buildResult(o, ResultBuildFailed, ReasonInvalid))
				continue
			}
			log.add(buildResult(o, ResultBuilt, ReasonNone))
			used++
		}
	}
}

func resolveDisbands(log *Log, f Faction, needed int, submitted []BuildOrder, b *Board) int {
	disbanded := 0
	for _, o := range submitted {
		if o.Type != DisbandUnit {
			log.add(buildResult(o, ResultBuildFailed, ReasonInvalid))
			continue
		}
		if disbanded >= needed {
			log.add(buildResult(o, ResultBuildFailed, ReasonExcess))
			continue
		}
		u, ok := unitOf(b, o.Location, f)
		if !ok {
			log.add(buildResult(o, ResultBuildFailed, ReasonInvalid))
			continue
		}
		if err := Disband(b, f, o.Location); err != nil {
			log.add(buildResult(o, ResultBuildFailed, ReasonInvalid))
			continue
		}
		log.add(Result{Kind: ResultDisbanded, Faction: f, Unit: u.Kind, From: o.Location})
		disbanded++
	}
	return disbanded
}

// civilDisorder disbands count of f's units, furthest from home first. Ties go
// to the unit that comes first in canonical order.
func civilDisorder(log *Log, f Faction, count int, b *Board, t *Topology) {
	for range count {
		units := b.UnitsOf(f)
		if len(units) == 0 {
			return
		}
		best, bestDist := units[0], -1
		for _, pu := range units {
			if d := t.distanceToHome(pu.Position, f); d > bestDist {
				best, bestDist = pu, d
			}
		}
		b.Remove(best.Position, f)
		log.add(Result{Kind: ResultDisbanded, Faction: f, Unit: best.Kind, From: best.Position, Reason: ReasonCivilDisorder})
	}
}
