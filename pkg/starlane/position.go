package starlane

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID is the interned handle of a map node, assigned in declaration order
// when a Topology is built.
type NodeID uint16

// PositionKind classifies a position as a node, a node's orbit, or a lane edge.
type PositionKind uint8

const (
	PosNone  PositionKind = iota // Absent position (zero value)
	PosNode                      // Planet surface; ground units only
	PosOrbit                     // Orbit paired with a node; mobile units only
	PosEdge                      // Lane between two nodes; up to two mobile units
)

func (k PositionKind) String() string {
	switch k {
	case PosNode:
		return "node"
	case PosOrbit:
		return "orbit"
	case PosEdge:
		return "edge"
	default:
		return "none"
	}
}

// Position identifies a single place a unit can stand. Node and orbit
// positions use A only; edge positions hold both endpoints with A < B.
type Position struct {
	Kind PositionKind
	A    NodeID
	B    NodeID
}

// NodePos returns the surface position of node n.
func NodePos(n NodeID) Position { return Position{Kind: PosNode, A: n} }

// OrbitPos returns the orbit position paired with node n.
func OrbitPos(n NodeID) Position { return Position{Kind: PosOrbit, A: n} }

// EdgePos returns the lane position between a and b. Endpoint order does not matter.
func EdgePos(a, b NodeID) Position {
	if a > b {
		a, b = b, a
	}
	return Position{Kind: PosEdge, A: a, B: b}
}

// IsZero reports whether p is the absent position.
func (p Position) IsZero() bool { return p.Kind == PosNone }

// Endpoints returns both endpoints of an edge. For node and orbit positions
// both values are the node itself.
func (p Position) Endpoints() (NodeID, NodeID) {
	if p.Kind == PosEdge {
		return p.A, p.B
	}
	return p.A, p.A
}

// Touches reports whether an edge has n as an endpoint, or a node/orbit is n.
func (p Position) Touches(n NodeID) bool {
	a, b := p.Endpoints()
	return a == n || b == n
}

// Less orders positions by kind, then endpoints. Used wherever output must
// not depend on map iteration order.
func (p Position) Less(q Position) bool {
	if p.Kind != q.Kind {
		return p.Kind < q.Kind
	}
	if p.A != q.A {
		return p.A < q.A
	}
	return p.B < q.B
}

// Accepts reports whether a unit of the given kind may occupy this kind of position.
func (p Position) Accepts(kind UnitKind) bool {
	switch p.Kind {
	case PosNode:
		return kind == Ground
	case PosOrbit, PosEdge:
		return kind == Mobile
	default:
		return false
	}
}

// Capacity is the number of units the position can hold.
func (p Position) Capacity() int {
	switch p.Kind {
	case PosNode, PosOrbit:
		return 1
	case PosEdge:
		return 2
	default:
		return 0
	}
}

// String renders the position with raw node handles (n3, o3, e3-7).
// Use Topology.PositionName for human-readable names.
func (p Position) String() string {
	switch p.Kind {
	case PosNode:
		return "n" + strconv.Itoa(int(p.A))
	case PosOrbit:
		return "o" + strconv.Itoa(int(p.A))
	case PosEdge:
		return "e" + strconv.Itoa(int(p.A)) + "-" + strconv.Itoa(int(p.B))
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler so positions can key JSON objects.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Position) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*p = Position{}
		return nil
	}
	parseID := func(v string) (NodeID, error) {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("bad node handle %q: %w", v, err)
		}
		return NodeID(n), nil
	}
	switch s[0] {
	case 'n', 'o':
		n, err := parseID(s[1:])
		if err != nil {
			return err
		}
		if s[0] == 'n' {
			*p = NodePos(n)
		} else {
			*p = OrbitPos(n)
		}
		return nil
	case 'e':
		a, b, ok := strings.Cut(s[1:], "-")
		if !ok {
			return fmt.Errorf("bad edge position %q", s)
		}
		na, err := parseID(a)
		if err != nil {
			return err
		}
		nb, err := parseID(b)
		if err != nil {
			return err
		}
		*p = EdgePos(na, nb)
		return nil
	}
	return fmt.Errorf("bad position %q", s)
}
