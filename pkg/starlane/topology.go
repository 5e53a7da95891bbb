package starlane

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// NodeSpec describes one node in static map data.
type NodeSpec struct {
	Name         string  `json:"name"`
	SupplyCenter bool    `json:"supply_center,omitempty"`
	Home         Faction `json:"home,omitempty"` // Faction whose home node this is ("" if none)
}

// MapData is the static description a Topology is built from.
type MapData struct {
	Name          string      `json:"name"`
	Nodes         []NodeSpec  `json:"nodes"`
	Lanes         [][2]string `json:"lanes"`
	VerticalLanes [][2]string `json:"vertical_lanes,omitempty"` // Lanes between map layers
}

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrDuplicateNode = errors.New("duplicate node")
	ErrBadLane       = errors.New("bad lane")
)

// Topology holds precomputed adjacency over nodes, orbits and edges.
// It is immutable after NewTopology returns and safe for concurrent reads.
type Topology struct {
	name      string
	nodes     []NodeSpec
	index     map[string]NodeID
	neighbors [][]NodeID   // node -> adjacent nodes, sorted
	incident  [][]Position // node -> incident edges, sorted
	edgeAdj   map[Position][]Position
	edges     []Position
	vertical  map[Position]bool
	supply    []NodeID
	homes     map[Faction][]NodeID
	factions  []Faction
}

// NewTopology validates map data and builds the lookup tables.
func NewTopology(md MapData) (*Topology, error) {
	t := &Topology{
		name:     md.Name,
		nodes:    make([]NodeSpec, len(md.Nodes)),
		index:    make(map[string]NodeID, len(md.Nodes)),
		edgeAdj:  make(map[Position][]Position),
		vertical: make(map[Position]bool),
		homes:    make(map[Faction][]NodeID),
	}
	copy(t.nodes, md.Nodes)

	for i, n := range md.Nodes {
		name := strings.ToLower(n.Name)
		if name == "" || strings.ContainsAny(name, "/~ ") {
			return nil, fmt.Errorf("node %d: invalid name %q", i, n.Name)
		}
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, name)
		}
		t.nodes[i].Name = name
		t.index[name] = NodeID(i)
		if n.SupplyCenter {
			t.supply = append(t.supply, NodeID(i))
		}
		if n.Home != Neutral {
			if _, seen := t.homes[n.Home]; !seen {
				t.factions = append(t.factions, n.Home)
			}
			t.homes[n.Home] = append(t.homes[n.Home], NodeID(i))
		}
	}

	t.neighbors = make([][]NodeID, len(t.nodes))
	t.incident = make([][]Position, len(t.nodes))
	seen := make(map[Position]bool)

	addLane := func(pair [2]string, vertical bool) error {
		a, ok := t.NodeByName(pair[0])
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, pair[0])
		}
		b, ok := t.NodeByName(pair[1])
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, pair[1])
		}
		if a == b {
			return fmt.Errorf("%w: %s connects to itself", ErrBadLane, pair[0])
		}
		e := EdgePos(a, b)
		if seen[e] {
			return fmt.Errorf("%w: duplicate lane %s~%s", ErrBadLane, pair[0], pair[1])
		}
		seen[e] = true
		t.edges = append(t.edges, e)
		if vertical {
			t.vertical[e] = true
		}
		t.neighbors[a] = append(t.neighbors[a], b)
		t.neighbors[b] = append(t.neighbors[b], a)
		t.incident[a] = append(t.incident[a], e)
		t.incident[b] = append(t.incident[b], e)
		return nil
	}
	for _, l := range md.Lanes {
		if err := addLane(l, false); err != nil {
			return nil, err
		}
	}
	for _, l := range md.VerticalLanes {
		if err := addLane(l, true); err != nil {
			return nil, err
		}
	}

	byPos := func(p, q Position) int {
		if p.Less(q) {
			return -1
		}
		if q.Less(p) {
			return 1
		}
		return 0
	}
	for i := range t.nodes {
		slices.Sort(t.neighbors[i])
		slices.SortFunc(t.incident[i], byPos)
	}
	slices.SortFunc(t.edges, byPos)

	// Edges sharing exactly one endpoint. Distinct lanes can never share both.
	for _, e := range t.edges {
		var adj []Position
		for _, other := range t.incident[e.A] {
			if other != e {
				adj = append(adj, other)
			}
		}
		for _, other := range t.incident[e.B] {
			if other != e {
				adj = append(adj, other)
			}
		}
		slices.SortFunc(adj, byPos)
		t.edgeAdj[e] = adj
	}
	return t, nil
}

// Name returns the map name.
func (t *Topology) Name() string { return t.name }

// NodeCount returns the number of nodes on the map.
func (t *Topology) NodeCount() int { return len(t.nodes) }

// Node returns the static description of a node.
func (t *Topology) Node(n NodeID) NodeSpec { return t.nodes[n] }

// NodeByName resolves a node name (case-insensitive) to its handle.
func (t *Topology) NodeByName(name string) (NodeID, bool) {
	n, ok := t.index[strings.ToLower(name)]
	return n, ok
}

// NodeName returns the name of a node handle.
func (t *Topology) NodeName(n NodeID) string {
	if int(n) >= len(t.nodes) {
		return fmt.Sprintf("#%d", n)
	}
	return t.nodes[n].Name
}

// Edges returns every lane edge in canonical order.
func (t *Topology) Edges() []Position { return t.edges }

// IsVertical reports whether an edge came from the vertical lane list.
func (t *Topology) IsVertical(e Position) bool { return t.vertical[e] }

// Neighbors returns the nodes adjacent to n.
func (t *Topology) Neighbors(n NodeID) []NodeID { return t.neighbors[n] }

// IncidentEdges returns the lanes touching n.
func (t *Topology) IncidentEdges(n NodeID) []Position { return t.incident[n] }

// SupplyCenters returns every supply-bearing node.
func (t *Topology) SupplyCenters() []NodeID { return t.supply }

// IsSupplyCenter reports whether n bears a supply center.
func (t *Topology) IsSupplyCenter(n NodeID) bool {
	return int(n) < len(t.nodes) && t.nodes[n].SupplyCenter
}

// HomeNodes returns the home nodes of a faction.
func (t *Topology) HomeNodes(f Faction) []NodeID { return t.homes[f] }

// Factions returns every faction that has a home node, in map declaration order.
func (t *Topology) Factions() []Faction { return t.factions }

// Contains reports whether p names a real position on this map.
func (t *Topology) Contains(p Position) bool {
	switch p.Kind {
	case PosNode, PosOrbit:
		return int(p.A) < len(t.nodes)
	case PosEdge:
		_, ok := t.edgeAdj[p]
		return ok
	}
	return false
}

// ValidDestinations returns the positions a unit of the given kind can reach
// from p in one move. Ground units step node to node; mobile units step from an
// orbit onto incident lanes, and from a lane onto adjacent lanes or either
// endpoint's orbit.
func (t *Topology) ValidDestinations(p Position, kind UnitKind) []Position {
	if !t.Contains(p) {
		return nil
	}
	switch {
	case kind == Ground && p.Kind == PosNode:
		out := make([]Position, 0, len(t.neighbors[p.A]))
		for _, n := range t.neighbors[p.A] {
			out = append(out, NodePos(n))
		}
		return out
	case kind == Mobile && p.Kind == PosOrbit:
		return slices.Clone(t.incident[p.A])
	case kind == Mobile && p.Kind == PosEdge:
		out := make([]Position, 0, len(t.edgeAdj[p])+2)
		out = append(out, OrbitPos(p.A), OrbitPos(p.B))
		return append(out, t.edgeAdj[p]...)
	}
	return nil
}

// IsAdjacent reports whether a unit of the given kind at a can move to b.
func (t *Topology) IsAdjacent(a, b Position, kind UnitKind) bool {
	if !t.Contains(a) || !t.Contains(b) {
		return false
	}
	switch {
	case kind == Ground && a.Kind == PosNode && b.Kind == PosNode:
		_, found := slices.BinarySearch(t.neighbors[a.A], b.A)
		return found
	case kind == Mobile && a.Kind == PosOrbit && b.Kind == PosEdge:
		return b.Touches(a.A)
	case kind == Mobile && a.Kind == PosEdge && b.Kind == PosOrbit:
		return a.Touches(b.A)
	case kind == Mobile && a.Kind == PosEdge && b.Kind == PosEdge:
		return a != b && (b.Touches(a.A) || b.Touches(a.B))
	}
	return false
}

// CanSupport reports whether a unit of supporterKind at `at` may lend support
// into target. A mobile unit backs the ground unit on its own orbit's node or
// on either endpoint of its lane; otherwise support follows movement adjacency.
func (t *Topology) CanSupport(at, target Position, supporterKind UnitKind) bool {
	if !t.Contains(at) || !t.Contains(target) {
		return false
	}
	if supporterKind == Mobile && target.Kind == PosNode {
		switch at.Kind {
		case PosOrbit:
			return at.A == target.A
		case PosEdge:
			return at.Touches(target.A)
		}
		return false
	}
	return t.IsAdjacent(at, target, supporterKind)
}

// PositionName renders a position with map names: "vega", "vega/o", "rigel~vega".
func (t *Topology) PositionName(p Position) string {
	switch p.Kind {
	case PosNode:
		return t.NodeName(p.A)
	case PosOrbit:
		return t.NodeName(p.A) + "/o"
	case PosEdge:
		return t.NodeName(p.A) + "~" + t.NodeName(p.B)
	}
	return ""
}

// ParsePosition is the inverse of PositionName.
func (t *Topology) ParsePosition(s string) (Position, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if a, b, ok := strings.Cut(s, "~"); ok {
		na, ok := t.NodeByName(a)
		if !ok {
			return Position{}, fmt.Errorf("%w: %s", ErrUnknownNode, a)
		}
		nb, ok := t.NodeByName(b)
		if !ok {
			return Position{}, fmt.Errorf("%w: %s", ErrUnknownNode, b)
		}
		e := EdgePos(na, nb)
		if !t.Contains(e) {
			return Position{}, fmt.Errorf("%w: no lane %s", ErrBadLane, s)
		}
		return e, nil
	}
	if name, ok := strings.CutSuffix(s, "/o"); ok {
		n, ok := t.NodeByName(name)
		if !ok {
			return Position{}, fmt.Errorf("%w: %s", ErrUnknownNode, name)
		}
		return OrbitPos(n), nil
	}
	n, ok := t.NodeByName(s)
	if !ok {
		return Position{}, fmt.Errorf("%w: %s", ErrUnknownNode, s)
	}
	return NodePos(n), nil
}

// distanceToHome is the minimum number of node hops from p to any home node of f.
// Edges count from their nearer endpoint. Used to pick civil-disorder disbands.
func (t *Topology) distanceToHome(p Position, f Faction) int {
	homes := t.homes[f]
	if len(homes) == 0 {
		return len(t.nodes) + 1
	}
	isHome := make(map[NodeID]bool, len(homes))
	for _, h := range homes {
		isHome[h] = true
	}
	a, b := p.Endpoints()
	visited := map[NodeID]bool{a: true, b: true}
	queue := []NodeID{a}
	if b != a {
		queue = append(queue, b)
	}
	for dist := 0; len(queue) > 0; dist++ {
		var next []NodeID
		for _, n := range queue {
			if isHome[n] {
				return dist
			}
			for _, adj := range t.neighbors[n] {
				if !visited[adj] {
					visited[adj] = true
					next = append(next, adj)
				}
			}
		}
		queue = next
	}
	return len(t.nodes) + 1
}
