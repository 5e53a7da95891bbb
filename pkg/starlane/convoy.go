package starlane

// chainConnects reports whether from and to are joined by a path made only of
// the given lane edges, stepping between edges through shared endpoints.
func chainConnects(t *Topology, edges map[Position]bool, from, to NodeID) bool {
	if len(edges) == 0 || from == to {
		return false
	}
	visited := map[NodeID]bool{from: true}
	queue := []NodeID{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range t.IncidentEdges(current) {
			if !edges[e] {
				continue
			}
			next := e.A
			if next == current {
				next = e.B
			}
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// canBeConvoyed checks whether any chain of occupied lanes could carry a
// ground unit from src to dst. It ignores orders; the adjudicator re-checks
// the chain actually claimed by convoy orders.
func canBeConvoyed(src, dst Position, b *Board, t *Topology) bool {
	if src.Kind != PosNode || dst.Kind != PosNode {
		return false
	}
	occupied := make(map[Position]bool)
	for _, e := range t.Edges() {
		for _, u := range b.units[e] {
			if u.Kind == Mobile {
				occupied[e] = true
				break
			}
		}
	}
	return chainConnects(t, occupied, src.A, dst.A)
}
