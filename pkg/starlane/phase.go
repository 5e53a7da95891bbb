package starlane

// NextPhase computes the next phase after the current one.
// Movement -> Retreat (if dislodgements) or straight to Fall Movement / Build.
// Retreat -> Fall Movement or Build (if Fall).
// Build -> Spring Movement of next year.
func NextPhase(b *Board, hasDislodgements bool) (Season, PhaseType) {
	switch b.Phase {
	case PhaseMovement:
		if hasDislodgements {
			return b.Season, PhaseRetreat
		}
		return afterMovement(b.Season)
	case PhaseRetreat:
		return afterMovement(b.Season)
	case PhaseBuild:
		return Spring, PhaseMovement
	}
	return Spring, PhaseMovement
}

func afterMovement(season Season) (Season, PhaseType) {
	if season == Spring {
		return Fall, PhaseMovement
	}
	return Fall, PhaseBuild
}

// AdvanceState moves the board to the next phase. Supply center ownership is
// recomputed after Fall movement and Fall retreats, before builds are owed.
// Callers must have applied the current phase's results first.
func AdvanceState(b *Board, t *Topology, hasDislodgements bool) {
	nextSeason, nextPhase := NextPhase(b, hasDislodgements)

	if b.Season == Fall && (b.Phase == PhaseMovement || b.Phase == PhaseRetreat) {
		UpdateOwnership(b, t)
	}

	if nextSeason == Spring && nextPhase == PhaseMovement {
		b.Year++
	}
	b.Season = nextSeason
	b.Phase = nextPhase
	if nextPhase != PhaseRetreat {
		b.Dislodged = nil
	}
}

// NeedsBuildPhase reports whether any faction owes builds or disbands.
func NeedsBuildPhase(b *Board, t *Topology) bool {
	for _, f := range t.Factions() {
		if BuildsOwed(b, f) != 0 {
			return true
		}
	}
	return false
}

// SoloWinner returns the faction owning more than half of the map's supply
// centers, if any.
func SoloWinner(b *Board, t *Topology) (Faction, bool) {
	total := len(t.SupplyCenters())
	for _, f := range t.Factions() {
		if b.SupplyCenterCount(f)*2 > total {
			return f, true
		}
	}
	return Neutral, false
}

// Winner returns the solo winner or, failing that, the only faction not yet
// eliminated.
func Winner(b *Board, t *Topology) (Faction, bool) {
	if f, ok := SoloWinner(b, t); ok {
		return f, true
	}
	var alive []Faction
	for _, f := range t.Factions() {
		if !b.IsEliminated(f) {
			alive = append(alive, f)
		}
	}
	if len(alive) == 1 {
		return alive[0], true
	}
	return Neutral, false
}
