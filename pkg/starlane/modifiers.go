package starlane

// SupportKey identifies a support order by the supporting faction and its location.
type SupportKey struct {
	Faction  Faction  `json:"faction"`
	Location Position `json:"location"`
}

// Modifiers carries per-phase hints injected by collaborators outside the
// adjudicator (faction abilities, secret alliances). They are plain data; a nil
// *Modifiers behaves as an empty set.
type Modifiers struct {
	Protected    map[Position]bool   // Destinations where no unit can be dislodged
	Frozen       map[Position]bool   // Locations and destinations no order may use
	Sabotaged    map[SupportKey]bool // Supports that count for nothing
	AttackBonus  map[Faction]int     // Added to every move strength of a faction
	DefenseBonus map[Faction]int     // Added to every defense of a faction; negative is a penalty
	Allies       AllyFunc            // Cross-faction alliance predicate; nil means no alliances
}

func (m *Modifiers) isProtected(p Position) bool {
	return m != nil && m.Protected[p]
}

func (m *Modifiers) isFrozen(p Position) bool {
	return m != nil && m.Frozen[p]
}

func (m *Modifiers) isSabotaged(f Faction, at Position) bool {
	return m != nil && m.Sabotaged[SupportKey{Faction: f, Location: at}]
}

func (m *Modifiers) attackBonus(f Faction) int {
	if m == nil {
		return 0
	}
	return m.AttackBonus[f]
}

func (m *Modifiers) defenseBonus(f Faction) int {
	if m == nil {
		return 0
	}
	return m.DefenseBonus[f]
}

func (m *Modifiers) allyFunc() AllyFunc {
	if m == nil {
		return nil
	}
	return m.Allies
}

// Allied reports whether two factions are the same or mutually allied.
func (m *Modifiers) Allied(a, b Faction) bool {
	return allied(a, b, m.allyFunc())
}

// ModifierSet is the serializable form of Modifiers. Each alliance pair applies
// in both directions.
type ModifierSet struct {
	Protected    []Position      `json:"protected,omitempty"`
	Frozen       []Position      `json:"frozen,omitempty"`
	Sabotaged    []SupportKey    `json:"sabotaged,omitempty"`
	AttackBonus  map[Faction]int `json:"attack_bonus,omitempty"`
	DefenseBonus map[Faction]int `json:"defense_bonus,omitempty"`
	Alliances    [][2]Faction    `json:"alliances,omitempty"`
}

// IsEmpty reports whether the set changes nothing.
func (s ModifierSet) IsEmpty() bool {
	return len(s.Protected) == 0 && len(s.Frozen) == 0 && len(s.Sabotaged) == 0 &&
		len(s.AttackBonus) == 0 && len(s.DefenseBonus) == 0 && len(s.Alliances) == 0
}

// Modifiers converts the set for the adjudicator. An empty set yields nil.
func (s ModifierSet) Modifiers() *Modifiers {
	if s.IsEmpty() {
		return nil
	}
	m := &Modifiers{
		Protected:    positionSet(s.Protected),
		Frozen:       positionSet(s.Frozen),
		AttackBonus:  s.AttackBonus,
		DefenseBonus: s.DefenseBonus,
	}
	if len(s.Sabotaged) > 0 {
		m.Sabotaged = make(map[SupportKey]bool, len(s.Sabotaged))
		for _, k := range s.Sabotaged {
			m.Sabotaged[k] = true
		}
	}
	if len(s.Alliances) > 0 {
		pairs := make(map[[2]Faction]bool, 2*len(s.Alliances))
		for _, p := range s.Alliances {
			pairs[p] = true
			pairs[[2]Faction{p[1], p[0]}] = true
		}
		m.Allies = func(a, b Faction) bool { return pairs[[2]Faction{a, b}] }
	}
	return m
}

func positionSet(ps []Position) map[Position]bool {
	if len(ps) == 0 {
		return nil
	}
	out := make(map[Position]bool, len(ps))
	for _, p := range ps {
		out[p] = true
	}
	return out
}
