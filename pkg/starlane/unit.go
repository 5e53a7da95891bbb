package starlane

import "fmt"

// Faction identifies one player's side. Factions are named by the loaded map.
type Faction string

// Neutral owns nothing; unowned supply centers map to Neutral.
const Neutral Faction = ""

// UnitKind represents the type of a unit.
type UnitKind int

const (
	Ground UnitKind = iota // Confined to nodes
	Mobile                 // Confined to orbits and lane edges
)

func (k UnitKind) String() string {
	if k == Ground {
		return "ground"
	}
	return "mobile"
}

// Letter is the single-letter form used in order notation.
func (k UnitKind) Letter() string {
	if k == Ground {
		return "G"
	}
	return "M"
}

// MarshalText implements encoding.TextMarshaler.
func (k UnitKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *UnitKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ground", "G", "g":
		*k = Ground
	case "mobile", "M", "m":
		*k = Mobile
	default:
		return fmt.Errorf("unknown unit kind %q", text)
	}
	return nil
}

// Unit is a single unit on the board. Its position is the board key it is stored under.
type Unit struct {
	Owner Faction  `json:"owner"`
	Kind  UnitKind `json:"kind"`
}
