package starlane

import "fmt"

// OrderType represents the type of order a unit can be given.
type OrderType int

const (
	OrderHold    OrderType = iota // Unit holds position
	OrderMove                     // Unit moves to an adjacent position, or is convoyed
	OrderSupport                  // Unit supports another unit's hold or move
	OrderConvoy                   // Mobile unit on a lane carries a ground unit
)

func (o OrderType) String() string {
	switch o {
	case OrderHold:
		return "hold"
	case OrderMove:
		return "move"
	case OrderSupport:
		return "support"
	case OrderConvoy:
		return "convoy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o OrderType) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OrderType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "hold":
		*o = OrderHold
	case "move":
		*o = OrderMove
	case "support":
		*o = OrderSupport
	case "convoy":
		*o = OrderConvoy
	default:
		return fmt.Errorf("unknown order type %q", text)
	}
	return nil
}

// Order is a single order issued by a faction to the unit at Location.
type Order struct {
	Faction  Faction   `json:"faction"`
	Type     OrderType `json:"type"`
	Location Position  `json:"location"`

	// Destination of a move.
	Target Position `json:"target,omitzero"`
	// Move relies on a convoy chain rather than adjacency.
	ViaConvoy bool `json:"via_convoy,omitempty"`

	// For support: where the supported unit is moving from (zero for support-hold).
	// For convoy: where the carried ground unit starts.
	AuxFrom Position `json:"aux_from,omitzero"`
	// For support: the destination being supported, or the held position.
	// For convoy: where the carried ground unit is going.
	AuxTo Position `json:"aux_to,omitzero"`
}

// Hold returns a hold order.
func Hold(f Faction, at Position) Order {
	return Order{Faction: f, Type: OrderHold, Location: at}
}

// Move returns a move order.
func Move(f Faction, from, to Position) Order {
	return Order{Faction: f, Type: OrderMove, Location: from, Target: to}
}

// ConvoyedMove returns a move order that travels along a convoy chain.
func ConvoyedMove(f Faction, from, to Position) Order {
	return Order{Faction: f, Type: OrderMove, Location: from, Target: to, ViaConvoy: true}
}

// SupportHold returns an order supporting the unit holding at held.
func SupportHold(f Faction, at, held Position) Order {
	return Order{Faction: f, Type: OrderSupport, Location: at, AuxTo: held}
}

// SupportMove returns an order supporting the move from -> to.
func SupportMove(f Faction, at, from, to Position) Order {
	return Order{Faction: f, Type: OrderSupport, Location: at, AuxFrom: from, AuxTo: to}
}

// Convoy returns an order carrying the ground unit moving from -> to.
func Convoy(f Faction, at, from, to Position) Order {
	return Order{Faction: f, Type: OrderConvoy, Location: at, AuxFrom: from, AuxTo: to}
}

// IsSupportHold reports whether a support order backs a hold rather than a move.
func (o Order) IsSupportHold() bool {
	return o.Type == OrderSupport && o.AuxFrom.IsZero()
}

// Describe returns a human-readable description using raw position handles.
// FormatOrder renders the same order with map names.
func (o Order) Describe() string {
	switch o.Type {
	case OrderHold:
		return fmt.Sprintf("%s %s H", o.Faction, o.Location)
	case OrderMove:
		if o.ViaConvoy {
			return fmt.Sprintf("%s %s - %s via convoy", o.Faction, o.Location, o.Target)
		}
		return fmt.Sprintf("%s %s - %s", o.Faction, o.Location, o.Target)
	case OrderSupport:
		if o.IsSupportHold() {
			return fmt.Sprintf("%s %s S %s H", o.Faction, o.Location, o.AuxTo)
		}
		return fmt.Sprintf("%s %s S %s - %s", o.Faction, o.Location, o.AuxFrom, o.AuxTo)
	case OrderConvoy:
		return fmt.Sprintf("%s %s C %s - %s", o.Faction, o.Location, o.AuxFrom, o.AuxTo)
	default:
		return fmt.Sprintf("%s %s ???", o.Faction, o.Location)
	}
}
