package starlane

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// ErrBadNotation is wrapped by every order parse failure.
var ErrBadNotation = errors.New("bad order notation")

// Order notation, one order per line:
//
//	G vega H
//	G vega - rigel
//	G vega - deneb via convoy
//	M vega/o S G rigel - vega
//	M vega~rigel S G vega H
//	M vega~rigel C G vega - deneb
//
// The unit letter is optional and must match the position: ground units stand
// on nodes, mobile units in orbits and on lanes.

// occupantKind is the only unit kind a position can hold.
func occupantKind(p Position) UnitKind {
	if p.Kind == PosNode {
		return Ground
	}
	return Mobile
}

// FormatOrder renders an order in notation using map names.
func FormatOrder(o Order, t *Topology) string {
	var b strings.Builder
	b.Grow(32)
	writeUnitAt(&b, o.Location, t)

	switch o.Type {
	case OrderHold:
		b.WriteString(" H")
	case OrderMove:
		b.WriteString(" - ")
		b.WriteString(t.PositionName(o.Target))
		if o.ViaConvoy {
			b.WriteString(" via convoy")
		}
	case OrderSupport:
		b.WriteString(" S ")
		if o.IsSupportHold() {
			writeUnitAt(&b, o.AuxTo, t)
			b.WriteString(" H")
			break
		}
		writeUnitAt(&b, o.AuxFrom, t)
		b.WriteString(" - ")
		b.WriteString(t.PositionName(o.AuxTo))
	case OrderConvoy:
		b.WriteString(" C ")
		writeUnitAt(&b, o.AuxFrom, t)
		b.WriteString(" - ")
		b.WriteString(t.PositionName(o.AuxTo))
	}
	return b.String()
}

func writeUnitAt(b *strings.Builder, p Position, t *Topology) {
	b.WriteString(occupantKind(p).Letter())
	b.WriteByte(' ')
	b.WriteString(t.PositionName(p))
}

// orderParser walks the whitespace-separated tokens of one order.
type orderParser struct {
	t    *Topology
	toks []string
	pos  int
}

func (p *orderParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *orderParser) next() string {
	tok := p.peek()
	if tok != "" {
		p.pos++
	}
	return tok
}

func (p *orderParser) expect(tok string) error {
	if got := p.next(); got != tok {
		return fmt.Errorf("%w: expected %q, got %q", ErrBadNotation, tok, got)
	}
	return nil
}

func (p *orderParser) position() (Position, error) {
	tok := p.next()
	if tok == "" {
		return Position{}, fmt.Errorf("%w: missing position", ErrBadNotation)
	}
	pos, err := p.t.ParsePosition(tok)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %w", ErrBadNotation, err)
	}
	return pos, nil
}

// unit parses an optional unit letter followed by a position.
func (p *orderParser) unit() (Position, error) {
	letter := ""
	if tok := p.peek(); tok == "G" || tok == "M" {
		letter = p.next()
	}
	pos, err := p.position()
	if err != nil {
		return Position{}, err
	}
	if letter != "" && letter != occupantKind(pos).Letter() {
		return Position{}, fmt.Errorf("%w: %s unit cannot stand at %s",
			ErrBadNotation, letter, p.t.PositionName(pos))
	}
	return pos, nil
}

func (p *orderParser) end() error {
	if tok := p.peek(); tok != "" {
		return fmt.Errorf("%w: unexpected %q", ErrBadNotation, tok)
	}
	return nil
}

// ParseOrder parses one order in notation for faction f.
func ParseOrder(f Faction, text string, t *Topology) (Order, error) {
	p := &orderParser{t: t, toks: strings.Fields(text)}
	at, err := p.unit()
	if err != nil {
		return Order{}, err
	}

	var o Order
	switch verb := p.next(); verb {
	case "H":
		o = Hold(f, at)
	case "-":
		to, err := p.position()
		if err != nil {
			return Order{}, err
		}
		o = Move(f, at, to)
		if p.peek() == "via" {
			p.next()
			if err := p.expect("convoy"); err != nil {
				return Order{}, err
			}
			o.ViaConvoy = true
		}
	case "S":
		from, err := p.unit()
		if err != nil {
			return Order{}, err
		}
		if p.peek() == "H" {
			p.next()
			o = SupportHold(f, at, from)
			break
		}
		if err := p.expect("-"); err != nil {
			return Order{}, err
		}
		to, err := p.position()
		if err != nil {
			return Order{}, err
		}
		o = SupportMove(f, at, from, to)
	case "C":
		from, err := p.unit()
		if err != nil {
			return Order{}, err
		}
		if err := p.expect("-"); err != nil {
			return Order{}, err
		}
		to, err := p.position()
		if err != nil {
			return Order{}, err
		}
		o = Convoy(f, at, from, to)
	case "":
		return Order{}, fmt.Errorf("%w: missing order type", ErrBadNotation)
	default:
		return Order{}, fmt.Errorf("%w: unknown order type %q", ErrBadNotation, verb)
	}
	if err := p.end(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ParseOrders reads an order sheet with one "faction: order" per line. Blank
// lines and lines starting with '#' are skipped.
func ParseOrders(text string, t *Topology) ([]Order, error) {
	var orders []Order
	sc := bufio.NewScanner(strings.NewReader(text))
	for line := 1; sc.Scan(); line++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		f, body, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: %w: missing faction", line, ErrBadNotation)
		}
		o, err := ParseOrder(Faction(strings.TrimSpace(f)), body, t)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		orders = append(orders, o)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	return orders, nil
}

// FormatResult renders one log record for display.
func FormatResult(r Result, t *Topology) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %s %s", r.Faction, r.Kind, t.PositionName(r.From))
	if !r.To.IsZero() {
		fmt.Fprintf(&b, " -> %s", t.PositionName(r.To))
	}
	if r.Reason != ReasonNone {
		fmt.Fprintf(&b, " (%s)", r.Reason)
	}
	return b.String()
}

// ParseRetreatOrder parses "G vega - rigel" or "G vega disband".
func ParseRetreatOrder(f Faction, text string, t *Topology) (RetreatOrder, error) {
	p := &orderParser{t: t, toks: strings.Fields(text)}
	from, err := p.unit()
	if err != nil {
		return RetreatOrder{}, err
	}
	o := RetreatOrder{Faction: f, From: from}
	switch verb := p.next(); verb {
	case "-":
		if o.To, err = p.position(); err != nil {
			return RetreatOrder{}, err
		}
	case "disband", "D":
	default:
		return RetreatOrder{}, fmt.Errorf("%w: expected \"-\" or \"disband\", got %q", ErrBadNotation, verb)
	}
	if err := p.end(); err != nil {
		return RetreatOrder{}, err
	}
	return o, nil
}

// FormatRetreatOrder renders a retreat order in notation.
func FormatRetreatOrder(o RetreatOrder, t *Topology) string {
	var b strings.Builder
	writeUnitAt(&b, o.From, t)
	if o.IsDisband() {
		b.WriteString(" disband")
	} else {
		b.WriteString(" - ")
		b.WriteString(t.PositionName(o.To))
	}
	return b.String()
}

// ParseBuildOrder parses "build G vega", "build M vega/o", "disband G vega"
// or "waive". The unit kind of a build follows from the position.
func ParseBuildOrder(f Faction, text string, t *Topology) (BuildOrder, error) {
	p := &orderParser{t: t, toks: strings.Fields(text)}
	o := BuildOrder{Faction: f}
	switch verb := strings.ToLower(p.next()); verb {
	case "build":
		o.Type = BuildUnit
	case "disband":
		o.Type = DisbandUnit
	case "waive":
		o.Type = WaiveBuild
		return o, p.end()
	case "":
		return BuildOrder{}, fmt.Errorf("%w: missing build order", ErrBadNotation)
	default:
		return BuildOrder{}, fmt.Errorf("%w: unknown build order %q", ErrBadNotation, verb)
	}
	at, err := p.unit()
	if err != nil {
		return BuildOrder{}, err
	}
	o.Location, o.Kind = at, occupantKind(at)
	if err := p.end(); err != nil {
		return BuildOrder{}, err
	}
	return o, nil
}

// FormatBuildOrder renders a build-phase order in notation.
func FormatBuildOrder(o BuildOrder, t *Topology) string {
	if o.Type == WaiveBuild {
		return "waive"
	}
	var b strings.Builder
	b.WriteString(o.Type.String())
	b.WriteByte(' ')
	writeUnitAt(&b, o.Location, t)
	return b.String()
}
