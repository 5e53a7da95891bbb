package starlane

import "fmt"

// ResultKind tags one outcome record in a result log.
type ResultKind int

const (
	ResultHeld ResultKind = iota
	ResultMoveSucceeded
	ResultMoveFailed
	ResultDislodged
	ResultSupportCut
	ResultConvoyBroken
	ResultEdgeOverflow
	ResultImmunityInvoked
	ResultRetreatSucceeded
	ResultRetreatFailed
	ResultDisbanded
	ResultBuilt
	ResultBuildFailed
	ResultWaived
	ResultVoid
)

var resultKindNames = map[ResultKind]string{
	ResultHeld:             "held",
	ResultMoveSucceeded:    "move_succeeded",
	ResultMoveFailed:       "move_failed",
	ResultDislodged:        "dislodged",
	ResultSupportCut:       "support_cut",
	ResultConvoyBroken:     "convoy_broken",
	ResultEdgeOverflow:     "edge_overflow",
	ResultImmunityInvoked:  "immunity_invoked",
	ResultRetreatSucceeded: "retreat_succeeded",
	ResultRetreatFailed:    "retreat_failed",
	ResultDisbanded:        "disbanded",
	ResultBuilt:            "built",
	ResultBuildFailed:      "build_failed",
	ResultWaived:           "waived",
	ResultVoid:             "void",
}

func (k ResultKind) String() string {
	if s, ok := resultKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k ResultKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ResultKind) UnmarshalText(text []byte) error {
	for kind, name := range resultKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown result kind %q", text)
}

// Reason explains a failed outcome.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonBounced          Reason = "bounced"
	ReasonConvoyBroken     Reason = "convoy broken"
	ReasonSwap             Reason = "swap"
	ReasonImmune           Reason = "immune"
	ReasonCapacity         Reason = "capacity"
	ReasonFriendlyOccupied Reason = "friendly occupied"
	ReasonNoOptions        Reason = "no retreat options"
	ReasonNotAnOption      Reason = "not a retreat option"
	ReasonOccupied         Reason = "occupied"
	ReasonNoDislodgement   Reason = "no dislodgement"
	ReasonInvalid          Reason = "invalid"
	ReasonExcess           Reason = "excess"
	ReasonCivilDisorder    Reason = "civil disorder"
)

// Result is one outcome record. From is the acting unit's position; To is the
// destination, retreat target, or build site when relevant.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Faction Faction    `json:"faction"`
	Unit    UnitKind   `json:"unit"`
	From    Position   `json:"from,omitzero"`
	To      Position   `json:"to,omitzero"`
	Reason  Reason     `json:"reason,omitempty"`
}

// Log is the ordered, append-only outcome trace of one resolution call.
type Log []Result

func (l *Log) add(r Result) {
	*l = append(*l, r)
}

// Filter returns the records of the given kind, in log order.
func (l Log) Filter(kind ResultKind) Log {
	var out Log
	for _, r := range l {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// For returns the records whose From equals p, in log order.
func (l Log) For(p Position) Log {
	var out Log
	for _, r := range l {
		if r.From == p {
			out = append(out, r)
		}
	}
	return out
}

// Has reports whether the log contains a record of kind at from.
func (l Log) Has(kind ResultKind, from Position) bool {
	for _, r := range l {
		if r.Kind == kind && r.From == from {
			return true
		}
	}
	return false
}
