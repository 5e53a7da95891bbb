package model

import (
	"encoding/json"
	"time"
)

// Game statuses.
const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Game is one running or finished match on a named map.
type Game struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	MapName          string       `json:"map_name"`
	Status           string       `json:"status"`
	Winner           string       `json:"winner,omitempty"`
	MovementDuration string       `json:"movement_duration"`
	RetreatDuration  string       `json:"retreat_duration"`
	BuildDuration    string       `json:"build_duration"`
	CreatedAt        time.Time    `json:"created_at"`
	FinishedAt       *time.Time   `json:"finished_at,omitempty"`
	Players          []GamePlayer `json:"players,omitempty"`
}

// GamePlayer seats a user as one faction.
type GamePlayer struct {
	GameID   string    `json:"game_id"`
	UserID   string    `json:"user_id"`
	Faction  string    `json:"faction"`
	JoinedAt time.Time `json:"joined_at"`
}

// FactionOf returns the faction userID plays in g, or "".
func (g *Game) FactionOf(userID string) string {
	for _, p := range g.Players {
		if p.UserID == userID {
			return p.Faction
		}
	}
	return ""
}

// Factions lists the seated factions in seat order.
func (g *Game) Factions() []string {
	var out []string
	for _, p := range g.Players {
		if p.Faction != "" {
			out = append(out, p.Faction)
		}
	}
	return out
}

// Phase is one movement, retreat or build phase. BoardBefore is the board the
// phase was played on; BoardAfter and Results are set once it resolves.
type Phase struct {
	ID           string          `json:"id"`
	GameID       string          `json:"game_id"`
	Year         int             `json:"year"`
	Season       string          `json:"season"`
	PhaseType    string          `json:"phase_type"`
	BoardBefore  json.RawMessage `json:"board_before"`
	BoardAfter   json.RawMessage `json:"board_after,omitempty"`
	Results      json.RawMessage `json:"results,omitempty"`
	ResolutionID string          `json:"resolution_id,omitempty"`
	Deadline     time.Time       `json:"deadline"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Order is one submitted order in notation, with its outcome once resolved.
type Order struct {
	ID        string    `json:"id"`
	PhaseID   string    `json:"phase_id"`
	Faction   string    `json:"faction"`
	Text      string    `json:"text"`
	Result    string    `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
