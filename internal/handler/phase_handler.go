package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/freeeve/starlane/internal/service"
	"github.com/freeeve/starlane/pkg/starlane"
)

// PhaseHandler handles phase history and modifier endpoints.
type PhaseHandler struct {
	gameSvc  *service.GameService
	phaseSvc *service.PhaseService
}

// NewPhaseHandler creates a PhaseHandler.
func NewPhaseHandler(gameSvc *service.GameService, phaseSvc *service.PhaseService) *PhaseHandler {
	return &PhaseHandler{gameSvc: gameSvc, phaseSvc: phaseSvc}
}

// ListPhases handles GET /api/v1/games/{id}/phases
func (h *PhaseHandler) ListPhases(w http.ResponseWriter, r *http.Request) {
	phases, err := h.gameSvc.ListPhases(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if phases == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, phases)
}

// PhaseResults handles GET /api/v1/games/{id}/phases/{phaseId}/results
func (h *PhaseHandler) PhaseResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.gameSvc.PhaseResults(r.Context(), r.PathValue("id"), r.PathValue("phaseId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// modifiersRequest names positions in notation so clients never see the
// board's internal node ids.
type modifiersRequest struct {
	Protected []string `json:"protected"`
	Frozen    []string `json:"frozen"`
	Sabotaged []struct {
		Faction  string `json:"faction"`
		Location string `json:"location"`
	} `json:"sabotaged"`
	AttackBonus  map[string]int `json:"attack_bonus"`
	DefenseBonus map[string]int `json:"defense_bonus"`
	Alliances    [][2]string    `json:"alliances"`
}

func (req *modifiersRequest) toSet(topo *starlane.Topology) (starlane.ModifierSet, error) {
	var set starlane.ModifierSet
	parseAll := func(names []string) ([]starlane.Position, error) {
		out := make([]starlane.Position, 0, len(names))
		for _, n := range names {
			p, err := topo.ParsePosition(n)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}
	var err error
	if set.Protected, err = parseAll(req.Protected); err != nil {
		return set, err
	}
	if set.Frozen, err = parseAll(req.Frozen); err != nil {
		return set, err
	}
	for _, s := range req.Sabotaged {
		p, err := topo.ParsePosition(s.Location)
		if err != nil {
			return set, err
		}
		set.Sabotaged = append(set.Sabotaged, starlane.SupportKey{Faction: starlane.Faction(strings.ToLower(s.Faction)), Location: p})
	}
	bonus := func(in map[string]int) map[starlane.Faction]int {
		if len(in) == 0 {
			return nil
		}
		out := make(map[starlane.Faction]int, len(in))
		for f, v := range in {
			out[starlane.Faction(strings.ToLower(f))] = v
		}
		return out
	}
	set.AttackBonus = bonus(req.AttackBonus)
	set.DefenseBonus = bonus(req.DefenseBonus)
	for _, pair := range req.Alliances {
		set.Alliances = append(set.Alliances, [2]starlane.Faction{
			starlane.Faction(strings.ToLower(pair[0])),
			starlane.Faction(strings.ToLower(pair[1])),
		})
	}
	return set, nil
}

// SetModifiers handles PUT /api/v1/games/{id}/phases/{phaseId}/modifiers
func (h *PhaseHandler) SetModifiers(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	var req modifiersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	game, err := h.gameSvc.GetGame(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	topo, err := starlane.MapByName(game.MapName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	set, err := req.toSet(topo)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid modifiers: %v", err))
		return
	}
	if err := h.phaseSvc.SetModifiers(r.Context(), gameID, r.PathValue("phaseId"), set); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}
