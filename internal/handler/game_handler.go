package handler

import (
	"net/http"
	"time"

	"github.com/freeeve/starlane/internal/service"
)

// GameHandler handles game endpoints.
type GameHandler struct {
	gameSvc    *service.GameService
	defaultMap string
}

// NewGameHandler creates a GameHandler. Games created without a map name are
// played on defaultMap.
func NewGameHandler(gameSvc *service.GameService, defaultMap string) *GameHandler {
	return &GameHandler{gameSvc: gameSvc, defaultMap: defaultMap}
}

type createGameRequest struct {
	Name             string         `json:"name"`
	MapName          string         `json:"map_name,omitempty"`
	Seats            []service.Seat `json:"seats"`
	MovementDuration string         `json:"movement_duration,omitempty"`
	RetreatDuration  string         `json:"retreat_duration,omitempty"`
	BuildDuration    string         `json:"build_duration,omitempty"`
}

// parseDuration accepts an empty string as "use the server default".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// CreateGame handles POST /api/v1/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var d service.Durations
	for _, f := range []struct {
		raw string
		dst *time.Duration
	}{
		{req.MovementDuration, &d.Movement},
		{req.RetreatDuration, &d.Retreat},
		{req.BuildDuration, &d.Build},
	} {
		v, err := parseDuration(f.raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid duration "+f.raw)
			return
		}
		*f.dst = v
	}

	if req.MapName == "" {
		req.MapName = h.defaultMap
	}
	game, err := h.gameSvc.CreateGame(r.Context(), service.CreateGameInput{
		Name:      req.Name,
		MapName:   req.MapName,
		Seats:     req.Seats,
		Durations: d,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

// ListGames handles GET /api/v1/games
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.gameSvc.ListActiveGames(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if games == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// GetGame handles GET /api/v1/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.gameSvc.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// Board handles GET /api/v1/games/{id}/board
func (h *GameHandler) Board(w http.ResponseWriter, r *http.Request) {
	view, err := h.gameSvc.CurrentBoard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
