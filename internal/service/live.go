package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/starlane/internal/model"
	"github.com/freeeve/starlane/internal/repository"
	"github.com/freeeve/starlane/pkg/starlane"
)

// liveGame is an active game with its open phase and current board.
type liveGame struct {
	game  *model.Game
	phase *model.Phase
	topo  *starlane.Topology
	board *starlane.Board
}

func loadLiveGame(ctx context.Context, gameRepo repository.GameRepository, phaseRepo repository.PhaseRepository, cache repository.GameCache, gameID string) (*liveGame, error) {
	game, err := gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != model.StatusActive {
		return nil, ErrNoActivePhase
	}
	phase, err := phaseRepo.CurrentPhase(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("current phase: %w", err)
	}
	if phase == nil {
		return nil, ErrNoActivePhase
	}
	topo, err := starlane.MapByName(game.MapName)
	if err != nil {
		return nil, err
	}

	raw, err := cache.GetBoard(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Cached board unavailable, using stored board")
	}
	if raw == nil {
		raw = phase.BoardBefore
	}
	board := starlane.NewBoard()
	if err := json.Unmarshal(raw, board); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	return &liveGame{game: game, phase: phase, topo: topo, board: board}, nil
}

// activeFactions lists the seated factions that still have units or centers.
func (lg *liveGame) activeFactions() []string {
	var out []string
	for _, f := range lg.game.Factions() {
		if !lg.board.IsEliminated(starlane.Faction(f)) {
			out = append(out, f)
		}
	}
	return out
}

// idle reports whether f has nothing to order in the current phase.
func (lg *liveGame) idle(f string) bool {
	faction := starlane.Faction(f)
	switch lg.board.Phase {
	case starlane.PhaseRetreat:
		return !slices.ContainsFunc(lg.board.Dislodged, func(d starlane.Dislodgement) bool {
			return d.Unit.Owner == faction
		})
	case starlane.PhaseBuild:
		return starlane.BuildsOwed(lg.board, faction) == 0
	}
	return lg.board.IsEliminated(faction)
}

// readiness returns how many active factions are ready out of how many.
func readiness(ctx context.Context, cache repository.GameCache, lg *liveGame) (ready, total int, err error) {
	active := lg.activeFactions()
	marked, err := cache.ReadyFactions(ctx, lg.game.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("ready factions: %w", err)
	}
	for _, f := range active {
		if slices.Contains(marked, f) {
			ready++
		}
	}
	return ready, len(active), nil
}

// phaseDuration returns the configured open time for a phase type.
func phaseDuration(game *model.Game, phase starlane.PhaseType) time.Duration {
	raw := game.MovementDuration
	def := DefaultDurations.Movement
	switch phase {
	case starlane.PhaseRetreat:
		raw, def = game.RetreatDuration, DefaultDurations.Retreat
	case starlane.PhaseBuild:
		raw, def = game.BuildDuration, DefaultDurations.Build
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
