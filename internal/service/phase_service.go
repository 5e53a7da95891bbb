package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/starlane/internal/model"
	"github.com/freeeve/starlane/internal/repository"
	"github.com/freeeve/starlane/pkg/starlane"
)

// PhaseService orchestrates phase transitions: resolution, state advancement,
// and timer management.
type PhaseService struct {
	gameRepo    repository.GameRepository
	phaseRepo   repository.PhaseRepository
	cache       repository.GameCache
	mods        repository.ModifierSource
	broadcaster Broadcaster
	now         func() time.Time

	// gameLocks serializes resolution per game. The keyspace listener, the
	// poller and early resolution can all fire for the same phase.
	gameLocks sync.Map
}

// NewPhaseService creates a PhaseService. mods may be nil.
func NewPhaseService(
	gameRepo repository.GameRepository,
	phaseRepo repository.PhaseRepository,
	cache repository.GameCache,
	mods repository.ModifierSource,
	broadcaster Broadcaster,
) *PhaseService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &PhaseService{
		gameRepo:    gameRepo,
		phaseRepo:   phaseRepo,
		cache:       cache,
		mods:        mods,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// RecoverActiveGames rehydrates the cache for every active game from the
// durable store. Called on startup; timers whose deadline already passed are
// left to the poller.
func (s *PhaseService) RecoverActiveGames(ctx context.Context) error {
	games, err := s.gameRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}
	if len(games) == 0 {
		log.Info().Msg("No active games to recover")
		return nil
	}
	log.Info().Int("count", len(games)).Msg("Recovering active games after restart")

	for _, game := range games {
		phase, err := s.phaseRepo.CurrentPhase(ctx, game.ID)
		if err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to get current phase during recovery")
			continue
		}
		if phase == nil {
			log.Warn().Str("gameId", game.ID).Msg("Active game has no current phase, skipping")
			continue
		}
		if err := s.cache.SetBoard(ctx, game.ID, phase.BoardBefore); err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to restore board")
			continue
		}
		if s.now().Before(phase.Deadline) {
			if err := s.cache.SetTimer(ctx, game.ID, phase.Deadline); err != nil {
				log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to restore timer")
			}
		}

		lg, err := loadLiveGame(ctx, s.gameRepo, s.phaseRepo, s.cache, game.ID)
		if err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to load recovered game")
			continue
		}
		s.autoReadyIdle(ctx, lg)

		log.Info().Str("gameId", game.ID).Str("phase", phase.PhaseType).
			Int("year", phase.Year).Str("season", phase.Season).
			Time("deadline", phase.Deadline).
			Msg("Recovered game state")
	}
	return nil
}

// SetModifiers stores the modifier set for the open phase of a game.
func (s *PhaseService) SetModifiers(ctx context.Context, gameID, phaseID string, set starlane.ModifierSet) error {
	if s.mods == nil {
		return errors.New("modifiers are not supported by this server")
	}
	lg, err := loadLiveGame(ctx, s.gameRepo, s.phaseRepo, s.cache, gameID)
	if err != nil {
		return err
	}
	if lg.phase.ID != phaseID {
		return ErrWrongPhase
	}
	if err := s.mods.SetModifiers(ctx, gameID, phaseID, set); err != nil {
		return fmt.Errorf("set modifiers: %w", err)
	}
	log.Info().Str("gameId", gameID).Str("phaseId", phaseID).Msg("Phase modifiers set")
	return nil
}

// gameLock returns the mutex for a given game ID.
func (s *PhaseService) gameLock(gameID string) *sync.Mutex {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ResolvePhase resolves the open phase of a game once its deadline has passed.
// Factions that sent nothing are resolved with their defaults: units hold,
// dislodged units disband, owed builds are skipped.
func (s *PhaseService) ResolvePhase(ctx context.Context, gameID string) error {
	return s.resolvePhaseInternal(ctx, gameID, false)
}

// ResolvePhaseEarly resolves the open phase before its deadline if every
// active faction is ready.
func (s *PhaseService) ResolvePhaseEarly(ctx context.Context, gameID string) error {
	return s.resolvePhaseInternal(ctx, gameID, true)
}

func (s *PhaseService) resolvePhaseInternal(ctx context.Context, gameID string, early bool) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	lg, err := loadLiveGame(ctx, s.gameRepo, s.phaseRepo, s.cache, gameID)
	if errors.Is(err, ErrNoActivePhase) {
		log.Info().Str("gameId", gameID).Msg("Skipping resolution for game without an open phase")
		return nil
	}
	if err != nil {
		return err
	}

	if s.now().Before(lg.phase.Deadline) {
		if !early {
			log.Debug().Str("gameId", gameID).Time("deadline", lg.phase.Deadline).Msg("Phase deadline not yet reached, skipping")
			return nil
		}
		// A stale trigger may arrive after someone withdrew their ready mark.
		ready, total, err := readiness(ctx, s.cache, lg)
		if err != nil {
			return err
		}
		if ready < total {
			log.Debug().Str("gameId", gameID).Int("ready", ready).Int("total", total).Msg("Not every faction is ready, skipping")
			return nil
		}
	}

	log.Info().Str("gameId", gameID).Str("phaseId", lg.phase.ID).
		Bool("early", early).Str("phaseType", lg.phase.PhaseType).
		Int("year", lg.phase.Year).Str("season", lg.phase.Season).
		Msg("Resolving phase")

	lines, err := s.collectOrders(ctx, lg)
	if err != nil {
		return fmt.Errorf("collect orders: %w", err)
	}
	var mods *starlane.Modifiers
	if s.mods != nil {
		if mods, err = s.mods.Modifiers(ctx, gameID, lg.phase.ID); err != nil {
			return fmt.Errorf("load modifiers: %w", err)
		}
	}

	var (
		results   starlane.Log
		submitted []SubmittedOrder
		dislodged bool
	)
	switch lg.board.Phase {
	case starlane.PhaseRetreat:
		results, submitted = resolveRetreat(lg, lines, mods)
	case starlane.PhaseBuild:
		results, submitted = resolveBuild(lg, lines)
	default:
		results, submitted = resolveMovement(lg, lines, mods)
		dislodged = len(lg.board.Dislodged) > 0
	}
	return s.advanceToNextPhase(ctx, lg, results, submitted, dislodged)
}

// collectOrders reads each seated faction's cached order lines.
func (s *PhaseService) collectOrders(ctx context.Context, lg *liveGame) (map[string][]string, error) {
	factions := lg.game.Factions()
	raw, err := s.cache.GetAllOrders(ctx, lg.game.ID, factions)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(raw))
	for _, f := range factions {
		data, ok := raw[f]
		if !ok {
			continue
		}
		var lines []string
		if err := json.Unmarshal(data, &lines); err != nil {
			log.Warn().Err(err).Str("gameId", lg.game.ID).Str("faction", f).Msg("Discarding unreadable cached orders")
			continue
		}
		out[f] = lines
	}
	return out, nil
}

// SubmittedOrder ties a stored order line to the position its outcome is
// logged under. Parsed is false for lines the engine never saw.
type SubmittedOrder struct {
	Faction string
	Text    string
	From    starlane.Position
	Parsed  bool
}

func resolveMovement(lg *liveGame, lines map[string][]string, mods *starlane.Modifiers) (starlane.Log, []SubmittedOrder) {
	var orders []starlane.Order
	var submitted []SubmittedOrder
	for _, f := range lg.game.Factions() {
		for _, text := range lines[f] {
			o, err := starlane.ParseOrder(starlane.Faction(f), text, lg.topo)
			submitted = append(submitted, SubmittedOrder{Faction: f, Text: text, From: o.Location, Parsed: err == nil})
			if err == nil {
				orders = append(orders, o)
			}
		}
	}
	return starlane.Adjudicate(orders, lg.board, lg.topo, mods), submitted
}

func resolveRetreat(lg *liveGame, lines map[string][]string, mods *starlane.Modifiers) (starlane.Log, []SubmittedOrder) {
	var orders []starlane.RetreatOrder
	var submitted []SubmittedOrder
	for _, f := range lg.game.Factions() {
		for _, text := range lines[f] {
			o, err := starlane.ParseRetreatOrder(starlane.Faction(f), text, lg.topo)
			submitted = append(submitted, SubmittedOrder{Faction: f, Text: text, From: o.From, Parsed: err == nil})
			if err == nil {
				orders = append(orders, o)
			}
		}
	}
	return starlane.ResolveRetreats(orders, lg.board, mods), submitted
}

func resolveBuild(lg *liveGame, lines map[string][]string) (starlane.Log, []SubmittedOrder) {
	var orders []starlane.BuildOrder
	var submitted []SubmittedOrder
	for _, f := range lg.game.Factions() {
		for _, text := range lines[f] {
			o, err := starlane.ParseBuildOrder(starlane.Faction(f), text, lg.topo)
			submitted = append(submitted, SubmittedOrder{Faction: f, Text: text, From: o.Location, Parsed: err == nil})
			if err == nil {
				orders = append(orders, o)
			}
		}
	}
	return starlane.ResolveBuildOrders(orders, lg.board, lg.topo), submitted
}

// OrdersToModel pairs each submitted order with the first unclaimed log
// record of its faction at its position.
func OrdersToModel(phaseID string, submitted []SubmittedOrder, results starlane.Log) []model.Order {
	claimed := make([]bool, len(results))
	out := make([]model.Order, 0, len(submitted))
	for _, so := range submitted {
		mo := model.Order{PhaseID: phaseID, Faction: so.Faction, Text: so.Text, Result: "void (unparseable)"}
		if so.Parsed {
			mo.Result = "unresolved"
			for i, r := range results {
				if claimed[i] || string(r.Faction) != so.Faction || r.From != so.From {
					continue
				}
				claimed[i] = true
				mo.Result = outcomeText(r)
				break
			}
		}
		out = append(out, mo)
	}
	return out
}

func outcomeText(r starlane.Result) string {
	if r.Reason == starlane.ReasonNone {
		return r.Kind.String()
	}
	return r.Kind.String() + " (" + string(r.Reason) + ")"
}

// advanceToNextPhase stores the resolved phase, checks for a winner, and opens
// the next phase with a new timer.
func (s *PhaseService) advanceToNextPhase(ctx context.Context, lg *liveGame, results starlane.Log, submitted []SubmittedOrder, hasDislodgements bool) error {
	game, phase, b := lg.game, lg.phase, lg.board
	if results == nil {
		results = starlane.Log{}
	}

	// The stored board after a Fall phase shows the final center count, which
	// matters when that phase ends the game.
	if b.Season == starlane.Fall && (b.Phase == starlane.PhaseMovement || b.Phase == starlane.PhaseRetreat) {
		starlane.UpdateOwnership(b, lg.topo)
	}

	boardAfter, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal board after: %w", err)
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	resolutionID := uuid.NewString()
	if err := s.phaseRepo.ResolvePhase(ctx, phase.ID, resolutionID, boardAfter, resultsJSON); err != nil {
		return fmt.Errorf("resolve phase: %w", err)
	}
	if err := s.phaseRepo.SaveOrders(ctx, OrdersToModel(phase.ID, submitted, results)); err != nil {
		return fmt.Errorf("save orders: %w", err)
	}

	resolved := map[string]any{
		"phase_id":      phase.ID,
		"resolution_id": resolutionID,
		"year":          phase.Year,
		"season":        phase.Season,
		"type":          phase.PhaseType,
		"results":       resultLines(results, lg.topo),
	}

	starlane.AdvanceState(b, lg.topo, hasDislodgements)

	if winner, ok := starlane.Winner(b, lg.topo); ok {
		log.Info().Str("gameId", game.ID).Str("winner", string(winner)).Msg("Game won")
		if err := s.gameRepo.SetFinished(ctx, game.ID, string(winner)); err != nil {
			return fmt.Errorf("set finished: %w", err)
		}
		s.broadcaster.BroadcastGameEvent(game.ID, EventPhaseResolved, resolved)
		s.broadcaster.BroadcastGameEvent(game.ID, EventGameEnded, map[string]any{
			"winner": string(winner),
		})
		return s.cache.DeleteGameData(ctx, game.ID, game.Factions())
	}

	if b.Phase == starlane.PhaseBuild && !starlane.NeedsBuildPhase(b, lg.topo) {
		log.Info().Str("gameId", game.ID).Msg("Skipping build phase (no adjustments needed)")
		starlane.AdvanceState(b, lg.topo, false)
	}

	boardJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal new board: %w", err)
	}
	deadline := s.now().Add(phaseDuration(game, b.Phase))
	next, err := s.phaseRepo.CreatePhase(ctx, game.ID, b.Year, string(b.Season), string(b.Phase), boardJSON, deadline)
	if err != nil {
		return fmt.Errorf("create next phase: %w", err)
	}

	if err := s.cache.ClearPhaseData(ctx, game.ID, game.Factions()); err != nil {
		return fmt.Errorf("clear phase data: %w", err)
	}
	if err := s.cache.SetBoard(ctx, game.ID, boardJSON); err != nil {
		return fmt.Errorf("set new board: %w", err)
	}
	if err := s.cache.SetTimer(ctx, game.ID, deadline); err != nil {
		return fmt.Errorf("set timer: %w", err)
	}

	nextGame := &liveGame{game: game, phase: next, topo: lg.topo, board: b}
	s.autoReadyIdle(ctx, nextGame)

	log.Info().
		Str("gameId", game.ID).
		Str("season", string(b.Season)).
		Int("year", b.Year).
		Str("phase", string(b.Phase)).
		Time("deadline", deadline).
		Str("resolutionId", resolutionID).
		Msg("Game advanced to next phase")

	// Broadcast after the new phase exists so clients can fetch it.
	s.broadcaster.BroadcastGameEvent(game.ID, EventPhaseResolved, resolved)
	s.broadcaster.BroadcastGameEvent(game.ID, EventPhaseChanged, map[string]any{
		"phase_id": next.ID,
		"year":     b.Year,
		"season":   string(b.Season),
		"type":     string(b.Phase),
		"deadline": deadline.Format(time.RFC3339),
	})

	// When no seated faction has anything to do the phase need not wait.
	ready, total, err := readiness(ctx, s.cache, nextGame)
	if err == nil && total > 0 && ready >= total {
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.ResolvePhaseEarly(rctx, game.ID); err != nil {
				log.Error().Err(err).Str("gameId", game.ID).Msg("Early resolution of idle phase failed")
			}
		}()
	}
	return nil
}

// autoReadyIdle marks ready every seated faction with nothing to order, so the
// phase does not stall waiting on it.
func (s *PhaseService) autoReadyIdle(ctx context.Context, lg *liveGame) {
	var readied []string
	for _, f := range lg.game.Factions() {
		if !lg.idle(f) {
			continue
		}
		if err := s.cache.MarkReady(ctx, lg.game.ID, f); err != nil {
			log.Warn().Err(err).Str("gameId", lg.game.ID).Str("faction", f).Msg("Failed to auto-ready faction")
			continue
		}
		readied = append(readied, f)
	}
	if len(readied) > 0 {
		log.Debug().Str("gameId", lg.game.ID).Str("factions", strings.Join(readied, ",")).Msg("Auto-readied idle factions")
	}
}
