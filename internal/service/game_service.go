package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/starlane/internal/model"
	"github.com/freeeve/starlane/internal/repository"
	"github.com/freeeve/starlane/pkg/starlane"
)

// Durations sets how long each phase type stays open for orders.
type Durations struct {
	Movement time.Duration
	Retreat  time.Duration
	Build    time.Duration
}

// DefaultDurations is used for any zero field of a new game's Durations.
var DefaultDurations = Durations{
	Movement: 24 * time.Hour,
	Retreat:  12 * time.Hour,
	Build:    12 * time.Hour,
}

func (d Durations) orDefault(def Durations) Durations {
	if d.Movement <= 0 {
		d.Movement = def.Movement
	}
	if d.Retreat <= 0 {
		d.Retreat = def.Retreat
	}
	if d.Build <= 0 {
		d.Build = def.Build
	}
	return d
}

// Seat assigns one user to one faction.
type Seat struct {
	UserID  string `json:"user_id"`
	Faction string `json:"faction"`
}

// CreateGameInput describes a new game.
type CreateGameInput struct {
	Name      string
	MapName   string
	Seats     []Seat
	Durations Durations
}

// GameService handles game creation and read access to game history.
type GameService struct {
	gameRepo  repository.GameRepository
	phaseRepo repository.PhaseRepository
	cache     repository.GameCache
	defaults  Durations
	now       func() time.Time
}

// NewGameService creates a GameService. Zero fields of defaults fall back to
// DefaultDurations.
func NewGameService(gameRepo repository.GameRepository, phaseRepo repository.PhaseRepository, cache repository.GameCache, defaults Durations) *GameService {
	return &GameService{
		gameRepo:  gameRepo,
		phaseRepo: phaseRepo,
		cache:     cache,
		defaults:  defaults.orDefault(DefaultDurations),
		now:       time.Now,
	}
}

// CreateGame seats the players, stores the opening board as the first phase,
// and starts its timer. Factions left unseated keep their units, which hold
// every turn.
func (s *GameService) CreateGame(ctx context.Context, in CreateGameInput) (*model.Game, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidGame)
	}
	topo, err := starlane.MapByName(in.MapName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGame, err)
	}
	if err := checkSeats(in.Seats, topo); err != nil {
		return nil, err
	}
	dur := in.Durations.orDefault(s.defaults)

	g := &model.Game{
		Name:             name,
		MapName:          topo.Name(),
		Status:           model.StatusActive,
		MovementDuration: dur.Movement.String(),
		RetreatDuration:  dur.Retreat.String(),
		BuildDuration:    dur.Build.String(),
	}
	for _, seat := range in.Seats {
		g.Players = append(g.Players, model.GamePlayer{UserID: seat.UserID, Faction: strings.ToLower(seat.Faction)})
	}
	game, err := s.gameRepo.Create(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	board := starlane.NewInitialBoard(topo)
	boardJSON, err := json.Marshal(board)
	if err != nil {
		return nil, fmt.Errorf("marshal initial board: %w", err)
	}
	deadline := s.now().Add(dur.Movement)
	if _, err := s.phaseRepo.CreatePhase(ctx, game.ID, board.Year, string(board.Season), string(board.Phase), boardJSON, deadline); err != nil {
		return nil, fmt.Errorf("create first phase: %w", err)
	}
	if err := s.cache.SetBoard(ctx, game.ID, boardJSON); err != nil {
		return nil, fmt.Errorf("cache board: %w", err)
	}
	if err := s.cache.SetTimer(ctx, game.ID, deadline); err != nil {
		return nil, fmt.Errorf("set timer: %w", err)
	}

	log.Info().Str("gameId", game.ID).Str("map", game.MapName).
		Int("seats", len(game.Players)).Time("deadline", deadline).
		Msg("Game created")
	return game, nil
}

func checkSeats(seats []Seat, topo *starlane.Topology) error {
	if len(seats) == 0 {
		return fmt.Errorf("%w: at least one seat is required", ErrInvalidGame)
	}
	users := make(map[string]bool)
	factions := make(map[string]bool)
	for _, seat := range seats {
		f := strings.ToLower(seat.Faction)
		switch {
		case seat.UserID == "":
			return fmt.Errorf("%w: seat for %q has no user", ErrInvalidGame, seat.Faction)
		case !slices.Contains(topo.Factions(), starlane.Faction(f)):
			return fmt.Errorf("%w: %s has no faction %q", ErrInvalidGame, topo.Name(), seat.Faction)
		case factions[f]:
			return fmt.Errorf("%w: faction %s seated twice", ErrInvalidGame, f)
		case users[seat.UserID]:
			return fmt.Errorf("%w: user %s seated twice", ErrInvalidGame, seat.UserID)
		}
		users[seat.UserID] = true
		factions[f] = true
	}
	return nil
}

// GetGame returns a game with its seats.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// ListActiveGames returns every game that is still being played.
func (s *GameService) ListActiveGames(ctx context.Context) ([]model.Game, error) {
	games, err := s.gameRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	return games, nil
}

// ListPhases returns every phase of a game, oldest first.
func (s *GameService) ListPhases(ctx context.Context, gameID string) ([]model.Phase, error) {
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.phaseRepo.ListPhases(ctx, gameID)
}

// BoardView is the live board of a game together with the phase it belongs to.
type BoardView struct {
	Phase *model.Phase    `json:"phase"`
	Board json.RawMessage `json:"board"`
}

// CurrentBoard returns the board of the open phase, preferring the cached copy.
func (s *GameService) CurrentBoard(ctx context.Context, gameID string) (*BoardView, error) {
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	phase, err := s.phaseRepo.CurrentPhase(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("current phase: %w", err)
	}
	if phase == nil {
		return nil, ErrNoActivePhase
	}
	board, err := s.cache.GetBoard(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Cached board unavailable, using stored board")
	}
	if board == nil {
		board = phase.BoardBefore
	}
	return &BoardView{Phase: phase, Board: board}, nil
}

// ResultLine is a result record with its display text.
type ResultLine struct {
	starlane.Result
	Text string `json:"text"`
}

// PhaseResults is the resolved record of one phase.
type PhaseResults struct {
	Phase  *model.Phase  `json:"phase"`
	Orders []model.Order `json:"orders"`
	Log    []ResultLine  `json:"log"`
}

// PhaseResults returns the submitted orders and result log of a resolved phase.
// An unresolved phase yields an empty log.
func (s *GameService) PhaseResults(ctx context.Context, gameID, phaseID string) (*PhaseResults, error) {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	phase, err := s.phaseRepo.FindPhase(ctx, phaseID)
	if err != nil {
		return nil, fmt.Errorf("find phase: %w", err)
	}
	if phase == nil || phase.GameID != gameID {
		return nil, ErrPhaseNotFound
	}
	orders, err := s.phaseRepo.OrdersByPhase(ctx, phaseID)
	if err != nil {
		return nil, fmt.Errorf("orders by phase: %w", err)
	}
	out := &PhaseResults{Phase: phase, Orders: orders}
	if len(phase.Results) == 0 {
		return out, nil
	}

	var results starlane.Log
	if err := json.Unmarshal(phase.Results, &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	topo, err := starlane.MapByName(game.MapName)
	if err != nil {
		return nil, err
	}
	out.Log = resultLines(results, topo)
	return out, nil
}

func resultLines(l starlane.Log, topo *starlane.Topology) []ResultLine {
	lines := make([]ResultLine, 0, len(l))
	for _, r := range l {
		lines = append(lines, ResultLine{Result: r, Text: starlane.FormatResult(r, topo)})
	}
	return lines
}
