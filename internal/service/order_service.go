package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/starlane/internal/repository"
	"github.com/freeeve/starlane/pkg/starlane"
)

// OrderInput is one order in notation, as typed by a player.
type OrderInput struct {
	Text string `json:"text"`
}

// Rejection explains why one submitted order was not accepted.
type Rejection struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// SubmitResult reports the outcome of one submission. Accepted holds the
// normalized text of every order that will be resolved.
type SubmitResult struct {
	Faction  string      `json:"faction"`
	Phase    string      `json:"phase"`
	Accepted []string    `json:"accepted"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// OrderService handles order submission, validation and readiness.
type OrderService struct {
	gameRepo    repository.GameRepository
	phaseRepo   repository.PhaseRepository
	cache       repository.GameCache
	mods        repository.ModifierSource
	broadcaster Broadcaster
}

// NewOrderService creates an OrderService. mods may be nil, in which case
// every phase is validated under plain rules.
func NewOrderService(
	gameRepo repository.GameRepository,
	phaseRepo repository.PhaseRepository,
	cache repository.GameCache,
	mods repository.ModifierSource,
	broadcaster Broadcaster,
) *OrderService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &OrderService{gameRepo: gameRepo, phaseRepo: phaseRepo, cache: cache, mods: mods, broadcaster: broadcaster}
}

// SubmitOrders validates orders against the live board and stores the accepted
// ones in the cache, replacing the faction's previous submission. Invalid
// orders are reported back rather than failing the whole call.
func (s *OrderService) SubmitOrders(ctx context.Context, gameID, userID string, inputs []OrderInput) (*SubmitResult, error) {
	lg, err := loadLiveGame(ctx, s.gameRepo, s.phaseRepo, s.cache, gameID)
	if err != nil {
		return nil, err
	}
	faction := lg.game.FactionOf(userID)
	if faction == "" {
		return nil, ErrNotInGame
	}

	var check func(text string) (string, error)
	switch lg.board.Phase {
	case starlane.PhaseRetreat:
		check = s.retreatChecker(lg, faction)
	case starlane.PhaseBuild:
		check = s.buildChecker(lg, faction)
	default:
		mods, err := s.modifiers(ctx, lg)
		if err != nil {
			return nil, err
		}
		check = s.movementChecker(lg, faction, mods)
	}

	res := &SubmitResult{Faction: faction, Phase: string(lg.board.Phase), Accepted: []string{}}
	for _, in := range inputs {
		text := strings.TrimSpace(in.Text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		norm, err := check(text)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Text: text, Error: err.Error()})
			continue
		}
		res.Accepted = append(res.Accepted, norm)
	}

	ordersJSON, err := json.Marshal(res.Accepted)
	if err != nil {
		return nil, fmt.Errorf("marshal orders: %w", err)
	}
	if err := s.cache.SetOrders(ctx, gameID, faction, ordersJSON); err != nil {
		return nil, fmt.Errorf("cache orders: %w", err)
	}

	log.Info().Str("gameId", gameID).Str("faction", faction).
		Int("accepted", len(res.Accepted)).Int("rejected", len(res.Rejected)).
		Msg("Orders submitted")
	s.broadcaster.BroadcastGameEvent(gameID, EventOrdersSubmitted, map[string]any{
		"faction": faction,
		"count":   len(res.Accepted),
	})
	return res, nil
}

func (s *OrderService) modifiers(ctx context.Context, lg *liveGame) (*starlane.Modifiers, error) {
	if s.mods == nil {
		return nil, nil
	}
	mods, err := s.mods.Modifiers(ctx, lg.game.ID, lg.phase.ID)
	if err != nil {
		return nil, fmt.Errorf("load modifiers: %w", err)
	}
	return mods, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidOrder, err)
}

// movementChecker accepts at most one order per unit the faction holds at a
// position.
func (s *OrderService) movementChecker(lg *liveGame, faction string, mods *starlane.Modifiers) func(string) (string, error) {
	f := starlane.Faction(faction)
	used := make(map[starlane.Position]int)
	return func(text string) (string, error) {
		o, err := starlane.ParseOrder(f, text, lg.topo)
		if err != nil {
			return "", invalid(err)
		}
		if err := starlane.ValidateOrder(o, lg.board, lg.topo, mods); err != nil {
			return "", invalid(err)
		}
		if used[o.Location] >= unitsOwnedAt(lg.board, o.Location, f) {
			return "", invalid(errors.New("unit already has an order"))
		}
		used[o.Location]++
		return starlane.FormatOrder(o, lg.topo), nil
	}
}

func unitsOwnedAt(b *starlane.Board, p starlane.Position, f starlane.Faction) int {
	n := 0
	for _, u := range b.UnitsAt(p) {
		if u.Owner == f {
			n++
		}
	}
	return n
}

func (s *OrderService) retreatChecker(lg *liveGame, faction string) func(string) (string, error) {
	f := starlane.Faction(faction)
	used := make(map[starlane.Position]int)
	return func(text string) (string, error) {
		o, err := starlane.ParseRetreatOrder(f, text, lg.topo)
		if err != nil {
			return "", invalid(err)
		}
		if err := starlane.ValidateRetreatOrder(o, lg.board); err != nil {
			return "", invalid(err)
		}
		if used[o.From] >= dislodgedAt(lg.board, o.From, f) {
			return "", invalid(errors.New("unit already has an order"))
		}
		used[o.From]++
		return starlane.FormatRetreatOrder(o, lg.topo), nil
	}
}

func dislodgedAt(b *starlane.Board, p starlane.Position, f starlane.Faction) int {
	n := 0
	for _, d := range b.Dislodged {
		if d.From == p && d.Unit.Owner == f {
			n++
		}
	}
	return n
}

// buildChecker applies accepted orders to a scratch board so a faction cannot
// queue more adjustments than it owes.
func (s *OrderService) buildChecker(lg *liveGame, faction string) func(string) (string, error) {
	f := starlane.Faction(faction)
	scratch := lg.board.Clone()
	waived := 0
	return func(text string) (string, error) {
		o, err := starlane.ParseBuildOrder(f, text, lg.topo)
		if err != nil {
			return "", invalid(err)
		}
		if o.Type != starlane.DisbandUnit && starlane.BuildsOwed(scratch, f)-waived <= 0 {
			return "", invalid(starlane.ErrNoBuilds)
		}
		if err := starlane.ValidateBuildOrder(o, scratch, lg.topo); err != nil {
			return "", invalid(err)
		}
		switch o.Type {
		case starlane.WaiveBuild:
			waived++
		case starlane.BuildUnit:
			err = starlane.Build(scratch, lg.topo, f, o.Location, o.Kind)
		case starlane.DisbandUnit:
			err = starlane.Disband(scratch, f, o.Location)
		}
		if err != nil {
			return "", invalid(err)
		}
		return starlane.FormatBuildOrder(o, lg.topo), nil
	}
}

// MarkReady marks the caller's faction ready and reports how many active
// factions are ready out of how many.
func (s *OrderService) MarkReady(ctx context.Context, gameID, userID string) (ready, total int, err error) {
	lg, err := loadLiveGame(ctx, s.gameRepo, s.phaseRepo, s.cache, gameID)
	if err != nil {
		return 0, 0, err
	}
	faction := lg.game.FactionOf(userID)
	if faction == "" {
		return 0, 0, ErrNotInGame
	}
	if err := s.cache.MarkReady(ctx, gameID, faction); err != nil {
		return 0, 0, fmt.Errorf("mark ready: %w", err)
	}
	ready, total, err = readiness(ctx, s.cache, lg)
	if err != nil {
		return 0, 0, err
	}
	s.broadcaster.BroadcastGameEvent(gameID, EventPlayerReady, map[string]any{
		"faction":        faction,
		"ready_count":    ready,
		"total_factions": total,
	})
	return ready, total, nil
}

// UnmarkReady withdraws the caller's ready mark.
func (s *OrderService) UnmarkReady(ctx context.Context, gameID, userID string) error {
	lg, err := loadLiveGame(ctx, s.gameRepo, s.phaseRepo, s.cache, gameID)
	if err != nil {
		return err
	}
	faction := lg.game.FactionOf(userID)
	if faction == "" {
		return ErrNotInGame
	}
	return s.cache.UnmarkReady(ctx, gameID, faction)
}

// Orders returns the caller's stored orders for the open phase.
func (s *OrderService) Orders(ctx context.Context, gameID, userID string) ([]string, error) {
	lg, err := loadLiveGame(ctx, s.gameRepo, s.phaseRepo, s.cache, gameID)
	if err != nil {
		return nil, err
	}
	faction := lg.game.FactionOf(userID)
	if faction == "" {
		return nil, ErrNotInGame
	}
	all, err := s.cache.GetAllOrders(ctx, gameID, []string{faction})
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	out := []string{}
	if raw, ok := all[faction]; ok {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode orders: %w", err)
		}
	}
	return out, nil
}
