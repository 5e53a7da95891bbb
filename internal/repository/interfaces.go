package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/starlane/internal/model"
	"github.com/freeeve/starlane/pkg/starlane"
)

// GameRepository defines game and seat data operations.
type GameRepository interface {
	Create(ctx context.Context, g *model.Game) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)
	SetFinished(ctx context.Context, gameID, winner string) error
}

// PhaseRepository defines phase history operations.
type PhaseRepository interface {
	CreatePhase(ctx context.Context, gameID string, year int, season, phaseType string, boardBefore json.RawMessage, deadline time.Time) (*model.Phase, error)
	CurrentPhase(ctx context.Context, gameID string) (*model.Phase, error)
	FindPhase(ctx context.Context, phaseID string) (*model.Phase, error)
	ListPhases(ctx context.Context, gameID string) ([]model.Phase, error)
	ResolvePhase(ctx context.Context, phaseID, resolutionID string, boardAfter, results json.RawMessage) error
	SaveOrders(ctx context.Context, orders []model.Order) error
	OrdersByPhase(ctx context.Context, phaseID string) ([]model.Order, error)
	ListExpired(ctx context.Context) ([]model.Phase, error)
}

// Store bundles the durable repositories. Both the postgres and sqlite
// backends implement it.
type Store interface {
	GameRepository
	PhaseRepository
	Close() error
}

// GameCache defines live phase operations (Redis).
type GameCache interface {
	SetBoard(ctx context.Context, gameID string, board json.RawMessage) error
	GetBoard(ctx context.Context, gameID string) (json.RawMessage, error)
	SetOrders(ctx context.Context, gameID, faction string, orders json.RawMessage) error
	GetAllOrders(ctx context.Context, gameID string, factions []string) (map[string]json.RawMessage, error)
	MarkReady(ctx context.Context, gameID, faction string) error
	UnmarkReady(ctx context.Context, gameID, faction string) error
	ReadyFactions(ctx context.Context, gameID string) ([]string, error)
	SetTimer(ctx context.Context, gameID string, deadline time.Time) error
	ClearPhaseData(ctx context.Context, gameID string, factions []string) error
	DeleteGameData(ctx context.Context, gameID string, factions []string) error
}

// ModifierSource supplies the optional per-phase modifier set. A phase with no
// stored set resolves under plain rules.
type ModifierSource interface {
	SetModifiers(ctx context.Context, gameID, phaseID string, set starlane.ModifierSet) error
	Modifiers(ctx context.Context, gameID, phaseID string) (*starlane.Modifiers, error)
}
