package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/freeeve/starlane/internal/model"
)

// GameRepo handles game and game_player database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

const gameColumns = `id, name, map_name, status, winner, movement_duration, retreat_duration, build_duration, created_at, finished_at`

// Create inserts a new active game together with its seats.
func (r *GameRepo) Create(ctx context.Context, g *model.Game) (*model.Game, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	out := *g
	out.Status = model.StatusActive
	err = tx.QueryRowContext(ctx,
		`INSERT INTO games (name, map_name, status, movement_duration, retreat_duration, build_duration)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		g.Name, g.MapName, out.Status, g.MovementDuration, g.RetreatDuration, g.BuildDuration,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	out.Players = nil
	for i, p := range g.Players {
		p.GameID = out.ID
		err := tx.QueryRowContext(ctx,
			`INSERT INTO game_players (game_id, user_id, faction, seat) VALUES ($1, $2, $3, $4)
			 RETURNING joined_at`,
			out.ID, p.UserID, p.Faction, i,
		).Scan(&p.JoinedAt)
		if err != nil {
			return nil, fmt.Errorf("seat %s: %w", p.Faction, err)
		}
		out.Players = append(out.Players, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit game: %w", err)
	}
	return &out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (model.Game, error) {
	var g model.Game
	var winner sql.NullString
	err := row.Scan(&g.ID, &g.Name, &g.MapName, &g.Status, &winner,
		&g.MovementDuration, &g.RetreatDuration, &g.BuildDuration, &g.CreatedAt, &g.FinishedAt)
	g.Winner = winner.String
	return g, err
}

// FindByID returns a game by ID with its players, or nil if absent.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	if g.Players, err = r.ListPlayers(ctx, id); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListPlayers returns the seats of a game in seat order.
func (r *GameRepo) ListPlayers(ctx context.Context, gameID string) ([]model.GamePlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, user_id, faction, joined_at FROM game_players WHERE game_id = $1 ORDER BY seat`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.GamePlayer
	for rows.Next() {
		var p model.GamePlayer
		if err := rows.Scan(&p.GameID, &p.UserID, &p.Faction, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// ListActive returns all active games with their players.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range games {
		if games[i].Players, err = r.ListPlayers(ctx, games[i].ID); err != nil {
			return nil, err
		}
	}
	return games, nil
}

// SetFinished ends a game. An empty winner records a game without a solo victor.
func (r *GameRepo) SetFinished(ctx context.Context, gameID, winner string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'finished', winner = $1, finished_at = now() WHERE id = $2`,
		nullStr(winner), gameID,
	)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}
