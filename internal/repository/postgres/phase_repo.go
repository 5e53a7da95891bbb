package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freeeve/starlane/internal/model"
)

// PhaseRepo handles phase and order database operations.
type PhaseRepo struct {
	db *sql.DB
}

// NewPhaseRepo creates a PhaseRepo.
func NewPhaseRepo(db *sql.DB) *PhaseRepo {
	return &PhaseRepo{db: db}
}

const phaseColumns = `id, game_id, year, season, phase_type, board_before, board_after, results,
	resolution_id, deadline, resolved_at, created_at`

func scanPhase(row rowScanner) (model.Phase, error) {
	var p model.Phase
	var before []byte
	var after, results, resolutionID sql.NullString
	err := row.Scan(&p.ID, &p.GameID, &p.Year, &p.Season, &p.PhaseType, &before, &after, &results,
		&resolutionID, &p.Deadline, &p.ResolvedAt, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.BoardBefore = json.RawMessage(before)
	if after.Valid {
		p.BoardAfter = json.RawMessage(after.String)
	}
	if results.Valid {
		p.Results = json.RawMessage(results.String)
	}
	p.ResolutionID = resolutionID.String
	return p, nil
}

// CreatePhase inserts a new phase.
func (r *PhaseRepo) CreatePhase(ctx context.Context, gameID string, year int, season, phaseType string, boardBefore json.RawMessage, deadline time.Time) (*model.Phase, error) {
	p, err := scanPhase(r.db.QueryRowContext(ctx,
		`INSERT INTO phases (game_id, year, season, phase_type, board_before, deadline)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+phaseColumns,
		gameID, year, season, phaseType, string(boardBefore), deadline,
	))
	if err != nil {
		return nil, fmt.Errorf("create phase: %w", err)
	}
	return &p, nil
}

// CurrentPhase returns the latest unresolved phase for a game, or nil.
func (r *PhaseRepo) CurrentPhase(ctx context.Context, gameID string) (*model.Phase, error) {
	p, err := scanPhase(r.db.QueryRowContext(ctx,
		`SELECT `+phaseColumns+` FROM phases WHERE game_id = $1 AND resolved_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`, gameID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current phase: %w", err)
	}
	return &p, nil
}

// FindPhase returns a phase by ID, or nil.
func (r *PhaseRepo) FindPhase(ctx context.Context, phaseID string) (*model.Phase, error) {
	p, err := scanPhase(r.db.QueryRowContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE id = $1`, phaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find phase: %w", err)
	}
	return &p, nil
}

// ListPhases returns all phases for a game in chronological order.
func (r *PhaseRepo) ListPhases(ctx context.Context, gameID string) ([]model.Phase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+phaseColumns+` FROM phases WHERE game_id = $1
		 ORDER BY year,
		   CASE season WHEN 'spring' THEN 1 WHEN 'fall' THEN 2 ELSE 3 END,
		   CASE phase_type WHEN 'movement' THEN 1 WHEN 'retreat' THEN 2 WHEN 'build' THEN 3 ELSE 4 END`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer rows.Close()

	var phases []model.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

// ResolvePhase marks a phase resolved and records the resulting board and log.
// A phase resolves once; a second call reports sql.ErrNoRows.
func (r *PhaseRepo) ResolvePhase(ctx context.Context, phaseID, resolutionID string, boardAfter, results json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE phases SET board_after = $1, results = $2, resolution_id = $3, resolved_at = now()
		 WHERE id = $4 AND resolved_at IS NULL`,
		nullJSON(boardAfter), nullJSON(results), nullStr(resolutionID), phaseID,
	)
	if err != nil {
		return fmt.Errorf("resolve phase: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("resolve phase %s: %w", phaseID, sql.ErrNoRows)
	}
	return nil
}

// SaveOrders inserts a batch of orders for a phase.
func (r *PhaseRepo) SaveOrders(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO orders (phase_id, faction, text, result) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert order: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		if _, err := stmt.ExecContext(ctx, o.PhaseID, o.Faction, o.Text, nullStr(o.Result)); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	return tx.Commit()
}

// OrdersByPhase returns all orders for a phase.
func (r *PhaseRepo) OrdersByPhase(ctx context.Context, phaseID string) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, phase_id, faction, text, result, created_at
		 FROM orders WHERE phase_id = $1 ORDER BY faction, created_at, id`, phaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("orders by phase: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var result sql.NullString
		if err := rows.Scan(&o.ID, &o.PhaseID, &o.Faction, &o.Text, &result, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Result = result.String
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListExpired returns the latest unresolved phase per active game whose
// deadline has passed.
func (r *PhaseRepo) ListExpired(ctx context.Context) ([]model.Phase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (p.game_id) p.id, p.game_id, p.year, p.season, p.phase_type, p.board_before,
		        p.board_after, p.results, p.resolution_id, p.deadline, p.resolved_at, p.created_at
		 FROM phases p
		 JOIN games g ON g.id = p.game_id
		 WHERE p.resolved_at IS NULL AND p.deadline < now() AND g.status = 'active'
		 ORDER BY p.game_id, p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expired phases: %w", err)
	}
	defer rows.Close()

	var phases []model.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired phase: %w", err)
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}
