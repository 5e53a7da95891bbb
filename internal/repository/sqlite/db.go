// Package sqlite stores game and phase history in an embedded SQLite file.
// It backs single-node servers and the lanectl history log.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/freeeve/starlane/internal/model"
)

// DB implements repository.Store on SQLite.
type DB struct {
	conn *sqlx.DB
	now  func() time.Time
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; also keeps every query on the same connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, now: time.Now}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		map_name TEXT NOT NULL,
		status TEXT NOT NULL,
		winner TEXT,
		movement_duration TEXT NOT NULL,
		retreat_duration TEXT NOT NULL,
		build_duration TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS game_players (
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		faction TEXT NOT NULL,
		seat INTEGER NOT NULL,
		joined_at INTEGER NOT NULL,
		PRIMARY KEY (game_id, user_id),
		UNIQUE (game_id, faction)
	);

	CREATE TABLE IF NOT EXISTS phases (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		year INTEGER NOT NULL,
		season TEXT NOT NULL,
		phase_type TEXT NOT NULL,
		board_before TEXT NOT NULL,
		board_after TEXT,
		results TEXT,
		resolution_id TEXT,
		deadline INTEGER NOT NULL,
		resolved_at INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		phase_id TEXT NOT NULL REFERENCES phases(id) ON DELETE CASCADE,
		faction TEXT NOT NULL,
		text TEXT NOT NULL,
		result TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_phases_game ON phases(game_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_orders_phase ON orders(phase_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Times are stored as unix milliseconds.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type gameRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	MapName          string         `db:"map_name"`
	Status           string         `db:"status"`
	Winner           sql.NullString `db:"winner"`
	MovementDuration string         `db:"movement_duration"`
	RetreatDuration  string         `db:"retreat_duration"`
	BuildDuration    string         `db:"build_duration"`
	CreatedAt        int64          `db:"created_at"`
	FinishedAt       sql.NullInt64  `db:"finished_at"`
}

func (r gameRow) model() model.Game {
	return model.Game{
		ID:               r.ID,
		Name:             r.Name,
		MapName:          r.MapName,
		Status:           r.Status,
		Winner:           r.Winner.String,
		MovementDuration: r.MovementDuration,
		RetreatDuration:  r.RetreatDuration,
		BuildDuration:    r.BuildDuration,
		CreatedAt:        fromMillis(r.CreatedAt),
		FinishedAt:       fromNullMillis(r.FinishedAt),
	}
}

type playerRow struct {
	GameID   string `db:"game_id"`
	UserID   string `db:"user_id"`
	Faction  string `db:"faction"`
	JoinedAt int64  `db:"joined_at"`
}

type phaseRow struct {
	ID           string         `db:"id"`
	GameID       string         `db:"game_id"`
	Year         int            `db:"year"`
	Season       string         `db:"season"`
	PhaseType    string         `db:"phase_type"`
	BoardBefore  string         `db:"board_before"`
	BoardAfter   sql.NullString `db:"board_after"`
	Results      sql.NullString `db:"results"`
	ResolutionID sql.NullString `db:"resolution_id"`
	Deadline     int64          `db:"deadline"`
	ResolvedAt   sql.NullInt64  `db:"resolved_at"`
	CreatedAt    int64          `db:"created_at"`
}

func (r phaseRow) model() model.Phase {
	p := model.Phase{
		ID:           r.ID,
		GameID:       r.GameID,
		Year:         r.Year,
		Season:       r.Season,
		PhaseType:    r.PhaseType,
		BoardBefore:  json.RawMessage(r.BoardBefore),
		ResolutionID: r.ResolutionID.String,
		Deadline:     fromMillis(r.Deadline),
		ResolvedAt:   fromNullMillis(r.ResolvedAt),
		CreatedAt:    fromMillis(r.CreatedAt),
	}
	if r.BoardAfter.Valid {
		p.BoardAfter = json.RawMessage(r.BoardAfter.String)
	}
	if r.Results.Valid {
		p.Results = json.RawMessage(r.Results.String)
	}
	return p
}

func phases(rows []phaseRow) []model.Phase {
	out := make([]model.Phase, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

// Create inserts a new active game together with its seats.
func (db *DB) Create(ctx context.Context, g *model.Game) (*model.Game, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	out := *g
	out.ID = uuid.NewString()
	out.Status = model.StatusActive
	out.CreatedAt = db.now().UTC().Truncate(time.Millisecond)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO games (id, name, map_name, status, movement_duration, retreat_duration, build_duration, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Name, out.MapName, out.Status, out.MovementDuration, out.RetreatDuration, out.BuildDuration,
		toMillis(out.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO game_players (game_id, user_id, faction, seat, joined_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare seat: %w", err)
	}
	defer stmt.Close()

	out.Players = nil
	for i, p := range g.Players {
		p.GameID, p.JoinedAt = out.ID, out.CreatedAt
		if _, err := stmt.ExecContext(ctx, p.GameID, p.UserID, p.Faction, i, toMillis(p.JoinedAt)); err != nil {
			return nil, fmt.Errorf("seat %s: %w", p.Faction, err)
		}
		out.Players = append(out.Players, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit game: %w", err)
	}
	return &out, nil
}

// FindByID returns a game by ID with its players, or nil if absent.
func (db *DB) FindByID(ctx context.Context, id string) (*model.Game, error) {
	var row gameRow
	err := db.conn.GetContext(ctx, &row, `SELECT * FROM games WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	g := row.model()
	if g.Players, err = db.listPlayers(ctx, id); err != nil {
		return nil, err
	}
	return &g, nil
}

func (db *DB) listPlayers(ctx context.Context, gameID string) ([]model.GamePlayer, error) {
	var rows []playerRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT game_id, user_id, faction, joined_at FROM game_players WHERE game_id = ? ORDER BY seat`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	players := make([]model.GamePlayer, 0, len(rows))
	for _, r := range rows {
		players = append(players, model.GamePlayer{
			GameID: r.GameID, UserID: r.UserID, Faction: r.Faction, JoinedAt: fromMillis(r.JoinedAt),
		})
	}
	return players, nil
}

// ListActive returns all active games with their players.
func (db *DB) ListActive(ctx context.Context) ([]model.Game, error) {
	var rows []gameRow
	if err := db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM games WHERE status = 'active' ORDER BY created_at, rowid`); err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	games := make([]model.Game, 0, len(rows))
	for _, r := range rows {
		g := r.model()
		var err error
		if g.Players, err = db.listPlayers(ctx, g.ID); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

// SetFinished ends a game. An empty winner records a game without a solo victor.
func (db *DB) SetFinished(ctx context.Context, gameID, winner string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE games SET status = 'finished', winner = ?, finished_at = ? WHERE id = ?`,
		nullStr(winner), toMillis(db.now()), gameID)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

// CreatePhase inserts a new phase.
func (db *DB) CreatePhase(ctx context.Context, gameID string, year int, season, phaseType string, boardBefore json.RawMessage, deadline time.Time) (*model.Phase, error) {
	row := phaseRow{
		ID:          uuid.NewString(),
		GameID:      gameID,
		Year:        year,
		Season:      season,
		PhaseType:   phaseType,
		BoardBefore: string(boardBefore),
		Deadline:    toMillis(deadline),
		CreatedAt:   toMillis(db.now()),
	}
	_, err := db.conn.NamedExecContext(ctx,
		`INSERT INTO phases (id, game_id, year, season, phase_type, board_before, deadline, created_at)
		 VALUES (:id, :game_id, :year, :season, :phase_type, :board_before, :deadline, :created_at)`, row)
	if err != nil {
		return nil, fmt.Errorf("create phase: %w", err)
	}
	p := row.model()
	return &p, nil
}

// CurrentPhase returns the latest unresolved phase for a game, or nil.
func (db *DB) CurrentPhase(ctx context.Context, gameID string) (*model.Phase, error) {
	var row phaseRow
	err := db.conn.GetContext(ctx, &row,
		`SELECT * FROM phases WHERE game_id = ? AND resolved_at IS NULL
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current phase: %w", err)
	}
	p := row.model()
	return &p, nil
}

// FindPhase returns a phase by ID, or nil.
func (db *DB) FindPhase(ctx context.Context, phaseID string) (*model.Phase, error) {
	var row phaseRow
	err := db.conn.GetContext(ctx, &row, `SELECT * FROM phases WHERE id = ?`, phaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find phase: %w", err)
	}
	p := row.model()
	return &p, nil
}

// ListPhases returns all phases for a game in chronological order.
func (db *DB) ListPhases(ctx context.Context, gameID string) ([]model.Phase, error) {
	var rows []phaseRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM phases WHERE game_id = ?
		 ORDER BY year,
		   CASE season WHEN 'spring' THEN 1 WHEN 'fall' THEN 2 ELSE 3 END,
		   CASE phase_type WHEN 'movement' THEN 1 WHEN 'retreat' THEN 2 WHEN 'build' THEN 3 ELSE 4 END`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	return phases(rows), nil
}

// ResolvePhase marks a phase resolved and records the resulting board and log.
// A phase resolves once; a second call reports sql.ErrNoRows.
func (db *DB) ResolvePhase(ctx context.Context, phaseID, resolutionID string, boardAfter, results json.RawMessage) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE phases SET board_after = ?, results = ?, resolution_id = ?, resolved_at = ?
		 WHERE id = ? AND resolved_at IS NULL`,
		nullStr(string(boardAfter)), nullStr(string(results)), nullStr(resolutionID), toMillis(db.now()), phaseID)
	if err != nil {
		return fmt.Errorf("resolve phase: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("resolve phase %s: %w", phaseID, sql.ErrNoRows)
	}
	return nil
}

// SaveOrders inserts a batch of orders for a phase.
func (db *DB) SaveOrders(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO orders (id, phase_id, faction, text, result, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert order: %w", err)
	}
	defer stmt.Close()

	now := toMillis(db.now())
	for _, o := range orders {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), o.PhaseID, o.Faction, o.Text, nullStr(o.Result), now); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	return tx.Commit()
}

type orderRow struct {
	ID        string         `db:"id"`
	PhaseID   string         `db:"phase_id"`
	Faction   string         `db:"faction"`
	Text      string         `db:"text"`
	Result    sql.NullString `db:"result"`
	CreatedAt int64          `db:"created_at"`
}

// OrdersByPhase returns all orders for a phase.
func (db *DB) OrdersByPhase(ctx context.Context, phaseID string) ([]model.Order, error) {
	var rows []orderRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT * FROM orders WHERE phase_id = ? ORDER BY faction, created_at, rowid`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("orders by phase: %w", err)
	}
	orders := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, model.Order{
			ID: r.ID, PhaseID: r.PhaseID, Faction: r.Faction, Text: r.Text,
			Result: r.Result.String, CreatedAt: fromMillis(r.CreatedAt),
		})
	}
	return orders, nil
}

// ListExpired returns the latest unresolved phase per active game whose
// deadline has passed.
func (db *DB) ListExpired(ctx context.Context) ([]model.Phase, error) {
	var rows []phaseRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT p.* FROM phases p
		 JOIN games g ON g.id = p.game_id
		 WHERE p.resolved_at IS NULL AND p.deadline < ? AND g.status = 'active'
		   AND p.rowid = (SELECT q.rowid FROM phases q
		                  WHERE q.game_id = p.game_id AND q.resolved_at IS NULL
		                  ORDER BY q.created_at DESC, q.rowid DESC LIMIT 1)
		 ORDER BY p.game_id`, toMillis(db.now()))
	if err != nil {
		return nil, fmt.Errorf("list expired phases: %w", err)
	}
	return phases(rows), nil
}
