package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/starlane/internal/model"
	"github.com/freeeve/starlane/pkg/starlane"
)

type mockGameRepo struct {
	mu    sync.Mutex
	games map[string]*model.Game
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{games: make(map[string]*model.Game)}
}

func (m *mockGameRepo) Create(_ context.Context, g *model.Game) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	cp.ID = fmt.Sprintf("game-%d", len(m.games)+1)
	cp.CreatedAt = time.Now()
	cp.Players = nil
	for _, p := range g.Players {
		p.GameID = cp.ID
		p.JoinedAt = cp.CreatedAt
		cp.Players = append(cp.Players, p)
	}
	m.games[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *mockGameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Game
	for _, g := range m.games {
		if g.Status == model.StatusActive {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockGameRepo) SetFinished(_ context.Context, gameID, winner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("game %s not found", gameID)
	}
	now := time.Now()
	g.Status = model.StatusFinished
	g.Winner = winner
	g.FinishedAt = &now
	return nil
}

type mockPhaseRepo struct {
	mu     sync.Mutex
	phases []*model.Phase
	orders []model.Order
}

func newMockPhaseRepo() *mockPhaseRepo {
	return &mockPhaseRepo{}
}

func (m *mockPhaseRepo) CreatePhase(_ context.Context, gameID string, year int, season, phaseType string, boardBefore json.RawMessage, deadline time.Time) (*model.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &model.Phase{
		ID:          fmt.Sprintf("phase-%d", len(m.phases)+1),
		GameID:      gameID,
		Year:        year,
		Season:      season,
		PhaseType:   phaseType,
		BoardBefore: boardBefore,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
	}
	m.phases = append(m.phases, p)
	cp := *p
	return &cp, nil
}

func (m *mockPhaseRepo) CurrentPhase(_ context.Context, gameID string) (*model.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.phases) - 1; i >= 0; i-- {
		p := m.phases[i]
		if p.GameID == gameID && p.ResolvedAt == nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockPhaseRepo) FindPhase(_ context.Context, phaseID string) (*model.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.phases {
		if p.ID == phaseID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockPhaseRepo) ListPhases(_ context.Context, gameID string) ([]model.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Phase
	for _, p := range m.phases {
		if p.GameID == gameID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPhaseRepo) ResolvePhase(_ context.Context, phaseID, resolutionID string, boardAfter, results json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.phases {
		if p.ID == phaseID {
			if p.ResolvedAt != nil {
				return fmt.Errorf("phase %s already resolved", phaseID)
			}
			now := time.Now()
			p.ResolvedAt = &now
			p.ResolutionID = resolutionID
			p.BoardAfter = boardAfter
			p.Results = results
			return nil
		}
	}
	return fmt.Errorf("phase %s not found", phaseID)
}

func (m *mockPhaseRepo) SaveOrders(_ context.Context, orders []model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		o.ID = fmt.Sprintf("order-%d", len(m.orders)+1)
		m.orders = append(m.orders, o)
	}
	return nil
}

func (m *mockPhaseRepo) OrdersByPhase(_ context.Context, phaseID string) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.PhaseID == phaseID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockPhaseRepo) ListExpired(_ context.Context) ([]model.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Phase
	now := time.Now()
	for _, p := range m.phases {
		if p.ResolvedAt == nil && p.Deadline.Before(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPhaseRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.phases)
}

type mockCache struct {
	mu      sync.Mutex
	boards  map[string]json.RawMessage
	orders  map[string]json.RawMessage // gameID:faction
	ready   map[string][]string
	timers  map[string]time.Time
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{
		boards: make(map[string]json.RawMessage),
		orders: make(map[string]json.RawMessage),
		ready:  make(map[string][]string),
		timers: make(map[string]time.Time),
	}
}

func (m *mockCache) SetBoard(_ context.Context, gameID string, board json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[gameID] = board
	return nil
}

func (m *mockCache) GetBoard(_ context.Context, gameID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boards[gameID], nil
}

func (m *mockCache) SetOrders(_ context.Context, gameID, faction string, orders json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[gameID+":"+faction] = orders
	return nil
}

func (m *mockCache) GetAllOrders(_ context.Context, gameID string, factions []string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage)
	for _, f := range factions {
		if o, ok := m.orders[gameID+":"+f]; ok {
			out[f] = o
		}
	}
	return out, nil
}

func (m *mockCache) MarkReady(_ context.Context, gameID, faction string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.ready[gameID], faction) {
		m.ready[gameID] = append(m.ready[gameID], faction)
	}
	return nil
}

func (m *mockCache) UnmarkReady(_ context.Context, gameID, faction string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready[gameID] = slices.DeleteFunc(m.ready[gameID], func(f string) bool { return f == faction })
	return nil
}

func (m *mockCache) ReadyFactions(_ context.Context, gameID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.ready[gameID]), nil
}

func (m *mockCache) SetTimer(_ context.Context, gameID string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[gameID] = deadline
	return nil
}

func (m *mockCache) ClearPhaseData(_ context.Context, gameID string, factions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range factions {
		delete(m.orders, gameID+":"+f)
	}
	delete(m.ready, gameID)
	delete(m.timers, gameID)
	return nil
}

func (m *mockCache) DeleteGameData(ctx context.Context, gameID string, factions []string) error {
	if err := m.ClearPhaseData(ctx, gameID, factions); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boards, gameID)
	m.deleted = append(m.deleted, gameID)
	return nil
}

func (m *mockCache) readyOf(gameID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.ready[gameID])
}

type mockModifiers struct {
	mu   sync.Mutex
	sets map[string]starlane.ModifierSet // phaseID
}

func newMockModifiers() *mockModifiers {
	return &mockModifiers{sets: make(map[string]starlane.ModifierSet)}
}

func (m *mockModifiers) SetModifiers(_ context.Context, _, phaseID string, set starlane.ModifierSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[phaseID] = set
	return nil
}

func (m *mockModifiers) Modifiers(_ context.Context, _, phaseID string) (*starlane.Modifiers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[phaseID]
	if !ok {
		return nil, nil
	}
	return set.Modifiers(), nil
}

type recordedEvent struct {
	gameID string
	kind   string
	data   any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{gameID: gameID, kind: eventType, data: data})
}

func (r *recordingBroadcaster) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.kind)
	}
	return out
}

type mockResolver struct {
	mu    sync.Mutex
	games []string
}

func (m *mockResolver) ResolvePhase(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games = append(m.games, gameID)
	return nil
}
