package service

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastGameEvent(gameID string, eventType string, data any)
}

// NoopBroadcaster drops every event. Used by tests and the CLI.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastGameEvent(string, string, any) {}

// Event types sent to game subscribers.
const (
	EventOrdersSubmitted = "orders_submitted"
	EventPlayerReady     = "player_ready"
	EventPhaseResolved   = "phase_resolved"
	EventPhaseChanged    = "phase_changed"
	EventGameEnded       = "game_ended"
)
