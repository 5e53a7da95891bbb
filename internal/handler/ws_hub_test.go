package handler

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/freeeve/starlane/internal/service"
)

func newTestConn(userID string) *WSConn {
	return &WSConn{
		conn:   nil, // no real connection for hub tests
		userID: userID,
		send:   make(chan []byte, 256),
	}
}

func receive(t *testing.T, c *WSConn) (WSEvent, bool) {
	t.Helper()
	select {
	case msg := <-c.send:
		var event WSEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return event, true
	default:
		return WSEvent{}, false
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")

	hub.Register(c)
	if hub.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", hub.ConnectionCount())
	}
	hub.Unregister(c)
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	// A second unregister must not close the channel twice.
	hub.Unregister(c)
}

func TestHubBroadcastToGame(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("user-1")
	c2 := newTestConn("user-2")
	c3 := newTestConn("user-3") // not subscribed
	for _, c := range []*WSConn{c1, c2, c3} {
		hub.Register(c)
		defer hub.Unregister(c)
	}
	hub.Subscribe(c1, "game-1")
	hub.Subscribe(c2, "game-1")

	hub.BroadcastGameEvent("game-1", service.EventPhaseChanged, map[string]string{"season": "fall"})

	for _, c := range []*WSConn{c1, c2} {
		event, ok := receive(t, c)
		if !ok || event.Type != service.EventPhaseChanged || event.GameID != "game-1" {
			t.Errorf("%s got %+v (%v)", c.userID, event, ok)
		}
	}
	if _, ok := receive(t, c3); ok {
		t.Error("unsubscribed connection received an event")
	}
}

func TestHubReplaysLastResultOnSubscribe(t *testing.T) {
	hub := NewHub()
	early := newTestConn("early")
	hub.Register(early)
	hub.Subscribe(early, "game-1")

	hub.BroadcastGameEvent("game-1", service.EventPhaseResolved, map[string]any{"phase_id": "p1"})
	hub.BroadcastGameEvent("game-1", service.EventPhaseResolved, map[string]any{"phase_id": "p2"})
	hub.BroadcastGameEvent("game-1", service.EventPlayerReady, map[string]any{"ready_count": 1})

	late := newTestConn("late")
	hub.Register(late)
	hub.Subscribe(late, "game-1")

	event, ok := receive(t, late)
	if !ok || event.Type != service.EventPhaseResolved {
		t.Fatalf("late subscriber got %+v (%v)", event, ok)
	}
	if data, _ := event.Data.(map[string]any); data["phase_id"] != "p2" {
		t.Errorf("replayed %v, want the latest result", event.Data)
	}
	if _, ok := receive(t, late); ok {
		t.Error("only the result log should be replayed")
	}

	hub.BroadcastGameEvent("game-1", service.EventGameEnded, map[string]any{"winner": "terran"})
	after := newTestConn("after")
	hub.Register(after)
	hub.Subscribe(after, "game-1")
	if _, ok := receive(t, after); ok {
		t.Error("nothing should be replayed after the game ended")
	}
}

func TestHubUnregisterCleansUpSubscriptions(t *testing.T) {
	hub := NewHub()
	c := newTestConn("user-1")
	hub.Register(c)
	hub.Subscribe(c, "game-1")
	hub.Subscribe(c, "game-2")

	hub.Unregister(c)

	if hub.GameSubscriberCount("game-1") != 0 || hub.GameSubscriberCount("game-2") != 0 {
		t.Error("subscriptions should be removed on unregister")
	}
	// Subscribing a closed connection is ignored.
	hub.Subscribe(c, "game-1")
	if hub.GameSubscriberCount("game-1") != 0 {
		t.Error("unregistered connection was subscribed")
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestConn("user")
			hub.Register(c)
			hub.Subscribe(c, "game-1")
			hub.BroadcastGameEvent("game-1", service.EventPhaseResolved, nil)
			hub.Unsubscribe(c, "game-1")
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections after concurrent test, got %d", hub.ConnectionCount())
	}
}
