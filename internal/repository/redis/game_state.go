package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for live phase data.
func boardKey(gameID string) string           { return "game:" + gameID + ":board" }
func ordersKey(gameID, faction string) string { return "game:" + gameID + ":orders:" + faction }
func readyKey(gameID string) string           { return "game:" + gameID + ":ready" }
func timerKey(gameID string) string           { return "game:" + gameID + ":timer" }
func modifiersKey(gameID string) string       { return "game:" + gameID + ":modifiers" }

// GameIDFromTimerKey extracts the game id from an expired timer key.
func GameIDFromTimerKey(key string) (string, bool) {
	const prefix, suffix = "game:", ":timer"
	if len(key) <= len(prefix)+len(suffix) || key[:len(prefix)] != prefix || key[len(key)-len(suffix):] != suffix {
		return "", false
	}
	return key[len(prefix) : len(key)-len(suffix)], true
}

// SetBoard stores the live board JSON.
func (c *Client) SetBoard(ctx context.Context, gameID string, board json.RawMessage) error {
	return c.rdb.Set(ctx, boardKey(gameID), []byte(board), 0).Err()
}

// GetBoard retrieves the live board JSON, or nil if none is cached.
func (c *Client) GetBoard(ctx context.Context, gameID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, boardKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	return json.RawMessage(data), nil
}

// SetOrders replaces a faction's orders for the current phase.
func (c *Client) SetOrders(ctx context.Context, gameID, faction string, orders json.RawMessage) error {
	return c.rdb.Set(ctx, ordersKey(gameID, faction), []byte(orders), 0).Err()
}

// GetAllOrders retrieves the orders of every listed faction that has submitted.
func (c *Client) GetAllOrders(ctx context.Context, gameID string, factions []string) (map[string]json.RawMessage, error) {
	result := make(map[string]json.RawMessage)
	if len(factions) == 0 {
		return result, nil
	}
	keys := make([]string, len(factions))
	for i, f := range factions {
		keys[i] = ordersKey(gameID, f)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			result[factions[i]] = json.RawMessage(s)
		}
	}
	return result, nil
}

// MarkReady adds a faction to the ready set for the game.
func (c *Client) MarkReady(ctx context.Context, gameID, faction string) error {
	return c.rdb.SAdd(ctx, readyKey(gameID), faction).Err()
}

// UnmarkReady removes a faction from the ready set.
func (c *Client) UnmarkReady(ctx context.Context, gameID, faction string) error {
	return c.rdb.SRem(ctx, readyKey(gameID), faction).Err()
}

// ReadyFactions returns the factions that have marked ready.
func (c *Client) ReadyFactions(ctx context.Context, gameID string) ([]string, error) {
	return c.rdb.SMembers(ctx, readyKey(gameID)).Result()
}

// phaseGracePeriod is the extra time after the displayed deadline before
// phase resolution triggers.
const phaseGracePeriod = 5 * time.Second

// SetTimer creates a timer key whose expiry triggers phase resolution through
// keyspace notifications.
func (c *Client) SetTimer(ctx context.Context, gameID string, deadline time.Time) error {
	ttl := time.Until(deadline) + phaseGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(gameID), deadline.Unix(), ttl).Err()
}

// ClearPhaseData removes orders, ready marks and the timer after a phase
// resolves.
func (c *Client) ClearPhaseData(ctx context.Context, gameID string, factions []string) error {
	keys := []string{readyKey(gameID), timerKey(gameID)}
	for _, f := range factions {
		keys = append(keys, ordersKey(gameID, f))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// DeleteGameData removes all live data for a finished game.
func (c *Client) DeleteGameData(ctx context.Context, gameID string, factions []string) error {
	keys := []string{boardKey(gameID), readyKey(gameID), timerKey(gameID), modifiersKey(gameID)}
	for _, f := range factions {
		keys = append(keys, ordersKey(gameID, f))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
