package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/starlane/pkg/starlane"
)

// SetModifiers stores the modifier set for one phase, keyed by phase id inside
// the game's modifier hash.
func (c *Client) SetModifiers(ctx context.Context, gameID, phaseID string, set starlane.ModifierSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal modifiers: %w", err)
	}
	return c.rdb.HSet(ctx, modifiersKey(gameID), phaseID, data).Err()
}

// Modifiers returns the modifiers for a phase, or nil when none were set.
func (c *Client) Modifiers(ctx context.Context, gameID, phaseID string) (*starlane.Modifiers, error) {
	data, err := c.rdb.HGet(ctx, modifiersKey(gameID), phaseID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get modifiers: %w", err)
	}
	var set starlane.ModifierSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode modifiers: %w", err)
	}
	return set.Modifiers(), nil
}
