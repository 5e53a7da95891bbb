package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/starlane/internal/repository"
	redisrepo "github.com/freeeve/starlane/internal/repository/redis"
)

// ExpirySource delivers Redis key expiry events.
type ExpirySource interface {
	SubscribeExpired(ctx context.Context) *redis.PubSub
}

// PhaseResolver resolves the open phase of a game whose deadline passed.
type PhaseResolver interface {
	ResolvePhase(ctx context.Context, gameID string) error
}

// TimerListener triggers phase resolution when a game's timer key expires.
// A poller over the durable store catches expirations the keyspace
// notifications miss, such as those during a restart.
type TimerListener struct {
	events    ExpirySource
	resolver  PhaseResolver
	phaseRepo repository.PhaseRepository
	interval  time.Duration
}

// NewTimerListener creates a TimerListener polling every 10 seconds. events
// may be nil, leaving only the poller.
func NewTimerListener(events ExpirySource, resolver PhaseResolver, phaseRepo repository.PhaseRepository) *TimerListener {
	return &TimerListener{events: events, resolver: resolver, phaseRepo: phaseRepo, interval: 10 * time.Second}
}

// Start begins listening for expired key events and runs the poller. It
// blocks until ctx is done.
func (t *TimerListener) Start(ctx context.Context) {
	if t.events != nil {
		go t.listenKeyspace(ctx)
	}
	t.pollExpiredPhases(ctx)
}

func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.events.SubscribeExpired(ctx)
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

func (t *TimerListener) pollExpiredPhases(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("Phase deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Phase deadline poller stopped")
			return
		case <-ticker.C:
			t.checkExpiredPhases(ctx)
		}
	}
}

// checkExpiredPhases resolves every open phase past its deadline.
func (t *TimerListener) checkExpiredPhases(ctx context.Context) {
	phases, err := t.phaseRepo.ListExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired phases")
		return
	}
	if len(phases) > 0 {
		log.Info().Int("count", len(phases)).Msg("Poller found expired phases")
	}
	for _, p := range phases {
		log.Info().Str("gameId", p.GameID).Str("phaseType", p.PhaseType).
			Int("year", p.Year).Str("season", p.Season).
			Time("deadline", p.Deadline).Msg("Poller resolving expired phase")
		if err := t.resolver.ResolvePhase(ctx, p.GameID); err != nil {
			log.Error().Err(err).Str("gameId", p.GameID).Msg("Phase resolution failed from poller")
		}
	}
}

// handleExpiry acts only on game timer keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	gameID, ok := redisrepo.GameIDFromTimerKey(key)
	if !ok {
		return
	}
	log.Info().Str("gameId", gameID).Msg("Timer expired, triggering phase resolution")
	if err := t.resolver.ResolvePhase(ctx, gameID); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Phase resolution failed after timer expiry")
	}
}
