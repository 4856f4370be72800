package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"example.com/showtime/services/notifier/config"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const quarantineKey = "notifier:quarantine"

// Quarantine is the permanent skip-list for events whose URL the delivery
// channel rejected. Backed by a Redis set so restarts do not re-attempt a
// known-bad delivery; falls back to process memory when Redis is disabled.
type Quarantine struct {
	client  *redis.Client
	enabled bool

	mu    sync.RWMutex
	local map[string]struct{}
}

// NewQuarantine creates the quarantine store
func NewQuarantine(cfg config.RedisConfig) (*Quarantine, error) {
	q := &Quarantine{
		local: make(map[string]struct{}),
	}

	if !cfg.Enabled {
		return q, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	q.client = client
	q.enabled = true
	return q, nil
}

// Add permanently quarantines an event ID
func (q *Quarantine) Add(ctx context.Context, eventID string) {
	q.mu.Lock()
	q.local[eventID] = struct{}{}
	q.mu.Unlock()

	if !q.enabled {
		return
	}
	if err := q.client.SAdd(ctx, quarantineKey, eventID).Err(); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to persist quarantine entry, kept in memory only")
	}
}

// Contains reports whether an event ID is quarantined
func (q *Quarantine) Contains(ctx context.Context, eventID string) bool {
	q.mu.RLock()
	_, found := q.local[eventID]
	q.mu.RUnlock()
	if found {
		return true
	}

	if !q.enabled {
		return false
	}
	member, err := q.client.SIsMember(ctx, quarantineKey, eventID).Result()
	if err != nil {
		log.Debug().Err(err).Msg("Quarantine lookup failed, relying on in-memory set")
		return false
	}
	if member {
		// Warm the local set to skip the round trip next time
		q.mu.Lock()
		q.local[eventID] = struct{}{}
		q.mu.Unlock()
	}
	return member
}

// Size returns the number of locally known quarantined IDs
func (q *Quarantine) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.local)
}

// Close closes the Redis connection
func (q *Quarantine) Close() error {
	if !q.enabled || q.client == nil {
		return nil
	}
	return q.client.Close()
}
