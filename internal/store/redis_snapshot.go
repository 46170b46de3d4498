// Package store persists position snapshots in Redis so the high-water mark
// and entry history survive process restarts. When Redis is unavailable it
// falls back to an in-memory cache so evaluation continues without
// interruption.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kraken-margin-engine/internal/position"
)

const (
	// snapshotKeyPrefix is the prefix for per-pair snapshot keys.
	// Format: engine:snapshot:{pair}
	snapshotKeyPrefix = "engine:snapshot"

	// snapshotTTL keeps stale snapshots from accumulating. Positions close
	// within hours or days; a week is generous.
	snapshotTTL = 7 * 24 * time.Hour
)

// Snapshot is the persisted slice of position state: only what cannot be
// rebuilt from raw fills on the next tick.
type Snapshot struct {
	Pair             string           `json:"pair"`
	Direction        string           `json:"direction"`
	HighWaterMarkPnL float64          `json:"high_water_mark_pnl"`
	Entries          []position.Entry `json:"entries"`
	OpenedAt         time.Time        `json:"opened_at"`
	SavedAt          time.Time        `json:"saved_at"`
}

// SnapshotRepository stores snapshots in Redis with an in-memory fallback
// cache when Redis is unavailable.
type SnapshotRepository struct {
	client         *redis.Client
	cache          map[string]*Snapshot
	cacheMu        sync.RWMutex
	redisAvailable atomic.Bool
	logger         zerolog.Logger
}

// NewSnapshotRepository creates the repository. A nil client means
// memory-only mode.
func NewSnapshotRepository(client *redis.Client, logger zerolog.Logger) *SnapshotRepository {
	repo := &SnapshotRepository{
		client: client,
		cache:  make(map[string]*Snapshot),
		logger: logger.With().Str("component", "snapshot_store").Logger(),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			repo.logger.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory cache")
			repo.redisAvailable.Store(false)
		} else {
			repo.logger.Info().Msg("Redis connected")
			repo.redisAvailable.Store(true)
		}
	} else {
		repo.logger.Info().Msg("no Redis client provided, using in-memory cache only")
		repo.redisAvailable.Store(false)
	}

	return repo
}

// RedisAvailable reports whether Redis was reachable on the last operation.
func (r *SnapshotRepository) RedisAvailable() bool {
	return r.redisAvailable.Load()
}

func snapshotKey(pair string) string {
	return fmt.Sprintf("%s:%s", snapshotKeyPrefix, pair)
}

// Save persists the snapshot. Always written to the in-memory cache; the
// Redis write is best effort and never fails the caller.
func (r *SnapshotRepository) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Pair == "" {
		return fmt.Errorf("invalid snapshot")
	}
	snap.SavedAt = time.Now()

	r.cacheMu.Lock()
	r.cache[snap.Pair] = snap
	r.cacheMu.Unlock()

	if r.client == nil {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(snap.Pair), data, snapshotTTL).Err(); err != nil {
		r.redisAvailable.Store(false)
		r.logger.Warn().Err(err).Str("pair", snap.Pair).Msg("Redis save failed, cached in memory")
		return nil
	}
	r.redisAvailable.Store(true)
	return nil
}

// Load retrieves the snapshot for a pair. Redis first, memory fallback; a
// missing snapshot returns nil, nil.
func (r *SnapshotRepository) Load(ctx context.Context, pair string) (*Snapshot, error) {
	if r.client != nil {
		data, err := r.client.Get(ctx, snapshotKey(pair)).Bytes()
		switch {
		case err == nil:
			r.redisAvailable.Store(true)
			var snap Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, fmt.Errorf("unmarshal snapshot: %w", err)
			}
			return &snap, nil
		case err == redis.Nil:
			r.redisAvailable.Store(true)
			return nil, nil
		default:
			r.redisAvailable.Store(false)
			r.logger.Warn().Err(err).Str("pair", pair).Msg("Redis load failed, trying memory cache")
		}
	}

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return r.cache[pair], nil
}

// Delete removes the snapshot when the position closes.
func (r *SnapshotRepository) Delete(ctx context.Context, pair string) error {
	r.cacheMu.Lock()
	delete(r.cache, pair)
	r.cacheMu.Unlock()

	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, snapshotKey(pair)).Err(); err != nil {
		r.redisAvailable.Store(false)
		r.logger.Warn().Err(err).Str("pair", pair).Msg("Redis delete failed")
	}
	return nil
}
