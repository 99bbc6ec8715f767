// Package cache keeps the read path for tournament rankings off the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/redis/go-redis/v9"
)

// RankingsCache stores the last computed ranking table per tournament.
// A miss returns (nil, false, nil).
type RankingsCache interface {
	Get(ctx context.Context, tournamentID int) ([]models.TournamentRanking, bool, error)
	Set(ctx context.Context, tournamentID int, rankings []models.TournamentRanking) error
	Invalidate(ctx context.Context, tournamentID int) error
}

func rankingsKey(tournamentID int) string {
	return fmt.Sprintf("rankings:tournament:%d", tournamentID)
}

type redisRankingsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClient parses url and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewRedisRankingsCache(rdb *redis.Client, ttl time.Duration) RankingsCache {
	return &redisRankingsCache{rdb: rdb, ttl: ttl}
}

func (c *redisRankingsCache) Get(ctx context.Context, tournamentID int) ([]models.TournamentRanking, bool, error) {
	raw, err := c.rdb.Get(ctx, rankingsKey(tournamentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rankings []models.TournamentRanking
	if err := json.Unmarshal(raw, &rankings); err != nil {
		return nil, false, fmt.Errorf("corrupt rankings cache entry: %w", err)
	}
	return rankings, true, nil
}

func (c *redisRankingsCache) Set(ctx context.Context, tournamentID int, rankings []models.TournamentRanking) error {
	raw, err := json.Marshal(rankings)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, rankingsKey(tournamentID), raw, c.ttl).Err()
}

func (c *redisRankingsCache) Invalidate(ctx context.Context, tournamentID int) error {
	return c.rdb.Del(ctx, rankingsKey(tournamentID)).Err()
}

// entry represents a cached value with expiration
type entry struct {
	value     []models.TournamentRanking
	expiresAt time.Time
}

// memoryRankingsCache is used when no redis is configured.
type memoryRankingsCache struct {
	mu    sync.RWMutex
	items map[string]*entry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryRankingsCache(ttl time.Duration) RankingsCache {
	return &memoryRankingsCache{items: map[string]*entry{}, ttl: ttl, now: time.Now}
}

func (c *memoryRankingsCache) Get(_ context.Context, tournamentID int) ([]models.TournamentRanking, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[rankingsKey(tournamentID)]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	out := make([]models.TournamentRanking, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (c *memoryRankingsCache) Set(_ context.Context, tournamentID int, rankings []models.TournamentRanking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]models.TournamentRanking, len(rankings))
	copy(stored, rankings)
	c.items[rankingsKey(tournamentID)] = &entry{value: stored, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *memoryRankingsCache) Invalidate(_ context.Context, tournamentID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, rankingsKey(tournamentID))
	return nil
}
