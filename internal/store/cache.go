package store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/pkg/redis"
)

// Cache is a read-through Redis cache of guild documents. Misses and Redis
// failures fall back to PostgreSQL; entries are refreshed on every save.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache creates a guild document cache. Returns nil when ttl is zero so
// callers can pass the result straight to store.New.
func NewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if client == nil || ttl <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(guildID string) string {
	return "guild:" + guildID
}

// Get returns the cached document for the guild, if present and decodable.
func (c *Cache) Get(ctx context.Context, guildID string) (*models.GuildState, bool) {
	raw, err := c.client.Get(ctx, cacheKey(guildID)).Bytes()
	if err != nil {
		return nil, false
	}
	var state models.GuildState
	if err := json.Unmarshal(raw, &state); err != nil {
		c.logger.Warn("guild cache decode failed", zap.String("guild_id", guildID), zap.Error(err))
		return nil, false
	}
	if state.Contracts == nil {
		state.Contracts = make(map[string]*models.Contract)
	}
	return &state, true
}

// Put stores the document with the configured TTL. When the write fails the
// key is evicted so readers fall back to the database instead of a stale entry.
func (c *Cache) Put(ctx context.Context, guildID string, state *models.GuildState) {
	raw, err := json.Marshal(state)
	if err != nil {
		c.logger.Warn("guild cache encode failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(guildID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("guild cache set failed", zap.String("guild_id", guildID), zap.Error(err))
		if delErr := c.client.Del(ctx, cacheKey(guildID)).Err(); delErr != nil {
			c.logger.Warn("guild cache evict failed", zap.String("guild_id", guildID), zap.Error(delErr))
		}
	}
}
