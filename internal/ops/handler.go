// Package ops is the operational HTTP API: health, read-only inspection of
// guild documents, and snapshot restore. It serves operators, not Discord users.
package ops

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/scheduler"
	"github.com/aqzsshi/esser-bot/internal/store"
	"github.com/aqzsshi/esser-bot/pkg/redis"
	"github.com/aqzsshi/esser-bot/pkg/response"
	"github.com/aqzsshi/esser-bot/pkg/storage"
)

type Handler struct {
	pool      *pgxpool.Pool
	cache     *redis.Client
	store     *store.Store
	scheduler *scheduler.Scheduler
	s3        *storage.S3 // nil when snapshot storage is not configured
	logger    *zap.Logger
}

func NewHandler(pool *pgxpool.Pool, cache *redis.Client, st *store.Store, sched *scheduler.Scheduler, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{pool: pool, cache: cache, store: st, scheduler: sched, s3: s3, logger: logger}
}

// RegisterRoutes mounts the inspection and snapshot endpoints on the
// authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/guilds", h.listGuilds)
	r.GET("/guilds/:id", h.getGuild)
	r.GET("/guilds/:id/contracts", h.listContracts)
	r.GET("/guilds/:id/snapshots", h.listSnapshots)
	r.POST("/guilds/:id/snapshots/restore", h.restoreSnapshot)
	r.DELETE("/guilds/:id/snapshots", h.deleteSnapshot)
}

// Health reports dependency status; mounted unauthenticated.
func (h *Handler) Health(c *gin.Context) {
	status := gin.H{
		"status":         "ok",
		"pending_timers": h.scheduler.Pending(),
	}
	if err := h.pool.Ping(c.Request.Context()); err != nil {
		h.logger.Error("health: postgres ping failed", zap.Error(err))
		status["status"] = "degraded"
		status["postgres"] = "down"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["postgres"] = "up"
	if h.cache != nil {
		if err := h.cache.Ping(c.Request.Context()).Err(); err != nil {
			status["redis"] = "down"
		} else {
			status["redis"] = "up"
		}
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) listGuilds(c *gin.Context) {
	ids, err := h.store.GuildIDs(c.Request.Context())
	if err != nil {
		h.logger.Error("list guilds failed", zap.Error(err))
		response.Internal(c, "failed to list guilds")
		return
	}
	response.OK(c, gin.H{"guild_ids": ids, "count": len(ids)})
}

type orgSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Active  int    `json:"active_contracts"`
}

func (h *Handler) getGuild(c *gin.Context) {
	guildID := c.Param("id")
	state, err := h.store.Load(c.Request.Context(), guildID)
	if err != nil {
		h.logger.Error("load guild failed", zap.String("guild_id", guildID), zap.Error(err))
		response.Internal(c, "failed to load guild")
		return
	}

	orgs := make([]orgSummary, 0, len(state.Orgs))
	for _, o := range state.Orgs {
		orgs = append(orgs, orgSummary{
			ID:      o.ID,
			Name:    o.Name,
			Enabled: o.Enabled,
			Active:  len(state.ActiveContracts(o.ID)),
		})
	}
	response.OK(c, gin.H{
		"guild_id":       guildID,
		"schema_version": state.SchemaVersion,
		"orgs":           orgs,
		"contracts":      len(state.Contracts),
	})
}

func (h *Handler) listContracts(c *gin.Context) {
	guildID := c.Param("id")
	state, err := h.store.Load(c.Request.Context(), guildID)
	if err != nil {
		h.logger.Error("load guild failed", zap.String("guild_id", guildID), zap.Error(err))
		response.Internal(c, "failed to load guild")
		return
	}

	filter := models.ContractStatus(c.Query("status"))
	contracts := make([]*models.Contract, 0, len(state.Contracts))
	for _, ct := range state.Contracts {
		if filter != "" && ct.Status != filter {
			continue
		}
		contracts = append(contracts, ct)
	}
	response.OK(c, gin.H{"contracts": contracts, "count": len(contracts)})
}

// guildSnapshotKey reports whether key is a snapshot object of the given guild.
func guildSnapshotKey(key, guildID string) bool {
	return strings.HasPrefix(key, path.Join(storage.FolderSnapshots, guildID)+"/")
}

func (h *Handler) listSnapshots(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "snapshot storage is not configured")
		return
	}
	guildID := c.Param("id")
	keys, err := h.s3.ListSnapshots(c.Request.Context(), guildID)
	if err != nil {
		h.logger.Error("list snapshots failed", zap.String("guild_id", guildID), zap.Error(err))
		response.Internal(c, "failed to list snapshots")
		return
	}
	response.OK(c, gin.H{"guild_id": guildID, "keys": keys, "count": len(keys)})
}

type restoreRequest struct {
	Key string `json:"key" binding:"required"`
}

// restoreSnapshot replaces a guild's document with a stored snapshot and
// re-arms timers for contracts the snapshot holds as running.
func (h *Handler) restoreSnapshot(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "snapshot storage is not configured")
		return
	}
	guildID := c.Param("id")
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "key is required")
		return
	}
	if !guildSnapshotKey(req.Key, guildID) {
		response.BadRequest(c, "snapshot key does not belong to this guild")
		return
	}

	raw, err := h.s3.GetSnapshot(c.Request.Context(), req.Key)
	if err != nil {
		h.logger.Error("fetch snapshot failed", zap.String("key", req.Key), zap.Error(err))
		response.Internal(c, "failed to fetch snapshot")
		return
	}
	var state models.GuildState
	if err := json.Unmarshal(raw, &state); err != nil {
		response.BadRequest(c, "snapshot is not a valid guild document")
		return
	}
	if state.Contracts == nil {
		state.Contracts = make(map[string]*models.Contract)
	}

	if err := h.store.Save(c.Request.Context(), guildID, &state); err != nil {
		h.logger.Error("restore save failed", zap.String("guild_id", guildID), zap.Error(err))
		response.Internal(c, "failed to save restored document")
		return
	}
	rearmed := 0
	for _, ct := range state.Contracts {
		if ct.Status == models.StatusRunning {
			h.scheduler.Arm(guildID, ct)
			rearmed++
		}
	}
	h.logger.Info("guild restored from snapshot",
		zap.String("guild_id", guildID),
		zap.String("key", req.Key),
		zap.Int("rearmed_timers", rearmed))
	response.OK(c, gin.H{
		"guild_id":       guildID,
		"restored_from":  req.Key,
		"contracts":      len(state.Contracts),
		"rearmed_timers": rearmed,
	})
}

func (h *Handler) deleteSnapshot(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "snapshot storage is not configured")
		return
	}
	guildID := c.Param("id")
	key := c.Query("key")
	if key == "" {
		response.BadRequest(c, "key is required")
		return
	}
	if !guildSnapshotKey(key, guildID) {
		response.BadRequest(c, "snapshot key does not belong to this guild")
		return
	}
	if err := h.s3.DeleteSnapshot(c.Request.Context(), key); err != nil {
		h.logger.Error("delete snapshot failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to delete snapshot")
		return
	}
	response.OK(c, gin.H{"deleted": key})
}
