// Package store persists per-guild documents. Each guild's organizations and
// contracts live in a single JSONB row loaded and saved whole; a per-guild
// mutex serializes read-modify-write so concurrent interaction events and
// timer callbacks cannot lose updates. PostgreSQL is the sole source of truth;
// Redis only caches documents between writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/models"
)

// db is the slice of pgxpool.Pool the store uses.
type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// documentCache is the read-through cache surface; *Cache implements it.
type documentCache interface {
	Get(ctx context.Context, guildID string) (*models.GuildState, bool)
	Put(ctx context.Context, guildID string, state *models.GuildState)
}

// Store loads and saves guild documents.
type Store struct {
	pool   db
	cache  documentCache // nil disables caching
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a guild document store. cache may be nil.
func New(pool *pgxpool.Pool, cache *Cache, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		pool:   pool,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
	if cache != nil {
		s.cache = cache
	}
	return s
}

// guildLock returns the mutex guarding one guild's document.
func (s *Store) guildLock(guildID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[guildID] = l
	}
	return l
}

// Load returns the guild's document, or a fresh empty one for an unseen guild.
func (s *Store) Load(ctx context.Context, guildID string) (*models.GuildState, error) {
	if s.cache != nil {
		if state, ok := s.cache.Get(ctx, guildID); ok {
			return state, nil
		}
	}

	state, err := s.loadDB(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, guildID, state)
	}
	return state, nil
}

// loadDB reads the document straight from PostgreSQL.
func (s *Store) loadDB(ctx context.Context, guildID string) (*models.GuildState, error) {
	const q = `SELECT doc FROM guild_states WHERE guild_id = $1`
	var raw []byte
	err := s.pool.QueryRow(ctx, q, guildID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewGuildState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}

	var state models.GuildState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode guild %s: %w", guildID, err)
	}
	if state.Contracts == nil {
		state.Contracts = make(map[string]*models.Contract)
	}
	return &state, nil
}

// Save writes the guild's whole document synchronously and refreshes the cache.
func (s *Store) Save(ctx context.Context, guildID string, state *models.GuildState) error {
	state.SchemaVersion = models.SchemaVersion
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode guild %s: %w", guildID, err)
	}

	const q = `INSERT INTO guild_states (guild_id, doc, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (guild_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, q, guildID, raw); err != nil {
		return fmt.Errorf("save guild %s: %w", guildID, err)
	}
	if s.cache != nil {
		s.cache.Put(ctx, guildID, state)
	}
	return nil
}

// Mutate runs fn against the guild's document under its lock and saves the
// result when fn succeeds. fn returning an error aborts without a write.
// The read bypasses the cache: a cache entry can lag a committed write when
// its refresh failed, and a read-modify-write starting from a stale document
// would silently drop that write.
func (s *Store) Mutate(ctx context.Context, guildID string, fn func(*models.GuildState) error) error {
	l := s.guildLock(guildID)
	l.Lock()
	defer l.Unlock()

	state, err := s.loadDB(ctx, guildID)
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.Save(ctx, guildID, state)
}

// GuildIDs lists every guild with a persisted document. Used for scheduler
// rehydration at startup and for snapshots.
func (s *Store) GuildIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT guild_id FROM guild_states ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
