// Package scheduler keeps one pending wake-up per running contract and fires
// the auto-finish transition when a contract's duration elapses. The timer
// table is derived state: it can always be rebuilt from the store's running
// contracts (Rehydrate), which main does at startup.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/models"
)

// FinishFunc is invoked when a contract's time elapses.
type FinishFunc func(guildID, contractID string)

// GuildSource is the slice of the store the scheduler needs for rehydration.
type GuildSource interface {
	GuildIDs(ctx context.Context) ([]string, error)
	Load(ctx context.Context, guildID string) (*models.GuildState, error)
}

// Scheduler maps contract ids to pending wake-ups (thread-safe).
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	finish FinishFunc
	logger *zap.Logger
}

// New creates an empty scheduler. SetFinisher must be called before Arm.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{timers: make(map[string]*time.Timer), logger: logger}
}

// SetFinisher installs the auto-finish callback. Set once at wiring time;
// breaks the construction cycle between engine and scheduler.
func (s *Scheduler) SetFinisher(fn FinishFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish = fn
}

// Arm schedules the auto-finish for a running contract, replacing any pending
// wake-up for the same id. A deadline already in the past (e.g. after a
// restart) fires immediately instead of scheduling.
func (s *Scheduler) Arm(guildID string, c *models.Contract) {
	if c.Status != models.StatusRunning || c.StartedAt == nil {
		return
	}
	delay := time.Until(c.Deadline())
	if delay <= 0 {
		s.logger.Info("contract deadline already passed, finishing now",
			zap.String("guild_id", guildID), zap.String("contract_id", c.ID))
		go s.fire(guildID, c.ID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[c.ID]; ok {
		old.Stop()
	}
	id := c.ID
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(guildID, id) })
	s.logger.Debug("wake-up armed",
		zap.String("guild_id", guildID), zap.String("contract_id", id), zap.Duration("delay", delay))
}

// Disarm cancels the pending wake-up if present. Safe to call when none exists.
func (s *Scheduler) Disarm(contractID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[contractID]; ok {
		t.Stop()
		delete(s.timers, contractID)
	}
}

// Rehydrate walks every guild document and arms all running contracts. Called
// once at startup so timers survive process restarts.
func (s *Scheduler) Rehydrate(ctx context.Context, src GuildSource) error {
	guildIDs, err := src.GuildIDs(ctx)
	if err != nil {
		return err
	}
	armed := 0
	for _, guildID := range guildIDs {
		state, err := src.Load(ctx, guildID)
		if err != nil {
			s.logger.Error("rehydrate: load guild failed", zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		for _, c := range state.Contracts {
			if c.Status == models.StatusRunning {
				s.Arm(guildID, c)
				armed++
			}
		}
	}
	s.logger.Info("scheduler rehydrated", zap.Int("running_contracts", armed))
	return nil
}

// Pending returns the number of armed wake-ups.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// StopAll cancels every pending wake-up. Used at shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) fire(guildID, contractID string) {
	s.mu.Lock()
	delete(s.timers, contractID)
	fn := s.finish
	s.mu.Unlock()
	if fn != nil {
		fn(guildID, contractID)
	}
}
