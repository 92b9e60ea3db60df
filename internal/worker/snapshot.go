// Package worker runs the background snapshot loop: periodic off-site copies
// of every guild document to S3.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/pkg/storage"
)

// Source is the read side of the guild store the snapshotter walks.
type Source interface {
	GuildIDs(ctx context.Context) ([]string, error)
	Load(ctx context.Context, guildID string) (*models.GuildState, error)
}

// Snapshotter uploads every guild document to S3 on a fixed interval.
type Snapshotter struct {
	source   Source
	s3       *storage.S3
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewSnapshotter(src Source, s3 *storage.S3, interval time.Duration, logger *zap.Logger) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{
		source:   src,
		s3:       s3,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run loops until the context is cancelled. The first sweep happens after one
// full interval, not at startup.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("snapshotter started",
		zap.Duration("interval", s.interval), zap.String("bucket", s.s3.Bucket()))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshotter stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep uploads one snapshot per guild. A failed guild is logged and skipped;
// the sweep never aborts early.
func (s *Snapshotter) sweep(ctx context.Context) {
	guildIDs, err := s.source.GuildIDs(ctx)
	if err != nil {
		s.logger.Error("snapshot sweep: list guilds failed", zap.Error(err))
		return
	}

	at := s.now()
	uploaded := 0
	for _, guildID := range guildIDs {
		if ctx.Err() != nil {
			return
		}
		if err := s.snapshotGuild(ctx, guildID, at); err != nil {
			s.logger.Error("snapshot failed", zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		uploaded++
	}
	s.logger.Info("snapshot sweep done", zap.Int("guilds", len(guildIDs)), zap.Int("uploaded", uploaded))
}

func (s *Snapshotter) snapshotGuild(ctx context.Context, guildID string, at time.Time) error {
	state, err := s.source.Load(ctx, guildID)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.s3.PutSnapshot(ctx, guildID, doc, at)
	return err
}
