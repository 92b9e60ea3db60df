// Package contracts implements the contract lifecycle: creation, participant
// management, the collecting/running/finished/cancelled state machine and its
// timer-driven auto-finish. Every transition performs one store write, then
// edits the contract's notification card in place and, for management
// actions, appends an audit-log entry. Failures after the committed write are
// logged, never rolled back: the store is the source of truth and the card
// self-corrects on the next successful edit.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
	"github.com/aqzsshi/esser-bot/internal/render"
	"github.com/aqzsshi/esser-bot/pkg/apperr"
)

// Finish reasons recorded in the audit log.
const (
	ReasonManual      = "manual"
	ReasonAutoElapsed = "auto: time elapsed"
)

// MaxManualParticipants caps how many users the author may pick at creation.
const MaxManualParticipants = 20

// Store is the slice of the guild document store the engine needs.
type Store interface {
	Load(ctx context.Context, guildID string) (*models.GuildState, error)
	Mutate(ctx context.Context, guildID string, fn func(*models.GuildState) error) error
}

// Timers is the scheduler surface the engine drives.
type Timers interface {
	Arm(guildID string, c *models.Contract)
	Disarm(contractID string)
}

// Engine owns contract transitions for all guilds.
type Engine struct {
	store    Store
	timers   Timers
	messages platform.Messages
	users    platform.Users
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a contract engine. loc determines the guild-local
// calendar day used for auto-naming; nil means the system local zone.
func NewEngine(store Store, timers Timers, messages platform.Messages, users platform.Users, loc *time.Location, logger *zap.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		timers:   timers,
		messages: messages,
		users:    users,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// errNoop aborts a Mutate without a write for idempotent repeats.
var errNoop = errors.New("no-op")

// CreateParams describes a new contract.
type CreateParams struct {
	GuildID         string
	OrgID           string
	Author          platform.Actor
	DurationMinutes int
	Name            string   // empty = auto-generated from the creation date
	Participants    []string // manual-add flow: users picked by the author
}

// Create validates the request, posts the notification card, persists the
// contract and, when it starts running immediately, arms the auto-finish
// timer and writes the audit entry. The author is always a participant.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*models.Contract, error) {
	if p.DurationMinutes <= 0 {
		return nil, fmt.Errorf("duration must be positive: %w", apperr.ErrInvalidInput)
	}
	if len(p.Participants) > MaxManualParticipants {
		p.Participants = p.Participants[:MaxManualParticipants]
	}

	var (
		contract *models.Contract
		org      *models.Organization
	)
	err := e.store.Mutate(ctx, p.GuildID, func(state *models.GuildState) error {
		org = state.Org(p.OrgID)
		if org == nil {
			return fmt.Errorf("org %s: %w", p.OrgID, apperr.ErrNotFound)
		}
		if !org.Enabled {
			return fmt.Errorf("org %s is disabled: %w", p.OrgID, apperr.ErrInvalidInput)
		}

		now := e.now()
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = autoName(state, now, e.loc)
		}

		contract = &models.Contract{
			ID:              models.NewContractID(now),
			OrgID:           org.ID,
			Name:            name,
			AuthorID:        p.Author.ID,
			DurationMinutes: p.DurationMinutes,
			CreatedAt:       now,
			Status:          models.StatusRunning,
			Participants:    map[string]models.Participant{p.Author.ID: {Joined: true}},
			NotifyChannelID: org.NotifyChannelID,
			LogsChannelID:   org.LogsChannelID,
		}
		if org.Settings.CollectParticipantsEnabled {
			contract.Status = models.StatusCollecting
		} else {
			started := now
			contract.StartedAt = &started
		}
		for _, uid := range p.Participants {
			contract.Participants[uid] = models.Participant{Joined: true}
		}

		// The card goes up before the write so its reference is stored with
		// the contract; a failed post means no contract is persisted at all.
		msgID, sendErr := e.messages.Send(ctx, org.NotifyChannelID, render.ContractMessage(contract, org))
		if sendErr != nil {
			return sendErr
		}
		contract.NotifyMessageID = msgID

		state.Contracts[contract.ID] = contract
		return nil
	})
	if err != nil {
		return nil, err
	}

	if contract.Status == models.StatusRunning {
		e.timers.Arm(p.GuildID, contract)
		e.audit(ctx, contract.LogsChannelID, fmt.Sprintf(
			"Начат контракт «%s» автором <@%s> на %d мин.", contract.Name, contract.AuthorID, contract.DurationMinutes))
	}
	e.notifyManualAdds(ctx, org, contract, p.Participants)

	e.logger.Info("contract created",
		zap.String("guild_id", p.GuildID), zap.String("org_id", org.ID),
		zap.String("contract_id", contract.ID), zap.String("status", string(contract.Status)))
	return contract, nil
}

// ToggleJoin flips the actor's participation. An unknown actor joins; a known
// one flips, and the done mark resets either way. Only live contracts accept
// it, and orgs with manual addition reject non-author self-service unless the
// self-join toggle allows it.
func (e *Engine) ToggleJoin(ctx context.Context, guildID, contractID string, actor platform.Actor) (joined bool, err error) {
	err = e.mutateLive(ctx, guildID, contractID, func(c *models.Contract, org *models.Organization) error {
		if org.Settings.ManualAddEnabled && !org.Settings.ManualAllowJoinEnabled && actor.ID != c.AuthorID {
			return fmt.Errorf("self-join disabled for org %s: %w", org.ID, apperr.ErrPermissionDenied)
		}
		p, ok := c.Participants[actor.ID]
		if !ok {
			c.Participants[actor.ID] = models.Participant{Joined: true}
			joined = true
			return nil
		}
		p.Joined = !p.Joined
		p.Done = false
		c.Participants[actor.ID] = p
		joined = p.Joined
		return nil
	})
	return joined, err
}

// ToggleDone flips the actor's completion mark. Requires the org's
// completion-marking toggle and a currently joined actor.
func (e *Engine) ToggleDone(ctx context.Context, guildID, contractID string, actor platform.Actor) (done bool, err error) {
	err = e.mutateLive(ctx, guildID, contractID, func(c *models.Contract, org *models.Organization) error {
		if !org.Settings.DoneEmojiEnabled {
			return fmt.Errorf("completion marking disabled for org %s: %w", org.ID, apperr.ErrInvalidInput)
		}
		p, ok := c.Participants[actor.ID]
		if !ok || !p.Joined {
			return fmt.Errorf("actor %s not joined: %w", actor.ID, apperr.ErrInvalidInput)
		}
		p.Done = !p.Done
		c.Participants[actor.ID] = p
		done = p.Done
		return nil
	})
	return done, err
}

// Start moves a collecting contract to running, stamps the start time, arms
// the timer and audit-logs. Requires management permission.
func (e *Engine) Start(ctx context.Context, guildID, contractID string, actor platform.Actor) error {
	var snapshot *models.Contract
	err := e.store.Mutate(ctx, guildID, func(state *models.GuildState) error {
		c, org, err := lookup(state, contractID)
		if err != nil {
			return err
		}
		if c.Status != models.StatusCollecting {
			return fmt.Errorf("contract %s is %s: %w", contractID, c.Status, apperr.ErrInvalidInput)
		}
		if !CanManage(actor, c, org) {
			return fmt.Errorf("actor %s may not manage contract %s: %w", actor.ID, contractID, apperr.ErrPermissionDenied)
		}
		now := e.now()
		c.Status = models.StatusRunning
		c.StartedAt = &now
		snapshot = c
		return nil
	})
	if err != nil {
		return err
	}

	e.timers.Arm(guildID, snapshot)
	e.refreshCard(ctx, guildID, contractID)
	e.audit(ctx, snapshot.LogsChannelID, fmt.Sprintf("Контракт «%s» запущен.", snapshot.Name))
	return nil
}

// Finish completes a live contract. actor == nil means the timer fired; a
// user-initiated finish requires management permission. Finishing an already
// terminal contract is a no-op, so duplicate clicks and timer/manual races
// leave one transition and one audit entry.
func (e *Engine) Finish(ctx context.Context, guildID, contractID string, actor *platform.Actor, reason string) error {
	return e.terminate(ctx, guildID, contractID, actor, models.StatusFinished, reason)
}

// Cancel aborts a live contract. Requires management permission; no-op when
// already terminal.
func (e *Engine) Cancel(ctx context.Context, guildID, contractID string, actor platform.Actor) error {
	return e.terminate(ctx, guildID, contractID, &actor, models.StatusCancelled, "")
}

// AutoFinish is the scheduler callback for elapsed contracts.
func (e *Engine) AutoFinish(guildID, contractID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Finish(ctx, guildID, contractID, nil, ReasonAutoElapsed); err != nil {
		e.logger.Error("auto-finish failed",
			zap.String("guild_id", guildID), zap.String("contract_id", contractID), zap.Error(err))
	}
}

func (e *Engine) terminate(ctx context.Context, guildID, contractID string, actor *platform.Actor, to models.ContractStatus, reason string) error {
	var snapshot *models.Contract
	err := e.store.Mutate(ctx, guildID, func(state *models.GuildState) error {
		c, org, err := lookup(state, contractID)
		if err != nil {
			return err
		}
		if c.Terminal() {
			return errNoop
		}
		if actor != nil && !CanManage(*actor, c, org) {
			return fmt.Errorf("actor %s may not manage contract %s: %w", actor.ID, contractID, apperr.ErrPermissionDenied)
		}
		c.Status = to
		snapshot = c
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil
	}
	if err != nil {
		return err
	}

	e.timers.Disarm(contractID)
	e.refreshCard(ctx, guildID, contractID)
	switch to {
	case models.StatusFinished:
		e.audit(ctx, snapshot.LogsChannelID, fmt.Sprintf("Контракт «%s» завершён (%s).", snapshot.Name, reason))
	case models.StatusCancelled:
		e.audit(ctx, snapshot.LogsChannelID, fmt.Sprintf("Контракт «%s» отменён.", snapshot.Name))
	}
	e.logger.Info("contract terminated",
		zap.String("guild_id", guildID), zap.String("contract_id", contractID),
		zap.String("status", string(to)), zap.String("reason", reason))
	return nil
}

// mutateLive applies a participant-level mutation to a live contract and
// refreshes the card afterwards.
func (e *Engine) mutateLive(ctx context.Context, guildID, contractID string, fn func(*models.Contract, *models.Organization) error) error {
	err := e.store.Mutate(ctx, guildID, func(state *models.GuildState) error {
		c, org, err := lookup(state, contractID)
		if err != nil {
			return err
		}
		if !c.Active() {
			return fmt.Errorf("contract %s is %s: %w", contractID, c.Status, apperr.ErrInvalidInput)
		}
		return fn(c, org)
	})
	if err != nil {
		return err
	}
	e.refreshCard(ctx, guildID, contractID)
	return nil
}

func lookup(state *models.GuildState, contractID string) (*models.Contract, *models.Organization, error) {
	c := state.Contract(contractID)
	if c == nil {
		return nil, nil, fmt.Errorf("contract %s: %w", contractID, apperr.ErrNotFound)
	}
	org := state.Org(c.OrgID)
	if org == nil {
		return nil, nil, fmt.Errorf("org %s: %w", c.OrgID, apperr.ErrNotFound)
	}
	return c, org, nil
}

// refreshCard re-renders the contract's notification message in place.
// Best-effort: the store already holds the truth and the next edit heals any
// drift.
func (e *Engine) refreshCard(ctx context.Context, guildID, contractID string) {
	state, err := e.store.Load(ctx, guildID)
	if err != nil {
		e.logger.Warn("card refresh: load failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	c := state.Contract(contractID)
	if c == nil || c.NotifyMessageID == "" {
		return
	}
	org := state.Org(c.OrgID)
	if org == nil {
		return
	}
	if err := e.messages.Edit(ctx, c.NotifyChannelID, c.NotifyMessageID, render.ContractMessage(c, org)); err != nil {
		e.logger.Warn("card refresh failed",
			zap.String("guild_id", guildID), zap.String("contract_id", contractID), zap.Error(err))
	}
}

// audit appends one entry to the org's audit-log channel. Best-effort.
func (e *Engine) audit(ctx context.Context, logsChannelID, text string) {
	if logsChannelID == "" {
		return
	}
	if _, err := e.messages.Send(ctx, logsChannelID, render.AuditEntry(text)); err != nil {
		e.logger.Warn("audit entry failed", zap.String("channel_id", logsChannelID), zap.Error(err))
	}
}

// notifyManualAdds direct-messages manually added participants when the org
// asks for it. Best-effort.
func (e *Engine) notifyManualAdds(ctx context.Context, org *models.Organization, c *models.Contract, userIDs []string) {
	if !org.Settings.DMOnManualAddEnabled || len(userIDs) == 0 {
		return
	}
	for _, uid := range userIDs {
		if uid == c.AuthorID {
			continue
		}
		if err := e.users.DirectMessage(ctx, uid, fmt.Sprintf("Вы добавлены в контракт «%s».", c.Name)); err != nil {
			e.logger.Warn("manual-add dm failed", zap.String("user_id", uid), zap.Error(err))
		}
	}
}
