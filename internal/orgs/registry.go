// Package orgs manages the per-guild organization registry: installation,
// configuration and cascading deletion.
package orgs

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
	"github.com/aqzsshi/esser-bot/internal/render"
	"github.com/aqzsshi/esser-bot/pkg/apperr"
)

// Store is the slice of the guild document store the registry needs.
type Store interface {
	Load(ctx context.Context, guildID string) (*models.GuildState, error)
	Mutate(ctx context.Context, guildID string, fn func(*models.GuildState) error) error
}

// Timers disarms wake-ups for contracts removed by a cascading delete.
type Timers interface {
	Disarm(contractID string)
}

// Registry mutates the organization list of guild documents.
type Registry struct {
	store    Store
	channels platform.Channels
	messages platform.Messages
	timers   Timers
	logger   *zap.Logger
}

// NewRegistry creates an organization registry.
func NewRegistry(store Store, channels platform.Channels, messages platform.Messages, timers Timers, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, channels: channels, messages: messages, timers: timers, logger: logger}
}

// Get returns one organization.
func (r *Registry) Get(ctx context.Context, guildID, orgID string) (*models.Organization, error) {
	state, err := r.store.Load(ctx, guildID)
	if err != nil {
		return nil, err
	}
	org := state.Org(orgID)
	if org == nil {
		return nil, fmt.Errorf("org %s: %w", orgID, apperr.ErrNotFound)
	}
	return org, nil
}

// Install creates a new organization: checks the guild cap, allocates the
// category and channels, posts the intake message and persists the unit. When
// the cap is reached no channels are created; when channel allocation fails
// no partial unit is persisted.
func (r *Registry) Install(ctx context.Context, guildID, name string) (*models.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("organization name: %w", apperr.ErrInvalidInput)
	}

	state, err := r.store.Load(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if len(state.Orgs) >= models.MaxOrganizationsPerGuild {
		return nil, fmt.Errorf("guild %s already has %d organizations: %w",
			guildID, models.MaxOrganizationsPerGuild, apperr.ErrLimitExceeded)
	}

	allocated, err := r.channels.CreateOrgChannels(ctx, guildID, name)
	if err != nil {
		return nil, err
	}

	var org *models.Organization
	err = r.store.Mutate(ctx, guildID, func(state *models.GuildState) error {
		if len(state.Orgs) >= models.MaxOrganizationsPerGuild {
			return fmt.Errorf("guild %s already has %d organizations: %w",
				guildID, models.MaxOrganizationsPerGuild, apperr.ErrLimitExceeded)
		}
		org = &models.Organization{
			ID:              fmt.Sprintf("ORG%d", state.NextOrgSeq),
			Name:            name,
			CategoryID:      allocated.CategoryID,
			TakeChannelID:   allocated.TakeChannelID,
			NotifyChannelID: allocated.NotifyChannelID,
			LogsChannelID:   allocated.LogsChannelID,
			Enabled:         true,
			Settings:        models.DefaultOrgSettings(),
		}
		state.NextOrgSeq++

		// The intake message goes up before the unit is persisted so its id
		// can be stored with the binding. A failed send is tolerated: the
		// channel exists and the message can be re-posted by reinstalling.
		msgID, sendErr := r.messages.Send(ctx, org.TakeChannelID, render.TakeMessage(org))
		if sendErr != nil {
			r.logger.Warn("intake message post failed", zap.String("guild_id", guildID), zap.Error(sendErr))
		}
		org.TakeMessageID = msgID

		state.Orgs = append(state.Orgs, org)
		return nil
	})
	if err != nil {
		// The cap filled up between the check and the write: release what we allocated.
		r.teardownChannels(ctx, guildID, allocated.TakeChannelID, allocated.NotifyChannelID, allocated.LogsChannelID, allocated.CategoryID)
		return nil, err
	}
	r.logger.Info("organization installed",
		zap.String("guild_id", guildID), zap.String("org_id", org.ID), zap.String("name", name))
	return org, nil
}

// Rename updates the display name and renames the category (best-effort).
func (r *Registry) Rename(ctx context.Context, guildID, orgID, newName string) (*models.Organization, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("organization name: %w", apperr.ErrInvalidInput)
	}
	var org *models.Organization
	err := r.store.Mutate(ctx, guildID, func(state *models.GuildState) error {
		org = state.Org(orgID)
		if org == nil {
			return fmt.Errorf("org %s: %w", orgID, apperr.ErrNotFound)
		}
		org.Name = newName
		return nil
	})
	if err != nil {
		return nil, err
	}
	if org.CategoryID != "" {
		if err := r.channels.RenameCategory(ctx, org.CategoryID, newName+" • Контракты"); err != nil {
			r.logger.Warn("category rename failed", zap.String("org_id", orgID), zap.Error(err))
		}
	}
	return org, nil
}

// SetMentionRoles replaces the announcement roles, keeping at most the cap.
func (r *Registry) SetMentionRoles(ctx context.Context, guildID, orgID string, roleIDs []string) (*models.Organization, error) {
	if len(roleIDs) > models.MaxMentionRoles {
		roleIDs = roleIDs[:models.MaxMentionRoles]
	}
	return r.mutateOrg(ctx, guildID, orgID, func(org *models.Organization) error {
		org.MentionRoleIDs = roleIDs
		return nil
	})
}

// ToggleFeature flips one of the organization's boolean toggles.
func (r *Registry) ToggleFeature(ctx context.Context, guildID, orgID string, f models.Feature) (*models.Organization, error) {
	return r.mutateOrg(ctx, guildID, orgID, func(org *models.Organization) error {
		if _, ok := org.Settings.Toggle(f); !ok {
			return fmt.Errorf("feature %q: %w", f, apperr.ErrInvalidInput)
		}
		return nil
	})
}

// SetPermissionMode sets who may manage the organization's contracts.
func (r *Registry) SetPermissionMode(ctx context.Context, guildID, orgID string, mode models.PermissionMode) (*models.Organization, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("permission mode %q: %w", mode, apperr.ErrInvalidInput)
	}
	return r.mutateOrg(ctx, guildID, orgID, func(org *models.Organization) error {
		org.Settings.PermissionMode = mode
		return nil
	})
}

// SetEnabled enables or disables contract creation for the organization.
// Existing contracts are unaffected.
func (r *Registry) SetEnabled(ctx context.Context, guildID, orgID string, enabled bool) (*models.Organization, error) {
	return r.mutateOrg(ctx, guildID, orgID, func(org *models.Organization) error {
		org.Enabled = enabled
		return nil
	})
}

// ToggleEnabled flips the enabled flag under the guild lock.
func (r *Registry) ToggleEnabled(ctx context.Context, guildID, orgID string) (*models.Organization, error) {
	return r.mutateOrg(ctx, guildID, orgID, func(org *models.Organization) error {
		org.Enabled = !org.Enabled
		return nil
	})
}

// Delete removes the organization and every contract it owns in one store
// write, disarms their timers and releases the channel bindings. Channel
// teardown is best-effort: individual failures never abort the deletion.
func (r *Registry) Delete(ctx context.Context, guildID, orgID string) error {
	var (
		org     *models.Organization
		removed []string
	)
	err := r.store.Mutate(ctx, guildID, func(state *models.GuildState) error {
		org = state.Org(orgID)
		if org == nil {
			return fmt.Errorf("org %s: %w", orgID, apperr.ErrNotFound)
		}
		removed = state.RemoveOrg(orgID)
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range removed {
		r.timers.Disarm(id)
	}
	r.teardownChannels(ctx, guildID, org.TakeChannelID, org.NotifyChannelID, org.LogsChannelID, org.CategoryID)
	r.logger.Info("organization deleted",
		zap.String("guild_id", guildID), zap.String("org_id", orgID), zap.Int("contracts_removed", len(removed)))
	return nil
}

func (r *Registry) mutateOrg(ctx context.Context, guildID, orgID string, fn func(*models.Organization) error) (*models.Organization, error) {
	var org *models.Organization
	err := r.store.Mutate(ctx, guildID, func(state *models.GuildState) error {
		org = state.Org(orgID)
		if org == nil {
			return fmt.Errorf("org %s: %w", orgID, apperr.ErrNotFound)
		}
		return fn(org)
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (r *Registry) teardownChannels(ctx context.Context, guildID string, channelIDs ...string) {
	for _, id := range channelIDs {
		if id == "" {
			continue
		}
		if err := r.channels.DeleteChannel(ctx, id); err != nil {
			r.logger.Warn("channel teardown failed",
				zap.String("guild_id", guildID), zap.String("channel_id", id), zap.Error(err))
		}
	}
}
