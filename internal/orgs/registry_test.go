package orgs

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
	"github.com/aqzsshi/esser-bot/pkg/apperr"
)

type memStore struct {
	states map[string]*models.GuildState
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*models.GuildState)}
}

func (s *memStore) state(guildID string) *models.GuildState {
	if st, ok := s.states[guildID]; ok {
		return st
	}
	st := models.NewGuildState()
	s.states[guildID] = st
	return st
}

func cloneState(in *models.GuildState) *models.GuildState {
	raw, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	out := models.NewGuildState()
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	return out
}

func (s *memStore) Load(_ context.Context, guildID string) (*models.GuildState, error) {
	return cloneState(s.state(guildID)), nil
}

func (s *memStore) Mutate(_ context.Context, guildID string, fn func(*models.GuildState) error) error {
	next := cloneState(s.state(guildID))
	if err := fn(next); err != nil {
		return err
	}
	s.states[guildID] = next
	return nil
}

type fakeChannels struct {
	created int
	renamed []string
	deleted []string
}

func (f *fakeChannels) CreateOrgChannels(_ context.Context, _, orgName string) (platform.OrgChannels, error) {
	f.created++
	p := fmt.Sprintf("%s-%d", orgName, f.created)
	return platform.OrgChannels{
		CategoryID:      "cat-" + p,
		TakeChannelID:   "take-" + p,
		NotifyChannelID: "notify-" + p,
		LogsChannelID:   "logs-" + p,
	}, nil
}

func (f *fakeChannels) RenameCategory(_ context.Context, channelID, name string) error {
	f.renamed = append(f.renamed, channelID+"→"+name)
	return nil
}

func (f *fakeChannels) DeleteChannel(_ context.Context, channelID string) error {
	f.deleted = append(f.deleted, channelID)
	return nil
}

type fakeMessages struct {
	sent   []string // channel ids
	nextID int
}

func (f *fakeMessages) Send(_ context.Context, channelID string, _ platform.Message) (string, error) {
	f.sent = append(f.sent, channelID)
	f.nextID++
	return fmt.Sprintf("msg%d", f.nextID), nil
}

func (f *fakeMessages) Edit(_ context.Context, _, _ string, _ platform.Message) error { return nil }

type fakeTimers struct {
	disarmed []string
}

func (f *fakeTimers) Disarm(contractID string) { f.disarmed = append(f.disarmed, contractID) }

type registryFixture struct {
	registry *Registry
	store    *memStore
	channels *fakeChannels
	messages *fakeMessages
	timers   *fakeTimers
}

func newRegistryFixture() *registryFixture {
	st := newMemStore()
	ch := &fakeChannels{}
	msg := &fakeMessages{}
	tm := &fakeTimers{}
	return &registryFixture{
		registry: NewRegistry(st, ch, msg, tm, nil),
		store:    st,
		channels: ch,
		messages: msg,
		timers:   tm,
	}
}

func TestInstallAssignsSequentialIDs(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()

	first, err := f.registry.Install(ctx, "g1", "Альфа")
	require.NoError(t, err)
	second, err := f.registry.Install(ctx, "g1", "Бета")
	require.NoError(t, err)

	assert.Equal(t, "ORG1", first.ID)
	assert.Equal(t, "ORG2", second.ID)
	assert.True(t, first.Enabled)
	assert.Equal(t, models.DefaultOrgSettings(), first.Settings)
	// The intake message is posted and its id persisted with the binding.
	assert.Equal(t, "msg1", first.TakeMessageID)
	assert.Equal(t, []string{first.TakeChannelID, second.TakeChannelID}, f.messages.sent)

	state := f.store.state("g1")
	assert.Len(t, state.Orgs, 2)
	assert.Equal(t, 3, state.NextOrgSeq)
}

func TestInstallRejectsEmptyName(t *testing.T) {
	f := newRegistryFixture()
	_, err := f.registry.Install(context.Background(), "g1", "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Zero(t, f.channels.created)
}

func TestInstallCapCreatesNoChannels(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()
	for i := 0; i < models.MaxOrganizationsPerGuild; i++ {
		_, err := f.registry.Install(ctx, "g1", fmt.Sprintf("Орг %d", i+1))
		require.NoError(t, err)
	}

	_, err := f.registry.Install(ctx, "g1", "Лишняя")
	assert.ErrorIs(t, err, apperr.ErrLimitExceeded)
	assert.Equal(t, models.MaxOrganizationsPerGuild, f.channels.created)
	assert.Empty(t, f.channels.deleted)
}

func TestRenameUpdatesCategory(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()
	org, err := f.registry.Install(ctx, "g1", "Альфа")
	require.NoError(t, err)

	renamed, err := f.registry.Rename(ctx, "g1", org.ID, "Омега")
	require.NoError(t, err)
	assert.Equal(t, "Омега", renamed.Name)
	assert.Equal(t, "Омега", f.store.state("g1").Org(org.ID).Name)
	require.Len(t, f.channels.renamed, 1)
	assert.Equal(t, org.CategoryID+"→Омега • Контракты", f.channels.renamed[0])
}

func TestSetMentionRolesKeepsAtMostCap(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()
	org, err := f.registry.Install(ctx, "g1", "Альфа")
	require.NoError(t, err)

	roles := make([]string, 0, models.MaxMentionRoles+3)
	for i := 0; i < models.MaxMentionRoles+3; i++ {
		roles = append(roles, fmt.Sprintf("r%d", i))
	}
	updated, err := f.registry.SetMentionRoles(ctx, "g1", org.ID, roles)
	require.NoError(t, err)
	assert.Len(t, updated.MentionRoleIDs, models.MaxMentionRoles)
	assert.Equal(t, roles[:models.MaxMentionRoles], updated.MentionRoleIDs)
}

func TestToggleFeature(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()
	org, err := f.registry.Install(ctx, "g1", "Альфа")
	require.NoError(t, err)

	updated, err := f.registry.ToggleFeature(ctx, "g1", org.ID, models.FeatureManualAdd)
	require.NoError(t, err)
	assert.True(t, updated.Settings.ManualAddEnabled)

	updated, err = f.registry.ToggleFeature(ctx, "g1", org.ID, models.FeatureManualAdd)
	require.NoError(t, err)
	assert.False(t, updated.Settings.ManualAddEnabled)

	_, err = f.registry.ToggleFeature(ctx, "g1", org.ID, models.Feature("nope"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestSetPermissionModeValidates(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()
	org, err := f.registry.Install(ctx, "g1", "Альфа")
	require.NoError(t, err)

	_, err = f.registry.SetPermissionMode(ctx, "g1", org.ID, models.PermissionMode("owner_only"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	updated, err := f.registry.SetPermissionMode(ctx, "g1", org.ID, models.PermissionEveryone)
	require.NoError(t, err)
	assert.Equal(t, models.PermissionEveryone, updated.Settings.PermissionMode)
}

func TestToggleEnabled(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()
	org, err := f.registry.Install(ctx, "g1", "Альфа")
	require.NoError(t, err)

	updated, err := f.registry.ToggleEnabled(ctx, "g1", org.ID)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
}

func TestDeleteCascades(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()
	org, err := f.registry.Install(ctx, "g1", "Альфа")
	require.NoError(t, err)
	other, err := f.registry.Install(ctx, "g1", "Бета")
	require.NoError(t, err)

	state := f.store.state("g1")
	state.Contracts["ct1"] = &models.Contract{ID: "ct1", OrgID: org.ID, Status: models.StatusRunning}
	state.Contracts["ct2"] = &models.Contract{ID: "ct2", OrgID: org.ID, Status: models.StatusFinished}
	state.Contracts["ct3"] = &models.Contract{ID: "ct3", OrgID: other.ID, Status: models.StatusRunning}

	require.NoError(t, f.registry.Delete(ctx, "g1", org.ID))

	after := f.store.state("g1")
	assert.Nil(t, after.Org(org.ID))
	assert.Nil(t, after.Contract("ct1"))
	assert.Nil(t, after.Contract("ct2"))
	// The sibling organization and its contract survive.
	assert.NotNil(t, after.Org(other.ID))
	assert.NotNil(t, after.Contract("ct3"))

	assert.ElementsMatch(t, []string{"ct1", "ct2"}, f.timers.disarmed)
	assert.ElementsMatch(t,
		[]string{org.CategoryID, org.TakeChannelID, org.NotifyChannelID, org.LogsChannelID},
		f.channels.deleted)
}

func TestDeleteUnknownOrg(t *testing.T) {
	f := newRegistryFixture()
	err := f.registry.Delete(context.Background(), "g1", "ORG9")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.channels.deleted)
}
