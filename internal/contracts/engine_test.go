package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
	"github.com/aqzsshi/esser-bot/pkg/apperr"
)

// memStore keeps guild documents in memory with the real store's abort
// semantics: a failed mutation leaves the previous document untouched.
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

type fakeTimers struct {
	armed    []string
	disarmed []string
}

func (f *fakeTimers) Arm(_ string, c *models.Contract) { f.armed = append(f.armed, c.ID) }
func (f *fakeTimers) Disarm(contractID string)         { f.disarmed = append(f.disarmed, contractID) }

type sentMessage struct {
	channelID string
	msg       platform.Message
}

type fakeMessages struct {
	failSend bool
	sent     []sentMessage
	edits    []string // channelID/messageID pairs
	nextID   int
}

func (f *fakeMessages) Send(_ context.Context, channelID string, msg platform.Message) (string, error) {
	if f.failSend {
		return "", fmt.Errorf("send to %s: %w", channelID, apperr.ErrExternal)
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: msg})
	f.nextID++
	return fmt.Sprintf("msg%d", f.nextID), nil
}

func (f *fakeMessages) Edit(_ context.Context, channelID, messageID string, _ platform.Message) error {
	f.edits = append(f.edits, channelID+"/"+messageID)
	return nil
}

type fakeUsers struct {
	dms []string
}

func (f *fakeUsers) DirectMessage(_ context.Context, userID, _ string) error {
	f.dms = append(f.dms, userID)
	return nil
}

// sentTo returns the texts delivered to one channel, embeds flattened.
func (f *fakeMessages) sentTo(channelID string) []string {
	var out []string
	for _, m := range f.sent {
		if m.channelID != channelID {
			continue
		}
		text := m.msg.Content
		for _, e := range m.msg.Embeds {
			text += e.Title + e.Description
		}
		out = append(out, text)
	}
	return out
}

type engineFixture struct {
	engine   *Engine
	store    *memStore
	timers   *fakeTimers
	messages *fakeMessages
	users    *fakeUsers
}

func newEngineFixture(t *testing.T, settings models.OrgSettings) *engineFixture {
	t.Helper()
	st := newMemStore()
	state := st.state("g1")
	state.Orgs = append(state.Orgs, &models.Organization{
		ID:              "ORG1",
		Name:            "Альфа",
		NotifyChannelID: "notify1",
		LogsChannelID:   "logs1",
		Enabled:         true,
		Settings:        settings,
	})
	state.NextOrgSeq = 2

	timers := &fakeTimers{}
	messages := &fakeMessages{}
	users := &fakeUsers{}
	engine := NewEngine(st, timers, messages, users, time.UTC, nil)
	return &engineFixture{engine: engine, store: st, timers: timers, messages: messages, users: users}
}

func (f *engineFixture) create(t *testing.T, p CreateParams) *models.Contract {
	t.Helper()
	if p.GuildID == "" {
		p.GuildID = "g1"
	}
	if p.OrgID == "" {
		p.OrgID = "ORG1"
	}
	if p.Author.ID == "" {
		p.Author = platform.Actor{ID: "author"}
	}
	if p.DurationMinutes == 0 {
		p.DurationMinutes = 60
	}
	c, err := f.engine.Create(context.Background(), p)
	require.NoError(t, err)
	return c
}

var (
	author   = platform.Actor{ID: "author"}
	admin    = platform.Actor{ID: "admin", Admin: true}
	stranger = platform.Actor{ID: "stranger"}
)

func TestCreateStartsImmediatelyWithoutCollection(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())

	c := f.create(t, CreateParams{})

	assert.Equal(t, models.StatusRunning, c.Status)
	require.NotNil(t, c.StartedAt)
	assert.Equal(t, []string{c.ID}, f.timers.armed)
	assert.True(t, c.Participants["author"].Joined)

	stored := f.store.state("g1").Contract(c.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "msg1", stored.NotifyMessageID)

	audit := f.messages.sentTo("logs1")
	require.Len(t, audit, 1)
	assert.Contains(t, audit[0], "Начат контракт")
}

func TestCreateCollectingWaitsForStart(t *testing.T) {
	settings := models.DefaultOrgSettings()
	settings.CollectParticipantsEnabled = true
	f := newEngineFixture(t, settings)

	c := f.create(t, CreateParams{})

	assert.Equal(t, models.StatusCollecting, c.Status)
	assert.Nil(t, c.StartedAt)
	assert.Empty(t, f.timers.armed)
	assert.Empty(t, f.messages.sentTo("logs1"))
}

func TestCreateValidation(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())

	_, err := f.engine.Create(context.Background(), CreateParams{
		GuildID: "g1", OrgID: "ORG1", Author: author, DurationMinutes: 0,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.engine.Create(context.Background(), CreateParams{
		GuildID: "g1", OrgID: "ORG9", Author: author, DurationMinutes: 30,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateDisabledOrgRejected(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	f.store.state("g1").Org("ORG1").Enabled = false

	_, err := f.engine.Create(context.Background(), CreateParams{
		GuildID: "g1", OrgID: "ORG1", Author: author, DurationMinutes: 30,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCreateCardPostFailurePersistsNothing(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	f.messages.failSend = true

	_, err := f.engine.Create(context.Background(), CreateParams{
		GuildID: "g1", OrgID: "ORG1", Author: author, DurationMinutes: 30,
	})
	require.Error(t, err)
	assert.Empty(t, f.store.state("g1").Contracts)
	assert.Empty(t, f.timers.armed)
}

func TestCreateManualParticipantsGetDMs(t *testing.T) {
	settings := models.DefaultOrgSettings()
	settings.ManualAddEnabled = true
	settings.DMOnManualAddEnabled = true
	f := newEngineFixture(t, settings)

	c := f.create(t, CreateParams{Participants: []string{"u2", "u3", "author"}})

	assert.True(t, c.Participants["u2"].Joined)
	assert.True(t, c.Participants["u3"].Joined)
	// The author never gets a DM about their own contract.
	assert.ElementsMatch(t, []string{"u2", "u3"}, f.users.dms)
}

func TestAutoNameCountsPerDay(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return now }

	first := f.create(t, CreateParams{})
	second := f.create(t, CreateParams{})

	assert.Equal(t, "28.08.2026 №1", first.Name)
	assert.Equal(t, "28.08.2026 №2", second.Name)
}

func TestToggleJoinFlipsAndResetsDone(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	c := f.create(t, CreateParams{})
	ctx := context.Background()

	joined, err := f.engine.ToggleJoin(ctx, "g1", c.ID, stranger)
	require.NoError(t, err)
	assert.True(t, joined)

	_, err = f.engine.ToggleDone(ctx, "g1", c.ID, stranger)
	require.NoError(t, err)

	joined, err = f.engine.ToggleJoin(ctx, "g1", c.ID, stranger)
	require.NoError(t, err)
	assert.False(t, joined)

	p := f.store.state("g1").Contract(c.ID).Participants["stranger"]
	assert.False(t, p.Joined)
	assert.False(t, p.Done)
}

func TestToggleJoinManualAddBlocksSelfService(t *testing.T) {
	settings := models.DefaultOrgSettings()
	settings.ManualAddEnabled = true
	settings.ManualAllowJoinEnabled = false
	f := newEngineFixture(t, settings)
	c := f.create(t, CreateParams{})
	ctx := context.Background()

	_, err := f.engine.ToggleJoin(ctx, "g1", c.ID, stranger)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	// The author can still leave and rejoin their own contract.
	_, err = f.engine.ToggleJoin(ctx, "g1", c.ID, author)
	assert.NoError(t, err)
}

func TestToggleDoneRequirements(t *testing.T) {
	settings := models.DefaultOrgSettings()
	settings.DoneEmojiEnabled = false
	f := newEngineFixture(t, settings)
	c := f.create(t, CreateParams{})
	ctx := context.Background()

	_, err := f.engine.ToggleDone(ctx, "g1", c.ID, author)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	f2 := newEngineFixture(t, models.DefaultOrgSettings())
	c2 := f2.create(t, CreateParams{})
	_, err = f2.engine.ToggleDone(ctx, "g1", c2.ID, stranger)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	done, err := f2.engine.ToggleDone(ctx, "g1", c2.ID, author)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestStartOnlyFromCollecting(t *testing.T) {
	settings := models.DefaultOrgSettings()
	settings.CollectParticipantsEnabled = true
	f := newEngineFixture(t, settings)
	c := f.create(t, CreateParams{})
	ctx := context.Background()

	err := f.engine.Start(ctx, "g1", c.ID, stranger)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	require.NoError(t, f.engine.Start(ctx, "g1", c.ID, author))
	stored := f.store.state("g1").Contract(c.ID)
	assert.Equal(t, models.StatusRunning, stored.Status)
	require.NotNil(t, stored.StartedAt)
	assert.Equal(t, []string{c.ID}, f.timers.armed)

	err = f.engine.Start(ctx, "g1", c.ID, author)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestFinishPermissionPolicy(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	c := f.create(t, CreateParams{})
	ctx := context.Background()

	err := f.engine.Finish(ctx, "g1", c.ID, &stranger, ReasonManual)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Equal(t, models.StatusRunning, f.store.state("g1").Contract(c.ID).Status)

	require.NoError(t, f.engine.Finish(ctx, "g1", c.ID, &admin, ReasonManual))
	assert.Equal(t, models.StatusFinished, f.store.state("g1").Contract(c.ID).Status)
}

func TestFinishEveryoneMode(t *testing.T) {
	settings := models.DefaultOrgSettings()
	settings.PermissionMode = models.PermissionEveryone
	f := newEngineFixture(t, settings)
	c := f.create(t, CreateParams{})

	err := f.engine.Finish(context.Background(), "g1", c.ID, &stranger, ReasonManual)
	assert.NoError(t, err)
}

func TestFinishIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	c := f.create(t, CreateParams{})
	ctx := context.Background()

	require.NoError(t, f.engine.Finish(ctx, "g1", c.ID, &author, ReasonManual))
	require.NoError(t, f.engine.Finish(ctx, "g1", c.ID, &author, ReasonManual))
	// A late cancel after the finish must not flip the terminal state.
	require.NoError(t, f.engine.Cancel(ctx, "g1", c.ID, author))
	assert.Equal(t, models.StatusFinished, f.store.state("g1").Contract(c.ID).Status)

	finished := 0
	for _, text := range f.messages.sentTo("logs1") {
		if strings.Contains(text, "завершён") {
			finished++
		}
	}
	assert.Equal(t, 1, finished)
}

func TestAutoFinishRecordsReason(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	c := f.create(t, CreateParams{})

	f.engine.AutoFinish("g1", c.ID)

	assert.Equal(t, models.StatusFinished, f.store.state("g1").Contract(c.ID).Status)
	assert.Equal(t, []string{c.ID}, f.timers.disarmed)

	var found bool
	for _, text := range f.messages.sentTo("logs1") {
		if strings.Contains(text, ReasonAutoElapsed) {
			found = true
		}
	}
	assert.True(t, found, "audit entry should carry the auto-finish reason")
}

func TestCancelLiveContract(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	c := f.create(t, CreateParams{})
	ctx := context.Background()

	err := f.engine.Cancel(ctx, "g1", c.ID, stranger)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Equal(t, models.StatusRunning, f.store.state("g1").Contract(c.ID).Status)

	require.NoError(t, f.engine.Cancel(ctx, "g1", c.ID, author))
	assert.Equal(t, models.StatusCancelled, f.store.state("g1").Contract(c.ID).Status)

	// Participant actions are rejected once terminal.
	_, err = f.engine.ToggleJoin(ctx, "g1", c.ID, author)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestTerminateUnknownContract(t *testing.T) {
	f := newEngineFixture(t, models.DefaultOrgSettings())
	err := f.engine.Finish(context.Background(), "g1", "ct_missing", &admin, ReasonManual)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, errors.Is(err, apperr.ErrPermissionDenied))
}
