package render

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqzsshi/esser-bot/internal/dispatch"
	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
)

func buttons(msg platform.Message) map[dispatch.Kind]bool {
	out := make(map[dispatch.Kind]bool)
	for _, row := range msg.Rows {
		for _, c := range row {
			if b, ok := c.(platform.Button); ok {
				if a, parsed := dispatch.Parse(b.CustomID); parsed {
					out[a.Kind] = true
				}
			}
		}
	}
	return out
}

func testContract(status models.ContractStatus) *models.Contract {
	return &models.Contract{
		ID:              "ct1",
		OrgID:           "ORG1",
		Name:            "Ночной рейд",
		AuthorID:        "author",
		DurationMinutes: 45,
		CreatedAt:       time.Now(),
		Status:          status,
		Participants:    map[string]models.Participant{"author": {Joined: true}},
	}
}

func testOrg(settings models.OrgSettings) *models.Organization {
	return &models.Organization{ID: "ORG1", Name: "Альфа", Enabled: true, Settings: settings}
}

func TestContractMessageButtonGating(t *testing.T) {
	t.Run("defaults show join and done", func(t *testing.T) {
		got := buttons(ContractMessage(testContract(models.StatusRunning), testOrg(models.DefaultOrgSettings())))
		assert.True(t, got[dispatch.KindJoin])
		assert.True(t, got[dispatch.KindDone])
		assert.True(t, got[dispatch.KindFinish])
		assert.True(t, got[dispatch.KindCancel])
		assert.False(t, got[dispatch.KindStart])
	})

	t.Run("manual add without self-join hides the join button", func(t *testing.T) {
		s := models.DefaultOrgSettings()
		s.ManualAddEnabled = true
		s.ManualAllowJoinEnabled = false
		got := buttons(ContractMessage(testContract(models.StatusRunning), testOrg(s)))
		assert.False(t, got[dispatch.KindJoin])
	})

	t.Run("done mark disabled hides the done button", func(t *testing.T) {
		s := models.DefaultOrgSettings()
		s.DoneEmojiEnabled = false
		got := buttons(ContractMessage(testContract(models.StatusRunning), testOrg(s)))
		assert.False(t, got[dispatch.KindDone])
	})

	t.Run("collecting shows the start button", func(t *testing.T) {
		s := models.DefaultOrgSettings()
		s.CollectParticipantsEnabled = true
		got := buttons(ContractMessage(testContract(models.StatusCollecting), testOrg(s)))
		assert.True(t, got[dispatch.KindStart])
	})

	t.Run("terminal contract has no buttons", func(t *testing.T) {
		msg := ContractMessage(testContract(models.StatusFinished), testOrg(models.DefaultOrgSettings()))
		assert.Empty(t, msg.Rows)
	})
}

func TestContractMessageParticipantsField(t *testing.T) {
	c := testContract(models.StatusRunning)
	c.Participants["p2"] = models.Participant{Joined: true, Done: true}
	c.Participants["left"] = models.Participant{Joined: false}

	msg := ContractMessage(c, testOrg(models.DefaultOrgSettings()))
	require.NotEmpty(t, msg.Embeds)

	var field *platform.EmbedField
	for i, f := range msg.Embeds[0].Fields {
		if strings.HasPrefix(f.Name, "Участники") {
			field = &msg.Embeds[0].Fields[i]
		}
	}
	require.NotNil(t, field)
	assert.Equal(t, "Участники (2)", field.Name, "the field name carries the joined count")
	assert.Equal(t, "❌ <@author>\n✅ <@p2>", field.Value)
}

func TestContractMessageMentionsRoles(t *testing.T) {
	org := testOrg(models.DefaultOrgSettings())
	org.MentionRoleIDs = []string{"111", "222"}
	msg := ContractMessage(testContract(models.StatusRunning), org)
	assert.Equal(t, "<@&111> <@&222>", msg.Content)
}

func TestActiveListChunksButtonRows(t *testing.T) {
	contracts := make([]*models.Contract, 0, 7)
	for i := 0; i < 7; i++ {
		contracts = append(contracts, &models.Contract{
			ID:     fmt.Sprintf("ct%d", i),
			Name:   fmt.Sprintf("Контракт %d", i),
			Status: models.StatusRunning,
		})
	}

	msg := ActiveList(contracts)
	require.Len(t, msg.Rows, 2)
	assert.Len(t, msg.Rows[0], 5)
	assert.Len(t, msg.Rows[1], 2)
	assert.Len(t, msg.Embeds[0].Fields, 7)
}

func TestModuleHomeHidesInstallAtCap(t *testing.T) {
	state := models.NewGuildState()
	for i := 0; i < models.MaxOrganizationsPerGuild; i++ {
		state.Orgs = append(state.Orgs, &models.Organization{ID: fmt.Sprintf("ORG%d", i+1), Name: "x", Enabled: true})
	}
	got := buttons(ModuleHome(state))
	assert.False(t, got[dispatch.KindInstall])
	assert.True(t, got[dispatch.KindManageOrg])
}
