// Package render builds the platform-neutral messages the bot posts and
// edits: module home, organization panel, intake message, contract card,
// active-contract list and audit entries. Pure functions over the models.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aqzsshi/esser-bot/internal/dispatch"
	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
)

// EmbedColor matches the bot's dark embed accent.
const EmbedColor = 0x1D1D1E

// Discord allows at most five buttons per action row.
const maxButtonsPerRow = 5

func statusLabel(s models.ContractStatus) string {
	switch s {
	case models.StatusCollecting:
		return "🟡 Сбор участников"
	case models.StatusRunning:
		return "🟢 Выполнение"
	case models.StatusFinished:
		return "✅ Завершено"
	case models.StatusCancelled:
		return "🔴 Отменено"
	}
	return string(s)
}

func onOff(v bool) string {
	if v {
		return "вкл"
	}
	return "выкл"
}

// ModuleHome is the ephemeral panel listing the guild's organizations.
func ModuleHome(state *models.GuildState) platform.Message {
	embed := platform.Embed{
		Title:       "🧱 Контракты",
		Description: "Управление модулем «Контракты».",
		Color:       EmbedColor,
	}
	if len(state.Orgs) == 0 {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  "Организации",
			Value: "Пока нет ни одной. Нажмите «Установить модуль» чтобы создать организацию.",
		})
	} else {
		var lines []string
		for _, o := range state.Orgs {
			mark := "🔴 отключена"
			if o.Enabled {
				mark = "🟢 включена"
			}
			lines = append(lines, fmt.Sprintf("• %s [%s] — %s", o.Name, o.ID, mark))
		}
		embed.Fields = append(embed.Fields, platform.EmbedField{Name: "Организации", Value: strings.Join(lines, "\n")})
	}

	var rows [][]platform.Component
	if len(state.Orgs) < models.MaxOrganizationsPerGuild {
		rows = append(rows, []platform.Component{platform.Button{
			CustomID: dispatch.Action{Kind: dispatch.KindInstall}.CustomID(),
			Label:    "Установить модуль",
			Style:    platform.ButtonPrimary,
		}})
	}
	var row []platform.Component
	for _, o := range state.Orgs {
		if len(row) == maxButtonsPerRow {
			rows = append(rows, row)
			row = nil
		}
		row = append(row, platform.Button{
			CustomID: dispatch.Action{Kind: dispatch.KindManageOrg, Target: o.ID}.CustomID(),
			Label:    fmt.Sprintf("%s [%s]", o.Name, o.ID),
			Style:    platform.ButtonSecondary,
		})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return platform.Message{Embeds: []platform.Embed{embed}, Rows: rows}
}

// OrgPanel is the ephemeral management panel for one organization.
func OrgPanel(org *models.Organization) platform.Message {
	status := "🔴 Отключена"
	if org.Enabled {
		status = "🟢 Включена"
	}
	roles := "—"
	if len(org.MentionRoleIDs) > 0 {
		var tags []string
		for _, id := range org.MentionRoleIDs {
			tags = append(tags, "<@&"+id+">")
		}
		roles = strings.Join(tags, ", ")
	}
	channel := func(id string) string {
		if id == "" {
			return "—"
		}
		return "<#" + id + ">"
	}

	embed := platform.Embed{
		Title: fmt.Sprintf("Организация: %s [%s]", org.Name, org.ID),
		Color: EmbedColor,
		Fields: []platform.EmbedField{
			{Name: "Статус", Value: status, Inline: true},
			{Name: "Роли для упоминания", Value: roles, Inline: true},
			{Name: "Права завершения/отмены", Value: string(org.Settings.PermissionMode)},
			{Name: "Опции", Value: strings.Join([]string{
				"• Эмодзи «Выполнено»: " + onOff(org.Settings.DoneEmojiEnabled),
				"• Добавление участников вручную: " + onOff(org.Settings.ManualAddEnabled),
				"• Участие при ручном добавлении: " + onOff(org.Settings.ManualAllowJoinEnabled),
				"• ЛС участникам при ручном добавлении: " + onOff(org.Settings.DMOnManualAddEnabled),
				"• Сбор участников (старт по кнопке): " + onOff(org.Settings.CollectParticipantsEnabled),
			}, "\n")},
			{Name: "Каналы", Value: strings.Join([]string{
				"• Категория: " + channel(org.CategoryID),
				"• Взять контракт: " + channel(org.TakeChannelID),
				"• Уведомления: " + channel(org.NotifyChannelID),
				"• Логи: " + channel(org.LogsChannelID),
			}, "\n")},
		},
	}

	toggle := func(f models.Feature, label string) platform.Button {
		return platform.Button{
			CustomID: dispatch.Action{Kind: dispatch.KindToggleFeature, Target: org.ID, Feature: f}.CustomID(),
			Label:    label,
			Style:    platform.ButtonSecondary,
		}
	}
	enabledStyle := platform.ButtonSuccess
	if org.Enabled {
		enabledStyle = platform.ButtonDanger
	}
	rows := [][]platform.Component{
		{
			platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindRename, Target: org.ID}.CustomID(), Label: "Изменить название", Style: platform.ButtonSecondary},
			platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindUpdateRoles, Target: org.ID}.CustomID(), Label: "Изменить роли для упоминания", Style: platform.ButtonSecondary},
			platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindUpdatePerms, Target: org.ID}.CustomID(), Label: "Изменить права", Style: platform.ButtonSecondary},
		},
		{
			toggle(models.FeatureDoneEmoji, "Вкл/Выкл «Выполнено»"),
			toggle(models.FeatureManualAdd, "Вкл/Выкл добавление вручную"),
			toggle(models.FeatureManualAllowJoin, "Вкл/Выкл участие при ручном добавлении"),
		},
		{
			toggle(models.FeatureDMOnManualAdd, "Вкл/Выкл ЛС при ручном добавлении"),
			toggle(models.FeatureCollectParticipants, "Вкл/Выкл сбор участников"),
			platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindToggleEnabled, Target: org.ID}.CustomID(), Label: "Вкл/Выкл организацию", Style: enabledStyle},
		},
		{
			platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindActiveList, Target: org.ID}.CustomID(), Label: "Активные контракты", Style: platform.ButtonPrimary},
			platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindDeleteOrg, Target: org.ID}.CustomID(), Label: "Удалить организацию", Style: platform.ButtonDanger},
		},
	}
	return platform.Message{Embeds: []platform.Embed{embed}, Rows: rows}
}

// TakeMessage is the permanent intake message posted to the take channel.
func TakeMessage(org *models.Organization) platform.Message {
	embed := platform.Embed{
		Title:       "Контракты • " + org.Name,
		Description: "Нажмите «Взять контракт», чтобы начать. Также вы можете посмотреть активные контракты.",
		Color:       EmbedColor,
	}
	row := []platform.Component{
		platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindTake, Target: org.ID}.CustomID(), Label: "Взять контракт", Style: platform.ButtonPrimary},
		platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindActiveList, Target: org.ID}.CustomID(), Label: "Активные контракты", Style: platform.ButtonSecondary},
	}
	return platform.Message{Embeds: []platform.Embed{embed}, Rows: [][]platform.Component{row}}
}

// ContractMessage is the guild-visible notification card, edited in place on
// every mutation. Content carries the org's announcement role mentions.
func ContractMessage(c *models.Contract, org *models.Organization) platform.Message {
	var content string
	if len(org.MentionRoleIDs) > 0 {
		var tags []string
		for _, id := range org.MentionRoleIDs {
			tags = append(tags, "<@&"+id+">")
		}
		content = strings.Join(tags, " ")
	}

	now := time.Now()
	embed := platform.Embed{
		Title: "Контракт • " + c.Name,
		Color: EmbedColor,
		Fields: []platform.EmbedField{
			{Name: "Организация", Value: org.Name, Inline: true},
			{Name: "Автор", Value: "<@" + c.AuthorID + ">", Inline: true},
			{Name: "Длительность", Value: fmt.Sprintf("%d мин", c.DurationMinutes), Inline: true},
			{Name: "Статус", Value: statusLabel(c.Status), Inline: true},
		},
		Footer:    "ID: " + c.ID,
		Timestamp: &now,
	}

	var joined []string
	for uid, p := range c.Participants {
		if p.Joined {
			joined = append(joined, uid)
		}
	}
	sort.Strings(joined) // map order is random; keep the card stable across edits
	var lines []string
	for _, uid := range joined {
		switch {
		case c.Participants[uid].Done:
			lines = append(lines, "✅ <@"+uid+">")
		case org.Settings.DoneEmojiEnabled:
			lines = append(lines, "❌ <@"+uid+">")
		default:
			lines = append(lines, "<@"+uid+">")
		}
	}
	participants := "—"
	if len(lines) > 0 {
		participants = strings.Join(lines, "\n")
	}
	embed.Fields = append(embed.Fields, platform.EmbedField{
		Name:  fmt.Sprintf("Участники (%d)", c.JoinedCount()),
		Value: participants,
	})

	var row1, row2 []platform.Component
	if c.Active() {
		if !org.Settings.ManualAddEnabled || org.Settings.ManualAllowJoinEnabled {
			row1 = append(row1, platform.Button{
				CustomID: dispatch.Action{Kind: dispatch.KindJoin, Target: c.ID}.CustomID(),
				Label:    "Участвовать",
				Style:    platform.ButtonSecondary,
			})
		}
		if org.Settings.DoneEmojiEnabled {
			row1 = append(row1, platform.Button{
				CustomID: dispatch.Action{Kind: dispatch.KindDone, Target: c.ID}.CustomID(),
				Label:    "Выполнено",
				Style:    platform.ButtonSecondary,
			})
		}
		if org.Settings.CollectParticipantsEnabled && c.Status == models.StatusCollecting {
			row2 = append(row2, platform.Button{
				CustomID: dispatch.Action{Kind: dispatch.KindStart, Target: c.ID}.CustomID(),
				Label:    "Начать выполнение",
				Style:    platform.ButtonSuccess,
			})
		}
		row2 = append(row2,
			platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindFinish, Target: c.ID}.CustomID(), Label: "Завершить", Style: platform.ButtonPrimary},
			platform.Button{CustomID: dispatch.Action{Kind: dispatch.KindCancel, Target: c.ID}.CustomID(), Label: "Отменить", Style: platform.ButtonDanger},
		)
	}
	var rows [][]platform.Component
	if len(row1) > 0 {
		rows = append(rows, row1)
	}
	if len(row2) > 0 {
		rows = append(rows, row2)
	}

	return platform.Message{Content: content, Embeds: []platform.Embed{embed}, Rows: rows}
}

// ActiveList is the ephemeral list of an org's live contracts with jump buttons.
func ActiveList(contracts []*models.Contract) platform.Message {
	embed := platform.Embed{Title: "Активные контракты", Color: EmbedColor}
	for _, c := range contracts {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name: c.Name,
			Value: fmt.Sprintf("Автор: <@%s> • Длительность: %d мин • Статус: %s • ID: %s",
				c.AuthorID, c.DurationMinutes, c.Status, c.ID),
		})
	}

	var rows [][]platform.Component
	var row []platform.Component
	for _, c := range contracts {
		if len(row) == maxButtonsPerRow {
			rows = append(rows, row)
			row = nil
		}
		label := c.Name
		if r := []rune(label); len(r) > 80 {
			label = string(r[:80])
		}
		row = append(row, platform.Button{
			CustomID: dispatch.Action{Kind: dispatch.KindView, Target: c.ID}.CustomID(),
			Label:    label,
			Style:    platform.ButtonSecondary,
		})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return platform.Message{Embeds: []platform.Embed{embed}, Rows: rows}
}

// AuditEntry is one append-only line in the org's audit-log channel.
func AuditEntry(text string) platform.Message {
	now := time.Now()
	return platform.Message{Embeds: []platform.Embed{{
		Description: text,
		Color:       EmbedColor,
		Timestamp:   &now,
	}}}
}
