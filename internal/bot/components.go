package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/aqzsshi/esser-bot/internal/contracts"
	"github.com/aqzsshi/esser-bot/internal/dispatch"
	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
	"github.com/aqzsshi/esser-bot/internal/render"
)

func (h *Handler) handleComponent(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	a, ok := dispatch.Parse(data.CustomID)
	if !ok {
		return
	}
	actor := actorFrom(i)

	switch a.Kind {
	case dispatch.KindInstall:
		if !h.requireAdmin(s, i) {
			return
		}
		h.showInstallModal(s, i)

	case dispatch.KindInstallRoles:
		if !h.requireAdmin(s, i) {
			return
		}
		if _, err := h.registry.SetMentionRoles(ctx, i.GuildID, a.Target, data.Values); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.orgPanel(ctx, s, i, a.Target, true)

	case dispatch.KindManageOrg:
		if !h.requireAdmin(s, i) {
			return
		}
		h.orgPanel(ctx, s, i, a.Target, false)

	case dispatch.KindRename:
		if !h.requireAdmin(s, i) {
			return
		}
		h.showRenameModal(s, i, a.Target)

	case dispatch.KindUpdateRoles:
		if !h.requireAdmin(s, i) {
			return
		}
		h.replyMessage(s, i, platform.Message{
			Content: "Выберите до 8 ролей, которые будут упоминаться при новых контрактах.",
			Rows:    roleSelectRow(dispatch.Action{Kind: dispatch.KindUpdateRolesSelect, Target: a.Target}),
		})

	case dispatch.KindUpdateRolesSelect:
		if !h.requireAdmin(s, i) {
			return
		}
		if _, err := h.registry.SetMentionRoles(ctx, i.GuildID, a.Target, data.Values); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.orgPanel(ctx, s, i, a.Target, true)

	case dispatch.KindUpdatePerms:
		if !h.requireAdmin(s, i) {
			return
		}
		h.replyMessage(s, i, platform.Message{
			Content: "Кто может завершать и отменять контракты организации?",
			Rows:    [][]platform.Component{{permissionSelect(a.Target)}},
		})

	case dispatch.KindUpdatePermsSelect:
		if !h.requireAdmin(s, i) {
			return
		}
		if len(data.Values) == 0 {
			return
		}
		mode := models.PermissionMode(data.Values[0])
		if _, err := h.registry.SetPermissionMode(ctx, i.GuildID, a.Target, mode); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.orgPanel(ctx, s, i, a.Target, true)

	case dispatch.KindToggleFeature:
		if !h.requireAdmin(s, i) {
			return
		}
		if _, err := h.registry.ToggleFeature(ctx, i.GuildID, a.Target, a.Feature); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.orgPanel(ctx, s, i, a.Target, true)

	case dispatch.KindToggleEnabled:
		if !h.requireAdmin(s, i) {
			return
		}
		if _, err := h.registry.ToggleEnabled(ctx, i.GuildID, a.Target); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.orgPanel(ctx, s, i, a.Target, true)

	case dispatch.KindDeleteOrg:
		if !h.requireAdmin(s, i) {
			return
		}
		if err := h.registry.Delete(ctx, i.GuildID, a.Target); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.updateMessage(s, i, platform.Message{Content: "Организация и её каналы удалены."})

	case dispatch.KindActiveList:
		h.activeList(ctx, s, i, a.Target)

	case dispatch.KindView:
		h.viewContract(ctx, s, i, a.Target)

	case dispatch.KindTake:
		org, err := h.registry.Get(ctx, i.GuildID, a.Target)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		if !org.Enabled {
			h.replyText(s, i, "Организация сейчас не принимает новые контракты.")
			return
		}
		h.showTakeModal(s, i, org.ID)

	case dispatch.KindJoin:
		joined, err := h.engine.ToggleJoin(ctx, i.GuildID, a.Target, actor)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		if joined {
			h.replyText(s, i, "Вы участвуете в контракте.")
		} else {
			h.replyText(s, i, "Вы больше не участвуете в контракте.")
		}

	case dispatch.KindDone:
		done, err := h.engine.ToggleDone(ctx, i.GuildID, a.Target, actor)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		if done {
			h.replyText(s, i, "Отмечено как выполнено ✅")
		} else {
			h.replyText(s, i, "Отметка «Выполнено» снята.")
		}

	case dispatch.KindStart:
		if err := h.engine.Start(ctx, i.GuildID, a.Target, actor); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, "Выполнение контракта начато.")

	case dispatch.KindFinish:
		if err := h.engine.Finish(ctx, i.GuildID, a.Target, &actor, contracts.ReasonManual); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, "Контракт завершён.")

	case dispatch.KindCancel:
		if err := h.engine.Cancel(ctx, i.GuildID, a.Target, actor); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, "Контракт отменён.")

	case dispatch.KindSelectParticipants:
		h.createWithParticipants(ctx, s, i, a.Target, data.Values)
	}
}

func (h *Handler) activeList(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, orgID string) {
	state, err := h.states.Load(ctx, i.GuildID)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	active := state.ActiveContracts(orgID)
	if len(active) == 0 {
		h.replyText(s, i, "Активных контрактов нет.")
		return
	}
	h.replyMessage(s, i, render.ActiveList(active))
}

func (h *Handler) viewContract(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, contractID string) {
	state, err := h.states.Load(ctx, i.GuildID)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	c := state.Contract(contractID)
	if c == nil || c.NotifyMessageID == "" {
		h.replyText(s, i, "Контракт не найден. Возможно, он уже удалён.")
		return
	}
	h.replyText(s, i, "Контракт: "+platform.MessageLink(i.GuildID, c.NotifyChannelID, c.NotifyMessageID))
}

// createWithParticipants completes the manual-add flow: the take-modal inputs
// were parked in a session while the author picked members.
func (h *Handler) createWithParticipants(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, token string, userIDs []string) {
	p, ok := h.sessions.take(token)
	if !ok {
		h.replyText(s, i, "Сессия создания контракта истекла. Начните заново.")
		return
	}
	if p.GuildID != i.GuildID || p.Author.ID != i.Member.User.ID {
		h.replyText(s, i, "Эта сессия создана другим пользователем.")
		return
	}
	c, err := h.engine.Create(ctx, contracts.CreateParams{
		GuildID:         p.GuildID,
		OrgID:           p.OrgID,
		Author:          p.Author,
		DurationMinutes: p.DurationMinutes,
		Name:            p.Name,
		Participants:    userIDs,
	})
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.updateMessage(s, i, platform.Message{Content: "Контракт «" + c.Name + "» создан."})
}

// --- modals ---

const (
	fieldOrgName = "org_name"
	fieldNewName = "new_name"
	fieldHours   = "hours"
	fieldMinutes = "minutes"
	fieldName    = "name"
)

func (h *Handler) showInstallModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.respond(s, i, discordgo.InteractionResponseModal, &discordgo.InteractionResponseData{
		CustomID: dispatch.Action{Kind: dispatch.KindInstallModal}.CustomID(),
		Title:    "Новая организация",
		Components: []discordgo.MessageComponent{
			textInputRow(fieldOrgName, "Название организации", true),
		},
	})
}

func (h *Handler) showRenameModal(s *discordgo.Session, i *discordgo.InteractionCreate, orgID string) {
	h.respond(s, i, discordgo.InteractionResponseModal, &discordgo.InteractionResponseData{
		CustomID: dispatch.Action{Kind: dispatch.KindRenameModal, Target: orgID}.CustomID(),
		Title:    "Изменить название",
		Components: []discordgo.MessageComponent{
			textInputRow(fieldNewName, "Новое название", true),
		},
	})
}

func (h *Handler) showTakeModal(s *discordgo.Session, i *discordgo.InteractionCreate, orgID string) {
	h.respond(s, i, discordgo.InteractionResponseModal, &discordgo.InteractionResponseData{
		CustomID: dispatch.Action{Kind: dispatch.KindTakeModal, Target: orgID}.CustomID(),
		Title:    "Взять контракт",
		Components: []discordgo.MessageComponent{
			textInputRow(fieldHours, "Часы", false),
			textInputRow(fieldMinutes, "Минуты", false),
			textInputRow(fieldName, "Название (пусто — по дате)", false),
		},
	})
}

func textInputRow(customID, label string, required bool) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.TextInput{
			CustomID:  customID,
			Label:     label,
			Style:     discordgo.TextInputShort,
			Required:  required,
			MaxLength: 100,
		},
	}}
}

// modalValue digs the field out of the submitted rows.
func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if in, ok := c.(*discordgo.TextInput); ok && in.CustomID == customID {
				return strings.TrimSpace(in.Value)
			}
		}
	}
	return ""
}

func (h *Handler) handleModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	a, ok := dispatch.Parse(data.CustomID)
	if !ok {
		return
	}

	switch a.Kind {
	case dispatch.KindInstallModal:
		if !h.requireAdmin(s, i) {
			return
		}
		org, err := h.registry.Install(ctx, i.GuildID, modalValue(data, fieldOrgName))
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyMessage(s, i, platform.Message{
			Content: "Организация «" + org.Name + "» создана! Выберите роли, которые будут упоминаться при новых контрактах.",
			Rows:    roleSelectRow(dispatch.Action{Kind: dispatch.KindInstallRoles, Target: org.ID}),
		})

	case dispatch.KindRenameModal:
		if !h.requireAdmin(s, i) {
			return
		}
		org, err := h.registry.Rename(ctx, i.GuildID, a.Target, modalValue(data, fieldNewName))
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, "Организация переименована в «"+org.Name+"».")

	case dispatch.KindTakeModal:
		h.handleTakeModal(ctx, s, i, a.Target, data)
	}
}

func (h *Handler) handleTakeModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, orgID string, data discordgo.ModalSubmitInteractionData) {
	// Non-numeric input counts as zero, the duration check below rejects it.
	hours, _ := strconv.Atoi(modalValue(data, fieldHours))
	minutes, _ := strconv.Atoi(modalValue(data, fieldMinutes))
	duration := hours*60 + minutes
	if duration <= 0 {
		h.replyText(s, i, "Укажите длительность больше нуля.")
		return
	}

	actor := actorFrom(i)
	name := modalValue(data, fieldName)

	org, err := h.registry.Get(ctx, i.GuildID, orgID)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}

	if org.Settings.ManualAddEnabled {
		token := h.sessions.put(pendingCreation{
			GuildID:         i.GuildID,
			OrgID:           orgID,
			Author:          actor,
			DurationMinutes: duration,
			Name:            name,
		})
		h.replyMessage(s, i, platform.Message{
			Content: "Выберите участников контракта (до 20).",
			Rows: [][]platform.Component{{platform.UserSelect{
				CustomID:    dispatch.Action{Kind: dispatch.KindSelectParticipants, Target: token}.CustomID(),
				Placeholder: "Участники контракта",
				MaxValues:   contracts.MaxManualParticipants,
			}}},
		})
		return
	}

	c, err := h.engine.Create(ctx, contracts.CreateParams{
		GuildID:         i.GuildID,
		OrgID:           orgID,
		Author:          actor,
		DurationMinutes: duration,
		Name:            name,
	})
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.replyText(s, i, "Контракт «"+c.Name+"» создан.")
}

func permissionSelect(orgID string) platform.StringSelect {
	return platform.StringSelect{
		CustomID:    dispatch.Action{Kind: dispatch.KindUpdatePermsSelect, Target: orgID}.CustomID(),
		Placeholder: "Режим прав",
		Options: []platform.SelectOption{
			{Label: "Все участники", Value: string(models.PermissionEveryone), Description: "Любой участник может завершать и отменять"},
			{Label: "Администрация и автор", Value: string(models.PermissionAdminAuthor)},
			{Label: "Администрация, лидеры и автор", Value: string(models.PermissionAdminLeaderAuthor)},
			{Label: "Администрация, лидеры, старшие и автор", Value: string(models.PermissionAdminLeaderSeniorAuthor)},
		},
	}
}
