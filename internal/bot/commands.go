package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/aqzsshi/esser-bot/internal/models"
)

// commandDefinitions describes the global slash commands. "контракты" and
// "модули контракты" both open the module overview; "контракты-админ" is a
// structured alternative to the button-driven settings for admins who prefer
// commands.
func commandDefinitions() []*discordgo.ApplicationCommand {
	orgOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "организация",
		Description: "ID организации, например ORG1",
		Required:    true,
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        "контракты",
			Description: "Модуль «Контракты»: организации и активные контракты",
		},
		{
			Name:        "модули",
			Description: "Модули сервера",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "контракты",
					Description: "Открыть модуль «Контракты»",
				},
			},
		},
		{
			Name:        "контракты-админ",
			Description: "Настройка модуля «Контракты»",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "установить",
					Description: "Создать организацию",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "название",
							Description: "Название организации",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "переименовать",
					Description: "Переименовать организацию",
					Options: []*discordgo.ApplicationCommandOption{
						orgOption,
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "название",
							Description: "Новое название",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "роли",
					Description: "Задать роли для упоминания (ID через запятую)",
					Options: []*discordgo.ApplicationCommandOption{
						orgOption,
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "роли",
							Description: "ID ролей через запятую, пусто — убрать все",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "права",
					Description: "Кто может управлять контрактами",
					Options: []*discordgo.ApplicationCommandOption{
						orgOption,
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "режим",
							Description: "Режим прав",
							Required:    true,
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "Все участники", Value: string(models.PermissionEveryone)},
								{Name: "Администрация и автор", Value: string(models.PermissionAdminAuthor)},
								{Name: "Администрация, лидеры и автор", Value: string(models.PermissionAdminLeaderAuthor)},
								{Name: "Администрация, лидеры, старшие и автор", Value: string(models.PermissionAdminLeaderSeniorAuthor)},
							},
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "статус",
					Description: "Включить или выключить организацию",
					Options: []*discordgo.ApplicationCommandOption{
						orgOption,
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "включена",
							Description: "Принимает ли организация новые контракты",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "удалить",
					Description: "Удалить организацию вместе с каналами",
					Options:     []*discordgo.ApplicationCommandOption{orgOption},
				},
			},
		},
	}
}

func (h *Handler) handleCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "контракты", "модули":
		h.moduleHome(ctx, s, i)
	case "контракты-админ":
		if !h.requireAdmin(s, i) {
			return
		}
		if len(data.Options) == 0 {
			return
		}
		h.handleAdminCommand(ctx, s, i, data.Options[0])
	}
}

func (h *Handler) handleAdminCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(sub.Options))
	for _, o := range sub.Options {
		opts[o.Name] = o
	}
	stringOpt := func(name string) string {
		if o, ok := opts[name]; ok {
			return strings.TrimSpace(o.StringValue())
		}
		return ""
	}

	switch sub.Name {
	case "установить":
		org, err := h.registry.Install(ctx, i.GuildID, stringOpt("название"))
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, fmt.Sprintf("Организация «%s» создана (%s).", org.Name, org.ID))
	case "переименовать":
		org, err := h.registry.Rename(ctx, i.GuildID, stringOpt("организация"), stringOpt("название"))
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, fmt.Sprintf("Организация переименована в «%s».", org.Name))
	case "роли":
		roleIDs, err := parseRoleIDs(stringOpt("роли"))
		if err != nil {
			h.replyText(s, i, "ID ролей должны быть числами, разделёнными запятыми.")
			return
		}
		if _, err := h.registry.SetMentionRoles(ctx, i.GuildID, stringOpt("организация"), roleIDs); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, "Роли для упоминания обновлены.")
	case "права":
		mode := models.PermissionMode(stringOpt("режим"))
		if _, err := h.registry.SetPermissionMode(ctx, i.GuildID, stringOpt("организация"), mode); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, "Права управления контрактами обновлены.")
	case "статус":
		enabled := false
		if o, ok := opts["включена"]; ok {
			enabled = o.BoolValue()
		}
		org, err := h.registry.SetEnabled(ctx, i.GuildID, stringOpt("организация"), enabled)
		if err != nil {
			h.replyErr(s, i, err)
			return
		}
		if org.Enabled {
			h.replyText(s, i, "Организация включена.")
		} else {
			h.replyText(s, i, "Организация выключена.")
		}
	case "удалить":
		if err := h.registry.Delete(ctx, i.GuildID, stringOpt("организация")); err != nil {
			h.replyErr(s, i, err)
			return
		}
		h.replyText(s, i, "Организация и её каналы удалены.")
	}
}

// parseRoleIDs splits a comma-separated list and rejects non-snowflake ids.
func parseRoleIDs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := strconv.ParseUint(p, 10, 64); err != nil {
			return nil, fmt.Errorf("role id %q is not numeric", p)
		}
		ids = append(ids, p)
	}
	return ids, nil
}
