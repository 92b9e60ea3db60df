// Package bot is the Discord-facing surface: it registers the slash commands,
// receives interactions, decodes component custom ids and drives the org
// registry and contract engine. Everything user-visible it sends is ephemeral;
// the shared messages (intake, cards, audit log) are posted by the core.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/contracts"
	"github.com/aqzsshi/esser-bot/internal/dispatch"
	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/orgs"
	"github.com/aqzsshi/esser-bot/internal/platform"
	"github.com/aqzsshi/esser-bot/internal/platform/discord"
	"github.com/aqzsshi/esser-bot/internal/render"
	"github.com/aqzsshi/esser-bot/pkg/apperr"
)

// interactionTimeout bounds the work behind a single interaction. Discord
// expects the first response within seconds anyway.
const interactionTimeout = 10 * time.Second

// StateSource is the read side of the guild store the handler needs for the
// module home and the active list.
type StateSource interface {
	Load(ctx context.Context, guildID string) (*models.GuildState, error)
}

type Handler struct {
	engine   *contracts.Engine
	registry *orgs.Registry
	states   StateSource
	sessions *sessionStore
	logger   *zap.Logger

	registerOnce sync.Once
}

func New(engine *contracts.Engine, registry *orgs.Registry, states StateSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:   engine,
		registry: registry,
		states:   states,
		sessions: newSessionStore(),
		logger:   logger,
	}
}

// Register attaches the handler to the session. Call before Open.
func (h *Handler) Register(s *discordgo.Session) {
	s.AddHandler(h.onReady)
	s.AddHandler(h.onInteraction)
}

func (h *Handler) onReady(s *discordgo.Session, r *discordgo.Ready) {
	h.logger.Info("gateway ready", zap.String("user", r.User.Username))
	// Ready fires again on resume; the commands only need to go up once.
	h.registerOnce.Do(func() {
		for _, cmd := range commandDefinitions() {
			if _, err := s.ApplicationCommandCreate(r.User.ID, "", cmd); err != nil {
				h.logger.Error("command registration failed", zap.String("command", cmd.Name), zap.Error(err))
			}
		}
	})
}

func (h *Handler) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil || i.Member.User == nil {
		return // DMs carry no guild context
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(ctx, s, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(ctx, s, i)
	case discordgo.InteractionModalSubmit:
		h.handleModal(ctx, s, i)
	}
}

func actorFrom(i *discordgo.InteractionCreate) platform.Actor {
	return platform.Actor{
		ID:    i.Member.User.ID,
		Admin: i.Member.Permissions&discordgo.PermissionAdministrator != 0,
	}
}

// requireAdmin replies with a refusal and returns false for non-admins.
func (h *Handler) requireAdmin(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if actorFrom(i).Admin {
		return true
	}
	h.replyText(s, i, "Эта настройка доступна только администраторам сервера.")
	return false
}

func (h *Handler) replyText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	h.respond(s, i, discordgo.InteractionResponseChannelMessageWithSource, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

func (h *Handler) replyMessage(s *discordgo.Session, i *discordgo.InteractionCreate, msg platform.Message) {
	h.respond(s, i, discordgo.InteractionResponseChannelMessageWithSource, &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Embeds:     discord.BuildEmbeds(msg.Embeds),
		Components: discord.BuildComponents(msg.Rows),
		Flags:      discordgo.MessageFlagsEphemeral,
	})
}

// updateMessage rewrites the ephemeral message the component lives on, so
// settings panels refresh in place instead of stacking replies.
func (h *Handler) updateMessage(s *discordgo.Session, i *discordgo.InteractionCreate, msg platform.Message) {
	h.respond(s, i, discordgo.InteractionResponseUpdateMessage, &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Embeds:     discord.BuildEmbeds(msg.Embeds),
		Components: discord.BuildComponents(msg.Rows),
	})
}

func (h *Handler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, t discordgo.InteractionResponseType, data *discordgo.InteractionResponseData) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{Type: t, Data: data}); err != nil {
		h.logger.Error("interaction respond failed", zap.Error(err))
	}
}

// replyErr maps a core error to a user-facing refusal.
func (h *Handler) replyErr(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	h.logger.Warn("interaction rejected",
		zap.String("guild_id", i.GuildID), zap.String("user_id", i.Member.User.ID), zap.Error(err))
	h.replyText(s, i, errText(err))
}

func errText(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "Не найдено. Возможно, организация или контракт уже удалены."
	case errors.Is(err, apperr.ErrLimitExceeded):
		return "Достигнут лимит организаций (максимум 3)."
	case errors.Is(err, apperr.ErrPermissionDenied):
		return "Недостаточно прав для этого действия."
	case errors.Is(err, apperr.ErrInvalidInput):
		return "Некорректный запрос. Проверьте данные и попробуйте снова."
	default:
		return "Что-то пошло не так. Попробуйте позже."
	}
}

// moduleHome loads the guild state and replies with the module overview.
func (h *Handler) moduleHome(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	state, err := h.states.Load(ctx, i.GuildID)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	h.replyMessage(s, i, render.ModuleHome(state))
}

// orgPanel replies (or updates in place) with the settings panel.
func (h *Handler) orgPanel(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, orgID string, inPlace bool) {
	org, err := h.registry.Get(ctx, i.GuildID, orgID)
	if err != nil {
		h.replyErr(s, i, err)
		return
	}
	if inPlace {
		h.updateMessage(s, i, render.OrgPanel(org))
	} else {
		h.replyMessage(s, i, render.OrgPanel(org))
	}
}

// roleSelectRow builds the single-row mention-role picker used by both the
// install flow and the settings panel.
func roleSelectRow(a dispatch.Action) [][]platform.Component {
	return [][]platform.Component{{platform.RoleSelect{
		CustomID:    a.CustomID(),
		Placeholder: "Выберите роли для упоминания",
		MaxValues:   models.MaxMentionRoles,
	}}}
}
