// Package discord implements the platform interfaces on top of discordgo.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/aqzsshi/esser-bot/internal/platform"
	"github.com/aqzsshi/esser-bot/pkg/apperr"
)

// Client adapts a discordgo session to the platform interfaces.
type Client struct {
	session *discordgo.Session
	logger  *zap.Logger
}

// NewClient wraps an established discordgo session.
func NewClient(session *discordgo.Session, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{session: session, logger: logger}
}

// CreateOrgChannels allocates the category and the three org channels. A
// failure midway deletes nothing; the registry persists no partial unit.
func (c *Client) CreateOrgChannels(ctx context.Context, guildID, orgName string) (platform.OrgChannels, error) {
	category, err := c.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: orgName + " • Контракты",
		Type: discordgo.ChannelTypeGuildCategory,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return platform.OrgChannels{}, fmt.Errorf("create category: %w (%w)", err, apperr.ErrExternal)
	}

	var out platform.OrgChannels
	out.CategoryID = category.ID
	for _, ch := range []struct {
		name string
		dest *string
	}{
		{"взять-контракт", &out.TakeChannelID},
		{"уведомления-контрактов", &out.NotifyChannelID},
		{"логи-контрактов", &out.LogsChannelID},
	} {
		created, err := c.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:     ch.name,
			Type:     discordgo.ChannelTypeGuildText,
			ParentID: category.ID,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return platform.OrgChannels{}, fmt.Errorf("create channel %s: %w (%w)", ch.name, err, apperr.ErrExternal)
		}
		*ch.dest = created.ID
	}
	return out, nil
}

// RenameCategory renames a category channel.
func (c *Client) RenameCategory(ctx context.Context, channelID, name string) error {
	_, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("rename channel %s: %w (%w)", channelID, err, apperr.ErrExternal)
	}
	return nil
}

// DeleteChannel removes a channel or category.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete channel %s: %w (%w)", channelID, err, apperr.ErrExternal)
	}
	return nil
}

// Send posts a message and returns its id.
func (c *Client) Send(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	sent, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     BuildEmbeds(msg.Embeds),
		Components: BuildComponents(msg.Rows),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send message: %w (%w)", err, apperr.ErrExternal)
	}
	return sent.ID, nil
}

// Edit updates a message in place.
func (c *Client) Edit(ctx context.Context, channelID, messageID string, msg platform.Message) error {
	embeds := BuildEmbeds(msg.Embeds)
	components := BuildComponents(msg.Rows)
	edit := &discordgo.MessageEdit{
		Channel:    channelID,
		ID:         messageID,
		Content:    &msg.Content,
		Embeds:     &embeds,
		Components: &components,
	}
	if _, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit message %s: %w (%w)", messageID, err, apperr.ErrExternal)
	}
	return nil
}

// DirectMessage opens (or reuses) the DM channel and sends content.
func (c *Client) DirectMessage(ctx context.Context, userID, content string) error {
	dm, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm %s: %w (%w)", userID, err, apperr.ErrExternal)
	}
	if _, err := c.session.ChannelMessageSend(dm.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm %s: %w (%w)", userID, err, apperr.ErrExternal)
	}
	return nil
}

// BuildEmbeds converts platform embeds to discordgo embeds.
func BuildEmbeds(embeds []platform.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		embed := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: f.Inline,
			})
		}
		if e.Footer != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		if e.Timestamp != nil {
			embed.Timestamp = e.Timestamp.Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, embed)
	}
	return out
}

// BuildComponents converts platform component rows to discordgo action rows.
func BuildComponents(rows [][]platform.Component) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		var items []discordgo.MessageComponent
		for _, comp := range row {
			switch c := comp.(type) {
			case platform.Button:
				items = append(items, discordgo.Button{
					CustomID: c.CustomID,
					Label:    c.Label,
					Style:    buttonStyle(c.Style),
				})
			case platform.RoleSelect:
				items = append(items, discordgo.SelectMenu{
					MenuType:    discordgo.RoleSelectMenu,
					CustomID:    c.CustomID,
					Placeholder: c.Placeholder,
					MaxValues:   c.MaxValues,
				})
			case platform.UserSelect:
				items = append(items, discordgo.SelectMenu{
					MenuType:    discordgo.UserSelectMenu,
					CustomID:    c.CustomID,
					Placeholder: c.Placeholder,
					MaxValues:   c.MaxValues,
				})
			case platform.StringSelect:
				menu := discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    c.CustomID,
					Placeholder: c.Placeholder,
				}
				for _, opt := range c.Options {
					menu.Options = append(menu.Options, discordgo.SelectMenuOption{
						Label:       opt.Label,
						Value:       opt.Value,
						Description: opt.Description,
					})
				}
				items = append(items, menu)
			}
		}
		out = append(out, discordgo.ActionsRow{Components: items})
	}
	return out
}

func buttonStyle(s platform.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case platform.ButtonPrimary:
		return discordgo.PrimaryButton
	case platform.ButtonSuccess:
		return discordgo.SuccessButton
	case platform.ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.SecondaryButton
	}
}
