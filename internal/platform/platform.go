// Package platform defines the narrow surface the core consumes from the
// chat platform: channel allocation, message post/edit and direct messages.
// The concrete Discord adapter lives in platform/discord; the engine and
// registry only see these interfaces.
package platform

import (
	"context"
	"time"
)

// Actor identifies the user triggering an action, with the only privilege
// bit the authorization policy needs.
type Actor struct {
	ID    string
	Admin bool // guild-administrator privilege
}

// OrgChannels are the channel bindings allocated for one organization.
type OrgChannels struct {
	CategoryID      string
	TakeChannelID   string
	NotifyChannelID string
	LogsChannelID   string
}

// Channels creates and tears down an organization's channels.
type Channels interface {
	// CreateOrgChannels allocates the category plus intake, notification and
	// audit-log channels for a new organization.
	CreateOrgChannels(ctx context.Context, guildID, orgName string) (OrgChannels, error)
	// RenameCategory renames the organization's category after a rename.
	RenameCategory(ctx context.Context, channelID, name string) error
	// DeleteChannel removes a single channel or category.
	DeleteChannel(ctx context.Context, channelID string) error
}

// Messages posts and edits guild-visible messages.
type Messages interface {
	Send(ctx context.Context, channelID string, msg Message) (messageID string, err error)
	Edit(ctx context.Context, channelID, messageID string, msg Message) error
}

// Users delivers direct messages.
type Users interface {
	DirectMessage(ctx context.Context, userID, content string) error
}

// MessageLink returns the jump URL for a guild message.
func MessageLink(guildID, channelID, messageID string) string {
	return "https://discord.com/channels/" + guildID + "/" + channelID + "/" + messageID
}

// ButtonStyle selects the platform's button rendering.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Component is one interactive element in a message row.
type Component interface{ isComponent() }

// Button is a clickable button carrying an opaque action id.
type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

// RoleSelect asks the actor to pick guild roles.
type RoleSelect struct {
	CustomID    string
	Placeholder string
	MaxValues   int
}

// UserSelect asks the actor to pick guild members.
type UserSelect struct {
	CustomID    string
	Placeholder string
	MaxValues   int
}

// SelectOption is one choice in a StringSelect.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// StringSelect asks the actor to pick one predefined value.
type StringSelect struct {
	CustomID    string
	Placeholder string
	Options     []SelectOption
}

func (Button) isComponent()       {}
func (RoleSelect) isComponent()   {}
func (UserSelect) isComponent()   {}
func (StringSelect) isComponent() {}

// EmbedField is one name/value pair in an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a platform-neutral rich message body.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   *time.Time
}

// Message is a platform-neutral message: plain content, embeds and component rows.
type Message struct {
	Content string
	Embeds  []Embed
	Rows    [][]Component
}
