package models

// MaxOrganizationsPerGuild caps how many organizations a guild may install.
const MaxOrganizationsPerGuild = 3

// MaxMentionRoles caps how many announcement roles an organization may carry.
const MaxMentionRoles = 8

// PermissionMode controls who may start/finish/cancel an organization's contracts.
type PermissionMode string

const (
	PermissionEveryone    PermissionMode = "everyone"
	PermissionAdminAuthor PermissionMode = "admin_author"
	// The two extended modes are accepted but currently resolve the same as
	// admin_author; role-based semantics await product clarification.
	PermissionAdminLeaderAuthor       PermissionMode = "admin_leader_author"
	PermissionAdminLeaderSeniorAuthor PermissionMode = "admin_leader_senior_author"
)

// Valid reports whether m is one of the accepted permission modes.
func (m PermissionMode) Valid() bool {
	switch m {
	case PermissionEveryone, PermissionAdminAuthor, PermissionAdminLeaderAuthor, PermissionAdminLeaderSeniorAuthor:
		return true
	}
	return false
}

// Feature names an organization's boolean toggle.
type Feature string

const (
	// FeatureDoneEmoji enables the "done" completion mark on participants.
	FeatureDoneEmoji Feature = "done_emoji"
	// FeatureManualAdd makes the author pick participants at creation time.
	FeatureManualAdd Feature = "manual_add"
	// FeatureManualAllowJoin still allows self-join while manual addition is on.
	FeatureManualAllowJoin Feature = "manual_allow_join"
	// FeatureDMOnManualAdd direct-messages users added manually.
	FeatureDMOnManualAdd Feature = "dm_on_manual_add"
	// FeatureCollectParticipants inserts a collection phase before the clock starts.
	FeatureCollectParticipants Feature = "collect_participants"
)

// OrgSettings holds an organization's configuration toggles.
type OrgSettings struct {
	PermissionMode             PermissionMode `json:"permission_mode"`
	DoneEmojiEnabled           bool           `json:"done_emoji_enabled"`
	ManualAddEnabled           bool           `json:"manual_add_enabled"`
	ManualAllowJoinEnabled     bool           `json:"manual_allow_join_enabled"`
	DMOnManualAddEnabled       bool           `json:"dm_on_manual_add_enabled"`
	CollectParticipantsEnabled bool           `json:"collect_participants_enabled"`
}

// DefaultOrgSettings returns the settings a freshly installed organization gets.
func DefaultOrgSettings() OrgSettings {
	return OrgSettings{
		PermissionMode:             PermissionAdminAuthor,
		DoneEmojiEnabled:           true,
		ManualAddEnabled:           false,
		ManualAllowJoinEnabled:     true,
		DMOnManualAddEnabled:       false,
		CollectParticipantsEnabled: false,
	}
}

// Toggle flips the named feature and returns its new value; ok is false for an
// unknown feature name.
func (s *OrgSettings) Toggle(f Feature) (value, ok bool) {
	switch f {
	case FeatureDoneEmoji:
		s.DoneEmojiEnabled = !s.DoneEmojiEnabled
		return s.DoneEmojiEnabled, true
	case FeatureManualAdd:
		s.ManualAddEnabled = !s.ManualAddEnabled
		return s.ManualAddEnabled, true
	case FeatureManualAllowJoin:
		s.ManualAllowJoinEnabled = !s.ManualAllowJoinEnabled
		return s.ManualAllowJoinEnabled, true
	case FeatureDMOnManualAdd:
		s.DMOnManualAddEnabled = !s.DMOnManualAddEnabled
		return s.DMOnManualAddEnabled, true
	case FeatureCollectParticipants:
		s.CollectParticipantsEnabled = !s.CollectParticipantsEnabled
		return s.CollectParticipantsEnabled, true
	}
	return false, false
}

// Organization is a tenant-scoped unit owning contracts, channel bindings and toggles.
type Organization struct {
	ID              string      `json:"id"` // sequential per guild, e.g. "ORG1"
	Name            string      `json:"name"`
	CategoryID      string      `json:"category_id"`
	TakeChannelID   string      `json:"take_channel_id"`
	NotifyChannelID string      `json:"notify_channel_id"`
	LogsChannelID   string      `json:"logs_channel_id"`
	TakeMessageID   string      `json:"take_message_id"`
	MentionRoleIDs  []string    `json:"mention_role_ids"`
	Enabled         bool        `json:"enabled"`
	Settings        OrgSettings `json:"settings"`
}
