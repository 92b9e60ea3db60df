// Package dispatch decodes component custom IDs into typed actions. The wire
// format stays "contracts_{verb}_{targetId}" for compatibility with messages
// posted by earlier versions of the bot, but the rest of the code only ever
// sees the decoded Action value.
package dispatch

import (
	"strings"

	"github.com/aqzsshi/esser-bot/internal/models"
)

// Kind discriminates the action union.
type Kind int

const (
	KindUnknown Kind = iota
	KindInstall
	KindInstallModal
	KindInstallRoles
	KindManageOrg
	KindRename
	KindRenameModal
	KindUpdateRoles
	KindUpdateRolesSelect
	KindUpdatePerms
	KindUpdatePermsSelect
	KindToggleFeature
	KindToggleEnabled
	KindDeleteOrg
	KindActiveList
	KindView
	KindTake
	KindTakeModal
	KindJoin
	KindDone
	KindStart
	KindFinish
	KindCancel
	KindSelectParticipants
)

// Action is a decoded component event. Target holds the org id, contract id
// or session token the verb applies to; Feature is set for KindToggleFeature.
type Action struct {
	Kind    Kind
	Target  string
	Feature models.Feature
}

const prefix = "contracts_"

// Longest prefixes first so e.g. "install_roles_" wins over "install".
var verbs = []struct {
	verb string
	kind Kind
}{
	{"select_participants_", KindSelectParticipants},
	{"update_roles_select_", KindUpdateRolesSelect},
	{"update_perms_select_", KindUpdatePermsSelect},
	{"install_roles_", KindInstallRoles},
	{"rename_modal_", KindRenameModal},
	{"update_roles_", KindUpdateRoles},
	{"update_perms_", KindUpdatePerms},
	{"manage_org_", KindManageOrg},
	{"take_modal_", KindTakeModal},
	{"delete_org_", KindDeleteOrg},
	{"active_list_", KindActiveList},
	{"rename_", KindRename},
	{"view_", KindView},
	{"take_", KindTake},
	{"join_", KindJoin},
	{"done_", KindDone},
	{"start_", KindStart},
	{"finish_", KindFinish},
	{"cancel_", KindCancel},
}

var toggles = []struct {
	verb    string
	feature models.Feature
}{
	{"toggle_done_", models.FeatureDoneEmoji},
	{"toggle_manual_join_", models.FeatureManualAllowJoin},
	{"toggle_manual_", models.FeatureManualAdd},
	{"toggle_dm_", models.FeatureDMOnManualAdd},
	{"toggle_collect_", models.FeatureCollectParticipants},
}

// Parse decodes a custom id. ok is false for ids that are not ours.
func Parse(customID string) (Action, bool) {
	if !strings.HasPrefix(customID, prefix) {
		return Action{}, false
	}
	rest := customID[len(prefix):]

	switch rest {
	case "install":
		return Action{Kind: KindInstall}, true
	case "install_modal":
		return Action{Kind: KindInstallModal}, true
	}

	if target, found := strings.CutPrefix(rest, "toggle_enabled_"); found {
		return Action{Kind: KindToggleEnabled, Target: target}, true
	}
	for _, t := range toggles {
		if target, found := strings.CutPrefix(rest, t.verb); found {
			return Action{Kind: KindToggleFeature, Target: target, Feature: t.feature}, true
		}
	}
	for _, v := range verbs {
		if target, found := strings.CutPrefix(rest, v.verb); found {
			return Action{Kind: v.kind, Target: target}, true
		}
	}
	return Action{}, false
}

// CustomID encodes the action back to the wire format.
func (a Action) CustomID() string {
	switch a.Kind {
	case KindInstall:
		return prefix + "install"
	case KindInstallModal:
		return prefix + "install_modal"
	case KindToggleEnabled:
		return prefix + "toggle_enabled_" + a.Target
	case KindToggleFeature:
		for _, t := range toggles {
			if t.feature == a.Feature {
				return prefix + t.verb + a.Target
			}
		}
		return ""
	}
	for _, v := range verbs {
		if v.kind == a.Kind {
			return prefix + v.verb + a.Target
		}
	}
	return ""
}
