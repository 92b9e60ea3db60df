package contracts

import (
	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
)

// CanManage resolves whether the actor may start, finish or cancel the
// contract. Guild administrators and the contract's author always may; the
// "everyone" mode opens it to anybody. The two extended modes are accepted
// as configuration but currently resolve the same as admin_author.
func CanManage(actor platform.Actor, c *models.Contract, org *models.Organization) bool {
	if actor.Admin {
		return true
	}
	if actor.ID == c.AuthorID {
		return true
	}
	return org.Settings.PermissionMode == models.PermissionEveryone
}
