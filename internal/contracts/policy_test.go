package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aqzsshi/esser-bot/internal/models"
	"github.com/aqzsshi/esser-bot/internal/platform"
)

func TestCanManage(t *testing.T) {
	c := &models.Contract{AuthorID: "author"}
	orgWith := func(mode models.PermissionMode) *models.Organization {
		return &models.Organization{Settings: models.OrgSettings{PermissionMode: mode}}
	}

	tests := []struct {
		name  string
		actor platform.Actor
		mode  models.PermissionMode
		want  bool
	}{
		{"admin always", platform.Actor{ID: "x", Admin: true}, models.PermissionAdminAuthor, true},
		{"author always", platform.Actor{ID: "author"}, models.PermissionAdminAuthor, true},
		{"stranger denied by default", platform.Actor{ID: "x"}, models.PermissionAdminAuthor, false},
		{"everyone opens it up", platform.Actor{ID: "x"}, models.PermissionEveryone, true},
		{"leader mode resolves as admin_author", platform.Actor{ID: "x"}, models.PermissionAdminLeaderAuthor, false},
		{"senior mode resolves as admin_author", platform.Actor{ID: "x"}, models.PermissionAdminLeaderSeniorAuthor, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanManage(tt.actor, c, orgWith(tt.mode)))
		})
	}
}
