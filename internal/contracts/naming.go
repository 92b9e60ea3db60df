package contracts

import (
	"fmt"
	"time"

	"github.com/aqzsshi/esser-bot/internal/models"
)

// autoName builds the default contract name: the guild-local creation date
// plus a 1-based daily sequence number, e.g. "07.03.2026 №2".
func autoName(state *models.GuildState, now time.Time, loc *time.Location) string {
	seq := state.CountCreatedOn(now, loc) + 1
	return fmt.Sprintf("%s №%d", now.In(loc).Format("02.01.2006"), seq)
}
