package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	StatusCollecting ContractStatus = "collecting"
	StatusRunning    ContractStatus = "running"
	StatusFinished   ContractStatus = "finished"
	StatusCancelled  ContractStatus = "cancelled"
)

// Participant is one actor's entry on a contract. Done is only meaningful
// while the organization's completion-marking toggle is enabled.
type Participant struct {
	Joined bool `json:"joined"`
	Done   bool `json:"done"`
}

// Contract is a time-boxed cooperative task owned by an organization.
type Contract struct {
	ID              string                 `json:"id"`
	OrgID           string                 `json:"org_id"`
	Name            string                 `json:"name"`
	AuthorID        string                 `json:"author_id"`
	DurationMinutes int                    `json:"duration_minutes"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"` // nil until the collection phase ends
	Status          ContractStatus         `json:"status"`
	Participants    map[string]Participant `json:"participants"`
	NotifyChannelID string                 `json:"notify_channel_id"`
	NotifyMessageID string                 `json:"notify_message_id"`
	LogsChannelID   string                 `json:"logs_channel_id"`
}

// Active reports whether the contract still accepts participant and
// management actions.
func (c *Contract) Active() bool {
	return c.Status == StatusCollecting || c.Status == StatusRunning
}

// Terminal reports whether the contract reached an immutable final state.
func (c *Contract) Terminal() bool {
	return c.Status == StatusFinished || c.Status == StatusCancelled
}

// Deadline returns the auto-finish moment. Zero time until the contract has started.
func (c *Contract) Deadline() time.Time {
	if c.StartedAt == nil {
		return time.Time{}
	}
	return c.StartedAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

// JoinedCount returns how many participants are currently joined.
func (c *Contract) JoinedCount() int {
	n := 0
	for _, p := range c.Participants {
		if p.Joined {
			n++
		}
	}
	return n
}

// NewContractID builds a contract id from the creation time plus randomness,
// globally unique within the process lifetime (e.g. "ct_ly3k2f1q_9f8a02c1").
func NewContractID(now time.Time) string {
	return "ct_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + uuid.NewString()[:8]
}
