package models

import (
	"sort"
	"time"
)

// SchemaVersion is the current guild document schema. Bump when the document
// layout changes in a way migrations must detect.
const SchemaVersion = 1

// GuildState is the whole per-guild document: the only unit the store loads
// and saves.
type GuildState struct {
	SchemaVersion int                  `json:"schema_version"`
	Orgs          []*Organization      `json:"orgs"`
	NextOrgSeq    int                  `json:"next_org_seq"`
	Contracts     map[string]*Contract `json:"contracts"`
}

// NewGuildState returns an empty document for a guild seen for the first time.
func NewGuildState() *GuildState {
	return &GuildState{
		SchemaVersion: SchemaVersion,
		NextOrgSeq:    1,
		Contracts:     make(map[string]*Contract),
	}
}

// Org returns the organization with the given id, or nil.
func (g *GuildState) Org(id string) *Organization {
	for _, o := range g.Orgs {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Contract returns the contract with the given id, or nil.
func (g *GuildState) Contract(id string) *Contract {
	if g.Contracts == nil {
		return nil
	}
	return g.Contracts[id]
}

// ActiveContracts returns the org's collecting and running contracts, oldest first.
func (g *GuildState) ActiveContracts(orgID string) []*Contract {
	var out []*Contract
	for _, c := range g.Contracts {
		if c.OrgID == orgID && c.Active() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// RemoveOrg deletes the organization and every contract it owns, regardless
// of status, and returns the removed contract ids so callers can disarm timers.
func (g *GuildState) RemoveOrg(orgID string) []string {
	kept := g.Orgs[:0]
	for _, o := range g.Orgs {
		if o.ID != orgID {
			kept = append(kept, o)
		}
	}
	g.Orgs = kept

	var removed []string
	for id, c := range g.Contracts {
		if c.OrgID == orgID {
			removed = append(removed, id)
			delete(g.Contracts, id)
		}
	}
	return removed
}

// CountCreatedOn returns how many contracts were created on the same calendar
// day as t in the given location. Used for daily auto-name sequence numbers.
func (g *GuildState) CountCreatedOn(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	n := 0
	for _, c := range g.Contracts {
		cy, cm, cd := c.CreatedAt.In(loc).Date()
		if cy == y && cm == m && cd == d {
			n++
		}
	}
	return n
}
