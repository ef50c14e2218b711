package model

import "time"

// Group is a shared arena of players.
//
// Members[].Points is a denormalized cache of each member's User.Points,
// maintained by the ledger fan-out worker. Readers may transiently observe a
// stale value; the User record is always the source of truth.
type Group struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	CreatedBy        string      `json:"createdBy"`
	InviteCode       string      `json:"inviteCode"` // unique, immutable once assigned
	Members          []Member    `json:"members"`
	ActiveAccusation *Accusation `json:"activeAccusation,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Member is one entry in a group's cached roster.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Accusation is the single in-flight vote a group may hold at any time.
// The accuser's own "yes" vote is recorded at creation. Votes overwrite:
// a member who votes twice simply replaces their earlier vote.
type Accusation struct {
	AccuserID string          `json:"accuserId"`
	AccusedID string          `json:"accusedId"`
	Votes     map[string]bool `json:"votes"`
	Timestamp time.Time       `json:"timestamp"`
}

// MemberIndex returns the index of the member with the given id, or -1.
func (g *Group) MemberIndex(userID string) int {
	for i, m := range g.Members {
		if m.ID == userID {
			return i
		}
	}
	return -1
}

// HasMember reports whether the user is on the group roster.
func (g *Group) HasMember(userID string) bool {
	return g.MemberIndex(userID) >= 0
}
