// Package model defines the persisted record types of the game engine:
// users, groups, snipes, and the store catalog.
package model

import "time"

// DefaultLogoID is the sentinel value for ActiveLogoID when the user has
// never selected a logo, or has reset their selection.
const DefaultLogoID = "default"

// User represents a player account.
//
// Points is the authoritative balance for this player. Every other copy of
// this number (the per-group member lists) is a cache that is reconciled
// after the fact. Points is deliberately NOT clamped at zero — accusation
// penalties can push a balance negative, and that is intended behaviour.
type User struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Points         int             `json:"points"`
	Inventory      []InventoryItem `json:"inventory"`
	ActivePowerups []ActivePowerup `json:"activePowerups"`
	ActiveLogoID   string          `json:"activeLogoId"`
	GroupIDs       []string        `json:"groupIds"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// InventoryItem is one purchased catalog item.
//
// Used is one-way: once an entry flips to true it never goes back. Logo
// entries never flip at all — logos stay re-selectable forever.
type InventoryItem struct {
	ItemID      string    `json:"itemId"`
	PurchasedAt time.Time `json:"purchasedAt"`
	Used        bool      `json:"used"`
}

// InGroup reports whether the user belongs to the given group.
func (u *User) InGroup(groupID string) bool {
	for _, id := range u.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// OwnsItem reports whether any inventory entry (used or not) has the given
// item id. Logos are acquired at most once, so purchase checks use this.
func (u *User) OwnsItem(itemID string) bool {
	for _, it := range u.Inventory {
		if it.ItemID == itemID {
			return true
		}
	}
	return false
}

// UnusedItemIndex returns the index of the first unused inventory entry for
// the given item id, or -1 if none exists.
func (u *User) UnusedItemIndex(itemID string) int {
	for i, it := range u.Inventory {
		if it.ItemID == itemID && !it.Used {
			return i
		}
	}
	return -1
}
