package model

import "time"

// PowerupType identifies a scoring modifier.
type PowerupType string

const (
	PowerupDoublePoints PowerupType = "double_points" // sniper earns 2x, consumed at snipe creation
	PowerupShield       PowerupType = "shield"        // target dodges unconditionally, consumed at dodge
	PowerupHalfPoints   PowerupType = "half_points"   // target leaks 0.5x, consumed at snipe creation
)

// Valid reports whether t is one of the known powerup types.
func (t PowerupType) Valid() bool {
	switch t {
	case PowerupDoublePoints, PowerupShield, PowerupHalfPoints:
		return true
	}
	return false
}

// ActivePowerup is a powerup the user has activated from their inventory.
//
// A user holds at most one entry per type. Shield is the exception: a second
// shield activation stacks onto the existing entry by bumping RemainingUses
// rather than appending a duplicate. When RemainingUses hits zero the entry
// is removed from the list.
type ActivePowerup struct {
	ID            string      `json:"id"` // catalog item id this came from
	Type          PowerupType `json:"type"`
	RemainingUses int         `json:"remainingUses"`
	ActivatedAt   time.Time   `json:"activatedAt"`
}
