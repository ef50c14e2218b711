package model

// ItemType classifies a catalog item.
type ItemType string

const (
	ItemCrosshair ItemType = "crosshair" // cosmetic, no activation step
	ItemPowerup   ItemType = "powerup"   // activated via Use, becomes an ActivePowerup
	ItemLogo      ItemType = "logo"      // owned at most once, selectable forever
)

// CatalogItem is one entry in the static shop price list.
//
// Effect is set only for powerup items. Duration is the initial
// RemainingUses granted on activation; zero means the default of 1.
type CatalogItem struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       int         `json:"price"` // unit: points, always positive
	Type        ItemType    `json:"type"`
	Effect      PowerupType `json:"effect,omitempty"`
	Duration    int         `json:"duration,omitempty"`
}

// Uses returns the number of activations this item grants.
func (c CatalogItem) Uses() int {
	if c.Duration <= 0 {
		return 1
	}
	return c.Duration
}
