// Package catalog holds the read-only shop price list.
//
// The catalog is owned by external configuration — the engine never mutates
// it. It is injected into services as a constructor parameter rather than
// exposed as package-level state, so tests can swap in their own price lists.
package catalog

import (
	"github.com/sakif/snipetag/internal/apperror"
	"github.com/sakif/snipetag/internal/model"
)

// Catalog is an immutable, id-indexed view over a list of items.
type Catalog struct {
	items map[string]model.CatalogItem
	order []string // preserves the configured listing order
}

// New builds a Catalog from a slice of items. Later duplicates of the same
// id silently win, matching "last write wins" config semantics.
func New(items []model.CatalogItem) *Catalog {
	c := &Catalog{items: make(map[string]model.CatalogItem, len(items))}
	for _, it := range items {
		if _, seen := c.items[it.ID]; !seen {
			c.order = append(c.order, it.ID)
		}
		c.items[it.ID] = it
	}
	return c
}

// Get looks up an item by id.
func (c *Catalog) Get(id string) (model.CatalogItem, error) {
	it, ok := c.items[id]
	if !ok {
		return model.CatalogItem{}, apperror.NotFound("item", id)
	}
	return it, nil
}

// Items returns every item in configured order.
func (c *Catalog) Items() []model.CatalogItem {
	out := make([]model.CatalogItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Default returns the stock shop list.
func Default() *Catalog {
	return New([]model.CatalogItem{
		{
			ID:          "crosshair1",
			Name:        "Precision Crosshair",
			Description: "A precise dot for accurate targeting",
			Price:       100,
			Type:        model.ItemCrosshair,
		},
		{
			ID:          "crosshair2",
			Name:        "Pro Crosshair",
			Description: "Four-point professional crosshair",
			Price:       200,
			Type:        model.ItemCrosshair,
		},
		{
			ID:          "powerup_double",
			Name:        "Double Points",
			Description: "Earn double points for your next 2 snipes",
			Price:       300,
			Type:        model.ItemPowerup,
			Effect:      model.PowerupDoublePoints,
			Duration:    2,
		},
		{
			ID:          "powerup_shield",
			Name:        "Shield",
			Description: "Dodge your next snipe no matter how late",
			Price:       500,
			Type:        model.ItemPowerup,
			Effect:      model.PowerupShield,
		},
		{
			ID:          "powerup_half",
			Name:        "Damage Control",
			Description: "The next snipe against you is worth half",
			Price:       250,
			Type:        model.ItemPowerup,
			Effect:      model.PowerupHalfPoints,
		},
		{
			ID:          "logo_skull",
			Name:        "Skull Logo",
			Description: "Stamp a skull on your snipes",
			Price:       30,
			Type:        model.ItemLogo,
		},
		{
			ID:          "logo_crown",
			Name:        "Crown Logo",
			Description: "Royalty never misses",
			Price:       75,
			Type:        model.ItemLogo,
		},
	})
}
