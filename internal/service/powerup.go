// Package service contains the business logic layer of the application.
//
// Handlers parse HTTP and write responses; services enforce the game rules;
// repositories move records in and out of storage. Services accept plain
// values and return domain errors from internal/apperror — they have zero
// knowledge of HTTP, which is what lets the same rules drive the API, the
// janitor sweep, and the tests.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/snipetag/internal/apperror"
	"github.com/sakif/snipetag/internal/catalog"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/repository"
)

// PowerupEngine owns the active-powerup rules: activation, stacking,
// consumption, and the shield-first multiplier resolution used at snipe
// creation.
type PowerupEngine struct {
	users   repository.UserRepository
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewPowerupEngine creates a PowerupEngine.
func NewPowerupEngine(users repository.UserRepository, cat *catalog.Catalog, logger *slog.Logger) *PowerupEngine {
	return &PowerupEngine{users: users, catalog: cat, logger: logger}
}

// ActiveFor returns the user's current active powerups.
func (e *PowerupEngine) ActiveFor(ctx context.Context, userID string) ([]model.ActivePowerup, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.ActivePowerups, nil
}

// HasActive reports whether the user holds an unconsumed powerup of the
// given type.
func (e *PowerupEngine) HasActive(ctx context.Context, userID string, typ model.PowerupType) (bool, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return hasPowerup(user, typ), nil
}

// activate applies the activation rules to an in-transaction user record.
// It is called from inside a users.Mutate callback (the store service marks
// the inventory entry used in the same transaction, so a failed activation
// never burns the purchase).
//
// Rules: at most one active instance per type. Shield is the exception — a
// second shield folds into the existing entry by adding its uses. Any other
// duplicate fails with PowerupAlreadyActive.
func activate(u *model.User, item model.CatalogItem, now time.Time) error {
	for i := range u.ActivePowerups {
		if u.ActivePowerups[i].Type != item.Effect {
			continue
		}
		if item.Effect == model.PowerupShield {
			u.ActivePowerups[i].RemainingUses += item.Uses()
			return nil
		}
		return apperror.New(apperror.ErrPowerupAlreadyActive,
			"a %s powerup is already active", item.Effect)
	}

	u.ActivePowerups = append(u.ActivePowerups, model.ActivePowerup{
		ID:            item.ID,
		Type:          item.Effect,
		RemainingUses: item.Uses(),
		ActivatedAt:   now,
	})
	return nil
}

// errNotActive aborts a consume transaction without treating it as failure.
var errNotActive = errors.New("powerup not active")

// Consume spends one use of the given powerup type if the user holds one.
// Returns whether a use was actually consumed. The decrement, the removal of
// an exhausted entry, and the pruning of its single-use inventory original
// all commit in one transaction, so two snipes racing for the last
// half_points use cannot both win.
func (e *PowerupEngine) Consume(ctx context.Context, userID string, typ model.PowerupType) (bool, error) {
	_, err := e.users.Mutate(ctx, userID, func(u *model.User) error {
		idx := -1
		for i := range u.ActivePowerups {
			if u.ActivePowerups[i].Type == typ {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errNotActive
		}

		p := &u.ActivePowerups[idx]
		p.RemainingUses--
		if p.RemainingUses > 0 {
			return nil
		}

		itemID := p.ID
		u.ActivePowerups = append(u.ActivePowerups[:idx], u.ActivePowerups[idx+1:]...)
		e.pruneSingleUse(u, itemID)
		return nil
	})
	if errors.Is(err, errNotActive) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.logger.Debug("powerup consumed",
		slog.String("userId", userID),
		slog.String("type", string(typ)),
	)
	return true, nil
}

// pruneSingleUse drops the spent inventory entry behind an exhausted
// powerup, but only for items that granted a single use — multi-use items
// keep their used entry as purchase history.
func (e *PowerupEngine) pruneSingleUse(u *model.User, itemID string) {
	item, err := e.catalog.Get(itemID)
	if err != nil || item.Uses() != 1 {
		return
	}
	for i := range u.Inventory {
		if u.Inventory[i].ItemID == itemID && u.Inventory[i].Used {
			u.Inventory = append(u.Inventory[:i], u.Inventory[i+1:]...)
			return
		}
	}
}

// ResolveSnipeModifiers computes a snipe's point value and powerup snapshot
// at creation time.
//
// Shield is checked FIRST. A shielded target negates both multipliers, so
// when the shield is up neither the sniper's double_points nor the target's
// half_points is applied or consumed — the target keeps them for later, and
// the shield itself is only consumed if the dodge actually happens. Order
// matters: computing the multiplier before the shield check would burn uses
// the shield was supposed to protect.
func (e *PowerupEngine) ResolveSnipeModifiers(ctx context.Context, sniperID, targetID string, base int) (model.PowerupSnapshot, int, error) {
	shielded, err := e.HasActive(ctx, targetID, model.PowerupShield)
	if err != nil {
		return model.PowerupSnapshot{}, 0, err
	}
	if shielded {
		return model.PowerupSnapshot{Shield: true}, base, nil
	}

	doubled, err := e.Consume(ctx, sniperID, model.PowerupDoublePoints)
	if err != nil {
		return model.PowerupSnapshot{}, 0, err
	}
	halved, err := e.Consume(ctx, targetID, model.PowerupHalfPoints)
	if err != nil {
		return model.PowerupSnapshot{}, 0, err
	}

	points := base
	if doubled {
		points *= 2
	}
	if halved {
		points /= 2 // integer ledger: half of the base award, floored
	}

	return model.PowerupSnapshot{DoublePoints: doubled, HalfPoints: halved}, points, nil
}

func hasPowerup(u *model.User, typ model.PowerupType) bool {
	for _, p := range u.ActivePowerups {
		if p.Type == typ && p.RemainingUses > 0 {
			return true
		}
	}
	return false
}
