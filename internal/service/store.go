package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/snipetag/internal/apperror"
	"github.com/sakif/snipetag/internal/catalog"
	"github.com/sakif/snipetag/internal/ledger"
	"github.com/sakif/snipetag/internal/metrics"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/notify"
	"github.com/sakif/snipetag/internal/repository"
)

// StoreService is the purchase engine: it debits points and credits
// inventory in one transaction, and routes item activation through the
// powerup engine.
type StoreService struct {
	users   repository.UserRepository
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	bus     *notify.Bus
	logger  *slog.Logger

	now func() time.Time
}

// NewStoreService creates a StoreService.
func NewStoreService(users repository.UserRepository, cat *catalog.Catalog, lgr *ledger.Ledger, bus *notify.Bus, logger *slog.Logger) *StoreService {
	return &StoreService{
		users:   users,
		catalog: cat,
		ledger:  lgr,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// Purchase buys a catalog item for the user.
//
// Balance check, debit, and the inventory append commit in one transaction —
// a concurrent purchase can't spend the same points twice. Ownership rules
// per type: logos are bought at most once ever; a powerup can't be re-bought
// while an unused copy sits in inventory; crosshairs are unrestricted.
// Buying a logo also selects it immediately.
func (s *StoreService) Purchase(ctx context.Context, userID, itemID string) (*model.User, error) {
	item, err := s.catalog.Get(itemID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Mutate(ctx, userID, func(u *model.User) error {
		if u.Points < item.Price {
			return apperror.New(apperror.ErrInsufficientFunds,
				"item costs %d points, balance is %d", item.Price, u.Points)
		}

		switch item.Type {
		case model.ItemLogo:
			if u.OwnsItem(item.ID) {
				return apperror.New(apperror.ErrAlreadyOwned, "logo %s is already owned", item.ID)
			}
		case model.ItemPowerup:
			if u.UnusedItemIndex(item.ID) >= 0 {
				return apperror.New(apperror.ErrAlreadyInUse,
					"an unused %s is already in the inventory", item.ID)
			}
		case model.ItemCrosshair:
			// cosmetic, no ownership restriction
		}

		u.Points -= item.Price
		u.Inventory = append(u.Inventory, model.InventoryItem{
			ItemID:      item.ID,
			PurchasedAt: s.now().UTC(),
		})
		if item.Type == model.ItemLogo {
			u.ActiveLogoID = item.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Purchases.WithLabelValues(string(item.Type)).Inc()
	s.bus.Publish(notify.CollectionUsers, userID)
	// The debit already committed; fan the new balance out to group caches.
	s.ledger.Propagate(userID, user.Points, user.GroupIDs)

	s.logger.Info("item purchased",
		slog.String("userId", userID),
		slog.String("itemId", item.ID),
		slog.Int("price", item.Price),
		slog.Int("balance", user.Points),
	)
	return user, nil
}

// Use activates an unused inventory item.
//
// Logos are re-selectable: Use points ActiveLogoID at the logo and leaves
// the entry unused forever. Powerups go through the activation rules, and
// the inventory entry is only marked used when activation succeeds —
// PowerupAlreadyActive propagates to the caller with the purchase intact.
// Crosshairs have no activation step.
func (s *StoreService) Use(ctx context.Context, userID, itemID string) (*model.User, error) {
	item, err := s.catalog.Get(itemID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Mutate(ctx, userID, func(u *model.User) error {
		idx := u.UnusedItemIndex(item.ID)
		if idx < 0 {
			return apperror.NotFound("unused inventory item", item.ID)
		}

		switch item.Type {
		case model.ItemLogo:
			u.ActiveLogoID = item.ID
			return nil
		case model.ItemPowerup:
			if err := activate(u, item, s.now().UTC()); err != nil {
				return err
			}
			u.Inventory[idx].Used = true
			return nil
		default:
			return apperror.ValidationFailed("itemId", "crosshair items have no use action")
		}
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(notify.CollectionUsers, userID)
	s.logger.Info("item used",
		slog.String("userId", userID),
		slog.String("itemId", item.ID),
		slog.String("type", string(item.Type)),
	)
	return user, nil
}

// ResetLogo restores the default logo. No ledger effect.
func (s *StoreService) ResetLogo(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.Mutate(ctx, userID, func(u *model.User) error {
		u.ActiveLogoID = model.DefaultLogoID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(notify.CollectionUsers, userID)
	return user, nil
}

// Inventory returns the user's balance and purchase history.
func (s *StoreService) Inventory(ctx context.Context, userID string) (int, []model.InventoryItem, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return user.Points, user.Inventory, nil
}
