package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/snipetag/internal/apperror"
	"github.com/sakif/snipetag/internal/ledger"
	"github.com/sakif/snipetag/internal/metrics"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/notify"
	"github.com/sakif/snipetag/internal/repository"
)

// Scoring constants. The dodge window is measured from the server-assigned
// creation timestamp, never from a client countdown.
const (
	DodgeWindow = 20 * time.Second

	BaseSnipePoints  = 1  // sniper's award for an unmodified completed snipe
	DodgeAward       = 5  // target's award for an in-window dodge
	ShieldDodgeAward = 10 // target's award for a shield dodge
)

// SnipeService drives the snipe lifecycle: creation with modifier
// resolution, the dodge window, and resolve-by-timeout.
type SnipeService struct {
	snipes   repository.SnipeRepository
	groups   repository.GroupRepository
	powerups *PowerupEngine
	ledger   *ledger.Ledger
	bus      *notify.Bus
	logger   *slog.Logger

	now func() time.Time // swapped out in tests
}

// NewSnipeService creates a SnipeService.
func NewSnipeService(snipes repository.SnipeRepository, groups repository.GroupRepository, powerups *PowerupEngine, lgr *ledger.Ledger, bus *notify.Bus, logger *slog.Logger) *SnipeService {
	return &SnipeService{
		snipes:   snipes,
		groups:   groups,
		powerups: powerups,
		ledger:   lgr,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// Create opens a new snipe in pending state.
//
// The point value and the powerup snapshot are computed here, once. Shield
// on the target suppresses both multipliers without consuming them;
// otherwise the sniper's double_points and the target's half_points are
// consumed now, even though the points only move at resolution. Snapshotting
// at creation keeps the eventual outcome deterministic no matter how the
// powerup state changes in the meantime.
func (s *SnipeService) Create(ctx context.Context, sniperID, targetID, groupID, photoRef string) (*model.Snipe, error) {
	if sniperID == targetID {
		return nil, apperror.ValidationFailed("targetId", "you cannot snipe yourself")
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(sniperID) {
		return nil, apperror.New(apperror.ErrNotMember, "sniper %s is not a member of group %s", sniperID, groupID)
	}
	if !group.HasMember(targetID) {
		return nil, apperror.New(apperror.ErrNotMember, "target %s is not a member of group %s", targetID, groupID)
	}

	snapshot, points, err := s.powerups.ResolveSnipeModifiers(ctx, sniperID, targetID, BaseSnipePoints)
	if err != nil {
		return nil, err
	}

	snipe := &model.Snipe{
		SniperID:  sniperID,
		TargetID:  targetID,
		GroupID:   groupID,
		PhotoRef:  photoRef,
		Timestamp: s.now().UTC(),
		Status:    model.SnipePending,
		Points:    points,
		Powerups:  snapshot,
	}
	if err := s.snipes.Create(ctx, snipe); err != nil {
		return nil, err
	}

	metrics.SnipesCreated.Inc()
	s.bus.Publish(notify.CollectionSnipes, snipe.ID)
	s.logger.Info("snipe created",
		slog.String("id", snipe.ID),
		slog.String("sniperId", sniperID),
		slog.String("targetId", targetID),
		slog.Int("points", points),
		slog.Bool("shielded", snapshot.Shield),
	)
	return snipe, nil
}

// Dodge lets the target reverse a pending snipe.
//
// Without a shield the dodge must land inside the window; past it the call
// fails WindowExpired and the snipe stays pending for the timeout path. A
// shield overrides the window entirely: the dodge succeeds however late, the
// shield is consumed, and the award is larger.
//
// The terminal transition happens through snipes.Resolve, whose conditional
// update guarantees that a dodge racing a timeout resolution produces
// exactly one winner; the loser comes back AlreadyResolved and applies
// nothing.
func (s *SnipeService) Dodge(ctx context.Context, snipeID, targetID string) (*model.Snipe, error) {
	snipe, err := s.snipes.GetByID(ctx, snipeID)
	if err != nil {
		return nil, err
	}
	if snipe.TargetID != targetID {
		return nil, apperror.New(apperror.ErrNotTarget, "user %s is not the target of this snipe", targetID)
	}
	if snipe.Status != model.SnipePending {
		return nil, apperror.New(apperror.ErrAlreadyResolved, "snipe %s is already resolved", snipeID)
	}

	shielded, err := s.powerups.HasActive(ctx, targetID, model.PowerupShield)
	if err != nil {
		return nil, err
	}
	if !shielded && snipe.Age(s.now()) > DodgeWindow {
		return nil, apperror.New(apperror.ErrWindowExpired, "the dodge window has expired")
	}

	// Win the transition before touching any state, so a lost race costs
	// the target nothing — not even a shield use.
	if err := s.snipes.Resolve(ctx, snipeID, model.SnipeDodged); err != nil {
		return nil, err
	}

	award := DodgeAward
	if shielded {
		consumed, err := s.powerups.Consume(ctx, targetID, model.PowerupShield)
		if err != nil {
			s.logger.Error("failed to consume shield after dodge",
				slog.String("snipeId", snipeID), slog.String("error", err.Error()))
		}
		if consumed {
			award = ShieldDodgeAward
		}
	}

	if _, err := s.ledger.Apply(ctx, targetID, award); err != nil {
		// The dodge is committed; the award is the part that failed.
		s.logger.Error("failed to credit dodge award",
			slog.String("snipeId", snipeID), slog.String("error", err.Error()))
		return nil, err
	}

	metrics.SnipesResolved.WithLabelValues("dodged").Inc()
	s.bus.Publish(notify.CollectionSnipes, snipeID)
	s.logger.Info("snipe dodged",
		slog.String("id", snipeID),
		slog.String("targetId", targetID),
		slog.Int("award", award),
		slog.Bool("shielded", shielded),
	)

	snipe.Status = model.SnipeDodged
	return snipe, nil
}

// ResolveExpired completes a pending snipe whose dodge window has passed,
// crediting the sniper with the delta snapshotted at creation. Any process
// may call this — the API, the janitor sweep, several of each at once — and
// exactly one caller wins; the rest get AlreadyResolved.
func (s *SnipeService) ResolveExpired(ctx context.Context, snipeID string) (*model.Snipe, error) {
	snipe, err := s.snipes.GetByID(ctx, snipeID)
	if err != nil {
		return nil, err
	}
	if snipe.Status != model.SnipePending {
		return nil, apperror.New(apperror.ErrAlreadyResolved, "snipe %s is already resolved", snipeID)
	}
	if snipe.Age(s.now()) <= DodgeWindow {
		return nil, apperror.ValidationFailed("snipeId", "the dodge window is still open")
	}

	if err := s.snipes.Resolve(ctx, snipeID, model.SnipeCompleted); err != nil {
		return nil, err
	}

	if snipe.Points != 0 {
		if _, err := s.ledger.Apply(ctx, snipe.SniperID, snipe.Points); err != nil {
			s.logger.Error("failed to credit sniper",
				slog.String("snipeId", snipeID), slog.String("error", err.Error()))
			return nil, err
		}
	}

	metrics.SnipesResolved.WithLabelValues("completed").Inc()
	s.bus.Publish(notify.CollectionSnipes, snipeID)
	s.logger.Info("snipe completed",
		slog.String("id", snipeID),
		slog.String("sniperId", snipe.SniperID),
		slog.Int("points", snipe.Points),
	)

	snipe.Status = model.SnipeCompleted
	return snipe, nil
}

// PendingForTarget lists the open snipes aimed at a user.
func (s *SnipeService) PendingForTarget(ctx context.Context, targetID string) ([]model.Snipe, error) {
	if targetID == "" {
		return nil, apperror.ValidationFailed("targetId", "target id is required")
	}
	return s.snipes.ListPendingForTarget(ctx, targetID)
}

// SweepExpired resolves every pending snipe past the window and reports how
// many this call actually transitioned. Races with dodges and other sweeps
// are expected; AlreadyResolved losses are not errors.
func (s *SnipeService) SweepExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-DodgeWindow)
	expired, err := s.snipes.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, snipe := range expired {
		if _, err := s.ResolveExpired(ctx, snipe.ID); err != nil {
			if errors.Is(err, apperror.ErrAlreadyResolved) {
				continue
			}
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}
