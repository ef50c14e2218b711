package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/sakif/snipetag/internal/apperror"
	"github.com/sakif/snipetag/internal/ledger"
	"github.com/sakif/snipetag/internal/metrics"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/notify"
	"github.com/sakif/snipetag/internal/repository"
)

const (
	MaxGroupNameLength = 60

	inviteCodeLength   = 6
	inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I — codes get read out loud
	inviteCodeRetries  = 5
)

// GroupService manages groups, membership, and the accusation protocol.
type GroupService struct {
	groups repository.GroupRepository
	users  repository.UserRepository
	ledger *ledger.Ledger
	bus    *notify.Bus
	logger *slog.Logger

	now func() time.Time
}

// NewGroupService creates a GroupService.
func NewGroupService(groups repository.GroupRepository, users repository.UserRepository, lgr *ledger.Ledger, bus *notify.Bus, logger *slog.Logger) *GroupService {
	return &GroupService{
		groups: groups,
		users:  users,
		ledger: lgr,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// Create makes a new group with the creator as its first member and a fresh
// invite code. The UNIQUE constraint on invite codes backstops the (already
// tiny) collision chance; we retry with a new code if it ever fires.
func (s *GroupService) Create(ctx context.Context, name, creatorID string) (*model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "group name is required")
	}
	if len(name) > MaxGroupNameLength {
		return nil, apperror.ValidationFailed("name", "group name is too long")
	}

	creator, err := s.users.GetByID(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	var group *model.Group
	for attempt := 0; ; attempt++ {
		group = &model.Group{
			Name:       name,
			CreatedBy:  creatorID,
			InviteCode: newInviteCode(),
			Members: []model.Member{
				{ID: creator.ID, Name: creator.Name, Points: creator.Points},
			},
		}
		err = s.groups.Create(ctx, group)
		if err == nil {
			break
		}
		if attempt+1 >= inviteCodeRetries || !strings.Contains(err.Error(), "UNIQUE") {
			return nil, err
		}
	}

	if _, err := s.users.Mutate(ctx, creatorID, func(u *model.User) error {
		u.GroupIDs = appendUnique(u.GroupIDs, group.ID)
		return nil
	}); err != nil {
		return nil, err
	}

	s.bus.Publish(notify.CollectionGroups, group.ID)
	s.bus.Publish(notify.CollectionUsers, creatorID)
	s.logger.Info("group created",
		slog.String("id", group.ID),
		slog.String("name", name),
		slog.String("inviteCode", group.InviteCode),
	)
	return group, nil
}

// Join adds a user to the group behind an invite code. Membership is
// bidirectional: the group roster and the user's groupIds are both updated.
func (s *GroupService) Join(ctx context.Context, inviteCode, userID string) (*model.Group, error) {
	inviteCode = strings.ToUpper(strings.TrimSpace(inviteCode))
	if inviteCode == "" {
		return nil, apperror.ValidationFailed("inviteCode", "invite code is required")
	}

	found, err := s.groups.GetByInviteCode(ctx, inviteCode)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	group, err := s.groups.Mutate(ctx, found.ID, func(g *model.Group) error {
		if g.HasMember(userID) {
			return apperror.Conflict("group member", userID)
		}
		g.Members = append(g.Members, model.Member{ID: user.ID, Name: user.Name, Points: user.Points})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.users.Mutate(ctx, userID, func(u *model.User) error {
		u.GroupIDs = appendUnique(u.GroupIDs, group.ID)
		return nil
	}); err != nil {
		return nil, err
	}

	s.bus.Publish(notify.CollectionGroups, group.ID)
	s.bus.Publish(notify.CollectionUsers, userID)
	s.logger.Info("user joined group",
		slog.String("groupId", group.ID),
		slog.String("userId", userID),
	)
	return group, nil
}

// Leave removes a user from a group. An accusation the leaver is a party to
// (accuser or accused) is cleared — a vote about someone who is gone cannot
// complete.
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) error {
	_, err := s.groups.Mutate(ctx, groupID, func(g *model.Group) error {
		idx := g.MemberIndex(userID)
		if idx < 0 {
			return apperror.New(apperror.ErrNotMember, "user %s is not a member of group %s", userID, groupID)
		}
		g.Members = append(g.Members[:idx], g.Members[idx+1:]...)

		if a := g.ActiveAccusation; a != nil {
			if a.AccuserID == userID || a.AccusedID == userID {
				g.ActiveAccusation = nil
			} else {
				delete(a.Votes, userID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.users.Mutate(ctx, userID, func(u *model.User) error {
		u.GroupIDs = removeString(u.GroupIDs, groupID)
		return nil
	}); err != nil {
		return err
	}

	s.bus.Publish(notify.CollectionGroups, groupID)
	s.bus.Publish(notify.CollectionUsers, userID)
	return nil
}

// Get returns a single group.
func (s *GroupService) Get(ctx context.Context, groupID string) (*model.Group, error) {
	return s.groups.GetByID(ctx, groupID)
}

// UserGroups returns every group the user belongs to. Groups that vanished
// from under a stale membership list are skipped rather than failing the
// whole read.
func (s *GroupService) UserGroups(ctx context.Context, userID string) ([]model.Group, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	groups := make([]model.Group, 0, len(user.GroupIDs))
	for _, id := range user.GroupIDs {
		g, err := s.groups.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// Accuse opens the group's single accusation slot against a member. The
// accuser's own guilty vote is recorded immediately. The in-progress check
// and the slot write share one transaction, so two simultaneous accusers
// cannot both get a slot.
func (s *GroupService) Accuse(ctx context.Context, groupID, accuserID, accusedID string) error {
	if accuserID == accusedID {
		return apperror.ValidationFailed("accusedId", "you cannot accuse yourself")
	}

	_, err := s.groups.Mutate(ctx, groupID, func(g *model.Group) error {
		if g.ActiveAccusation != nil {
			return apperror.New(apperror.ErrAccusationInProgress,
				"there is already an active accusation in this group")
		}
		if !g.HasMember(accuserID) || !g.HasMember(accusedID) {
			return apperror.New(apperror.ErrInvalidMember,
				"accuser and accused must both be members of the group")
		}
		g.ActiveAccusation = &model.Accusation{
			AccuserID: accuserID,
			AccusedID: accusedID,
			Votes:     map[string]bool{accuserID: true},
			Timestamp: s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.bus.Publish(notify.CollectionGroups, groupID)
	s.logger.Info("accusation opened",
		slog.String("groupId", groupID),
		slog.String("accuserId", accuserID),
		slog.String("accusedId", accusedID),
	)
	return nil
}

// Vote records a member's verdict on the active accusation. Re-voting
// overwrites the earlier vote. When every member except the accused has
// voted, the accusation resolves: a unanimous guilty verdict costs the
// accused exactly one point, anything else acquits, and either way the slot
// clears so the group can accuse again.
func (s *GroupService) Vote(ctx context.Context, groupID, voterID string, vote bool) error {
	var (
		resolved  bool
		guilty    bool
		accusedID string
	)

	_, err := s.groups.Mutate(ctx, groupID, func(g *model.Group) error {
		a := g.ActiveAccusation
		if a == nil {
			return apperror.New(apperror.ErrNoActiveAccusation, "no active accusation in this group")
		}
		if voterID == a.AccusedID {
			return apperror.New(apperror.ErrAccusedCannotVote, "the accused member cannot vote")
		}
		if !g.HasMember(voterID) {
			return apperror.New(apperror.ErrNotMember, "user %s is not a member of group %s", voterID, groupID)
		}

		if a.Votes == nil {
			a.Votes = make(map[string]bool)
		}
		a.Votes[voterID] = vote

		eligible := len(g.Members) - 1
		if len(a.Votes) < eligible {
			return nil
		}

		resolved = true
		accusedID = a.AccusedID
		guilty = true
		for _, v := range a.Votes {
			if !v {
				guilty = false
				break
			}
		}
		g.ActiveAccusation = nil
		return nil
	})
	if err != nil {
		return err
	}

	s.bus.Publish(notify.CollectionGroups, groupID)
	if !resolved {
		return nil
	}

	verdict := "acquitted"
	if guilty {
		verdict = "guilty"
		if _, err := s.ledger.Apply(ctx, accusedID, -1); err != nil {
			s.logger.Error("failed to apply accusation penalty",
				slog.String("groupId", groupID),
				slog.String("accusedId", accusedID),
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	metrics.AccusationsResolved.WithLabelValues(verdict).Inc()
	s.logger.Info("accusation resolved",
		slog.String("groupId", groupID),
		slog.String("accusedId", accusedID),
		slog.String("verdict", verdict),
	)
	return nil
}

func newInviteCode() string {
	b := make([]byte, inviteCodeLength)
	for i := range b {
		b[i] = inviteCodeAlphabet[rand.Intn(len(inviteCodeAlphabet))]
	}
	return string(b)
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
