package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/snipetag/internal/apperror"
	"github.com/sakif/snipetag/internal/model"
	"github.com/sakif/snipetag/internal/notify"
	"github.com/sakif/snipetag/internal/repository"
)

const MaxUserNameLength = 50

// UserService handles player accounts. Authentication lives outside this
// engine; callers arrive with an already-established identity.
type UserService struct {
	users  repository.UserRepository
	bus    *notify.Bus
	logger *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(users repository.UserRepository, bus *notify.Bus, logger *slog.Logger) *UserService {
	return &UserService{users: users, bus: bus, logger: logger}
}

// Create registers a new player with a zero balance and the default logo.
func (s *UserService) Create(ctx context.Context, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "display name is required")
	}
	if len(name) > MaxUserNameLength {
		return nil, apperror.ValidationFailed("name", "display name is too long")
	}

	user := &model.User{
		Name:         name,
		ActiveLogoID: model.DefaultLogoID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("failed to create user",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.bus.Publish(notify.CollectionUsers, user.ID)
	s.logger.Info("user created", slog.String("id", user.ID), slog.String("name", user.Name))
	return user, nil
}

// Get returns a player by id.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user id is required")
	}
	return s.users.GetByID(ctx, id)
}
