package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/core"
	"github.com/hermnet/hermnet/ports"
)

// UserService handles registration. The public key is stored verbatim as
// supplied; key validity is proven at login time, not at registration.
type UserService struct {
	users ports.UserStore
	clock ports.Clock
	log   logrus.FieldLogger
}

// NewUserService creates a new user service.
func NewUserService(users ports.UserStore, clock ports.Clock, log logrus.FieldLogger) *UserService {
	return &UserService{users: users, clock: clock, log: log}
}

// Register creates a new user. Returns core.ErrUserExists when the id is
// already taken.
func (s *UserService) Register(ctx context.Context, id, publicKeyPEM, pushToken string) (core.User, error) {
	exists, err := s.users.UserExists(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	if exists {
		return core.User{}, core.ErrUserExists
	}

	user := core.User{
		ID:        id,
		PublicKey: publicKeyPEM,
		PushToken: pushToken,
		CreatedAt: s.clock.Now(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return core.User{}, err
	}

	s.log.WithField("user", user.ID).Info("user registered")
	return user, nil
}
