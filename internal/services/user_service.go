package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetsmart/internal/cache"
	"budgetsmart/internal/core"
	"budgetsmart/internal/currency"
	"budgetsmart/internal/log"
	"budgetsmart/internal/ports"
)

// Profiles are cached per process. Only UserService writes them, so a
// replica sees another replica's currency change after at most userCacheTTL.
const (
	userCacheSize = 1024
	userCacheTTL  = 5 * time.Minute
)

type UserService struct {
	users  ports.UserRepository
	cache  *cache.LRU[core.User]
	now    func() time.Time
	logger *log.Logger
}

func NewUserService(users ports.UserRepository, logger *log.Logger) *UserService {
	if logger == nil {
		logger = log.Discard()
	}
	return &UserService{
		users:  users,
		cache:  cache.NewLRU[core.User](userCacheSize, userCacheTTL),
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentUser),
	}
}

// Get returns the profile of id, creating it with the default currency on
// first access.
func (s *UserService) Get(ctx context.Context, id string) (core.User, error) {
	if id == "" {
		return core.User{}, core.ErrEmptyUserID
	}
	if u, ok := s.cache.Get(id); ok {
		return u, nil
	}
	u, err := s.users.GetUser(ctx, id)
	if err == nil {
		s.cache.Set(id, u)
		return u, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}

	u = core.User{ID: id, DefaultCurrency: core.DefaultCurrency, CreatedAt: s.now().UTC()}
	if err := s.users.CreateUser(ctx, u); err != nil {
		// A concurrent first access may have created it already
		if existing, getErr := s.users.GetUser(ctx, id); getErr == nil {
			s.cache.Set(id, existing)
			return existing, nil
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	s.cache.Set(id, u)
	s.logger.InfoContext(ctx, "User profile created", log.FieldUserID, id)
	return u, nil
}

// SetCurrency changes the display currency after validating the ISO code.
func (s *UserService) SetCurrency(ctx context.Context, id, code string) (core.User, error) {
	normalized, err := currency.Normalize(code)
	if err != nil {
		return core.User{}, err
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	u.DefaultCurrency = normalized
	if err := s.users.UpdateUser(ctx, u); err != nil {
		s.cache.Delete(id)
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	s.cache.Set(id, u)
	return u, nil
}
