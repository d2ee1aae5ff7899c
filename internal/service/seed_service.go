package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/storefront-api/internal/auth"
	"github.com/spec-kit/storefront-api/internal/config"
	"github.com/spec-kit/storefront-api/internal/domain"
	"github.com/spec-kit/storefront-api/internal/events"
	"github.com/spec-kit/storefront-api/internal/repository"
)

// ErrSeedPasswordMissing is returned when the privileged account must be
// created but no initial password is configured.
var ErrSeedPasswordMissing = errors.New("initial super admin password is not configured")

// SeedRecorder counts seeding outcomes.
type SeedRecorder interface {
	RecordSeed(outcome string)
}

// SeedService ensures the privileged account exists. It never modifies an
// existing account, including its credentials.
type SeedService struct {
	store      IdentityStore
	cfg        config.SeedConfig
	policy     config.PasswordPolicy
	dispatcher events.Dispatcher
	metrics    SeedRecorder
	logger     *zap.Logger
}

// SeedDependencies bundles the collaborators of SeedService. Dispatcher and
// Metrics are optional.
type SeedDependencies struct {
	Store      IdentityStore
	Dispatcher events.Dispatcher
	Metrics    SeedRecorder
	Logger     *zap.Logger
}

// NewSeedService constructs the seeder.
func NewSeedService(cfg config.Config, deps SeedDependencies) *SeedService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedService{
		store:      deps.Store,
		cfg:        cfg.Seed,
		policy:     cfg.Password,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Seed creates the super admin when absent. Running it any number of times,
// sequentially or from concurrent replicas, leaves exactly one account.
func (s *SeedService) Seed(ctx context.Context) (domain.CreateResult, error) {
	log := s.logger.With(zap.String("username", s.cfg.Username))

	if _, err := s.store.FindByUsername(ctx, s.cfg.Username); err == nil {
		log.Info("super admin present; seeding skipped")
		s.record(domain.AlreadyExists)
		return domain.AlreadyExists, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("lookup super admin: %w", err)
	}

	if s.cfg.Password == "" {
		return 0, ErrSeedPasswordMissing
	}
	if err := auth.CheckPassword(s.policy, s.cfg.Password); err != nil {
		return 0, fmt.Errorf("initial super admin password: %w", err)
	}

	user, res, err := s.store.CreateIfAbsent(ctx, NewIdentity{
		Username: s.cfg.Username,
		Email:    s.cfg.Email,
		Password: s.cfg.Password,
	}, []domain.Role{domain.RoleSuperAdmin})
	if err != nil {
		return 0, fmt.Errorf("create super admin: %w", err)
	}
	s.record(res)

	if res == domain.AlreadyExists {
		log.Info("super admin created concurrently by another instance")
		return res, nil
	}

	log.Info("super admin created", zap.String("user_id", user.ID))
	if s.dispatcher != nil {
		event := events.New(events.EventIdentityCreated, user.ID, events.IdentityCreatedPayload{
			Username: user.Username,
			Email:    user.Email,
			Roles:    []string{string(domain.RoleSuperAdmin)},
			Seeded:   true,
		})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			log.Warn("identity_created handlers failed", zap.Error(err))
		}
	}
	return res, nil
}

func (s *SeedService) record(res domain.CreateResult) {
	if s.metrics != nil {
		s.metrics.RecordSeed(res.String())
	}
}
