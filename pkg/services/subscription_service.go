package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/models"
	"github.com/meridian-data/catalog-engine/pkg/repositories"
)

// SubscriptionBus is the slice of the event bus the subscription lifecycle
// needs.
type SubscriptionBus interface {
	Subscribe(sub *models.EventSubscription)
	Unsubscribe(id uuid.UUID)
}

// SubscriptionService manages event subscriptions and keeps the bus's live
// consumers in step with the stored rows.
type SubscriptionService interface {
	Create(ctx context.Context, sub *models.EventSubscription) (*models.EventSubscription, error)
	Get(ctx context.Context, id uuid.UUID) (*models.EventSubscription, error)
	List(ctx context.Context) ([]*models.EventSubscription, error)
	// Update replaces the subscription's configuration, resets its backoff
	// state, and atomically swaps the live consumer so no stale delivery
	// attempt survives the reconfiguration.
	Update(ctx context.Context, sub *models.EventSubscription) (*models.EventSubscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Start registers every stored non-disabled subscription with the bus.
	// Called once at startup so deliveries resume across restarts.
	Start(ctx context.Context) error
}

type subscriptionService struct {
	repo   repositories.SubscriptionRepository
	bus    SubscriptionBus
	logger *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(repo repositories.SubscriptionRepository, bus SubscriptionBus, logger *zap.Logger) SubscriptionService {
	return &subscriptionService{
		repo:   repo,
		bus:    bus,
		logger: logger.Named("subscription-service"),
	}
}

var _ SubscriptionService = (*subscriptionService)(nil)

func (s *subscriptionService) Create(ctx context.Context, sub *models.EventSubscription) (*models.EventSubscription, error) {
	if err := validateSubscription(sub); err != nil {
		return nil, err
	}
	if sub.Status == "" {
		sub.Status = models.StatusActive
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	if sub.Status != models.StatusDisabled {
		s.bus.Subscribe(sub)
	}
	return sub, nil
}

func (s *subscriptionService) Get(ctx context.Context, id uuid.UUID) (*models.EventSubscription, error) {
	return s.repo.Get(ctx, id)
}

func (s *subscriptionService) List(ctx context.Context) ([]*models.EventSubscription, error) {
	return s.repo.List(ctx)
}

func (s *subscriptionService) Update(ctx context.Context, sub *models.EventSubscription) (*models.EventSubscription, error) {
	if err := validateSubscription(sub); err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if sub.Status == "" {
		sub.Status = current.Status
	}

	// Reconfiguration resets the state machine: a disabled or halted
	// subscription comes back active, failure details clear.
	if sub.Status != models.StatusDisabled {
		sub.Status = models.StatusActive
	}
	sub.FailureDetails = nil

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}

	if sub.Status == models.StatusDisabled {
		s.bus.Unsubscribe(sub.ID)
	} else {
		// Subscribe under an existing id swaps the consumer atomically.
		s.bus.Subscribe(sub)
	}
	return sub, nil
}

func (s *subscriptionService) Delete(ctx context.Context, id uuid.UUID) error {
	s.bus.Unsubscribe(id)
	return s.repo.Delete(ctx, id)
}

func (s *subscriptionService) Start(ctx context.Context) error {
	subs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}

	registered := 0
	for _, sub := range subs {
		if sub.Status == models.StatusDisabled {
			continue
		}
		s.bus.Subscribe(sub)
		registered++
	}
	s.logger.Info("Subscriptions registered", zap.Int("count", registered))
	return nil
}

func validateSubscription(sub *models.EventSubscription) error {
	if sub.Name == "" {
		return fmt.Errorf("subscription name is required: %w", apperrors.ErrValidation)
	}
	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("subscription endpoint %q is not an absolute URL: %w",
			sub.Endpoint, apperrors.ErrValidation)
	}
	return nil
}
