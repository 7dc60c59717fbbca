package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/database"
	"github.com/meridian-data/catalog-engine/pkg/models"
)

// SubscriptionRepository provides data access for event subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.EventSubscription) error
	Get(ctx context.Context, id uuid.UUID) (*models.EventSubscription, error)
	List(ctx context.Context) ([]*models.EventSubscription, error)
	Update(ctx context.Context, sub *models.EventSubscription) error
	// UpdateStatus persists a state-machine transition with its failure
	// details. Called from the delivery path only.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus, details *models.FailureDetails) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type subscriptionRepository struct{}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository() SubscriptionRepository {
	return &subscriptionRepository{}
}

var _ SubscriptionRepository = (*subscriptionRepository)(nil)

const subscriptionColumns = `id, name, endpoint, event_filters, batch_size, timeout_seconds, secret_key, status, failure_details, created_at, updated_at`

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.EventSubscription) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
		INSERT INTO catalog_subscriptions (
			id, name, endpoint, event_filters, batch_size, timeout_seconds,
			secret_key, status, failure_details, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := q.Exec(ctx, query,
		sub.ID, sub.Name, sub.Endpoint, sub.EventFilters, sub.BatchSize, sub.TimeoutSeconds,
		sub.SecretKey, sub.Status, sub.FailureDetails, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id uuid.UUID) (*models.EventSubscription, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database handle in context")
	}

	query := `SELECT ` + subscriptionColumns + ` FROM catalog_subscriptions WHERE id = $1`

	sub, err := scanSubscription(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subscription %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionRepository) List(ctx context.Context) ([]*models.EventSubscription, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database handle in context")
	}

	query := `SELECT ` + subscriptionColumns + ` FROM catalog_subscriptions ORDER BY name`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.EventSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subs, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *models.EventSubscription) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	sub.UpdatedAt = time.Now()

	query := `
		UPDATE catalog_subscriptions
		SET name = $1, endpoint = $2, event_filters = $3, batch_size = $4,
		    timeout_seconds = $5, secret_key = $6, status = $7,
		    failure_details = $8, updated_at = $9
		WHERE id = $10`

	tag, err := q.Exec(ctx, query,
		sub.Name, sub.Endpoint, sub.EventFilters, sub.BatchSize,
		sub.TimeoutSeconds, sub.SecretKey, sub.Status,
		sub.FailureDetails, sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s: %w", sub.ID, apperrors.ErrNotFound)
	}

	return nil
}

func (r *subscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus, details *models.FailureDetails) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	query := `
		UPDATE catalog_subscriptions
		SET status = $1, failure_details = $2, updated_at = $3
		WHERE id = $4`

	tag, err := q.Exec(ctx, query, status, details, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	tag, err := q.Exec(ctx, `DELETE FROM catalog_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func scanSubscription(row pgx.Row) (*models.EventSubscription, error) {
	var sub models.EventSubscription

	err := row.Scan(
		&sub.ID, &sub.Name, &sub.Endpoint, &sub.EventFilters, &sub.BatchSize,
		&sub.TimeoutSeconds, &sub.SecretKey, &sub.Status, &sub.FailureDetails,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	return &sub, nil
}
