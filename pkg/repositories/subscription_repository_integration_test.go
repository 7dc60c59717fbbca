//go:build integration

package repositories

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/models"
)

func newSubscription(name string) *models.EventSubscription {
	return &models.EventSubscription{
		Name:     name,
		Endpoint: "https://hooks.example.com/" + name,
		EventFilters: []models.EventFilter{
			{EventType: models.EventEntityCreated, Kinds: []string{"table"}},
		},
		BatchSize:      25,
		TimeoutSeconds: 15,
		SecretKey:      "s3cret",
		Status:         models.StatusActive,
	}
}

func TestSubscriptionRepositoryCRUD(t *testing.T) {
	ctx := testContext(t)
	repo := NewSubscriptionRepository()

	sub := newSubscription("alerts")
	require.NoError(t, repo.Create(ctx, sub))
	require.NotEqual(t, uuid.Nil, sub.ID)

	got, err := repo.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "alerts", got.Name)
	assert.Equal(t, sub.Endpoint, got.Endpoint)
	assert.Equal(t, sub.EventFilters, got.EventFilters)
	assert.Equal(t, 25, got.BatchSize)
	assert.Equal(t, "s3cret", got.SecretKey)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.FailureDetails)

	got.Endpoint = "https://hooks.example.com/v2/alerts"
	got.Status = models.StatusDisabled
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/v2/alerts", updated.Endpoint)
	assert.Equal(t, models.StatusDisabled, updated.Status)

	require.NoError(t, repo.Delete(ctx, sub.ID))
	_, err = repo.Get(ctx, sub.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, sub.ID), apperrors.ErrNotFound)
}

func TestSubscriptionRepositoryList(t *testing.T) {
	ctx := testContext(t)
	repo := NewSubscriptionRepository()

	require.NoError(t, repo.Create(ctx, newSubscription("zeta")))
	require.NoError(t, repo.Create(ctx, newSubscription("alpha")))

	subs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "alpha", subs[0].Name)
	assert.Equal(t, "zeta", subs[1].Name)
}

func TestSubscriptionRepositoryUpdateStatus(t *testing.T) {
	ctx := testContext(t)
	repo := NewSubscriptionRepository()

	sub := newSubscription("alerts")
	require.NoError(t, repo.Create(ctx, sub))

	details := &models.FailureDetails{
		LastFailedAt:         5000,
		LastFailedStatusCode: 503,
		LastFailedReason:     "endpoint returned 503",
		NextAttempt:          8000,
	}
	require.NoError(t, repo.UpdateStatus(ctx, sub.ID, models.StatusAwaitingRetry, details))

	got, err := repo.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingRetry, got.Status)
	require.NotNil(t, got.FailureDetails)
	assert.Equal(t, details, got.FailureDetails)

	// Recovery clears the details.
	require.NoError(t, repo.UpdateStatus(ctx, sub.ID, models.StatusActive, nil))
	got, err = repo.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.FailureDetails)

	assert.ErrorIs(t,
		repo.UpdateStatus(ctx, uuid.New(), models.StatusActive, nil),
		apperrors.ErrNotFound)
}
