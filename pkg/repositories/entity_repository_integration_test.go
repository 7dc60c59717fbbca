//go:build integration

package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/database"
	"github.com/meridian-data/catalog-engine/pkg/models"
	"github.com/meridian-data/catalog-engine/pkg/testhelpers"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	db := testhelpers.GetCatalogDB(t)
	db.TruncateAll(t)
	return database.WithQuerier(context.Background(), db.DB.Pool)
}

func newTable(name string) *models.Entity {
	return &models.Entity{
		Kind:      models.KindTable,
		Name:      name,
		FQN:       name,
		Data:      map[string]any{"description": "a table"},
		Version:   models.VersionInitial,
		UpdatedBy: "admin",
		UpdatedAt: 1000,
	}
}

func TestEntityRepositoryCreateAndGet(t *testing.T) {
	ctx := testContext(t)
	repo := NewEntityRepository()

	e := newTable("orders")
	require.NoError(t, repo.Create(ctx, e))
	require.NotEqual(t, uuid.Nil, e.ID)

	got, err := repo.Get(ctx, e.ID, models.IncludeNonDeleted)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, models.KindTable, got.Kind)
	assert.Equal(t, "a table", got.Field("description"))
	assert.Equal(t, models.VersionInitial, got.Version)

	_, err = repo.Get(ctx, uuid.New(), models.IncludeNonDeleted)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestEntityRepositoryGetByNamePrefersLiveRow(t *testing.T) {
	ctx := testContext(t)
	repo := NewEntityRepository()

	dead := newTable("orders")
	dead.Deleted = true
	require.NoError(t, repo.Create(ctx, dead))

	live := newTable("orders")
	require.NoError(t, repo.Create(ctx, live))

	got, err := repo.GetByName(ctx, "orders", models.IncludeNonDeleted)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	// The soft-deleted namesake stays reachable behind the live row.
	got, err = repo.GetByName(ctx, "orders", models.IncludeDeleted)
	require.NoError(t, err)
	assert.Equal(t, dead.ID, got.ID)

	got, err = repo.GetByName(ctx, "orders", models.IncludeAll)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)
}

func TestEntityRepositoryCreateDuplicateName(t *testing.T) {
	ctx := testContext(t)
	repo := NewEntityRepository()

	require.NoError(t, repo.Create(ctx, newTable("orders")))

	err := repo.Create(ctx, newTable("orders"))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// Uniqueness only applies among live rows; a deleted namesake does not
	// block re-creation.
	require.NoError(t, repo.Create(ctx, newTable("inventory")))
	second, err := repo.GetByName(ctx, "inventory", models.IncludeNonDeleted)
	require.NoError(t, err)
	require.NoError(t, repo.SetDeleted(ctx, second.ID, true, "admin", 2000))
	require.NoError(t, repo.Create(ctx, newTable("inventory")))
}

func TestEntityRepositoryUpdateConflict(t *testing.T) {
	ctx := testContext(t)
	repo := NewEntityRepository()

	e := newTable("orders")
	require.NoError(t, repo.Create(ctx, e))

	prior, err := repo.Get(ctx, e.ID, models.IncludeNonDeleted)
	require.NoError(t, err)

	// Two writers read the same version; the second swap must fail.
	first := *prior
	first.Data = map[string]any{"description": "writer one"}
	first.Version = prior.Version.BumpMinor()
	require.NoError(t, repo.Update(ctx, &first, prior))

	second := *prior
	second.Data = map[string]any{"description": "writer two"}
	second.Version = prior.Version.BumpMinor()
	err = repo.Update(ctx, &second, prior)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := repo.Get(ctx, e.ID, models.IncludeNonDeleted)
	require.NoError(t, err)
	assert.Equal(t, "writer one", got.Field("description"))
}

func TestEntityRepositoryConcurrentUpdateOneWins(t *testing.T) {
	ctx := testContext(t)
	repo := NewEntityRepository()

	e := newTable("orders")
	require.NoError(t, repo.Create(ctx, e))

	prior, err := repo.Get(ctx, e.ID, models.IncludeNonDeleted)
	require.NoError(t, err)

	// Both writers race from the same prior version over the shared pool.
	// The compare-and-swap lets exactly one through.
	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			updated := *prior
			updated.Data = map[string]any{"description": fmt.Sprintf("writer %d", i)}
			updated.Version = prior.Version.BumpMinor()
			<-start
			errs[i] = repo.Update(ctx, &updated, prior)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners)

	got, err := repo.Get(ctx, e.ID, models.IncludeNonDeleted)
	require.NoError(t, err)
	assert.Equal(t, prior.Version.BumpMinor(), got.Version)
}

func TestEntityRepositoryVersionHistory(t *testing.T) {
	ctx := testContext(t)
	repo := NewEntityRepository()

	e := newTable("orders")
	require.NoError(t, repo.Create(ctx, e))

	v1 := e.Version
	for i, description := range []string{"second", "third"} {
		prior, err := repo.Get(ctx, e.ID, models.IncludeNonDeleted)
		require.NoError(t, err)

		updated := *prior
		updated.Data = map[string]any{"description": description}
		updated.Version = prior.Version.BumpMinor()
		updated.UpdatedAt = int64(2000 + i)
		require.NoError(t, repo.Update(ctx, &updated, prior))
	}

	// The original payload is still readable at its version.
	snapshot, err := repo.GetVersion(ctx, e.ID, v1)
	require.NoError(t, err)
	assert.Equal(t, "a table", snapshot.Field("description"))
	assert.Equal(t, v1, snapshot.Version)

	// The current version reads from the live row.
	current, err := repo.GetVersion(ctx, e.ID, models.Version{Major: 0, Minor: 3})
	require.NoError(t, err)
	assert.Equal(t, "third", current.Field("description"))

	_, err = repo.GetVersion(ctx, e.ID, models.Version{Major: 9, Minor: 9})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	summaries, err := repo.ListVersions(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	// Newest first.
	assert.Equal(t, models.Version{Major: 0, Minor: 3}, summaries[0].Version)
	assert.Equal(t, models.Version{Major: 0, Minor: 2}, summaries[1].Version)
	assert.Equal(t, v1, summaries[2].Version)
}

func TestEntityRepositorySetDeleted(t *testing.T) {
	ctx := testContext(t)
	repo := NewEntityRepository()

	e := newTable("orders")
	require.NoError(t, repo.Create(ctx, e))

	require.NoError(t, repo.SetDeleted(ctx, e.ID, true, "admin", 2000))

	_, err := repo.Get(ctx, e.ID, models.IncludeNonDeleted)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := repo.Get(ctx, e.ID, models.IncludeDeleted)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.EqualValues(t, 2000, got.UpdatedAt)

	require.NoError(t, repo.SetDeleted(ctx, e.ID, false, "admin", 3000))
	got, err = repo.Get(ctx, e.ID, models.IncludeNonDeleted)
	require.NoError(t, err)
	assert.False(t, got.Deleted)
}

func TestEntityRepositoryHardDelete(t *testing.T) {
	ctx := testContext(t)
	repo := NewEntityRepository()

	e := newTable("orders")
	require.NoError(t, repo.Create(ctx, e))

	prior, err := repo.Get(ctx, e.ID, models.IncludeNonDeleted)
	require.NoError(t, err)
	updated := *prior
	updated.Version = prior.Version.BumpMinor()
	require.NoError(t, repo.Update(ctx, &updated, prior))

	require.NoError(t, repo.HardDelete(ctx, e.ID))

	_, err = repo.Get(ctx, e.ID, models.IncludeAll)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// History went with it.
	_, err = repo.GetVersion(ctx, e.ID, models.VersionInitial)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, repo.HardDelete(ctx, e.ID), apperrors.ErrNotFound)
}
