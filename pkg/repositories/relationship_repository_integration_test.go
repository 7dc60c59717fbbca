//go:build integration

package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/catalog-engine/pkg/models"
)

func TestRelationshipRepositoryInsertIdempotent(t *testing.T) {
	ctx := testContext(t)
	entities := NewEntityRepository()
	repo := NewRelationshipRepository()

	owner := newTable("alice")
	owner.Kind = models.KindUser
	table := newTable("orders")
	require.NoError(t, entities.Create(ctx, owner))
	require.NoError(t, entities.Create(ctx, table))

	edge := &models.Relationship{
		FromID:   owner.ID,
		FromKind: owner.Kind,
		ToID:     table.ID,
		ToKind:   table.Kind,
		Relation: models.RelationOwns,
	}
	require.NoError(t, repo.Insert(ctx, edge))
	require.NoError(t, repo.Insert(ctx, edge))

	refs, err := repo.FindFrom(ctx, owner.ID, owner.Kind, models.RelationOwns)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, table.ID, refs[0].ID)
	assert.Equal(t, models.KindTable, refs[0].Kind)
}

func TestRelationshipRepositoryFindInversion(t *testing.T) {
	ctx := testContext(t)
	entities := NewEntityRepository()
	repo := NewRelationshipRepository()

	source := newTable("raw")
	sink := newTable("orders")
	require.NoError(t, entities.Create(ctx, source))
	require.NoError(t, entities.Create(ctx, sink))

	require.NoError(t, repo.Insert(ctx, &models.Relationship{
		FromID:   source.ID,
		FromKind: source.Kind,
		ToID:     sink.ID,
		ToKind:   sink.Kind,
		Relation: models.RelationUpstream,
	}))

	// The same edge reads from both ends.
	from, err := repo.FindFrom(ctx, source.ID, source.Kind, models.RelationUpstream)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, sink.ID, from[0].ID)

	to, err := repo.FindTo(ctx, sink.ID, sink.Kind, models.RelationUpstream)
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, source.ID, to[0].ID)

	// But not under another relation kind.
	none, err := repo.FindFrom(ctx, source.ID, source.Kind, models.RelationOwns)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRelationshipRepositoryDelete(t *testing.T) {
	ctx := testContext(t)
	entities := NewEntityRepository()
	repo := NewRelationshipRepository()

	a := newTable("a")
	b := newTable("b")
	require.NoError(t, entities.Create(ctx, a))
	require.NoError(t, entities.Create(ctx, b))

	require.NoError(t, repo.Insert(ctx, &models.Relationship{
		FromID: a.ID, FromKind: a.Kind, ToID: b.ID, ToKind: b.Kind,
		Relation: models.RelationUpstream,
	}))

	removed, err := repo.Delete(ctx, a.ID, b.ID, models.RelationUpstream)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = repo.Delete(ctx, a.ID, b.ID, models.RelationUpstream)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRelationshipRepositoryCountFrom(t *testing.T) {
	ctx := testContext(t)
	entities := NewEntityRepository()
	repo := NewRelationshipRepository()

	db := newTable("warehouse")
	db.Kind = models.KindDatabase
	child := newTable("orders")
	parent := newTable("platform")
	parent.Kind = models.KindService
	require.NoError(t, entities.Create(ctx, db))
	require.NoError(t, entities.Create(ctx, child))
	require.NoError(t, entities.Create(ctx, parent))

	// The database contains a table and is itself contained by a service.
	require.NoError(t, repo.Insert(ctx, &models.Relationship{
		FromID: db.ID, FromKind: db.Kind, ToID: child.ID, ToKind: child.Kind,
		Relation: models.RelationContains,
	}))
	require.NoError(t, repo.Insert(ctx, &models.Relationship{
		FromID: parent.ID, FromKind: parent.Kind, ToID: db.ID, ToKind: db.Kind,
		Relation: models.RelationContains,
	}))

	// Only the outgoing contains-edge counts: being contained does not make
	// the database non-empty.
	count, err := repo.CountFrom(ctx, db.ID, models.RelationContains)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = repo.CountFrom(ctx, child.ID, models.RelationContains)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRelationshipRepositoryDeleteAll(t *testing.T) {
	ctx := testContext(t)
	entities := NewEntityRepository()
	repo := NewRelationshipRepository()

	center := newTable("center")
	in := newTable("in")
	out := newTable("out")
	require.NoError(t, entities.Create(ctx, center))
	require.NoError(t, entities.Create(ctx, in))
	require.NoError(t, entities.Create(ctx, out))

	require.NoError(t, repo.Insert(ctx, &models.Relationship{
		FromID: in.ID, FromKind: in.Kind, ToID: center.ID, ToKind: center.Kind,
		Relation: models.RelationUpstream,
	}))
	require.NoError(t, repo.Insert(ctx, &models.Relationship{
		FromID: center.ID, FromKind: center.Kind, ToID: out.ID, ToKind: out.Kind,
		Relation: models.RelationUpstream,
	}))
	require.NoError(t, repo.Insert(ctx, &models.Relationship{
		FromID: in.ID, FromKind: in.Kind, ToID: out.ID, ToKind: out.Kind,
		Relation: models.RelationUpstream,
	}))

	require.NoError(t, repo.DeleteAll(ctx, center.ID))

	// Both directions around the center are gone; the bystander edge stays.
	refs, err := repo.FindTo(ctx, center.ID, center.Kind, models.RelationUpstream)
	require.NoError(t, err)
	assert.Empty(t, refs)
	refs, err = repo.FindFrom(ctx, center.ID, center.Kind, models.RelationUpstream)
	require.NoError(t, err)
	assert.Empty(t, refs)

	refs, err = repo.FindFrom(ctx, in.ID, in.Kind, models.RelationUpstream)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, out.ID, refs[0].ID)
}
