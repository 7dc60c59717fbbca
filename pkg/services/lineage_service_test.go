package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/models"
)

type lineageFixture struct {
	entities *mockEntityRepo
	edges    *mockRelationshipRepo
	service  LineageService
	tables   map[string]*models.Entity
}

func newLineageFixture(names ...string) *lineageFixture {
	f := &lineageFixture{
		entities: newMockEntityRepo(),
		edges:    &mockRelationshipRepo{},
		tables:   map[string]*models.Entity{},
	}
	f.service = NewLineageService(f.entities, f.edges, zap.NewNop())
	for _, name := range names {
		e := &models.Entity{
			ID:      uuid.New(),
			Kind:    models.KindTable,
			Name:    name,
			FQN:     name,
			Version: models.VersionInitial,
		}
		_ = f.entities.Create(context.Background(), e)
		f.tables[name] = e
	}
	return f
}

// flow records "from feeds into to".
func (f *lineageFixture) flow(t *testing.T, from, to string) {
	t.Helper()
	err := f.service.AddEdge(context.Background(),
		f.tables[from].Ref(), f.tables[to].Ref())
	require.NoError(t, err)
}

func (f *lineageFixture) nodeNames(lineage *models.EntityLineage) []string {
	var names []string
	for _, n := range lineage.Nodes {
		names = append(names, n.Name)
	}
	return names
}

func TestLineageWalk(t *testing.T) {
	// raw -> staging -> orders -> report -> dashboard
	f := newLineageFixture("raw", "staging", "orders", "report", "dashboard")
	f.flow(t, "raw", "staging")
	f.flow(t, "staging", "orders")
	f.flow(t, "orders", "report")
	f.flow(t, "report", "dashboard")

	lineage, err := f.service.Lineage(context.Background(), f.tables["orders"].ID, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, f.tables["orders"].Ref(), lineage.Entity)
	assert.ElementsMatch(t, []string{"raw", "staging", "report"}, f.nodeNames(lineage))

	assert.ElementsMatch(t, []models.LineageEdge{
		{FromID: f.tables["staging"].ID, ToID: f.tables["orders"].ID},
		{FromID: f.tables["raw"].ID, ToID: f.tables["staging"].ID},
	}, lineage.UpstreamEdges)
	assert.Equal(t, []models.LineageEdge{
		{FromID: f.tables["orders"].ID, ToID: f.tables["report"].ID},
	}, lineage.DownstreamEdges)
}

func TestLineageDepthZero(t *testing.T) {
	f := newLineageFixture("raw", "orders")
	f.flow(t, "raw", "orders")

	lineage, err := f.service.Lineage(context.Background(), f.tables["orders"].ID, 0, 0)
	require.NoError(t, err)

	assert.Empty(t, lineage.Nodes)
	assert.Empty(t, lineage.UpstreamEdges)
	assert.Empty(t, lineage.DownstreamEdges)
}

func TestLineageCycleTerminates(t *testing.T) {
	// a -> b -> c -> a, walked far deeper than the cycle length.
	f := newLineageFixture("a", "b", "c")
	f.flow(t, "a", "b")
	f.flow(t, "b", "c")
	f.flow(t, "c", "a")

	lineage, err := f.service.Lineage(context.Background(), f.tables["a"].ID, 50, 50)
	require.NoError(t, err)

	// Revisits are squashed: each node and each edge appears once.
	assert.ElementsMatch(t, []string{"b", "c"}, f.nodeNames(lineage))
	assert.Len(t, lineage.UpstreamEdges, 3)
	assert.Len(t, lineage.DownstreamEdges, 3)
}

func TestLineageDiamondDedupes(t *testing.T) {
	// left and right both feed sink, both fed by source.
	f := newLineageFixture("source", "left", "right", "sink")
	f.flow(t, "source", "left")
	f.flow(t, "source", "right")
	f.flow(t, "left", "sink")
	f.flow(t, "right", "sink")

	lineage, err := f.service.Lineage(context.Background(), f.tables["sink"].ID, 3, 3)
	require.NoError(t, err)

	// source is reachable twice but reported once.
	assert.ElementsMatch(t, []string{"left", "right", "source"}, f.nodeNames(lineage))
	assert.Len(t, lineage.UpstreamEdges, 4)
}

func TestLineageByName(t *testing.T) {
	f := newLineageFixture("raw", "orders")
	f.flow(t, "raw", "orders")

	lineage, err := f.service.LineageByName(context.Background(), "orders", 1, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"raw"}, f.nodeNames(lineage))

	_, err = f.service.LineageByName(context.Background(), "nope", 1, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLineageDanglingNodeKeepsBareRef(t *testing.T) {
	f := newLineageFixture("raw", "orders")
	f.flow(t, "raw", "orders")

	// Hard-delete the upstream entity but leave its edge behind.
	rawID := f.tables["raw"].ID
	require.NoError(t, f.entities.HardDelete(context.Background(), rawID))

	lineage, err := f.service.Lineage(context.Background(), f.tables["orders"].ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, lineage.Nodes, 1)
	assert.Equal(t, rawID, lineage.Nodes[0].ID)
}

func TestLineageDeleteEdge(t *testing.T) {
	f := newLineageFixture("raw", "orders")
	f.flow(t, "raw", "orders")

	err := f.service.DeleteEdge(context.Background(),
		f.tables["raw"].ID, f.tables["orders"].ID)
	require.NoError(t, err)

	lineage, err := f.service.Lineage(context.Background(), f.tables["orders"].ID, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, lineage.UpstreamEdges)
}
