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
	"github.com/meridian-data/catalog-engine/pkg/pipeline"
)

// mockRunner records the runner-side calls the service makes.
type mockRunner struct {
	deployed  []*pipeline.Descriptor
	triggered []string
	deleted   []string
	tested    []*pipeline.Descriptor
	runs      []pipeline.RunStatus
}

func (m *mockRunner) Deploy(_ context.Context, d *pipeline.Descriptor) error {
	m.deployed = append(m.deployed, d)
	return nil
}

func (m *mockRunner) Trigger(_ context.Context, name string) error {
	m.triggered = append(m.triggered, name)
	return nil
}

func (m *mockRunner) GetStatus(_ context.Context, name string) ([]pipeline.RunStatus, error) {
	return m.runs, nil
}

func (m *mockRunner) Delete(_ context.Context, name string) error {
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *mockRunner) TestConnection(_ context.Context, d *pipeline.Descriptor) error {
	m.tested = append(m.tested, d)
	return nil
}

func pipelineFixture(t *testing.T) (PipelineService, *mockRunner, *models.Entity, context.Context) {
	t.Helper()
	repo := newMockEntityRepo()
	runner := &mockRunner{}
	ctx := context.Background()

	e := &models.Entity{
		Kind: models.KindPipeline,
		Name: "nightly_ingest",
		FQN:  "airflow.nightly_ingest",
		Data: map[string]any{
			"schedule":   "0 2 * * *",
			"source":     models.EncodeRef(models.EntityRef{ID: uuid.New(), Kind: models.KindDatabase, FQN: "warehouse"}),
			"parameters": map[string]any{"batchSize": 500},
		},
		Version: models.VersionInitial,
	}
	require.NoError(t, repo.Create(ctx, e))

	return NewPipelineService(repo, runner, zap.NewNop()), runner, e, ctx
}

func TestPipelineServiceDeploy(t *testing.T) {
	svc, runner, e, ctx := pipelineFixture(t)

	require.NoError(t, svc.Deploy(ctx, e.ID))

	require.Len(t, runner.deployed, 1)
	d := runner.deployed[0]
	assert.Equal(t, "airflow.nightly_ingest", d.Name)
	assert.Equal(t, "0 2 * * *", d.Schedule)
	assert.Equal(t, "warehouse", d.SourceFQN)
	assert.Equal(t, map[string]any{"batchSize": 500}, d.Parameters)
}

func TestPipelineServiceTriggerAndUndeploy(t *testing.T) {
	svc, runner, e, ctx := pipelineFixture(t)

	require.NoError(t, svc.Trigger(ctx, e.ID))
	require.NoError(t, svc.Undeploy(ctx, e.ID))

	assert.Equal(t, []string{"airflow.nightly_ingest"}, runner.triggered)
	assert.Equal(t, []string{"airflow.nightly_ingest"}, runner.deleted)
}

func TestPipelineServiceRuns(t *testing.T) {
	svc, runner, e, ctx := pipelineFixture(t)
	runner.runs = []pipeline.RunStatus{{RunID: "run-1", State: "success"}}

	runs, err := svc.Runs(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}

func TestPipelineServiceRejectsNonPipeline(t *testing.T) {
	svc, runner, _, ctx := pipelineFixture(t)

	repo := newMockEntityRepo()
	table := &models.Entity{Kind: models.KindTable, Name: "orders", FQN: "orders", Version: models.VersionInitial}
	require.NoError(t, repo.Create(ctx, table))
	svc = NewPipelineService(repo, runner, zap.NewNop())

	err := svc.Deploy(ctx, table.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Empty(t, runner.deployed)

	err = svc.Trigger(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
