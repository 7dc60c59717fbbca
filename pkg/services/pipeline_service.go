package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/models"
	"github.com/meridian-data/catalog-engine/pkg/pipeline"
	"github.com/meridian-data/catalog-engine/pkg/repositories"
)

// PipelineRunner is the slice of the external orchestrator client the
// pipeline lifecycle needs. *pipeline.Client satisfies it.
type PipelineRunner interface {
	Deploy(ctx context.Context, descriptor *pipeline.Descriptor) error
	Trigger(ctx context.Context, name string) error
	GetStatus(ctx context.Context, name string) ([]pipeline.RunStatus, error)
	Delete(ctx context.Context, name string) error
	TestConnection(ctx context.Context, descriptor *pipeline.Descriptor) error
}

// PipelineService bridges catalog pipeline entities to the external runner:
// the entity's payload is the source of truth, the runner executes it.
type PipelineService interface {
	// Deploy registers the pipeline entity's definition with the runner,
	// replacing any previous deployment.
	Deploy(ctx context.Context, id uuid.UUID) error
	// Trigger starts an immediate run of a deployed pipeline.
	Trigger(ctx context.Context, id uuid.UUID) error
	// Runs returns the recent executions of a deployed pipeline.
	Runs(ctx context.Context, id uuid.UUID) ([]pipeline.RunStatus, error)
	// Undeploy removes the pipeline from the runner. The catalog entity
	// stays.
	Undeploy(ctx context.Context, id uuid.UUID) error
	// TestConnection validates the pipeline's source connectivity without
	// deploying it.
	TestConnection(ctx context.Context, id uuid.UUID) error
}

type pipelineService struct {
	entityRepo repositories.EntityRepository
	runner     PipelineRunner
	logger     *zap.Logger
}

// NewPipelineService creates a new PipelineService.
func NewPipelineService(entityRepo repositories.EntityRepository, runner PipelineRunner, logger *zap.Logger) PipelineService {
	return &pipelineService{
		entityRepo: entityRepo,
		runner:     runner,
		logger:     logger.Named("pipeline-service"),
	}
}

var _ PipelineService = (*pipelineService)(nil)

func (s *pipelineService) Deploy(ctx context.Context, id uuid.UUID) error {
	e, err := s.pipelineEntity(ctx, id)
	if err != nil {
		return err
	}
	if err := s.runner.Deploy(ctx, descriptorFor(e)); err != nil {
		return err
	}
	s.logger.Info("Pipeline deployed", zap.String("fqn", e.FQN))
	return nil
}

func (s *pipelineService) Trigger(ctx context.Context, id uuid.UUID) error {
	e, err := s.pipelineEntity(ctx, id)
	if err != nil {
		return err
	}
	return s.runner.Trigger(ctx, e.FQN)
}

func (s *pipelineService) Runs(ctx context.Context, id uuid.UUID) ([]pipeline.RunStatus, error) {
	e, err := s.pipelineEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.runner.GetStatus(ctx, e.FQN)
}

func (s *pipelineService) Undeploy(ctx context.Context, id uuid.UUID) error {
	e, err := s.pipelineEntity(ctx, id)
	if err != nil {
		return err
	}
	if err := s.runner.Delete(ctx, e.FQN); err != nil {
		return err
	}
	s.logger.Info("Pipeline undeployed", zap.String("fqn", e.FQN))
	return nil
}

func (s *pipelineService) TestConnection(ctx context.Context, id uuid.UUID) error {
	e, err := s.pipelineEntity(ctx, id)
	if err != nil {
		return err
	}
	return s.runner.TestConnection(ctx, descriptorFor(e))
}

// pipelineEntity loads a live entity and insists it is a pipeline.
func (s *pipelineService) pipelineEntity(ctx context.Context, id uuid.UUID) (*models.Entity, error) {
	e, err := s.entityRepo.Get(ctx, id, models.IncludeNonDeleted)
	if err != nil {
		return nil, err
	}
	if e.Kind != models.KindPipeline {
		return nil, fmt.Errorf("entity %q is a %s, not a pipeline: %w", e.FQN, e.Kind, apperrors.ErrValidation)
	}
	return e, nil
}

// descriptorFor projects the entity payload onto the runner's deployable
// form. The FQN doubles as the runner-side pipeline name.
func descriptorFor(e *models.Entity) *pipeline.Descriptor {
	d := &pipeline.Descriptor{Name: e.FQN}
	if schedule, ok := e.Field("schedule").(string); ok {
		d.Schedule = schedule
	}
	if source := e.RefField("source"); source != nil {
		d.SourceFQN = source.FQN
	}
	if params, ok := e.Field("parameters").(map[string]any); ok {
		d.Parameters = params
	}
	return d
}
