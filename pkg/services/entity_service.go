package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/fqn"
	"github.com/meridian-data/catalog-engine/pkg/models"
	"github.com/meridian-data/catalog-engine/pkg/repositories"
)

// ChangePublisher receives committed change events for fan-out. The bus
// implements it; services hold the narrow interface so the event machinery
// stays out of the mutation path's imports.
type ChangePublisher interface {
	Publish(event models.ChangeEvent)
}

// TxRunner runs a function inside one database transaction. *database.DB
// satisfies it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EntityService orchestrates entity mutations: diff, version bump, snapshot,
// relationship edge side effects, and post-commit change events. All writes
// of one mutation commit atomically.
type EntityService interface {
	// Create inserts a new entity at the initial version and its implied
	// relationship edges.
	Create(ctx context.Context, e *models.Entity, updatedBy string) (*models.Entity, error)

	// Put creates the entity if its fully-qualified name is unknown, else
	// replaces the payload wholesale. A proposed entity carrying a non-zero
	// version that does not match the stored one fails with ErrConflict.
	Put(ctx context.Context, proposed *models.Entity, updatedBy string) (*models.Entity, error)

	// Patch applies field-level changes to the stored payload. Immutable
	// fields (id, name, kind) reject any change with ErrInvalidPatch. A nil
	// value removes the field.
	Patch(ctx context.Context, id uuid.UUID, patch map[string]any, updatedBy string) (*models.Entity, error)

	Get(ctx context.Context, id uuid.UUID, include models.Include) (*models.Entity, error)
	GetByName(ctx context.Context, name string, include models.Include) (*models.Entity, error)
	GetVersion(ctx context.Context, id uuid.UUID, version models.Version) (*models.Entity, error)
	ListVersions(ctx context.Context, id uuid.UUID) ([]models.VersionSummary, error)

	// Delete soft-deletes by default: the deleted flag flips, edges stay. A
	// hard delete purges the entity, its history, and its edges, but fails
	// with ErrEntityNotEmpty while the entity still contains children.
	Delete(ctx context.Context, id uuid.UUID, hard bool, updatedBy string) error

	// Restore clears the soft-delete flag.
	Restore(ctx context.Context, id uuid.UUID, updatedBy string) (*models.Entity, error)
}

type entityService struct {
	entityRepo   repositories.EntityRepository
	relationRepo repositories.RelationshipRepository
	tx           TxRunner
	publisher    ChangePublisher
	logger       *zap.Logger
}

// NewEntityService creates a new EntityService. The publisher may be nil when
// event fan-out is disabled.
func NewEntityService(
	entityRepo repositories.EntityRepository,
	relationRepo repositories.RelationshipRepository,
	tx TxRunner,
	publisher ChangePublisher,
	logger *zap.Logger,
) EntityService {
	return &entityService{
		entityRepo:   entityRepo,
		relationRepo: relationRepo,
		tx:           tx,
		publisher:    publisher,
		logger:       logger.Named("entity-service"),
	}
}

var _ EntityService = (*entityService)(nil)

func (s *entityService) Create(ctx context.Context, e *models.Entity, updatedBy string) (*models.Entity, error) {
	if err := validateNew(e); err != nil {
		return nil, err
	}

	var created *models.Entity
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		container, err := s.resolveContainer(ctx, e)
		if err != nil {
			return err
		}
		e.FQN = buildFQN(container, e.Name)

		diff, err := ComputeDiff(nil, e, OperationCreate)
		if err != nil {
			return err
		}
		created = diff.Entity
		created.Touch(updatedBy)

		if err := s.entityRepo.Create(ctx, created); err != nil {
			return err
		}
		if container != nil {
			err := s.relationRepo.Insert(ctx, &models.Relationship{
				FromID:   container.ID,
				FromKind: container.Kind,
				ToID:     created.ID,
				ToKind:   created.Kind,
				Relation: models.RelationContains,
			})
			if err != nil {
				return err
			}
		}
		return s.applyEdgeChanges(ctx, created, ReferenceChanges(nil, created))
	})
	if err != nil {
		return nil, err
	}

	s.emit(models.EventEntityCreated, created, nil)
	return created, nil
}

func (s *entityService) Put(ctx context.Context, proposed *models.Entity, updatedBy string) (*models.Entity, error) {
	if err := validateNew(proposed); err != nil {
		return nil, err
	}

	var (
		result  *models.Entity
		prior   *models.Version
		changed bool
		created bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		container, err := s.resolveContainer(ctx, proposed)
		if err != nil {
			return err
		}
		name := buildFQN(container, proposed.Name)

		original, err := s.entityRepo.GetByName(ctx, name, models.IncludeNonDeleted)
		if errors.Is(err, apperrors.ErrNotFound) {
			proposed.FQN = name
			diff, diffErr := ComputeDiff(nil, proposed, OperationCreate)
			if diffErr != nil {
				return diffErr
			}
			result = diff.Entity
			result.Touch(updatedBy)
			created, changed = true, true

			if err := s.entityRepo.Create(ctx, result); err != nil {
				return err
			}
			if container != nil {
				err := s.relationRepo.Insert(ctx, &models.Relationship{
					FromID:   container.ID,
					FromKind: container.Kind,
					ToID:     result.ID,
					ToKind:   result.Kind,
					Relation: models.RelationContains,
				})
				if err != nil {
					return err
				}
			}
			return s.applyEdgeChanges(ctx, result, ReferenceChanges(nil, result))
		}
		if err != nil {
			return err
		}

		if !proposed.Version.IsZero() && proposed.Version != original.Version {
			return fmt.Errorf("entity %s is at version %s, not %s: %w",
				original.ID, original.Version, proposed.Version, apperrors.ErrConflict)
		}

		proposed.FQN = original.FQN
		result, prior, changed, err = s.update(ctx, original, proposed, OperationPut, updatedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case created:
		s.emit(models.EventEntityCreated, result, nil)
	case changed:
		s.emit(models.EventEntityUpdated, result, prior)
	}
	return result, nil
}

func (s *entityService) Patch(ctx context.Context, id uuid.UUID, patch map[string]any, updatedBy string) (*models.Entity, error) {
	var (
		result  *models.Entity
		prior   *models.Version
		changed bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		original, err := s.entityRepo.Get(ctx, id, models.IncludeNonDeleted)
		if err != nil {
			return err
		}

		proposed, err := applyPatch(original, patch)
		if err != nil {
			return err
		}

		result, prior, changed, err = s.update(ctx, original, proposed, OperationPatch, updatedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.emit(models.EventEntityUpdated, result, prior)
	}
	return result, nil
}

// update diffs original against proposed and, when anything tracked changed,
// applies the relationship side effects and swaps the current row. Runs
// inside the caller's transaction.
func (s *entityService) update(ctx context.Context, original, proposed *models.Entity, op Operation, updatedBy string) (*models.Entity, *models.Version, bool, error) {
	diff, err := ComputeDiff(original, proposed, op)
	if err != nil {
		return nil, nil, false, err
	}
	if !diff.Changed {
		return diff.Entity, nil, false, nil
	}

	entity := diff.Entity
	entity.Touch(updatedBy)

	// Edge writes land before the version swap so both commit or neither.
	if err := s.applyEdgeChanges(ctx, entity, ReferenceChanges(original, entity)); err != nil {
		return nil, nil, false, err
	}
	if err := s.entityRepo.Update(ctx, entity, original); err != nil {
		return nil, nil, false, err
	}

	prior := original.Version
	return entity, &prior, true, nil
}

// applyEdgeChanges translates diffed reference fields into relationship-store
// writes. Added targets must exist and be live. Duplicate inserts are no-ops,
// so a retried mutation never doubles an edge.
func (s *entityService) applyEdgeChanges(ctx context.Context, e *models.Entity, changes []EdgeChange) error {
	for _, change := range changes {
		for _, removed := range change.Removed {
			from, to := edgeEndpoints(e, removed, change.Inbound)
			if _, err := s.relationRepo.Delete(ctx, from, to, change.Relation); err != nil {
				return err
			}
		}
		for _, added := range change.Added {
			target, err := s.entityRepo.Get(ctx, added.ID, models.IncludeNonDeleted)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return fmt.Errorf("field %q references missing or deleted entity %s: %w",
						change.Field, added.ID, apperrors.ErrValidation)
				}
				return err
			}

			rel := &models.Relationship{
				FromID:   e.ID,
				FromKind: e.Kind,
				ToID:     target.ID,
				ToKind:   target.Kind,
				Relation: change.Relation,
			}
			if change.Inbound {
				rel = &models.Relationship{
					FromID:   target.ID,
					FromKind: target.Kind,
					ToID:     e.ID,
					ToKind:   e.Kind,
					Relation: change.Relation,
				}
			}
			if err := s.relationRepo.Insert(ctx, rel); err != nil {
				return err
			}
		}
	}
	return nil
}

// edgeEndpoints orients an edge for a reference field: inbound references
// point at the entity, outbound ones point at the target.
func edgeEndpoints(e *models.Entity, ref models.EntityRef, inbound bool) (uuid.UUID, uuid.UUID) {
	if inbound {
		return ref.ID, e.ID
	}
	return e.ID, ref.ID
}

func (s *entityService) Get(ctx context.Context, id uuid.UUID, include models.Include) (*models.Entity, error) {
	e, err := s.entityRepo.Get(ctx, id, include)
	if err != nil {
		return nil, err
	}
	s.resolveRefs(ctx, e)
	return e, nil
}

func (s *entityService) GetByName(ctx context.Context, name string, include models.Include) (*models.Entity, error) {
	e, err := s.entityRepo.GetByName(ctx, name, include)
	if err != nil {
		return nil, err
	}
	s.resolveRefs(ctx, e)
	return e, nil
}

func (s *entityService) GetVersion(ctx context.Context, id uuid.UUID, version models.Version) (*models.Entity, error) {
	return s.entityRepo.GetVersion(ctx, id, version)
}

func (s *entityService) ListVersions(ctx context.Context, id uuid.UUID) ([]models.VersionSummary, error) {
	return s.entityRepo.ListVersions(ctx, id)
}

func (s *entityService) Delete(ctx context.Context, id uuid.UUID, hard bool, updatedBy string) error {
	if hard {
		return s.hardDelete(ctx, id)
	}

	var e *models.Entity
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		e, err = s.entityRepo.Get(ctx, id, models.IncludeNonDeleted)
		if err != nil {
			return err
		}
		return s.entityRepo.SetDeleted(ctx, id, true, updatedBy, time.Now().UnixMilli())
	})
	if err != nil {
		return err
	}

	e.Deleted = true
	s.emit(models.EventEntitySoftDeleted, e, nil)
	return nil
}

func (s *entityService) hardDelete(ctx context.Context, id uuid.UUID) error {
	var e *models.Entity
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		e, err = s.entityRepo.Get(ctx, id, models.IncludeAll)
		if err != nil {
			return err
		}

		children, err := s.relationRepo.CountFrom(ctx, id, models.RelationContains)
		if err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("entity %s still contains %d children: %w",
				id, children, apperrors.ErrEntityNotEmpty)
		}

		// No cascade on the edge table: purge explicitly.
		if err := s.relationRepo.DeleteAll(ctx, id); err != nil {
			return err
		}
		return s.entityRepo.HardDelete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.emit(models.EventEntityDeleted, e, nil)
	return nil
}

func (s *entityService) Restore(ctx context.Context, id uuid.UUID, updatedBy string) (*models.Entity, error) {
	var e *models.Entity
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		e, err = s.entityRepo.Get(ctx, id, models.IncludeDeleted)
		if err != nil {
			return err
		}
		return s.entityRepo.SetDeleted(ctx, id, false, updatedBy, time.Now().UnixMilli())
	})
	if err != nil {
		return nil, err
	}

	e.Deleted = false
	s.emit(models.EventEntityRestored, e, nil)
	return e, nil
}

// resolveContainer loads the entity named by the payload's container
// reference, when the kind is containable and one is set. The reference is
// rewritten with resolved display fields so stored payloads stay current.
func (s *entityService) resolveContainer(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	if !models.SpecFor(e.Kind).Containable {
		return nil, nil
	}
	ref := e.ContainedBy()
	if ref == nil {
		return nil, nil
	}

	container, err := s.entityRepo.Get(ctx, ref.ID, models.IncludeNonDeleted)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("container %s does not exist: %w", ref.ID, apperrors.ErrValidation)
		}
		return nil, err
	}
	e.SetField("container", models.EncodeRef(container.Ref()))
	return container, nil
}

// resolveRefs re-resolves reference-valued payload fields against current
// entity state so reads show present display names. Best effort: a dangling
// reference is returned as stored.
func (s *entityService) resolveRefs(ctx context.Context, e *models.Entity) {
	spec := models.SpecFor(e.Kind)
	for field := range spec.References {
		if _, isList := spec.Lists[field]; isList {
			refs := e.RefListField(field)
			if len(refs) == 0 {
				continue
			}
			resolved := make([]any, 0, len(refs))
			for _, ref := range refs {
				resolved = append(resolved, models.EncodeRef(s.freshRef(ctx, ref)))
			}
			e.SetField(field, resolved)
			continue
		}
		if ref := e.RefField(field); ref != nil {
			e.SetField(field, models.EncodeRef(s.freshRef(ctx, *ref)))
		}
	}
}

func (s *entityService) freshRef(ctx context.Context, ref models.EntityRef) models.EntityRef {
	target, err := s.entityRepo.Get(ctx, ref.ID, models.IncludeAll)
	if err != nil {
		return ref
	}
	return target.Ref()
}

func (s *entityService) emit(eventType models.EventType, e *models.Entity, prior *models.Version) {
	if s.publisher == nil {
		return
	}
	event := models.ChangeEvent{
		EventType:       eventType,
		EntityID:        e.ID,
		EntityKind:      e.Kind,
		EntityFQN:       e.FQN,
		PreviousVersion: prior,
		CurrentVersion:  e.Version,
		UserName:        e.UpdatedBy,
		Timestamp:       time.Now().UnixMilli(),
	}
	if eventType == models.EventEntityUpdated {
		event.ChangeDescription = e.ChangeDescription
	}
	s.publisher.Publish(event)
	s.logger.Debug("Published change event",
		zap.String("event_type", string(eventType)),
		zap.String("entity_id", e.ID.String()))
}

func validateNew(e *models.Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required: %w", apperrors.ErrValidation)
	}
	if !models.KnownKind(e.Kind) {
		return fmt.Errorf("unknown entity kind %q: %w", e.Kind, apperrors.ErrValidation)
	}

	// Payload capabilities are kind-gated: an owner or tags on a kind that
	// does not support them is a client error, not an untracked passthrough.
	spec := models.SpecFor(e.Kind)
	if !spec.Ownable && e.RefField(models.FieldOwner) != nil {
		return fmt.Errorf("kind %s does not support an owner: %w", e.Kind, apperrors.ErrValidation)
	}
	if !spec.Taggable && e.Field("tags") != nil {
		return fmt.Errorf("kind %s does not support tags: %w", e.Kind, apperrors.ErrValidation)
	}
	return nil
}

func buildFQN(container *models.Entity, name string) string {
	if container == nil {
		return fqn.Quote(name)
	}
	return container.FQN + fqn.Separator + fqn.Quote(name)
}

// applyPatch lays patch fields over a deep copy of the original. Keys naming
// struct-level fields land on the copy's struct fields so the immutability
// check sees them; everything else lands in the payload. A nil value removes
// the payload field.
func applyPatch(original *models.Entity, patch map[string]any) (*models.Entity, error) {
	raw, err := json.Marshal(original)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity for patch: %w", err)
	}
	var proposed models.Entity
	if err := json.Unmarshal(raw, &proposed); err != nil {
		return nil, fmt.Errorf("failed to decode entity for patch: %w", err)
	}

	for key, value := range patch {
		switch key {
		case "id":
			str, _ := value.(string)
			id, err := uuid.Parse(str)
			if err != nil {
				return nil, fmt.Errorf("id: %w", apperrors.ErrInvalidPatch)
			}
			proposed.ID = id
		case "name":
			str, _ := value.(string)
			proposed.Name = str
		case "kind":
			str, _ := value.(string)
			proposed.Kind = models.EntityKind(str)
		default:
			if value == nil {
				delete(proposed.Data, key)
				continue
			}
			proposed.SetField(key, value)
		}
	}
	return &proposed, nil
}
