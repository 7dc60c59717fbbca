package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-data/catalog-engine/pkg/database"
	"github.com/meridian-data/catalog-engine/pkg/models"
)

// RelationshipRepository provides data access for directed typed edges
// between entities. Inserts are idempotent; there is no cascade delete.
type RelationshipRepository interface {
	Insert(ctx context.Context, rel *models.Relationship) error
	// Delete removes one edge and returns the number of rows removed.
	Delete(ctx context.Context, fromID, toID uuid.UUID, relation models.RelationKind) (int64, error)
	// FindFrom returns references the entity points at with the given relation.
	FindFrom(ctx context.Context, id uuid.UUID, kind models.EntityKind, relation models.RelationKind) ([]models.EntityRef, error)
	// FindTo returns references pointing at the entity with the given relation.
	FindTo(ctx context.Context, id uuid.UUID, kind models.EntityKind, relation models.RelationKind) ([]models.EntityRef, error)
	// CountFrom counts outgoing edges of the given relation. Used by the
	// hard-delete emptiness check: a container with live contains-edges is
	// not empty.
	CountFrom(ctx context.Context, id uuid.UUID, relation models.RelationKind) (int64, error)
	// DeleteAll purges every edge touching the entity, both directions.
	DeleteAll(ctx context.Context, id uuid.UUID) error
}

type relationshipRepository struct{}

// NewRelationshipRepository creates a new RelationshipRepository.
func NewRelationshipRepository() RelationshipRepository {
	return &relationshipRepository{}
}

var _ RelationshipRepository = (*relationshipRepository)(nil)

func (r *relationshipRepository) Insert(ctx context.Context, rel *models.Relationship) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	query := `
		INSERT INTO catalog_relationships (from_id, from_kind, to_id, to_kind, relation)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (from_id, to_id, relation) DO NOTHING`

	_, err := q.Exec(ctx, query, rel.FromID, rel.FromKind, rel.ToID, rel.ToKind, rel.Relation)
	if err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}

	return nil
}

func (r *relationshipRepository) Delete(ctx context.Context, fromID, toID uuid.UUID, relation models.RelationKind) (int64, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return 0, fmt.Errorf("no database handle in context")
	}

	query := `
		DELETE FROM catalog_relationships
		WHERE from_id = $1 AND to_id = $2 AND relation = $3`

	tag, err := q.Exec(ctx, query, fromID, toID, relation)
	if err != nil {
		return 0, fmt.Errorf("failed to delete relationship: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *relationshipRepository) FindFrom(ctx context.Context, id uuid.UUID, kind models.EntityKind, relation models.RelationKind) ([]models.EntityRef, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database handle in context")
	}

	query := `
		SELECT to_id, to_kind FROM catalog_relationships
		WHERE from_id = $1 AND from_kind = $2 AND relation = $3`

	rows, err := q.Query(ctx, query, id, kind, relation)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships from entity: %w", err)
	}
	defer rows.Close()

	return scanRefs(rows)
}

func (r *relationshipRepository) FindTo(ctx context.Context, id uuid.UUID, kind models.EntityKind, relation models.RelationKind) ([]models.EntityRef, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database handle in context")
	}

	query := `
		SELECT from_id, from_kind FROM catalog_relationships
		WHERE to_id = $1 AND to_kind = $2 AND relation = $3`

	rows, err := q.Query(ctx, query, id, kind, relation)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships to entity: %w", err)
	}
	defer rows.Close()

	return scanRefs(rows)
}

func (r *relationshipRepository) CountFrom(ctx context.Context, id uuid.UUID, relation models.RelationKind) (int64, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return 0, fmt.Errorf("no database handle in context")
	}

	query := `
		SELECT COUNT(*) FROM catalog_relationships
		WHERE from_id = $1 AND relation = $2`

	var count int64
	if err := q.QueryRow(ctx, query, id, relation).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count relationships: %w", err)
	}
	return count, nil
}

func (r *relationshipRepository) DeleteAll(ctx context.Context, id uuid.UUID) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	query := `DELETE FROM catalog_relationships WHERE from_id = $1 OR to_id = $1`

	if _, err := q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to purge relationships: %w", err)
	}
	return nil
}

func scanRefs(rows pgx.Rows) ([]models.EntityRef, error) {
	var refs []models.EntityRef
	for rows.Next() {
		var ref models.EntityRef
		if err := rows.Scan(&ref.ID, &ref.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	return refs, nil
}
