package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/database"
	"github.com/meridian-data/catalog-engine/pkg/models"
)

// EntityRepository is the version ledger: one mutable current row per entity
// plus an append-only history of prior JSON snapshots keyed by
// (id, previousVersion).
type EntityRepository interface {
	Create(ctx context.Context, e *models.Entity) error
	Get(ctx context.Context, id uuid.UUID, include models.Include) (*models.Entity, error)
	GetByName(ctx context.Context, fqn string, include models.Include) (*models.Entity, error)
	GetVersion(ctx context.Context, id uuid.UUID, version models.Version) (*models.Entity, error)
	ListVersions(ctx context.Context, id uuid.UUID) ([]models.VersionSummary, error)
	// Update snapshots prior's JSON into history, then overwrites the current
	// row guarded by a compare-and-swap on prior's version. A concurrent
	// writer that got there first makes the swap fail with ErrConflict.
	Update(ctx context.Context, updated *models.Entity, prior *models.Entity) error
	SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, updatedBy string, updatedAt int64) error
	HardDelete(ctx context.Context, id uuid.UUID) error
}

type entityRepository struct{}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository() EntityRepository {
	return &entityRepository{}
}

var _ EntityRepository = (*entityRepository)(nil)

const entityColumns = `id, kind, name, fqn, data, version_major, version_minor, change_description, updated_by, updated_at, deleted`

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

func (r *entityRepository) Create(ctx context.Context, e *models.Entity) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query := `
		INSERT INTO catalog_entities (
			id, kind, name, fqn, data, version_major, version_minor,
			change_description, updated_by, updated_at, deleted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := q.Exec(ctx, query,
		e.ID, e.Kind, e.Name, e.FQN, e.Data, e.Version.Major, e.Version.Minor,
		e.ChangeDescription, e.UpdatedBy, e.UpdatedAt, e.Deleted,
	)
	if err != nil {
		// The partial unique index on fqn rejects a second live entity with
		// the same name.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("entity %q already exists: %w", e.FQN, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}

	return nil
}

func (r *entityRepository) Get(ctx context.Context, id uuid.UUID, include models.Include) (*models.Entity, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database handle in context")
	}

	query := `SELECT ` + entityColumns + ` FROM catalog_entities WHERE id = $1`

	e, err := scanEntity(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if !include.Matches(e.Deleted) {
		return nil, fmt.Errorf("entity %s: %w", id, apperrors.ErrNotFound)
	}
	return e, nil
}

func (r *entityRepository) GetByName(ctx context.Context, fqn string, include models.Include) (*models.Entity, error) {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return nil, fmt.Errorf("no database handle in context")
	}

	// Among non-deleted entities the FQN is unique, but soft-deleted
	// namesakes may share it. Walk the candidates live-first and return the
	// first one the include filter accepts, so a deleted-only lookup still
	// finds a row shadowed by a live one.
	query := `
		SELECT ` + entityColumns + `
		FROM catalog_entities
		WHERE fqn = $1
		ORDER BY deleted ASC, updated_at DESC`

	rows, err := q.Query(ctx, query, fqn)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity by name: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		if include.Matches(e.Deleted) {
			return e, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities by name: %w", err)
	}
	return nil, fmt.Errorf("entity %q: %w", fqn, apperrors.ErrNotFound)
}

func (r *entityRepository) GetVersion(ctx context.Context, id uuid.UUID, version models.Version) (*models.Entity, error) {
	current, err := r.Get(ctx, id, models.IncludeAll)
	if err != nil {
		return nil, err
	}
	if current.Version == version {
		return current, nil
	}

	q, _ := database.GetQuerier(ctx)
	query := `SELECT data FROM catalog_entity_history WHERE entity_id = $1 AND version = $2`

	var raw []byte
	if err := q.QueryRow(ctx, query, id, version.String()).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entity %s version %s: %w", id, version, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query entity version: %w", err)
	}

	var snapshot models.Entity
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode entity snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *entityRepository) ListVersions(ctx context.Context, id uuid.UUID) ([]models.VersionSummary, error) {
	current, err := r.Get(ctx, id, models.IncludeAll)
	if err != nil {
		return nil, err
	}

	q, _ := database.GetQuerier(ctx)
	query := `SELECT data FROM catalog_entity_history WHERE entity_id = $1`

	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity history: %w", err)
	}
	defer rows.Close()

	summaries := []models.VersionSummary{{
		Version:           current.Version,
		UpdatedBy:         current.UpdatedBy,
		UpdatedAt:         current.UpdatedAt,
		ChangeDescription: current.ChangeDescription,
	}}

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan entity history: %w", err)
		}
		var snapshot models.Entity
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode entity snapshot: %w", err)
		}
		summaries = append(summaries, models.VersionSummary{
			Version:           snapshot.Version,
			UpdatedBy:         snapshot.UpdatedBy,
			UpdatedAt:         snapshot.UpdatedAt,
			ChangeDescription: snapshot.ChangeDescription,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity history: %w", err)
	}

	// Newest first.
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Version.Compare(summaries[j].Version) > 0
	})

	return summaries, nil
}

func (r *entityRepository) Update(ctx context.Context, updated *models.Entity, prior *models.Entity) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	// Snapshot the prior JSON first. The key (id, previousVersion) is never
	// re-overwritten; a concurrent writer racing on the same version loses at
	// the compare-and-swap below and this insert rolls back with it.
	snapshot, err := json.Marshal(prior)
	if err != nil {
		return fmt.Errorf("failed to encode entity snapshot: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO catalog_entity_history (entity_id, version, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, version) DO NOTHING`,
		prior.ID, prior.Version.String(), snapshot)
	if err != nil {
		return fmt.Errorf("failed to write entity snapshot: %w", err)
	}

	tag, err := q.Exec(ctx, `
		UPDATE catalog_entities
		SET name = $1, fqn = $2, data = $3, version_major = $4, version_minor = $5,
		    change_description = $6, updated_by = $7, updated_at = $8, deleted = $9
		WHERE id = $10 AND version_major = $11 AND version_minor = $12`,
		updated.Name, updated.FQN, updated.Data, updated.Version.Major, updated.Version.Minor,
		updated.ChangeDescription, updated.UpdatedBy, updated.UpdatedAt, updated.Deleted,
		updated.ID, prior.Version.Major, prior.Version.Minor,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %s changed since version %s was read: %w",
			updated.ID, prior.Version, apperrors.ErrConflict)
	}

	return nil
}

func (r *entityRepository) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, updatedBy string, updatedAt int64) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	tag, err := q.Exec(ctx, `
		UPDATE catalog_entities
		SET deleted = $1, updated_by = $2, updated_at = $3
		WHERE id = $4`,
		deleted, updatedBy, updatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to set deleted flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *entityRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	q, ok := database.GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database handle in context")
	}

	if _, err := q.Exec(ctx, `DELETE FROM catalog_entity_history WHERE entity_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete entity history: %w", err)
	}

	tag, err := q.Exec(ctx, `DELETE FROM catalog_entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var e models.Entity

	err := row.Scan(
		&e.ID, &e.Kind, &e.Name, &e.FQN, &e.Data, &e.Version.Major, &e.Version.Minor,
		&e.ChangeDescription, &e.UpdatedBy, &e.UpdatedAt, &e.Deleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entity: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	return &e, nil
}
