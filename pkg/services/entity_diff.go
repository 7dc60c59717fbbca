package services

import (
	"fmt"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/jsonutil"
	"github.com/meridian-data/catalog-engine/pkg/models"
)

// Operation is the mutation kind driving a diff.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationPut    Operation = "PUT"
	OperationPatch  Operation = "PATCH"
)

// DiffResult is the outcome of comparing an original entity state against a
// proposed one.
type DiffResult struct {
	// Entity is the final entity: the proposed payload stamped with the next
	// version and change description.
	Entity *models.Entity
	// Change is nil for CREATE and for no-op updates.
	Change *models.ChangeDescription
	// NextVersion equals the original version when nothing tracked changed.
	NextVersion models.Version
	// Changed reports whether any tracked field changed. A false result means
	// no snapshot is written and no change event is emitted.
	Changed bool
}

// ComputeDiff compares each tracked mutable field of the entity's kind and
// produces the structured change description plus the next version number.
// Untracked payload fields pass through unversioned. A change to one of the
// kind's major fields bumps the integer part and resets the minor part; any
// other tracked change bumps the minor part by one.
func ComputeDiff(original, proposed *models.Entity, op Operation) (*DiffResult, error) {
	if op == OperationCreate {
		e := *proposed
		e.Version = models.VersionInitial
		e.ChangeDescription = nil
		return &DiffResult{Entity: &e, NextVersion: e.Version, Changed: true}, nil
	}

	if original == nil {
		return nil, fmt.Errorf("cannot diff %s without an original state", op)
	}

	if op == OperationPatch {
		if err := checkImmutableFields(original, proposed); err != nil {
			return nil, err
		}
	}

	spec := models.SpecFor(original.Kind)
	fields := map[string]models.FieldDelta{}
	major := false

	for _, field := range spec.Tracked {
		oldVal := original.Field(field)
		newVal := proposed.Field(field)

		if list, ok := spec.Lists[field]; ok {
			added, deleted := diffLists(oldVal, newVal, list.Equal)
			if len(added) == 0 && len(deleted) == 0 {
				continue
			}
			fields[field] = models.FieldDelta{Added: added, Deleted: deleted}
		} else {
			if jsonutil.Equal(oldVal, newVal) {
				continue
			}
			fields[field] = models.FieldDelta{Old: jsonutil.Normalize(oldVal), New: jsonutil.Normalize(newVal)}
		}

		if spec.IsMajor(field) {
			major = true
		}
	}

	if len(fields) == 0 {
		// Idempotent no-op: version unchanged, nothing to record.
		e := *original
		return &DiffResult{Entity: &e, NextVersion: original.Version, Changed: false}, nil
	}

	next := original.Version.BumpMinor()
	if major {
		next = original.Version.BumpMajor()
	}

	e := *proposed
	e.ID = original.ID
	e.Kind = original.Kind
	e.Version = next
	e.ChangeDescription = &models.ChangeDescription{
		PreviousVersion: original.Version,
		Fields:          fields,
	}

	return &DiffResult{
		Entity:      &e,
		Change:      e.ChangeDescription,
		NextVersion: next,
		Changed:     true,
	}, nil
}

// checkImmutableFields rejects a PATCH that attempts to change any of the
// closed immutable set, before the diff runs and regardless of request
// content.
func checkImmutableFields(original, proposed *models.Entity) error {
	if proposed.ID != original.ID {
		return fmt.Errorf("id: %w", apperrors.ErrInvalidPatch)
	}
	if proposed.Name != "" && proposed.Name != original.Name {
		return fmt.Errorf("name: %w", apperrors.ErrInvalidPatch)
	}
	if proposed.Kind != "" && proposed.Kind != original.Kind {
		return fmt.Errorf("kind: %w", apperrors.ErrInvalidPatch)
	}
	return nil
}

// diffLists computes the added/deleted partition of two list values under the
// field's element equality. The two sub-lists, applied to the old list,
// reconstruct the new one (as sets).
func diffLists(oldVal, newVal any, equal models.EqualFunc) (added, deleted []any) {
	oldList := jsonutil.AsList(oldVal)
	newList := jsonutil.AsList(newVal)

	for _, n := range newList {
		if !containsFunc(oldList, n, equal) {
			added = append(added, n)
		}
	}
	for _, o := range oldList {
		if !containsFunc(newList, o, equal) {
			deleted = append(deleted, o)
		}
	}
	return added, deleted
}

func containsFunc(list []any, item any, equal models.EqualFunc) bool {
	for _, candidate := range list {
		if equal(candidate, item) {
			return true
		}
	}
	return false
}

// EdgeChange describes the relationship-edge side effect implied by a
// reference-valued field changing between two entity states.
type EdgeChange struct {
	Field    string
	Relation models.RelationKind
	// Inbound edges point at the entity (owner owns entity); outbound edges
	// point away from it (user has role).
	Inbound bool
	Added   []models.EntityRef
	Removed []models.EntityRef
}

// ReferenceChanges extracts the edge mutations implied by the diff between
// two states. Single-ref fields (owner) yield at most one removal plus one
// addition; list-ref fields (roles, teams) yield their set difference.
func ReferenceChanges(original, proposed *models.Entity) []EdgeChange {
	spec := models.SpecFor(proposed.Kind)
	var changes []EdgeChange

	for field, ref := range spec.References {
		if _, isList := spec.Lists[field]; isList {
			var oldRefs, newRefs []models.EntityRef
			if original != nil {
				oldRefs = original.RefListField(field)
			}
			newRefs = proposed.RefListField(field)

			change := EdgeChange{Field: field, Relation: ref.Relation, Inbound: ref.Inbound}
			for _, n := range newRefs {
				if !containsRef(oldRefs, n) {
					change.Added = append(change.Added, n)
				}
			}
			for _, o := range oldRefs {
				if !containsRef(newRefs, o) {
					change.Removed = append(change.Removed, o)
				}
			}
			if len(change.Added) > 0 || len(change.Removed) > 0 {
				changes = append(changes, change)
			}
			continue
		}

		var oldRef, newRef *models.EntityRef
		if original != nil {
			oldRef = original.RefField(field)
		}
		newRef = proposed.RefField(field)

		switch {
		case oldRef == nil && newRef == nil:
		case oldRef != nil && newRef != nil && oldRef.ID == newRef.ID:
		default:
			change := EdgeChange{Field: field, Relation: ref.Relation, Inbound: ref.Inbound}
			if oldRef != nil {
				change.Removed = append(change.Removed, *oldRef)
			}
			if newRef != nil {
				change.Added = append(change.Added, *newRef)
			}
			changes = append(changes, change)
		}
	}

	return changes
}

func containsRef(refs []models.EntityRef, ref models.EntityRef) bool {
	for _, r := range refs {
		if r.ID == ref.ID {
			return true
		}
	}
	return false
}
