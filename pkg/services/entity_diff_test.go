package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/catalog-engine/pkg/apperrors"
	"github.com/meridian-data/catalog-engine/pkg/models"
)

func tableEntity(version models.Version, data map[string]any) *models.Entity {
	return &models.Entity{
		ID:      uuid.New(),
		Kind:    models.KindTable,
		Name:    "orders",
		FQN:     "svc.db.orders",
		Data:    data,
		Version: version,
	}
}

func TestComputeDiffCreate(t *testing.T) {
	e := tableEntity(models.Version{}, map[string]any{"description": "orders fact table"})

	result, err := ComputeDiff(nil, e, OperationCreate)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.VersionInitial, result.NextVersion)
	assert.Nil(t, result.Change)
}

func TestComputeDiffMinorThenMajor(t *testing.T) {
	// A description change is minor: 1.0 becomes 1.1.
	original := tableEntity(models.Version{Major: 1, Minor: 0}, map[string]any{
		"description": "old description",
	})
	proposed := tableEntity(original.Version, map[string]any{
		"description": "new description",
	})
	proposed.ID = original.ID

	result, err := ComputeDiff(original, proposed, OperationPatch)
	require.NoError(t, err)
	require.True(t, result.Changed)
	assert.Equal(t, models.Version{Major: 1, Minor: 1}, result.NextVersion)

	require.Contains(t, result.Change.Fields, "description")
	delta := result.Change.Fields["description"]
	assert.Equal(t, "old description", delta.Old)
	assert.Equal(t, "new description", delta.New)
	assert.Equal(t, models.Version{Major: 1, Minor: 0}, result.Change.PreviousVersion)

	// An owner change is major: 1.1 becomes 2.0 with the minor part reset.
	owner := models.EncodeRef(models.EntityRef{ID: uuid.New(), Kind: models.KindUser, Name: "alice"})
	current := result.Entity
	next := tableEntity(current.Version, map[string]any{
		"description": "new description",
		"owner":       owner,
	})
	next.ID = current.ID

	result, err = ComputeDiff(current, next, OperationPatch)
	require.NoError(t, err)
	require.True(t, result.Changed)
	assert.Equal(t, models.Version{Major: 2, Minor: 0}, result.NextVersion)
}

func TestComputeDiffNoOp(t *testing.T) {
	original := tableEntity(models.Version{Major: 1, Minor: 2}, map[string]any{
		"description": "same",
		"tags":        []any{"pii"},
	})
	proposed := tableEntity(original.Version, map[string]any{
		"description": "same",
		"tags":        []any{"pii"},
		// Untracked fields pass through unversioned.
		"sampleRows": 100,
	})
	proposed.ID = original.ID

	result, err := ComputeDiff(original, proposed, OperationPut)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, original.Version, result.NextVersion)
	assert.Nil(t, result.Change)
}

func TestComputeDiffListPartition(t *testing.T) {
	original := tableEntity(models.Version{Major: 1, Minor: 0}, map[string]any{
		"tags": []any{"pii", "finance"},
	})
	proposed := tableEntity(original.Version, map[string]any{
		"tags": []any{"finance", "gdpr"},
	})
	proposed.ID = original.ID

	result, err := ComputeDiff(original, proposed, OperationPut)
	require.NoError(t, err)
	require.True(t, result.Changed)

	delta := result.Change.Fields["tags"]
	assert.Equal(t, []any{"gdpr"}, delta.Added)
	assert.Equal(t, []any{"pii"}, delta.Deleted)
	assert.Nil(t, delta.Old)
	assert.Nil(t, delta.New)
}

func TestComputeDiffObjectListElements(t *testing.T) {
	// Column entries are objects, so element equality has to compare by
	// value rather than with ==.
	original := tableEntity(models.Version{Major: 1, Minor: 0}, map[string]any{
		"columns": []any{
			map[string]any{"name": "id", "dataType": "BIGINT", "ordinal": float64(1)},
			map[string]any{"name": "status", "dataType": "VARCHAR"},
		},
	})
	proposed := tableEntity(original.Version, map[string]any{
		"columns": []any{
			map[string]any{"name": "id", "dataType": "BIGINT", "ordinal": 1},
			map[string]any{"name": "status", "dataType": "TEXT"},
		},
	})
	proposed.ID = original.ID

	result, err := ComputeDiff(original, proposed, OperationPut)
	require.NoError(t, err)
	require.True(t, result.Changed)
	// Column changes are schema changes: 1.0 becomes 2.0.
	assert.Equal(t, models.Version{Major: 2, Minor: 0}, result.NextVersion)

	delta := result.Change.Fields["columns"]
	require.Len(t, delta.Added, 1)
	require.Len(t, delta.Deleted, 1)
	assert.Equal(t, "TEXT", delta.Added[0].(map[string]any)["dataType"])
	assert.Equal(t, "VARCHAR", delta.Deleted[0].(map[string]any)["dataType"])

	// Equal objects, even with int vs float64 numbers, are a no-op.
	same := tableEntity(original.Version, map[string]any{
		"columns": []any{
			map[string]any{"name": "id", "dataType": "BIGINT", "ordinal": 1},
			map[string]any{"name": "status", "dataType": "VARCHAR"},
		},
	})
	same.ID = original.ID

	result, err = ComputeDiff(original, same, OperationPut)
	require.NoError(t, err)
	assert.False(t, result.Changed)
}

func TestComputeDiffPatchImmutableFields(t *testing.T) {
	original := tableEntity(models.Version{Major: 1, Minor: 0}, nil)

	renamed := *original
	renamed.Name = "orders_v2"
	_, err := ComputeDiff(original, &renamed, OperationPatch)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPatch)

	rekinded := *original
	rekinded.Kind = models.KindTopic
	_, err = ComputeDiff(original, &rekinded, OperationPatch)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPatch)

	reidentified := *original
	reidentified.ID = uuid.New()
	_, err = ComputeDiff(original, &reidentified, OperationPatch)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPatch)

	// PUT replaces wholesale and does not run the immutability check; a name
	// difference there simply is not a tracked field.
	_, err = ComputeDiff(original, &renamed, OperationPut)
	assert.NoError(t, err)
}

func TestReferenceChangesOwnerSwap(t *testing.T) {
	oldOwner := models.EntityRef{ID: uuid.New(), Kind: models.KindUser, Name: "alice"}
	newOwner := models.EntityRef{ID: uuid.New(), Kind: models.KindUser, Name: "bob"}

	original := tableEntity(models.Version{Major: 1, Minor: 0}, map[string]any{
		"owner": models.EncodeRef(oldOwner),
	})
	proposed := tableEntity(original.Version, map[string]any{
		"owner": models.EncodeRef(newOwner),
	})
	proposed.ID = original.ID

	changes := ReferenceChanges(original, proposed)
	require.Len(t, changes, 1)

	change := changes[0]
	assert.Equal(t, "owner", change.Field)
	assert.Equal(t, models.RelationOwns, change.Relation)
	assert.True(t, change.Inbound)
	require.Len(t, change.Removed, 1)
	require.Len(t, change.Added, 1)
	assert.Equal(t, oldOwner.ID, change.Removed[0].ID)
	assert.Equal(t, newOwner.ID, change.Added[0].ID)
}

func TestReferenceChangesRoleList(t *testing.T) {
	kept := models.EntityRef{ID: uuid.New(), Kind: models.KindRole}
	dropped := models.EntityRef{ID: uuid.New(), Kind: models.KindRole}
	added := models.EntityRef{ID: uuid.New(), Kind: models.KindRole}

	original := &models.Entity{
		ID:   uuid.New(),
		Kind: models.KindUser,
		Data: map[string]any{
			"roles": []any{models.EncodeRef(kept), models.EncodeRef(dropped)},
		},
	}
	proposed := &models.Entity{
		ID:   original.ID,
		Kind: models.KindUser,
		Data: map[string]any{
			"roles": []any{models.EncodeRef(kept), models.EncodeRef(added)},
		},
	}

	var roleChange *EdgeChange
	for _, c := range ReferenceChanges(original, proposed) {
		if c.Field == "roles" {
			c := c
			roleChange = &c
		}
	}
	require.NotNil(t, roleChange)
	assert.Equal(t, models.RelationHas, roleChange.Relation)
	assert.False(t, roleChange.Inbound)
	require.Len(t, roleChange.Added, 1)
	require.Len(t, roleChange.Removed, 1)
	assert.Equal(t, added.ID, roleChange.Added[0].ID)
	assert.Equal(t, dropped.ID, roleChange.Removed[0].ID)
}

func TestReferenceChangesNoChange(t *testing.T) {
	owner := models.EncodeRef(models.EntityRef{ID: uuid.New(), Kind: models.KindUser})
	original := tableEntity(models.Version{Major: 1, Minor: 0}, map[string]any{"owner": owner})
	proposed := tableEntity(original.Version, map[string]any{"owner": owner})
	proposed.ID = original.ID

	assert.Empty(t, ReferenceChanges(original, proposed))
}
