package models

import (
	"time"

	"github.com/google/uuid"
)

// Include controls whether soft-deleted entities are visible to a read.
type Include string

const (
	IncludeNonDeleted Include = "non-deleted"
	IncludeDeleted    Include = "deleted"
	IncludeAll        Include = "all"
)

// Matches reports whether an entity with the given deleted flag is visible
// under this include rule.
func (i Include) Matches(deleted bool) bool {
	switch i {
	case IncludeAll:
		return true
	case IncludeDeleted:
		return deleted
	default:
		return !deleted
	}
}

// Entity is a catalog-tracked record: a stable UUID, a unique hierarchical
// fully-qualified name, a kind tag from the closed EntityKind set, and a
// mutable JSON payload. The payload carries kind-specific fields (description,
// tags, owner reference, connection config, ...); which of those are versioned
// is defined by the kind's spec, not by the struct.
type Entity struct {
	ID                uuid.UUID          `json:"id"`
	Kind              EntityKind         `json:"kind"`
	Name              string             `json:"name"`
	FQN               string             `json:"fullyQualifiedName"`
	Data              map[string]any     `json:"data"`
	Version           Version            `json:"version"`
	UpdatedBy         string             `json:"updatedBy"`
	UpdatedAt         int64              `json:"updatedAt"` // epoch millis
	Deleted           bool               `json:"deleted"`
	ChangeDescription *ChangeDescription `json:"changeDescription,omitempty"`
}

// EntityRef is a lightweight reference to another entity. Entities never embed
// a foreign entity's body, only a reference whose display fields are resolved
// on read.
type EntityRef struct {
	ID      uuid.UUID  `json:"id"`
	Kind    EntityKind `json:"kind"`
	Name    string     `json:"name,omitempty"`
	FQN     string     `json:"fullyQualifiedName,omitempty"`
	Deleted bool       `json:"deleted,omitempty"`
}

// Ref returns a reference to this entity.
func (e *Entity) Ref() EntityRef {
	return EntityRef{ID: e.ID, Kind: e.Kind, Name: e.Name, FQN: e.FQN, Deleted: e.Deleted}
}

// Touch stamps the entity with the updating user and the current time.
func (e *Entity) Touch(updatedBy string) {
	e.UpdatedBy = updatedBy
	e.UpdatedAt = time.Now().UnixMilli()
}

// Field returns a payload field, nil if absent.
func (e *Entity) Field(name string) any {
	if e.Data == nil {
		return nil
	}
	return e.Data[name]
}

// SetField sets a payload field, allocating the payload map if needed.
func (e *Entity) SetField(name string, value any) {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.Data[name] = value
}

// RefField decodes a payload field holding an entity reference, as written by
// JSON round-trips ({"id": ..., "kind": ...}) or assigned directly.
func (e *Entity) RefField(name string) *EntityRef {
	return DecodeRef(e.Field(name))
}

// RefListField decodes a payload field holding a list of entity references.
func (e *Entity) RefListField(name string) []EntityRef {
	raw, ok := e.Field(name).([]any)
	if !ok {
		return nil
	}
	refs := make([]EntityRef, 0, len(raw))
	for _, item := range raw {
		if ref := DecodeRef(item); ref != nil {
			refs = append(refs, *ref)
		}
	}
	return refs
}

// DecodeRef converts a decoded JSON value into an EntityRef. Returns nil when
// the value does not carry a parseable id.
func DecodeRef(value any) *EntityRef {
	switch v := value.(type) {
	case EntityRef:
		return &v
	case *EntityRef:
		return v
	case map[string]any:
		idStr, _ := v["id"].(string)
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil
		}
		kind, _ := v["kind"].(string)
		name, _ := v["name"].(string)
		fqn, _ := v["fullyQualifiedName"].(string)
		return &EntityRef{ID: id, Kind: EntityKind(kind), Name: name, FQN: fqn}
	default:
		return nil
	}
}

// EncodeRef converts a reference into the plain-map form stored in payloads,
// so stored JSON and in-memory entities compare identically.
func EncodeRef(ref EntityRef) map[string]any {
	m := map[string]any{
		"id":   ref.ID.String(),
		"kind": string(ref.Kind),
	}
	if ref.Name != "" {
		m["name"] = ref.Name
	}
	if ref.FQN != "" {
		m["fullyQualifiedName"] = ref.FQN
	}
	return m
}
