package models

import (
	"github.com/meridian-data/catalog-engine/pkg/jsonutil"
)

// EntityKind is the closed set of entity types the catalog tracks. Dispatch on
// kind goes through the KindSpec table rather than inheritance.
type EntityKind string

const (
	KindTable    EntityKind = "table"
	KindTopic    EntityKind = "topic"
	KindPipeline EntityKind = "pipeline"
	KindDatabase EntityKind = "database"
	KindUser     EntityKind = "user"
	KindTeam     EntityKind = "team"
	KindRole     EntityKind = "role"
	KindService  EntityKind = "service"
)

// Relation field names shared by the kind specs.
const (
	FieldOwner = "owner"
	FieldRoles = "roles"
	FieldTeams = "teams"
)

// Containable is the narrow view of an entity inside the containment
// hierarchy.
type Containable interface {
	ContainedBy() *EntityRef
}

// ContainedBy returns the containing entity's reference, nil at the hierarchy
// root or for non-contained kinds.
func (e *Entity) ContainedBy() *EntityRef {
	return e.RefField("container")
}

// EqualFunc compares two list elements for set-diffing purposes.
type EqualFunc func(a, b any) bool

// ListField describes a list-valued tracked field and how its elements
// compare.
type ListField struct {
	Equal EqualFunc
}

// ReferenceSpec describes the relationship edge a reference-valued payload
// field implies. Inbound edges point at the entity (owner owns entity, team
// contains user); outbound edges point away from it (user has role).
type ReferenceSpec struct {
	Relation RelationKind
	Inbound  bool
}

// KindSpec describes how the diff engine and the relationship side effects
// treat one entity kind: which payload fields are versioned, which of those
// bump the major version, which are lists, and which imply relationship edges.
type KindSpec struct {
	// Tracked is the allow-list of diffable payload fields. Untracked fields
	// pass through unversioned.
	Tracked []string
	// Major is the subset of tracked fields whose change bumps the major
	// version.
	Major map[string]bool
	// Lists maps list-valued tracked fields to their element equality.
	Lists map[string]ListField
	// References maps reference-valued payload fields to the edges they
	// imply. Single-ref inbound fields produce at most one in-edge.
	References map[string]ReferenceSpec
	// Ownable and Taggable gate which payload capabilities validation
	// accepts; Containable gates the containment hierarchy.
	Ownable     bool
	Taggable    bool
	Containable bool
}

// IsMajor reports whether a tracked field is in the major subset.
func (s KindSpec) IsMajor(field string) bool { return s.Major[field] }

// equalByValue compares elements by normalized JSON value. List elements may
// be objects (column definitions), which `==` would panic on.
func equalByValue(a, b any) bool { return jsonutil.Equal(a, b) }

func equalByRefID(a, b any) bool {
	ra, rb := DecodeRef(a), DecodeRef(b)
	if ra == nil || rb == nil {
		return false
	}
	return ra.ID == rb.ID
}

var kindSpecs = map[EntityKind]KindSpec{
	KindTable: {
		Tracked: []string{"description", "displayName", "tags", "columns", FieldOwner},
		Major:   map[string]bool{FieldOwner: true, "columns": true},
		Lists: map[string]ListField{
			"tags":    {Equal: equalByValue},
			"columns": {Equal: equalByValue},
		},
		References:  map[string]ReferenceSpec{FieldOwner: {Relation: RelationOwns, Inbound: true}},
		Ownable:     true,
		Taggable:    true,
		Containable: true,
	},
	KindTopic: {
		Tracked: []string{"description", "displayName", "tags", "partitions", "cleanupPolicies", FieldOwner},
		Major:   map[string]bool{FieldOwner: true, "partitions": true},
		Lists: map[string]ListField{
			"tags":            {Equal: equalByValue},
			"cleanupPolicies": {Equal: equalByValue},
		},
		References:  map[string]ReferenceSpec{FieldOwner: {Relation: RelationOwns, Inbound: true}},
		Ownable:     true,
		Taggable:    true,
		Containable: true,
	},
	KindPipeline: {
		Tracked: []string{"description", "displayName", "tags", "concurrency", "pipelineUrl", FieldOwner},
		Major:   map[string]bool{FieldOwner: true},
		Lists: map[string]ListField{
			"tags": {Equal: equalByValue},
		},
		References:  map[string]ReferenceSpec{FieldOwner: {Relation: RelationOwns, Inbound: true}},
		Ownable:     true,
		Taggable:    true,
		Containable: true,
	},
	KindDatabase: {
		Tracked: []string{"description", "displayName", FieldOwner},
		Major:   map[string]bool{FieldOwner: true},
		References: map[string]ReferenceSpec{
			FieldOwner: {Relation: RelationOwns, Inbound: true},
		},
		Ownable:     true,
		Containable: true,
	},
	KindUser: {
		Tracked: []string{"description", "displayName", "profile", FieldRoles, FieldTeams},
		Lists: map[string]ListField{
			FieldRoles: {Equal: equalByRefID},
			FieldTeams: {Equal: equalByRefID},
		},
		References: map[string]ReferenceSpec{
			FieldRoles: {Relation: RelationHas},
			FieldTeams: {Relation: RelationContains, Inbound: true},
		},
	},
	KindTeam: {
		Tracked: []string{"description", "displayName", "profile"},
	},
	KindRole: {
		Tracked: []string{"description", "displayName", "defaultRole"},
		Major:   map[string]bool{"defaultRole": true},
	},
	KindService: {
		Tracked: []string{"description", "displayName", "serviceType", "connection", FieldOwner},
		Major:   map[string]bool{"connection": true, FieldOwner: true},
		References: map[string]ReferenceSpec{
			FieldOwner: {Relation: RelationOwns, Inbound: true},
		},
		Ownable: true,
	},
}

// SpecFor returns the spec for a kind. Unknown kinds get an empty spec, which
// tracks nothing and implies no edges.
func SpecFor(kind EntityKind) KindSpec {
	return kindSpecs[kind]
}

// KnownKind reports whether the kind belongs to the closed set.
func KnownKind(kind EntityKind) bool {
	_, ok := kindSpecs[kind]
	return ok
}

// ImmutableFields are rejected by PATCH for every kind before the diff runs.
var ImmutableFields = []string{"id", "name", "kind"}
