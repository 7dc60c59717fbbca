package models

import "github.com/google/uuid"

// RelationKind is the closed set of directed relationship kinds between
// entities. Multiple kinds may exist between the same pair.
type RelationKind string

const (
	RelationContains RelationKind = "contains"
	RelationOwns     RelationKind = "owns"
	RelationHas      RelationKind = "has"
	RelationFollows  RelationKind = "follows"
	RelationUpstream RelationKind = "upstream"
)

// Relationship is a directed typed edge between two entity identifiers.
// Edges are never cascade-deleted: hard-deleting an entity must purge its
// edges explicitly, and soft-deleted entities keep theirs.
type Relationship struct {
	FromID   uuid.UUID    `json:"fromId"`
	FromKind EntityKind   `json:"fromKind"`
	ToID     uuid.UUID    `json:"toId"`
	ToKind   EntityKind   `json:"toKind"`
	Relation RelationKind `json:"relation"`
}

// LineageEdge is one upstream or downstream hop in a lineage graph.
type LineageEdge struct {
	FromID uuid.UUID `json:"fromEntity"`
	ToID   uuid.UUID `json:"toEntity"`
}

// EntityLineage is the bounded-depth upstream/downstream closure of
// UPSTREAM-kind edges rooted at one entity.
type EntityLineage struct {
	Entity          EntityRef     `json:"entity"`
	Nodes           []EntityRef   `json:"nodes"`
	UpstreamEdges   []LineageEdge `json:"upstreamEdges"`
	DownstreamEdges []LineageEdge `json:"downstreamEdges"`
}
