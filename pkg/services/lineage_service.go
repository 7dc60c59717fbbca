package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/models"
	"github.com/meridian-data/catalog-engine/pkg/repositories"
)

// LineageService walks the UPSTREAM-kind edge graph around an entity.
// Traversal is read-only and may interleave with mutation traffic; it
// observes an eventually-consistent view, which is acceptable for lineage.
type LineageService interface {
	Lineage(ctx context.Context, id uuid.UUID, upstreamDepth, downstreamDepth int) (*models.EntityLineage, error)
	LineageByName(ctx context.Context, name string, upstreamDepth, downstreamDepth int) (*models.EntityLineage, error)
	// AddEdge records one upstream hop: from flows into to.
	AddEdge(ctx context.Context, from, to models.EntityRef) error
	DeleteEdge(ctx context.Context, fromID, toID uuid.UUID) error
}

type lineageService struct {
	entityRepo   repositories.EntityRepository
	relationRepo repositories.RelationshipRepository
	logger       *zap.Logger
}

// NewLineageService creates a new LineageService.
func NewLineageService(
	entityRepo repositories.EntityRepository,
	relationRepo repositories.RelationshipRepository,
	logger *zap.Logger,
) LineageService {
	return &lineageService{
		entityRepo:   entityRepo,
		relationRepo: relationRepo,
		logger:       logger.Named("lineage-service"),
	}
}

var _ LineageService = (*lineageService)(nil)

// walkItem is one pending expansion step. Depth strictly decreases per hop,
// which is the sole termination guarantee: cycles are not detected mid-walk,
// so a cyclic graph with a generous depth revisits nodes and the duplicates
// are squashed after the walk.
type walkItem struct {
	id    uuid.UUID
	kind  models.EntityKind
	depth int
}

func (s *lineageService) Lineage(ctx context.Context, id uuid.UUID, upstreamDepth, downstreamDepth int) (*models.EntityLineage, error) {
	root, err := s.entityRepo.Get(ctx, id, models.IncludeAll)
	if err != nil {
		return nil, err
	}
	return s.walk(ctx, root, upstreamDepth, downstreamDepth)
}

func (s *lineageService) LineageByName(ctx context.Context, name string, upstreamDepth, downstreamDepth int) (*models.EntityLineage, error) {
	root, err := s.entityRepo.GetByName(ctx, name, models.IncludeAll)
	if err != nil {
		return nil, err
	}
	return s.walk(ctx, root, upstreamDepth, downstreamDepth)
}

func (s *lineageService) walk(ctx context.Context, root *models.Entity, upstreamDepth, downstreamDepth int) (*models.EntityLineage, error) {
	lineage := &models.EntityLineage{
		Entity:          root.Ref(),
		Nodes:           []models.EntityRef{},
		UpstreamEdges:   []models.LineageEdge{},
		DownstreamEdges: []models.LineageEdge{},
	}
	var discovered []models.EntityRef

	// Upstream: edges run source -> consumer, so the sources of a node are
	// the edges pointing at it.
	work := []walkItem{{id: root.ID, kind: root.Kind, depth: upstreamDepth}}
	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]
		if item.depth <= 0 {
			continue
		}

		sources, err := s.relationRepo.FindTo(ctx, item.id, item.kind, models.RelationUpstream)
		if err != nil {
			return nil, err
		}
		for _, src := range sources {
			lineage.UpstreamEdges = append(lineage.UpstreamEdges, models.LineageEdge{FromID: src.ID, ToID: item.id})
			discovered = append(discovered, src)
			work = append(work, walkItem{id: src.ID, kind: src.Kind, depth: item.depth - 1})
		}
	}

	work = []walkItem{{id: root.ID, kind: root.Kind, depth: downstreamDepth}}
	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]
		if item.depth <= 0 {
			continue
		}

		targets, err := s.relationRepo.FindFrom(ctx, item.id, item.kind, models.RelationUpstream)
		if err != nil {
			return nil, err
		}
		for _, target := range targets {
			lineage.DownstreamEdges = append(lineage.DownstreamEdges, models.LineageEdge{FromID: item.id, ToID: target.ID})
			discovered = append(discovered, target)
			work = append(work, walkItem{id: target.ID, kind: target.Kind, depth: item.depth - 1})
		}
	}

	lineage.UpstreamEdges = dedupeEdges(lineage.UpstreamEdges)
	lineage.DownstreamEdges = dedupeEdges(lineage.DownstreamEdges)

	// Dedupe by identity post-walk, then re-resolve each survivor so the
	// result carries present display names even for transitively discovered
	// nodes.
	seen := map[uuid.UUID]bool{root.ID: true}
	for _, ref := range discovered {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true

		node, err := s.entityRepo.Get(ctx, ref.ID, models.IncludeAll)
		if err != nil {
			// Edge to an entity hard-deleted mid-walk: keep the bare ref.
			lineage.Nodes = append(lineage.Nodes, ref)
			continue
		}
		lineage.Nodes = append(lineage.Nodes, node.Ref())
	}

	return lineage, nil
}

func (s *lineageService) AddEdge(ctx context.Context, from, to models.EntityRef) error {
	return s.relationRepo.Insert(ctx, &models.Relationship{
		FromID:   from.ID,
		FromKind: from.Kind,
		ToID:     to.ID,
		ToKind:   to.Kind,
		Relation: models.RelationUpstream,
	})
}

func (s *lineageService) DeleteEdge(ctx context.Context, fromID, toID uuid.UUID) error {
	_, err := s.relationRepo.Delete(ctx, fromID, toID, models.RelationUpstream)
	return err
}

func dedupeEdges(edges []models.LineageEdge) []models.LineageEdge {
	seen := map[models.LineageEdge]bool{}
	out := edges[:0]
	for _, edge := range edges {
		if seen[edge] {
			continue
		}
		seen[edge] = true
		out = append(out, edge)
	}
	return out
}
