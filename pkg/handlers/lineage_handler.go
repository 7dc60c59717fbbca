package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/models"
	"github.com/meridian-data/catalog-engine/pkg/services"
)

const defaultLineageDepth = 1

// AddLineageEdgeRequest for PUT /api/v1/lineage.
type AddLineageEdgeRequest struct {
	From models.EntityRef `json:"fromEntity"`
	To   models.EntityRef `json:"toEntity"`
}

// LineageHandler handles lineage HTTP requests.
type LineageHandler struct {
	lineageService services.LineageService
	logger         *zap.Logger
}

// NewLineageHandler creates a new lineage handler.
func NewLineageHandler(lineageService services.LineageService, logger *zap.Logger) *LineageHandler {
	return &LineageHandler{
		lineageService: lineageService,
		logger:         logger,
	}
}

// RegisterRoutes registers the lineage handler's routes on the given mux.
func (h *LineageHandler) RegisterRoutes(mux *http.ServeMux, db Middleware) {
	base := "/api/v1/lineage"

	mux.HandleFunc("GET "+base+"/{id}", db(h.Get))
	mux.HandleFunc("GET "+base+"/name/{fqn}", db(h.GetByName))
	mux.HandleFunc("PUT "+base, db(h.AddEdge))
	mux.HandleFunc("DELETE "+base+"/{fromId}/{toId}", db(h.DeleteEdge))
}

// Get handles GET /api/v1/lineage/{id}
func (h *LineageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid entity id")
		return
	}

	up, down := depthParams(r)
	lineage, err := h.lineageService.Lineage(r.Context(), id, up, down)
	if err != nil {
		h.respondError(w, "get lineage", err)
		return
	}
	h.write(w, lineage)
}

// GetByName handles GET /api/v1/lineage/name/{fqn}
func (h *LineageHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	up, down := depthParams(r)
	lineage, err := h.lineageService.LineageByName(r.Context(), r.PathValue("fqn"), up, down)
	if err != nil {
		h.respondError(w, "get lineage by name", err)
		return
	}
	h.write(w, lineage)
}

// AddEdge handles PUT /api/v1/lineage
func (h *LineageHandler) AddEdge(w http.ResponseWriter, r *http.Request) {
	var req AddLineageEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.From.ID == uuid.Nil || req.To.ID == uuid.Nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "both edge endpoints are required")
		return
	}

	if err := h.lineageService.AddEdge(r.Context(), req.From, req.To); err != nil {
		h.respondError(w, "add lineage edge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEdge handles DELETE /api/v1/lineage/{fromId}/{toId}
func (h *LineageHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	fromID, err := uuid.Parse(r.PathValue("fromId"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid source entity id")
		return
	}
	toID, err := uuid.Parse(r.PathValue("toId"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid target entity id")
		return
	}

	if err := h.lineageService.DeleteEdge(r.Context(), fromID, toID); err != nil {
		h.respondError(w, "delete lineage edge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LineageHandler) respondError(w http.ResponseWriter, action string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Failed to "+action, zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, err.Error()); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *LineageHandler) write(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func depthParams(r *http.Request) (upstream, downstream int) {
	upstream = depthParam(r, "upstreamDepth")
	downstream = depthParam(r, "downstreamDepth")
	return upstream, downstream
}

func depthParam(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultLineageDepth
	}
	depth, err := strconv.Atoi(raw)
	if err != nil || depth < 0 {
		return defaultLineageDepth
	}
	return depth
}
