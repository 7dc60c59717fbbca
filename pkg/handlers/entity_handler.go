package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/models"
	"github.com/meridian-data/catalog-engine/pkg/services"
)

// CreateEntityRequest for POST /api/v1/entities and PUT /api/v1/entities.
type CreateEntityRequest struct {
	Kind    string         `json:"kind"`
	Name    string         `json:"name"`
	Data    map[string]any `json:"data"`
	Version string         `json:"version,omitempty"`
}

// EntityHandler handles entity HTTP requests.
type EntityHandler struct {
	entityService services.EntityService
	logger        *zap.Logger
}

// NewEntityHandler creates a new entity handler.
func NewEntityHandler(entityService services.EntityService, logger *zap.Logger) *EntityHandler {
	return &EntityHandler{
		entityService: entityService,
		logger:        logger,
	}
}

// Middleware wraps a handler with request-scoped dependencies (the database
// querier injection sits here).
type Middleware func(http.HandlerFunc) http.HandlerFunc

// RegisterRoutes registers the entity handler's routes on the given mux.
func (h *EntityHandler) RegisterRoutes(mux *http.ServeMux, db Middleware) {
	base := "/api/v1/entities"

	mux.HandleFunc("POST "+base, db(h.Create))
	mux.HandleFunc("PUT "+base, db(h.Put))
	mux.HandleFunc("GET "+base+"/{id}", db(h.Get))
	mux.HandleFunc("PATCH "+base+"/{id}", db(h.Patch))
	mux.HandleFunc("DELETE "+base+"/{id}", db(h.Delete))
	mux.HandleFunc("POST "+base+"/{id}/restore", db(h.Restore))
	mux.HandleFunc("GET "+base+"/{id}/versions", db(h.ListVersions))
	mux.HandleFunc("GET "+base+"/{id}/versions/{version}", db(h.GetVersion))
	mux.HandleFunc("GET "+base+"/name/{fqn}", db(h.GetByName))
}

// Create handles POST /api/v1/entities
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeEntity(w, r)
	if !ok {
		return
	}

	created, err := h.entityService.Create(r.Context(), req, userName(r))
	if err != nil {
		h.respondError(w, "create entity", err)
		return
	}
	h.write(w, http.StatusCreated, created)
}

// Put handles PUT /api/v1/entities: create-or-replace by name.
func (h *EntityHandler) Put(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeEntity(w, r)
	if !ok {
		return
	}

	result, err := h.entityService.Put(r.Context(), req, userName(r))
	if err != nil {
		h.respondError(w, "put entity", err)
		return
	}
	h.write(w, http.StatusOK, result)
}

// Get handles GET /api/v1/entities/{id}
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	entity, err := h.entityService.Get(r.Context(), id, includeFrom(r))
	if err != nil {
		h.respondError(w, "get entity", err)
		return
	}
	h.write(w, http.StatusOK, entity)
}

// GetByName handles GET /api/v1/entities/name/{fqn}
func (h *EntityHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	entity, err := h.entityService.GetByName(r.Context(), r.PathValue("fqn"), includeFrom(r))
	if err != nil {
		h.respondError(w, "get entity by name", err)
		return
	}
	h.write(w, http.StatusOK, entity)
}

// Patch handles PATCH /api/v1/entities/{id}
func (h *EntityHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object")
		return
	}

	entity, err := h.entityService.Patch(r.Context(), id, patch, userName(r))
	if err != nil {
		h.respondError(w, "patch entity", err)
		return
	}
	h.write(w, http.StatusOK, entity)
}

// Delete handles DELETE /api/v1/entities/{id}. The hardDelete query flag
// purges the entity, its history, and its edges.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	hard := r.URL.Query().Get("hardDelete") == "true"
	if err := h.entityService.Delete(r.Context(), id, hard, userName(r)); err != nil {
		h.respondError(w, "delete entity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/v1/entities/{id}/restore
func (h *EntityHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	entity, err := h.entityService.Restore(r.Context(), id, userName(r))
	if err != nil {
		h.respondError(w, "restore entity", err)
		return
	}
	h.write(w, http.StatusOK, entity)
}

// ListVersions handles GET /api/v1/entities/{id}/versions
func (h *EntityHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	versions, err := h.entityService.ListVersions(r.Context(), id)
	if err != nil {
		h.respondError(w, "list entity versions", err)
		return
	}
	h.write(w, http.StatusOK, map[string]any{
		"entityId": id,
		"versions": versions,
	})
}

// GetVersion handles GET /api/v1/entities/{id}/versions/{version}
func (h *EntityHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	version, err := models.ParseVersion(r.PathValue("version"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	entity, err := h.entityService.GetVersion(r.Context(), id, version)
	if err != nil {
		h.respondError(w, "get entity version", err)
		return
	}
	h.write(w, http.StatusOK, entity)
}

func (h *EntityHandler) decodeEntity(w http.ResponseWriter, r *http.Request) (*models.Entity, bool) {
	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, false
	}

	entity := &models.Entity{
		Kind: models.EntityKind(req.Kind),
		Name: req.Name,
		Data: req.Data,
	}
	if req.Version != "" {
		version, err := models.ParseVersion(req.Version)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
			return nil, false
		}
		entity.Version = version
	}
	return entity, true
}

func (h *EntityHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid entity id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *EntityHandler) respondError(w http.ResponseWriter, action string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Failed to "+action, zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, err.Error()); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *EntityHandler) write(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func includeFrom(r *http.Request) models.Include {
	switch r.URL.Query().Get("include") {
	case "deleted":
		return models.IncludeDeleted
	case "all":
		return models.IncludeAll
	default:
		return models.IncludeNonDeleted
	}
}
