package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/services"
)

// PipelineHandler exposes the runner-side lifecycle of pipeline entities.
type PipelineHandler struct {
	pipelineService services.PipelineService
	logger          *zap.Logger
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(pipelineService services.PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipelineService: pipelineService,
		logger:          logger,
	}
}

// RegisterRoutes registers the pipeline handler's routes on the given mux.
func (h *PipelineHandler) RegisterRoutes(mux *http.ServeMux, db Middleware) {
	base := "/api/v1/pipelines"

	mux.HandleFunc("POST "+base+"/{id}/deploy", db(h.Deploy))
	mux.HandleFunc("POST "+base+"/{id}/trigger", db(h.Trigger))
	mux.HandleFunc("POST "+base+"/{id}/testConnection", db(h.TestConnection))
	mux.HandleFunc("GET "+base+"/{id}/runs", db(h.Runs))
	mux.HandleFunc("DELETE "+base+"/{id}/deploy", db(h.Undeploy))
}

// Deploy handles POST /api/v1/pipelines/{id}/deploy
func (h *PipelineHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "deploy pipeline", h.pipelineService.Deploy)
}

// Trigger handles POST /api/v1/pipelines/{id}/trigger
func (h *PipelineHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "trigger pipeline", h.pipelineService.Trigger)
}

// TestConnection handles POST /api/v1/pipelines/{id}/testConnection
func (h *PipelineHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "test pipeline connection", h.pipelineService.TestConnection)
}

// Undeploy handles DELETE /api/v1/pipelines/{id}/deploy
func (h *PipelineHandler) Undeploy(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "undeploy pipeline", h.pipelineService.Undeploy)
}

// Runs handles GET /api/v1/pipelines/{id}/runs
func (h *PipelineHandler) Runs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid entity id")
		return
	}

	runs, err := h.pipelineService.Runs(r.Context(), id)
	if err != nil {
		h.respondError(w, "get pipeline runs", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, runs); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// act runs one id-only lifecycle action and maps its outcome to a status.
func (h *PipelineHandler) act(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, uuid.UUID) error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid entity id")
		return
	}

	if err := fn(r.Context(), id); err != nil {
		h.respondError(w, action, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PipelineHandler) respondError(w http.ResponseWriter, action string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Failed to "+action, zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, err.Error()); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
