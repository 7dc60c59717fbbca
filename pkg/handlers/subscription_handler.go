package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/models"
	"github.com/meridian-data/catalog-engine/pkg/services"
)

// SubscriptionRequest for POST and PUT /api/v1/events/subscriptions.
type SubscriptionRequest struct {
	Name           string               `json:"name"`
	Endpoint       string               `json:"endpoint"`
	EventFilters   []models.EventFilter `json:"eventFilters"`
	BatchSize      int                  `json:"batchSize"`
	TimeoutSeconds int                  `json:"timeoutSeconds"`
	SecretKey      string               `json:"secretKey,omitempty"`
	Enabled        *bool                `json:"enabled,omitempty"`
}

// SubscriptionListResponse for GET /api/v1/events/subscriptions.
type SubscriptionListResponse struct {
	Subscriptions []*models.EventSubscription `json:"subscriptions"`
	Total         int                         `json:"total"`
}

// SubscriptionHandler handles event subscription HTTP requests.
type SubscriptionHandler struct {
	subscriptionService services.SubscriptionService
	logger              *zap.Logger
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(subscriptionService services.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// RegisterRoutes registers the subscription handler's routes on the given mux.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, db Middleware) {
	base := "/api/v1/events/subscriptions"

	mux.HandleFunc("POST "+base, db(h.Create))
	mux.HandleFunc("GET "+base, db(h.List))
	mux.HandleFunc("GET "+base+"/{id}", db(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}", db(h.Update))
	mux.HandleFunc("DELETE "+base+"/{id}", db(h.Delete))
}

// Create handles POST /api/v1/events/subscriptions
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.decode(w, r)
	if !ok {
		return
	}

	created, err := h.subscriptionService.Create(r.Context(), sub)
	if err != nil {
		h.respondError(w, "create subscription", err)
		return
	}
	h.write(w, http.StatusCreated, created)
}

// List handles GET /api/v1/events/subscriptions
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscriptionService.List(r.Context())
	if err != nil {
		h.respondError(w, "list subscriptions", err)
		return
	}
	h.write(w, http.StatusOK, SubscriptionListResponse{Subscriptions: subs, Total: len(subs)})
}

// Get handles GET /api/v1/events/subscriptions/{id}
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	sub, err := h.subscriptionService.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get subscription", err)
		return
	}
	h.write(w, http.StatusOK, sub)
}

// Update handles PUT /api/v1/events/subscriptions/{id}
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	sub, ok := h.decode(w, r)
	if !ok {
		return
	}
	sub.ID = id

	updated, err := h.subscriptionService.Update(r.Context(), sub)
	if err != nil {
		h.respondError(w, "update subscription", err)
		return
	}
	h.write(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/events/subscriptions/{id}
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.subscriptionService.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubscriptionHandler) decode(w http.ResponseWriter, r *http.Request) (*models.EventSubscription, bool) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, false
	}

	sub := &models.EventSubscription{
		Name:           req.Name,
		Endpoint:       req.Endpoint,
		EventFilters:   req.EventFilters,
		BatchSize:      req.BatchSize,
		TimeoutSeconds: req.TimeoutSeconds,
		SecretKey:      req.SecretKey,
	}
	if req.Enabled != nil && !*req.Enabled {
		sub.Status = models.StatusDisabled
	}
	return sub, true
}

func (h *SubscriptionHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid subscription id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *SubscriptionHandler) respondError(w http.ResponseWriter, action string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Failed to "+action, zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, err.Error()); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *SubscriptionHandler) write(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
