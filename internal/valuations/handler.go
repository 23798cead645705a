package valuations

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"valuation-backend/internal/shared/server/middleware"
	"valuation-backend/internal/shared/server/respond"
	"valuation-backend/internal/usage"
)

// Handler serves the valuation endpoints.
type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

// RegisterRoutes attaches valuation routes to the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/valuations", h.Create)
	rg.GET("/valuations", h.List)
	rg.GET("/valuations/:id", h.Get)
}

// Create validates the inputs, persists a pending record and schedules the
// analysis. It replies 202 because the result arrives asynchronously.
func (h *Handler) Create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing user identity", nil)
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}

	v, err := h.Service.Create(c.Request.Context(), userID, middleware.RequestIDFromContext(c), req.toInputs())
	var invalid *ValidationError
	switch {
	case errors.As(err, &invalid):
		respond.Error(c, http.StatusUnprocessableEntity, "invalid_inputs", "one or more inputs are invalid", invalid.Fields)
		return
	case errors.Is(err, usage.ErrLimitReached):
		respond.Error(c, http.StatusTooManyRequests, "usage_limit_reached", "free usage limit reached", nil)
		return
	case err != nil:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create valuation", nil)
		return
	}

	respond.Accepted(c, toResponse(v))
}

// Get returns one valuation owned by the caller.
func (h *Handler) Get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing user identity", nil)
		return
	}

	v, err := h.Service.Get(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "valuation not found", nil)
		return
	}
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load valuation", nil)
		return
	}
	respond.OK(c, toResponse(v))
}

// List returns the caller's valuation history, newest first.
func (h *Handler) List(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing user identity", nil)
		return
	}

	items, err := h.Service.List(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list valuations", nil)
		return
	}
	respond.OK(c, toListResponse(items))
}
