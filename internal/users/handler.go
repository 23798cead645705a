package users

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"valuation-backend/internal/shared/server/middleware"
	"valuation-backend/internal/shared/server/respond"
)

// Handler serves profile endpoints.
type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing user identity", nil)
		return
	}

	u, err := h.Service.Get(c.Request.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
		return
	}
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
		return
	}
	respond.OK(c, u)
}

type updateProfileRequest struct {
	CompanyName string `json:"companyName"`
	CNPJ        string `json:"cnpj"`
}

// UpdateMe updates the authenticated user's company details.
func (h *Handler) UpdateMe(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing user identity", nil)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	if strings.TrimSpace(req.CompanyName) == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "companyName is required", nil)
		return
	}

	u, err := h.Service.Get(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
		return
	}
	u.ID = userID
	u.CompanyName = strings.TrimSpace(req.CompanyName)
	u.CNPJ = strings.TrimSpace(req.CNPJ)

	if err := h.Service.Save(c.Request.Context(), u); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save user", nil)
		return
	}
	respond.OK(c, u)
}
