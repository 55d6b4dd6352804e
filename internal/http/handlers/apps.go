package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forgechat/backend/internal/http/response"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
	"github.com/forgechat/backend/internal/services"
)

type AppsHandler struct {
	log *logger.Logger
	svc services.PersonalizationService
}

func NewAppsHandler(log *logger.Logger, svc services.PersonalizationService) *AppsHandler {
	return &AppsHandler{log: log.With("handler", "AppsHandler"), svc: svc}
}

// List handles GET /api/apps.
func (h *AppsHandler) List(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}
	userID := resolveUserID(c, c.Query("userId"))
	if userID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}
	apps, err := h.svc.GetUserApps(dbctx.New(c.Request.Context()), userID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "apps": apps})
}

type createAppRequest struct {
	UserID string                 `json:"userId"`
	Name   string                 `json:"name"`
	Config map[string]interface{} `json:"config"`
}

// Create handles POST /api/apps.
func (h *AppsHandler) Create(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}
	var req createAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	userID := resolveUserID(c, req.UserID)
	if userID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}
	if req.Name == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_name", fmt.Errorf("name is required"))
		return
	}

	dbc := dbctx.New(c.Request.Context())
	if _, err := h.svc.EnsureUser(dbc, userID, nil, nil); err != nil {
		h.log.Warn("User upsert failed", "user_id", userID, "error", err)
	}
	app, err := h.svc.CreateApp(dbc, userID, req.Name, req.Config)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "app": app})
}

// Delete handles DELETE /api/apps/:id.
func (h *AppsHandler) Delete(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}
	userID := resolveUserID(c, c.Query("userId"))
	if userID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}
	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_app_id", err)
		return
	}
	if err := h.svc.DeleteApp(dbctx.New(c.Request.Context()), userID, appID); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}
