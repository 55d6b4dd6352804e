package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgechat/backend/internal/http/response"
	"github.com/forgechat/backend/internal/platform/ctxutil"
	"github.com/forgechat/backend/internal/platform/dbctx"
	"github.com/forgechat/backend/internal/platform/logger"
	"github.com/forgechat/backend/internal/services"
)

type MemoryHandler struct {
	log *logger.Logger
	svc services.PersonalizationService
}

func NewMemoryHandler(log *logger.Logger, svc services.PersonalizationService) *MemoryHandler {
	return &MemoryHandler{log: log.With("handler", "MemoryHandler"), svc: svc}
}

type userInfo struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

type memoryRequest struct {
	UserID   string    `json:"userId"`
	Action   string    `json:"action"`
	Content  string    `json:"content"`
	UserInfo *userInfo `json:"userInfo"`
}

// Handle dispatches the persistent-memory actions: get, set, append.
func (h *MemoryHandler) Handle(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}

	var req memoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	userID := resolveUserID(c, req.UserID)
	if userID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}

	dbc := dbctx.New(c.Request.Context())

	if req.UserInfo != nil {
		if _, err := h.svc.EnsureUser(dbc, userID, req.UserInfo.Email, req.UserInfo.Name); err != nil {
			h.log.Warn("User upsert failed", "user_id", userID, "error", err)
		}
	}

	switch req.Action {
	case "get":
		content, err := h.svc.GetPersistentMemory(dbc, userID)
		if err != nil {
			response.RespondServiceError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"content": content})
	case "set":
		if req.Content == "" {
			response.RespondError(c, http.StatusBadRequest, "missing_content", fmt.Errorf("content is required for set"))
			return
		}
		if err := h.svc.SetPersistentMemory(dbc, userID, req.Content); err != nil {
			response.RespondServiceError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"success": true})
	case "append":
		if req.Content == "" {
			response.RespondError(c, http.StatusBadRequest, "missing_content", fmt.Errorf("content is required for append"))
			return
		}
		if err := h.svc.AppendPersistentMemory(dbc, userID, req.Content); err != nil {
			response.RespondServiceError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"success": true})
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_action", fmt.Errorf("action must be get, set or append"))
	}
}

// resolveUserID prefers the verified token identity over the caller-supplied
// one.
func resolveUserID(c *gin.Context, supplied string) string {
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != "" {
		return rd.UserID
	}
	return supplied
}
