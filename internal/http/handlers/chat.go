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

type ChatHandler struct {
	log *logger.Logger
	svc services.PersonalizationService
}

func NewChatHandler(log *logger.Logger, svc services.PersonalizationService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), svc: svc}
}

// ListSessions handles GET /api/chats.
func (h *ChatHandler) ListSessions(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}
	userID := resolveUserID(c, c.Query("userId"))
	if userID == "" {
		response.RespondError(c, http.StatusUnauthorized, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}

	sessions, err := h.svc.GetChatSessions(dbctx.New(c.Request.Context()), userID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chatSessions": sessions})
}

type createSessionRequest struct {
	UserID string  `json:"userId"`
	Title  *string `json:"title"`
}

// CreateSession handles POST /api/chats.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	userID := resolveUserID(c, req.UserID)
	if userID == "" {
		response.RespondError(c, http.StatusUnauthorized, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}

	session, err := h.svc.CreateChatSession(dbctx.New(c.Request.Context()), userID, req.Title)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chatSession": session})
}

// GetSession handles GET /api/chats/:id, returning the session and
// its messages.
func (h *ChatHandler) GetSession(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	userID := resolveUserID(c, c.Query("userId"))
	if userID == "" {
		response.RespondError(c, http.StatusUnauthorized, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}

	session, msgs, err := h.svc.GetChatSessionWithMessages(dbctx.New(c.Request.Context()), userID, sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if session == nil {
		response.RespondError(c, http.StatusNotFound, "session_not_found", fmt.Errorf("not found"))
		return
	}
	response.RespondOK(c, gin.H{"chatSession": session, "messages": msgs})
}

type updateSessionRequest struct {
	UserID string  `json:"userId"`
	Action string  `json:"action"`
	Title  *string `json:"title"`
}

// UpdateSession handles POST /api/chats/:id with an action of
// updateTitle or delete.
func (h *ChatHandler) UpdateSession(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	userID := resolveUserID(c, req.UserID)
	if userID == "" {
		response.RespondError(c, http.StatusUnauthorized, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}

	dbc := dbctx.New(c.Request.Context())
	switch req.Action {
	case "updateTitle":
		if req.Title == nil || *req.Title == "" {
			response.RespondError(c, http.StatusBadRequest, "missing_title", fmt.Errorf("title is required for updateTitle"))
			return
		}
		if err := h.svc.UpdateChatSessionTitle(dbc, userID, sessionID, *req.Title); err != nil {
			response.RespondServiceError(c, err)
			return
		}
	case "delete":
		if err := h.svc.DeleteChatSession(dbc, userID, sessionID); err != nil {
			response.RespondServiceError(c, err)
			return
		}
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_action", fmt.Errorf("action must be updateTitle or delete"))
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

type appendMessageRequest struct {
	UserID       string                 `json:"userId"`
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	MessageIndex *int64                 `json:"messageIndex"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// AppendMessage handles POST /api/chats/:id/messages.
func (h *ChatHandler) AppendMessage(c *gin.Context) {
	if !h.svc.IsEnabled() {
		response.RespondError(c, http.StatusServiceUnavailable, "personalization_disabled", fmt.Errorf("personalization is not configured"))
		return
	}
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	userID := resolveUserID(c, req.UserID)
	if userID == "" {
		response.RespondError(c, http.StatusUnauthorized, "missing_user_id", fmt.Errorf("userId is required"))
		return
	}
	if req.Role == "" || req.Content == "" || req.MessageIndex == nil {
		response.RespondError(c, http.StatusBadRequest, "missing_fields", fmt.Errorf("role, content and messageIndex are required"))
		return
	}

	msg, err := h.svc.SaveChatMessage(dbctx.New(c.Request.Context()), userID, sessionID, req.Role, req.Content, *req.MessageIndex, req.Metadata)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": msg})
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	if raw == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_session_id", fmt.Errorf("session id is required"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return uuid.Nil, false
	}
	return id, true
}
