package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/forgechat/backend/internal/http/response"
	"github.com/forgechat/backend/internal/services"
)

type HealthHandler struct {
	svc      services.PersonalizationService
	embedder services.Embedder
}

func NewHealthHandler(svc services.PersonalizationService, embedder services.Embedder) *HealthHandler {
	return &HealthHandler{svc: svc, embedder: embedder}
}

type enabledReporter interface {
	Enabled() bool
}

// Health reports process liveness plus whether the optional subsystems are
// wired. A disabled store is a valid operating mode, so this always returns
// 200.
func (h *HealthHandler) Health(c *gin.Context) {
	embeddings := h.embedder != nil
	if r, ok := h.embedder.(enabledReporter); ok {
		embeddings = r.Enabled()
	}
	response.RespondOK(c, gin.H{
		"status":          "ok",
		"personalization": h.svc.IsEnabled(),
		"embeddings":      embeddings,
	})
}
