package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/imgdrop/internal/models"
	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
	"github.com/noah-isme/imgdrop/pkg/response"
)

type rawContentService interface {
	Open(ctx context.Context, id, token string) (*models.ArtifactContent, error)
}

// RawHandler streams artifact bytes behind signed links.
type RawHandler struct {
	service rawContentService
}

// NewRawHandler constructs the handler.
func NewRawHandler(service rawContentService) *RawHandler {
	return &RawHandler{service: service}
}

// Serve godoc
// @Summary Fetch image bytes via a signed link
// @Tags Raw
// @Produce octet-stream
// @Param id path string true "Artifact ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /raw/{id} [get]
func (h *RawHandler) Serve(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrServiceNotWired)
		return
	}
	content, err := h.service.Open(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "private, no-store")
	c.Header("Content-Disposition", "inline")
	c.Data(http.StatusOK, content.ContentType, content.Data)
}
