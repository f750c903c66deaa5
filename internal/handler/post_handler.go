package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/imgdrop/internal/dto"
	"github.com/noah-isme/imgdrop/internal/models"
	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
	"github.com/noah-isme/imgdrop/pkg/response"
)

const (
	passwordHeader     = "X-Post-Password"
	unlockCookiePrefix = "pw_"
)

type resolveService interface {
	Resolve(ctx context.Context, sid string, access models.Access) (*models.ResolveResult, error)
	Unlock(ctx context.Context, sid, password string) (string, time.Time, error)
}

// PostHandler serves shareable ids to viewers.
type PostHandler struct {
	service resolveService
	now     func() time.Time
}

// NewPostHandler constructs the handler.
func NewPostHandler(service resolveService) *PostHandler {
	return &PostHandler{service: service, now: time.Now}
}

// Get godoc
// @Summary View a post
// @Tags Posts
// @Produce json
// @Param sid path string true "Share ID"
// @Param X-Post-Password header string false "Password for protected posts"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{sid} [get]
func (h *PostHandler) Get(c *gin.Context) {
	h.resolve(c, c.GetHeader(passwordHeader))
}

// Submit godoc
// @Summary View a protected post with a password
// @Tags Posts
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param sid path string true "Share ID"
// @Param payload body dto.PasswordRequest true "Password"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{sid} [post]
func (h *PostHandler) Submit(c *gin.Context) {
	var req dto.PasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid password payload"))
		return
	}
	h.resolve(c, req.Password)
}

// Unlock godoc
// @Summary Unlock a protected post for the current browser
// @Tags Posts
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param sid path string true "Share ID"
// @Param payload body dto.PasswordRequest true "Password"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /posts/{sid}/unlock [post]
func (h *PostHandler) Unlock(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrServiceNotWired)
		return
	}
	var req dto.PasswordRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Password) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "password is required"))
		return
	}
	sid := c.Param("sid")
	token, expiresAt, err := h.service.Unlock(c.Request.Context(), sid, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	maxAge := int(expiresAt.Sub(h.now()).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(unlockCookiePrefix+sid, token, maxAge, "/", "", c.Request.TLS != nil, true)
	response.JSON(c, http.StatusOK, dto.UnlockResponse{
		ShareID:   sid,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil)
}

func (h *PostHandler) resolve(c *gin.Context, password string) {
	if h.service == nil {
		response.Error(c, appErrors.ErrServiceNotWired)
		return
	}
	sid := c.Param("sid")
	access := models.Access{Password: password}
	if token, err := c.Cookie(unlockCookiePrefix + sid); err == nil {
		access.UnlockToken = token
	}
	result, err := h.service.Resolve(c.Request.Context(), sid, access)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
