package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/imgdrop/internal/dto"
	"github.com/noah-isme/imgdrop/internal/models"
	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
	"github.com/noah-isme/imgdrop/pkg/response"
)

const uploadFormField = "image"

type ingestService interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error)
}

// UploadHandlerConfig bounds request bodies and builds share links.
type UploadHandlerConfig struct {
	MaxBodyBytes  int64
	PublicBaseURL string
}

// UploadHandler accepts anonymous image uploads.
type UploadHandler struct {
	service ingestService
	config  UploadHandlerConfig
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(service ingestService, cfg UploadHandlerConfig) *UploadHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 20 * 10 * 1024 * 1024
	}
	return &UploadHandler{service: service, config: cfg}
}

// Upload godoc
// @Summary Upload images
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image (repeatable)"
// @Param make_one_post formData bool false "Group all images under one link"
// @Param overview formData string false "Description"
// @Param password formData string false "Password (min 6 characters)"
// @Param selfdestruct formData int false "Views before the image is deleted (1-100)"
// @Param resize formData bool false "Resize images"
// @Param resize_width formData int false "Width (400-3000)"
// @Param resize_height formData int false "Height (400-3000)"
// @Param output_format formData string false "jpg, jpeg, png or webp"
// @Param bot_token formData string false "Bot verification token"
// @Param contact formData string false "Uploader phone number"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrServiceNotWired)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxBodyBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload payload"))
		return
	}
	var fields dto.UploadForm
	if err := c.ShouldBind(&fields); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload options"))
		return
	}

	headers := form.File[uploadFormField]
	files := make([]models.UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := readUpload(header)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
			return
		}
		files = append(files, file)
	}

	result, err := h.service.Ingest(c.Request.Context(), models.IngestRequest{
		Files:      files,
		Directives: fields.Directives(),
		Origin:     c.ClientIP(),
		BotToken:   fields.BotToken,
		Contact:    fields.Contact,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, dto.UploadResponse{
		IngestResult: *result,
		URL:          h.config.PublicBaseURL + "/api/v1/posts/" + result.ShareID,
	}, nil)
}

func readUpload(header *multipart.FileHeader) (models.UploadFile, error) {
	src, err := header.Open()
	if err != nil {
		return models.UploadFile{}, err
	}
	defer src.Close() //nolint:errcheck

	data, err := io.ReadAll(src)
	if err != nil {
		return models.UploadFile{}, err
	}
	return models.UploadFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
