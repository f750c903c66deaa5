package dto

import (
	"strings"

	"github.com/noah-isme/imgdrop/internal/models"
)

// UploadForm contains the multipart fields submitted alongside the images.
type UploadForm struct {
	MakeOnePost  string `form:"make_one_post"`
	Overview     string `form:"overview"`
	Password     string `form:"password"`
	SelfDestruct int    `form:"selfdestruct"`
	Resize       string `form:"resize"`
	ResizeWidth  int    `form:"resize_width"`
	ResizeHeight int    `form:"resize_height"`
	OutputFormat string `form:"output_format"`
	BotToken     string `form:"bot_token"`
	Contact      string `form:"contact"`
}

// Directives maps the form onto ingestion directives. Resize options are
// ignored unless the resize flag is set.
func (f UploadForm) Directives() models.UploadDirectives {
	directives := models.UploadDirectives{
		GroupAsOnePost: checked(f.MakeOnePost),
		Description:    f.Overview,
		Password:       f.Password,
		ViewLimit:      f.SelfDestruct,
	}
	if checked(f.Resize) {
		directives.Resize = &models.ResizeSpec{
			Width:  f.ResizeWidth,
			Height: f.ResizeHeight,
			Format: f.OutputFormat,
		}
	}
	return directives
}

// UploadResponse is returned after a successful ingestion.
type UploadResponse struct {
	models.IngestResult
	URL string `json:"url"`
}

// PasswordRequest carries a password attempt for a protected post.
type PasswordRequest struct {
	Password string `form:"password" json:"password"`
}

// UnlockResponse reports when an unlock cookie stops being honoured.
type UnlockResponse struct {
	ShareID   string `json:"shareId"`
	ExpiresAt string `json:"expiresAt"`
}

// checked interprets an HTML checkbox or boolean-like form value.
func checked(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}
