package response

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional metadata.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope := Envelope{Data: data}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Error sends an error response converting the error to the common structure.
// Gone is rendered exactly like NotFound so consumed ids cannot be told apart
// from ids that never existed.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Code == appErrors.ErrGone.Code {
		appErr = appErrors.ErrNotFound
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, Envelope{Error: appErr})
}
