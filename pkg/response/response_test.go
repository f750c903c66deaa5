package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
)

func TestErrorRendersGoneAsNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gone := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(gone)
	Error(c, appErrors.Clone(appErrors.ErrGone, "view budget exhausted"))

	missing := httptest.NewRecorder()
	c, _ = gin.CreateTestContext(missing)
	Error(c, appErrors.ErrNotFound)

	require.Equal(t, http.StatusNotFound, gone.Code)
	require.Equal(t, missing.Code, gone.Code)
	require.JSONEq(t, missing.Body.String(), gone.Body.String())
}

func TestErrorWrapsUnknownErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, appErrors.ErrInternal.Code, env.Error.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
