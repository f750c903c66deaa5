package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/imgdrop/internal/models"
	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
)

type ingestServiceStub struct {
	got    models.IngestRequest
	result *models.IngestResult
	err    error
}

func (s *ingestServiceStub) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	for name, data := range files {
		part, err := writer.CreateFormFile(uploadFormField, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func newUploadRouter(h *UploadHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/uploads", h.Upload)
	return r
}

func TestUploadHandlerCreated(t *testing.T) {
	stub := &ingestServiceStub{result: &models.IngestResult{
		ShareID:     "3f1c2a8e-1d2b-4c5d-8e9f-0a1b2c3d4e5f",
		IsGroup:     true,
		ArtifactIDs: []string{"a", "b"},
	}}
	h := NewUploadHandler(stub, UploadHandlerConfig{PublicBaseURL: "https://img.example"})

	body, contentType := multipartUpload(t, map[string]string{
		"make_one_post": "on",
		"overview":      "weekend",
		"password":      "secret1",
		"resize_width":  "800",
		"resize_height": "600",
		"contact":       "+79161234567",
	}, map[string][]byte{"a.png": []byte("one"), "b.png": []byte("two")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.RemoteAddr = "192.0.2.10:53211"
	w := httptest.NewRecorder()

	newUploadRouter(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var payload struct {
		Data struct {
			ShareID string `json:"shareId"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "https://img.example/api/v1/posts/3f1c2a8e-1d2b-4c5d-8e9f-0a1b2c3d4e5f", payload.Data.URL)

	assert.Len(t, stub.got.Files, 2)
	assert.Equal(t, "192.0.2.10", stub.got.Origin)
	assert.Equal(t, "+79161234567", stub.got.Contact)
	assert.True(t, stub.got.Directives.GroupAsOnePost)
	assert.Equal(t, "weekend", stub.got.Directives.Description)
	assert.Equal(t, "secret1", stub.got.Directives.Password)
	assert.Nil(t, stub.got.Directives.Resize, "resize options apply only with the resize flag")
}

func TestUploadHandlerResizeDirectives(t *testing.T) {
	stub := &ingestServiceStub{result: &models.IngestResult{ShareID: "x", ArtifactIDs: []string{"x"}}}
	h := NewUploadHandler(stub, UploadHandlerConfig{})

	body, contentType := multipartUpload(t, map[string]string{
		"resize":        "1",
		"resize_width":  "800",
		"resize_height": "600",
		"output_format": "png",
		"selfdestruct":  "3",
	}, map[string][]byte{"a.jpg": []byte("one")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	newUploadRouter(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, stub.got.Directives.Resize)
	assert.Equal(t, models.ResizeSpec{Width: 800, Height: 600, Format: "png"}, *stub.got.Directives.Resize)
	assert.Equal(t, 3, stub.got.Directives.ViewLimit)
	assert.False(t, stub.got.Directives.GroupAsOnePost)
}

func TestUploadHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{appErrors.ErrRateLimited, http.StatusTooManyRequests},
		{appErrors.ErrNoFilesSurvived, http.StatusUnprocessableEntity},
		{appErrors.Clone(appErrors.ErrValidation, "no files selected"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		h := NewUploadHandler(&ingestServiceStub{err: tc.err}, UploadHandlerConfig{})
		body, contentType := multipartUpload(t, nil, map[string][]byte{"a.png": []byte("x")})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		newUploadRouter(h).ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code)
	}
}

func TestUploadHandlerBodyTooLarge(t *testing.T) {
	stub := &ingestServiceStub{}
	h := NewUploadHandler(stub, UploadHandlerConfig{MaxBodyBytes: 512})
	body, contentType := multipartUpload(t, nil, map[string][]byte{"a.png": bytes.Repeat([]byte("x"), 4096)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	newUploadRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, stub.got.Files)
}

func TestUploadHandlerRejectsNonMultipart(t *testing.T) {
	h := NewUploadHandler(&ingestServiceStub{}, UploadHandlerConfig{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	newUploadRouter(h).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
