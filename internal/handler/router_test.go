package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/imgdrop/internal/models"
)

func TestEngineClientOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name    string
		trusted []string
		want    string
	}{
		{name: "forwarded header ignored without trusted proxies", want: "192.0.2.10"},
		{name: "forwarded header ignored from untrusted peer", trusted: []string{"10.0.0.0/8"}, want: "192.0.2.10"},
		{name: "forwarded header honoured from trusted proxy", trusted: []string{"192.0.2.0/24"}, want: "198.51.100.7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &ingestServiceStub{result: &models.IngestResult{ShareID: "sid", ArtifactIDs: []string{"sid"}}}
			h := NewUploadHandler(stub, UploadHandlerConfig{PublicBaseURL: "https://img.example"})
			r, err := NewEngine(tc.trusted)
			require.NoError(t, err)
			r.POST("/api/v1/uploads", h.Upload)

			body, contentType := multipartUpload(t, nil, map[string][]byte{"a.png": []byte("one")})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("X-Forwarded-For", "198.51.100.7")
			req.RemoteAddr = "192.0.2.10:53211"
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusCreated, w.Code)
			assert.Equal(t, tc.want, stub.got.Origin)
		})
	}
}

func TestNewEngineRejectsInvalidProxy(t *testing.T) {
	_, err := NewEngine([]string{"not-an-address"})
	assert.Error(t, err)
}
