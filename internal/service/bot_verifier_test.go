package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/imgdrop/pkg/config"
)

func newSiteverify(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "secret-key", r.PostForm.Get("secret"))
		assert.Equal(t, "tok", r.PostForm.Get("response"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBotVerifierScoreThreshold(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"human", `{"success":true,"score":0.9}`, true},
		{"boundary", `{"success":true,"score":0.5}`, true},
		{"low score", `{"success":true,"score":0.3}`, false},
		{"failed", `{"success":false,"score":0.9}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newSiteverify(t, tc.body, http.StatusOK)
			v := NewBotVerifier(config.BotVerifyConfig{Enabled: true, Secret: "secret-key", URL: srv.URL}, nil, nil)
			ok, err := v.Verify(context.Background(), "tok", "203.0.113.1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestBotVerifierDisabledAdmits(t *testing.T) {
	v := NewBotVerifier(config.BotVerifyConfig{Enabled: false}, nil, nil)
	ok, err := v.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBotVerifierMissingToken(t *testing.T) {
	v := NewBotVerifier(config.BotVerifyConfig{Enabled: true, Secret: "secret-key", URL: "http://127.0.0.1:1"}, nil, nil)
	ok, err := v.Verify(context.Background(), " ", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBotVerifierUpstreamError(t *testing.T) {
	srv := newSiteverify(t, `oops`, http.StatusBadGateway)
	v := NewBotVerifier(config.BotVerifyConfig{Enabled: true, Secret: "secret-key", URL: srv.URL}, nil, nil)
	_, err := v.Verify(context.Background(), "tok", "")
	assert.Error(t, err)
}
