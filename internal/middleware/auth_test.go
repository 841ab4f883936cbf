package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-realtime/pkg/response"
	"collab-realtime/pkg/xerrors"
)

func TestRequireUserRejectsMissingHeader(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without identity")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var envelope response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "error", envelope.Status)
	assert.Equal(t, xerrors.ErrUnauthorized.Error(), envelope.Message)
}

func TestRequireUserPutsIdentityInContext(t *testing.T) {
	var got string
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", got)
}
