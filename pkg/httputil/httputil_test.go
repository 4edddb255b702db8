package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/modgraph/pkg/observability"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "unknown field", body: `{"name": "test", "extra": 1}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest struct {
				Name string `json:"name"`
			}

			err := ParseJSON(req, &dest)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dest.Name)
		})
	}
}

func TestPathAndQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/modules/core?include_dev=true&limit=x", nil)
	req = mux.SetURLVars(req, map[string]string{"key": "core"})

	key, err := PathString(req, "key")
	require.NoError(t, err)
	assert.Equal(t, "core", key)

	_, err = PathString(req, "id")
	assert.Error(t, err)

	dev, err := QueryBool(req, "include_dev", false)
	require.NoError(t, err)
	assert.True(t, dev)

	_, err = QueryInt(req, "limit", 10)
	assert.Error(t, err)
	assert.Equal(t, "patch", QueryString(req, "bump", "patch"))
}

func TestWriteDetailedError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDetailedError(rec, http.StatusConflict, "stale_snapshot", assert.AnError, map[string]int{"revision": 3})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "stale_snapshot", body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := Chain(
		RequestIDMiddleware,
		LoggingMiddleware(observability.NopLogger()),
		RecoveryMiddleware(observability.NopLogger()),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
		if r.URL.Path == "/panic" {
			panic("boom")
		}
		WriteNoContent(w)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("X-Request-ID", "given")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "given", seen)
}
