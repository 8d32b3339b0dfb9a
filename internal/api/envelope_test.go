package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("bad request")

	assert.False(t, resp.Success)
	assert.Equal(t, "bad request", resp.Error)
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, MessageResponse("done"))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"message":"done"}`, w.Body.String())
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"BadRequest", func(w http.ResponseWriter) { BadRequest(w, "nope") }, 400, "nope"},
		{"Unauthorized", func(w http.ResponseWriter) { Unauthorized(w) }, 401, "Authentication required"},
		{"NotFound", func(w http.ResponseWriter) { NotFound(w, "Image not found") }, 404, "Image not found"},
		{"TooLarge", func(w http.ResponseWriter) { TooLarge(w, "too big") }, 413, "too big"},
		{"TooManyRequests", func(w http.ResponseWriter) { TooManyRequests(w) }, 429, "Too many requests, slow down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorBody
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	InternalError(w, r, "Failed to upload image", assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
	assert.Contains(t, w.Body.String(), "Failed to upload image")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		URL string `json:"url"`
	}

	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"url":"https://x/y.jpg"}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, "https://x/y.jpg", v.URL)

	r = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"url":"a"} {"url":"b"}`))
	assert.Error(t, DecodeJSON(r, &v))

	r = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`not json`))
	assert.Error(t, DecodeJSON(r, &v))
}
